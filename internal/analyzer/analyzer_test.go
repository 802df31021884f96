package analyzer

import (
	"testing"
	"time"

	"chanalyzer/internal/bsp"
	"chanalyzer/internal/chanconfig"
	"chanalyzer/internal/kline"
)

func feed(t *testing.T, a *Analyzer, ohlc [][4]float64) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, b := range ohlc {
		ts := base.Add(time.Duration(i) * time.Minute)
		if _, err := a.AddK(ts, b[0], b[1], b[2], b[3], 0); err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
	}
}

// TestAnalyzerNullHasEmptyLayers covers spec §8 scenario 1: zero bars.
func TestAnalyzerNullHasEmptyLayers(t *testing.T) {
	a := New(chanconfig.Default())
	if a.Bars().Len() != 0 || a.Candles().Len() != 0 || a.Bis().Len() != 0 {
		t.Fatalf("expected all layers empty, got bars=%d candles=%d bis=%d",
			a.Bars().Len(), a.Candles().Len(), a.Bis().Len())
	}
}

// TestAnalyzerMonotoneUpHasNoFractalOrStroke covers spec §8 scenario 2: a
// strictly increasing run never reverses, so no candle can ever qualify
// as a fractal and no stroke can ever form.
func TestAnalyzerMonotoneUpHasNoFractalOrStroke(t *testing.T) {
	a := New(chanconfig.Default())
	var bars [][4]float64
	for i := 1; i <= 10; i++ {
		f := float64(i)
		bars = append(bars, [4]float64{f, f + 1, f - 1, f})
	}
	feed(t, a, bars)

	if a.Bis().Len() != 0 {
		t.Fatalf("expected no strokes in a monotone run, got %d", a.Bis().Len())
	}
	for i := 0; i < a.Candles().Len(); i++ {
		if a.Candles().Get(i).Fx != kline.FxUnknown {
			t.Fatalf("candle %d unexpectedly labeled a fractal in a monotone run", i)
		}
	}
}

// TestAnalyzerVShapeFormsOneUpStroke covers spec §8 scenario 3: a bottom
// fractal followed by a top fractal, each candle crafted to open its own
// candle (mid-price open/close keeps containment from ever triggering),
// must yield exactly one confirmed Up stroke spanning the two extremes.
func TestAnalyzerVShapeFormsOneUpStroke(t *testing.T) {
	a := New(chanconfig.Default())
	hl := [][2]float64{
		{100, 94},
		{92, 85},
		{84, 75},   // bottom fractal
		{90, 82},
		{97, 89},
		{103, 94},
		{108, 100},
		{113, 106}, // top fractal
		{107, 95},
	}
	var bars [][4]float64
	for _, p := range hl {
		mid := (p[0] + p[1]) / 2
		bars = append(bars, [4]float64{mid, p[0], p[1], mid})
	}
	feed(t, a, bars)

	if a.Bis().Len() != 1 {
		t.Fatalf("expected exactly one stroke, got %d", a.Bis().Len())
	}
	got := a.Bis().Get(0)
	if !got.IsUp() || !got.IsSure() {
		t.Fatalf("expected the stroke to be a confirmed Up stroke, got up=%v sure=%v", got.IsUp(), got.IsSure())
	}
	if got.BeginVal() != 75 {
		t.Fatalf("expected the first stroke to begin at the bottom fractal 75, got %v", got.BeginVal())
	}
}

// TestAnalyzerRejectsNonMonotonicTime covers the KlNotMonotonous error
// path (spec §7): an equal or earlier bar time must be rejected and must
// not mutate any layer.
func TestAnalyzerRejectsNonMonotonicTime(t *testing.T) {
	a := New(chanconfig.Default())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := a.AddK(base, 1, 2, 0, 1, 0); err != nil {
		t.Fatalf("first bar: %v", err)
	}
	before := a.Snapshot()
	if _, err := a.AddK(base, 1, 2, 0, 1, 0); err == nil {
		t.Fatalf("expected KlNotMonotonous error on repeated timestamp")
	}
	after := a.Snapshot()
	if before.BarCount != after.BarCount {
		t.Fatalf("rejected bar must not mutate the bar arena: before=%d after=%d",
			before.BarCount, after.BarCount)
	}
}

// zigzag generates n bars oscillating between lows of 99 and 111 (highs
// two above), one candle per bar, so fractals appear at every turn and
// strokes, segments and pivots all form as the run extends.
func zigzag(n int) [][4]float64 {
	lows := []float64{99, 102, 105, 108, 111, 108, 105, 102}
	bars := make([][4]float64, 0, n)
	for i := 0; i < n; i++ {
		lo := lows[i%len(lows)]
		mid := lo + 1
		bars = append(bars, [4]float64{mid, lo + 2, lo, mid})
	}
	return bars
}

func feedMacd(t *testing.T, a *Analyzer, ohlc [][4]float64, macd float64) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, b := range ohlc {
		ts := base.Add(time.Duration(i) * time.Minute)
		if _, err := a.AddK(ts, b[0], b[1], b[2], b[3], macd); err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
	}
}

// TestAnalyzerZigzagBuildsAllLayers covers spec §8 scenario 4: a long
// oscillation inside a fixed band must produce strokes, at least one
// segment, and at least one pivot whose bands stay inside the
// oscillation range.
func TestAnalyzerZigzagBuildsAllLayers(t *testing.T) {
	a := New(chanconfig.Default())
	feedMacd(t, a, zigzag(64), 1)

	if a.Bis().Len() < 4 {
		t.Fatalf("expected at least 4 strokes from 8 full swings, got %d", a.Bis().Len())
	}
	if a.Segs().Len() == 0 {
		t.Fatalf("expected at least one segment over the stroke run")
	}
	if a.Zss().Len() == 0 {
		t.Fatalf("expected at least one pivot inside the oscillation band")
	}
	for i := 0; i < a.Zss().Len(); i++ {
		z := a.Zss().Get(i)
		if z.Low() < 99 || z.High() > 113 {
			t.Fatalf("pivot %d band [%v,%v] leaves the oscillation range [99,113]", i, z.Low(), z.High())
		}
		if z.PeakLow() < 99 || z.PeakHigh() > 113 {
			t.Fatalf("pivot %d peak extent [%v,%v] leaves the oscillation range", i, z.PeakLow(), z.PeakHigh())
		}
	}
}

// TestAnalyzerStructuralInvariants asserts the quantified invariants of
// spec §8 over every layer after a long mixed run.
func TestAnalyzerStructuralInvariants(t *testing.T) {
	a := New(chanconfig.Default())
	feedMacd(t, a, zigzag(72), 1)

	// §8.3: consecutive strokes alternate direction and share their
	// joint candle; only the trailing stroke may still be virtual.
	for i := 1; i < a.Bis().Len(); i++ {
		prev, cur := a.Bis().Get(i-1), a.Bis().Get(i)
		if prev.Dir() == cur.Dir() {
			t.Fatalf("strokes %d and %d share direction %v", i-1, i, cur.Dir())
		}
		if prev.EndKlc() != cur.BeginKlc() {
			t.Fatalf("stroke %d ends at candle %d but stroke %d begins at %d",
				i-1, prev.EndKlc(), i, cur.BeginKlc())
		}
	}
	for i := 0; i < a.Bis().Len()-1; i++ {
		if !a.Bis().Get(i).IsSure() {
			t.Fatalf("interior stroke %d is not confirmed", i)
		}
	}

	// §8.4: confirmed segments respect their direction's monotonicity
	// and span at least 2 strokes.
	for i := 0; i < a.Segs().Len(); i++ {
		s := a.Segs().Get(i)
		if !s.IsSure() {
			continue
		}
		if s.EndIdx()-s.StartIdx() < 2 {
			t.Fatalf("confirmed segment %d spans %d strokes", i, s.EndIdx()-s.StartIdx()+1)
		}
		if s.IsDown() && s.BeginVal() <= s.EndVal() {
			t.Fatalf("confirmed down segment %d does not descend: %v -> %v", i, s.BeginVal(), s.EndVal())
		}
		if s.IsUp() && s.BeginVal() >= s.EndVal() {
			t.Fatalf("confirmed up segment %d does not ascend: %v -> %v", i, s.BeginVal(), s.EndVal())
		}
	}

	// §8.5: pivot band ordering and out-line adjacency.
	for i := 0; i < a.Zss().Len(); i++ {
		z := a.Zss().Get(i)
		if z.High() <= z.Low() {
			t.Fatalf("pivot %d band inverted: [%v,%v]", i, z.Low(), z.High())
		}
		if z.PeakHigh() < z.High() || z.PeakLow() > z.Low() {
			t.Fatalf("pivot %d peak extent narrower than its core band", i)
		}
		if out, ok := z.BiOut(); ok && out != z.EndBiIdx()+1 {
			t.Fatalf("pivot %d out-line %d does not follow its end line %d", i, out, z.EndBiIdx())
		}
		if in, ok := z.BiIn(); ok && in != z.BeginBiIdx()-1 {
			t.Fatalf("pivot %d in-line %d does not precede its begin line %d", i, in, z.BeginBiIdx())
		}
	}

	// §8.6: every point references a stroke of matching direction, and
	// every attached type-1 reference is an actual anchor.
	for i := 0; i < a.Bsps().HistoryLen(); i++ {
		p := a.Bsps().HistoryAt(i)
		if len(p.Types()) == 0 {
			t.Fatalf("point %d carries no types", i)
		}
		line := a.Bis().Get(p.BiIdx())
		if p.IsBuy() != line.IsDown() {
			t.Fatalf("point %d buy flag disagrees with stroke %d's direction", i, p.BiIdx())
		}
		if rel, ok := p.RelateBsp1(); ok {
			anchor := a.Bsps().HistoryAt(rel)
			if !anchor.HasType(bsp.T1) && !anchor.HasType(bsp.T1P) {
				t.Fatalf("point %d's type-1 reference %d is not a type-1 point", i, rel)
			}
		}
	}
}

// TestAnalyzerVirtualRollback covers spec §8 scenario 6: a decline off
// a confirmed top opens a virtual down stroke; a rally bar that clears
// the top's own high invalidates the hypothesis. The stroke arena must
// shed the virtual stroke on that very bar, every interior stroke must
// stay confirmed at every step, and the layers above must have been
// re-derived (no pivot or point may reference a stroke index that no
// longer exists).
func TestAnalyzerVirtualRollback(t *testing.T) {
	a := New(chanconfig.Default())
	hl := [][2]float64{
		{100, 94}, {92, 85}, {84, 75}, {90, 82}, {97, 89}, {103, 94},
		{108, 100}, {113, 106}, {107, 95}, {100, 88}, {92, 82}, {84, 76},
	}
	var bars [][4]float64
	for _, p := range hl {
		mid := (p[0] + p[1]) / 2
		bars = append(bars, [4]float64{mid, p[0], p[1], mid})
	}
	feedMacd(t, a, bars, 1)

	if a.Bis().Len() != 2 {
		t.Fatalf("expected a sure up stroke plus a virtual down stroke, got %d", a.Bis().Len())
	}
	if !a.Bis().Get(0).IsSure() || a.Bis().Get(1).IsSure() {
		t.Fatalf("expected sure interior and virtual tail, got sure=%v,%v",
			a.Bis().Get(0).IsSure(), a.Bis().Get(1).IsSure())
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	changed, err := a.AddK(base.Add(time.Duration(len(bars))*time.Minute), 102, 114, 90, 102, 1)
	if err != nil {
		t.Fatalf("rally bar: %v", err)
	}
	if !changed {
		t.Fatalf("the rollback must be reported as a change so higher layers re-derive")
	}
	if a.Bis().Len() != 1 {
		t.Fatalf("expected the refuted virtual stroke to roll back, got %d strokes", a.Bis().Len())
	}
	for i := 0; i < a.Zss().Len(); i++ {
		if a.Zss().Get(i).EndBiIdx() >= a.Bis().Len() {
			t.Fatalf("pivot %d references popped stroke %d", i, a.Zss().Get(i).EndBiIdx())
		}
	}
	for i := 0; i < a.Bsps().Len(); i++ {
		if a.Bsps().Get(i).BiIdx() >= a.Bis().Len() {
			t.Fatalf("point %d references popped stroke %d", i, a.Bsps().Get(i).BiIdx())
		}
	}
}

// TestAnalyzerDeterministicAcrossRuns covers the §8 idempotence
// property: two analyzers fed the same bar stream must agree layer by
// layer.
func TestAnalyzerDeterministicAcrossRuns(t *testing.T) {
	bars := zigzag(56)
	a1 := New(chanconfig.Default())
	a2 := New(chanconfig.Default())
	feedMacd(t, a1, bars, 1)
	feedMacd(t, a2, bars, 1)

	s1, s2 := a1.Snapshot(), a2.Snapshot()
	s1.TakenAt = s2.TakenAt
	if s1 != s2 {
		t.Fatalf("snapshots diverge: %+v vs %+v", s1, s2)
	}

	for i := 0; i < a1.Bis().Len(); i++ {
		b1, b2 := a1.Bis().Get(i), a2.Bis().Get(i)
		if b1.BeginKlc() != b2.BeginKlc() || b1.EndKlc() != b2.EndKlc() || b1.Dir() != b2.Dir() || b1.IsSure() != b2.IsSure() {
			t.Fatalf("stroke %d diverges between runs", i)
		}
	}
	for i := 0; i < a1.Zss().Len(); i++ {
		z1, z2 := a1.Zss().Get(i), a2.Zss().Get(i)
		if z1.Low() != z2.Low() || z1.High() != z2.High() || z1.BeginBiIdx() != z2.BeginBiIdx() || z1.EndBiIdx() != z2.EndBiIdx() {
			t.Fatalf("pivot %d diverges between runs", i)
		}
	}
	for i := 0; i < a1.Bsps().HistoryLen(); i++ {
		p1, p2 := a1.Bsps().HistoryAt(i), a2.Bsps().HistoryAt(i)
		if p1.BiIdx() != p2.BiIdx() || p1.IsBuy() != p2.IsBuy() || len(p1.Types()) != len(p2.Types()) {
			t.Fatalf("point %d diverges between runs", i)
		}
	}
}

// TestAnalyzerSnapshotTracksAllLayers exercises the checkpoint view added
// in SPEC_FULL.md §4.H.
func TestAnalyzerSnapshotTracksAllLayers(t *testing.T) {
	a := New(chanconfig.Default())
	bars := [][4]float64{
		{10, 10, 8, 9},
		{9, 9, 6, 7},
		{7, 7, 5, 5.5},
		{5.5, 6, 4, 4.5},
		{4.5, 9, 4.5, 8},
		{8, 11, 8, 10},
		{10, 12, 10, 11},
	}
	feed(t, a, bars)

	snap := a.Snapshot()
	if snap.BarCount != len(bars) {
		t.Fatalf("snapshot bar count = %d, want %d", snap.BarCount, len(bars))
	}
	if snap.CandleCount != a.Candles().Len() || snap.BiCount != a.Bis().Len() {
		t.Fatalf("snapshot layer counts out of sync with live arenas")
	}
	if snap.LastBarTime.IsZero() {
		t.Fatalf("snapshot last bar time not set")
	}
}
