package zs

import (
	"testing"

	"chanalyzer/internal/kline"
	"chanalyzer/internal/seg"
)

// TestAddZsFromBiRangeFormsPivotFromCounterTrendLines feeds an
// up-segment body: the two overlapping down lines found the pivot, the
// third extends it.
func TestAddZsFromBiRangeFormsPivotFromCounterTrendLines(t *testing.T) {
	src := &sliceSource{lines: []*fakeLine{
		up(0, 10, 20),
		down(1, 20, 12),
		up(2, 12, 22),
		down(3, 22, 11),
		up(4, 11, 21),
		down(5, 19, 13),
	}}
	l := NewCZsList[*fakeLine](src, Default())

	l.addZsFromBiRange(0, 5, kline.Up, true)

	if l.Len() != 1 {
		t.Fatalf("expected 1 pivot, got %d", l.Len())
	}
	z := l.Get(0)
	if z.BeginBiIdx() != 1 || z.EndBiIdx() != 5 {
		t.Fatalf("expected pivot spanning lines 1..5, got %d..%d", z.BeginBiIdx(), z.EndBiIdx())
	}
	if z.Low() != 12 || z.High() != 20 {
		t.Fatalf("expected core band [12,20], got [%v,%v]", z.Low(), z.High())
	}
	if z.PeakLow() != 11 || z.PeakHigh() != 22 {
		t.Fatalf("expected peak extent [11,22], got [%v,%v]", z.PeakLow(), z.PeakHigh())
	}
}

// TestTryConstructZsRejectsFirstLineStart: a pivot may never start at
// line 0; the free list rolls forward until a later pair qualifies.
func TestTryConstructZsRejectsFirstLineStart(t *testing.T) {
	src := &sliceSource{lines: []*fakeLine{
		up(0, 10, 20),
		down(1, 20, 12),
		up(2, 12, 18),
		down(3, 18, 11),
		up(4, 11, 19),
	}}
	l := NewCZsList[*fakeLine](src, Default())

	l.addZsFromBiRange(0, 4, kline.Down, true)

	if l.Len() != 1 {
		t.Fatalf("expected 1 pivot, got %d", l.Len())
	}
	if got := l.Get(0).BeginBiIdx(); got != 2 {
		t.Fatalf("expected the pivot to start at line 2 after the line-0 ban, got %d", got)
	}
}

// TestTryCombineMergesAdjacentPivots: two pivots whose core bands touch
// merge into one, preserving both pre-merge states in subZsLst.
func TestTryCombineMergesAdjacentPivots(t *testing.T) {
	src := &sliceSource{lines: []*fakeLine{
		up(0, 10, 20),
		down(1, 20, 12),
		up(2, 12, 22),
		down(3, 22, 11),
		up(4, 11, 25),
		down(5, 25, 20),
		up(6, 20, 26),
		down(7, 26, 20),
	}}
	for _, line := range src.lines {
		line.SetSegIdx(0)
	}
	l := NewCZsList[*fakeLine](src, Config{Algo: AlgoNormal, Combine: CombineZs, NeedCombine: true})

	l.addZsFromBiRange(0, 7, kline.Up, true)

	if l.Len() != 1 {
		t.Fatalf("expected the two pivots to combine into 1, got %d", l.Len())
	}
	z := l.Get(0)
	if z.BeginBiIdx() != 1 || z.EndBiIdx() != 7 {
		t.Fatalf("expected merged pivot 1..7, got %d..%d", z.BeginBiIdx(), z.EndBiIdx())
	}
	if z.Low() != 12 || z.High() != 25 {
		t.Fatalf("expected merged band [12,25], got [%v,%v]", z.Low(), z.High())
	}
	if z.PeakLow() != 11 || z.PeakHigh() != 26 {
		t.Fatalf("expected merged peak extent [11,26], got [%v,%v]", z.PeakLow(), z.PeakHigh())
	}
	if len(z.SubZsLst()) != 2 {
		t.Fatalf("expected 2 pre-merge pivots in subZsLst, got %d", len(z.SubZsLst()))
	}
}

// TestCalBiZsOverSegDropsLeadingWithSegLine: under the over-seg
// algorithm a leading line running with its parent segment is dropped
// from the founding triple, so the pivot starts one line later.
func TestCalBiZsOverSegDropsLeadingWithSegLine(t *testing.T) {
	src := &sliceSource{lines: []*fakeLine{
		down(0, 16, 10),
		up(1, 10, 20),
		down(2, 18, 12),
		up(3, 11, 19),
		down(4, 30, 25),
	}}
	for _, line := range src.lines {
		line.SetParentSeg(0, kline.Down)
	}
	l := NewCZsList[*fakeLine](src, Config{Algo: AlgoOverSeg})
	segs := seg.NewCSegListChan[*fakeLine](src, seg.Default())

	if err := l.CalBiZs(segs); err != nil {
		t.Fatalf("CalBiZs: %v", err)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 pivot, got %d", l.Len())
	}
	z := l.Get(0)
	if z.BeginBiIdx() != 1 || z.EndBiIdx() != 3 {
		t.Fatalf("expected pivot spanning lines 1..3, got %d..%d", z.BeginBiIdx(), z.EndBiIdx())
	}
	if z.Low() != 12 || z.High() != 18 {
		t.Fatalf("expected core band [12,18], got [%v,%v]", z.Low(), z.High())
	}
}

// TestCalBiZsOverSegWithOneBiZsIsRejected: the over-seg algorithm
// cannot honor single-line pivots.
func TestCalBiZsOverSegWithOneBiZsIsRejected(t *testing.T) {
	src := &sliceSource{lines: []*fakeLine{up(0, 10, 20)}}
	l := NewCZsList[*fakeLine](src, Config{Algo: AlgoOverSeg, OneBiZs: true})
	segs := seg.NewCSegListChan[*fakeLine](src, seg.Default())

	if err := l.CalBiZs(segs); err == nil {
		t.Fatalf("expected a config error for one_bi_zs under the over-seg algorithm")
	}
}

// TestTryAddToEndPromotesSingleLinePivot: extending a single-line pivot
// recomputes the core band over both lines instead of keeping the
// founder's full range.
func TestTryAddToEndPromotesSingleLinePivot(t *testing.T) {
	src := &sliceSource{lines: []*fakeLine{
		up(0, 10, 20),
		down(1, 20, 12),
		up(2, 14, 22),
	}}
	l := NewCZsList[*fakeLine](src, Config{Algo: AlgoNormal, OneBiZs: true})

	l.addToFreeLst(src.Get(1), true, AlgoNormal)
	if l.Len() != 1 || !l.Get(0).IsOneBiZs() {
		t.Fatalf("expected a single-line pivot under one_bi_zs, got len=%d", l.Len())
	}

	if !l.Get(0).TryAddToEnd(src.Get(2)) {
		t.Fatalf("expected the overlapping line to extend the pivot")
	}
	z := l.Get(0)
	if z.IsOneBiZs() {
		t.Fatalf("pivot should span two lines after the extension")
	}
	if z.Low() != 14 || z.High() != 20 {
		t.Fatalf("expected recomputed band [14,20], got [%v,%v]", z.Low(), z.High())
	}
}
