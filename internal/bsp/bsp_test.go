package bsp

import (
	"testing"
	"time"

	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
	"chanalyzer/internal/seg"
	"chanalyzer/internal/zs"
)

// fakeLine is a minimal lineiface.Line stand-in for exercising the
// buy/sell-point layer without depending on the stroke package.
type fakeLine struct {
	idx          int
	dir          kline.KlineDir
	lo, hi       float64
	macd         float64
	segIdx       *int
	parentSegDir *kline.KlineDir
	bspIdx       *int
}

func (f *fakeLine) Index() int { return f.idx }
func (f *fakeLine) BeginVal() float64 {
	if f.dir == kline.Up {
		return f.lo
	}
	return f.hi
}
func (f *fakeLine) EndVal() float64 {
	if f.dir == kline.Up {
		return f.hi
	}
	return f.lo
}
func (f *fakeLine) BeginTime() time.Time { return time.Unix(int64(f.idx), 0) }
func (f *fakeLine) EndTime() time.Time   { return time.Unix(int64(f.idx+1), 0) }
func (f *fakeLine) BeginKluIdx() int     { return f.idx * 10 }
func (f *fakeLine) EndKluIdx() int       { return f.idx*10 + 9 }
func (f *fakeLine) Dir() kline.KlineDir  { return f.dir }
func (f *fakeLine) IsUp() bool           { return f.dir == kline.Up }
func (f *fakeLine) IsDown() bool         { return f.dir == kline.Down }
func (f *fakeLine) High() float64        { return f.hi }
func (f *fakeLine) Low() float64         { return f.lo }
func (f *fakeLine) Amp() float64         { return f.hi - f.lo }
func (f *fakeLine) IsSure() bool         { return true }
func (f *fakeLine) MacdMetric(lineiface.MacdAlgo, bool) (float64, error) {
	return f.macd, nil
}
func (f *fakeLine) SegIdx() (int, bool) {
	if f.segIdx == nil {
		return 0, false
	}
	return *f.segIdx, true
}
func (f *fakeLine) SetSegIdx(idx int) { f.segIdx = &idx }
func (f *fakeLine) ParentSegIdx() (int, bool) {
	if f.segIdx == nil {
		return 0, false
	}
	return *f.segIdx, true
}
func (f *fakeLine) ParentSegDir() (kline.KlineDir, bool) {
	if f.parentSegDir == nil {
		return 0, false
	}
	return *f.parentSegDir, true
}
func (f *fakeLine) SetParentSeg(idx int, dir kline.KlineDir) { f.segIdx, f.parentSegDir = &idx, &dir }
func (f *fakeLine) ClearParentSeg()                          { f.segIdx, f.parentSegDir = nil, nil }
func (f *fakeLine) Bsp() (int, bool) {
	if f.bspIdx == nil {
		return 0, false
	}
	return *f.bspIdx, true
}
func (f *fakeLine) SetBsp(idx int) { f.bspIdx = &idx }

var _ lineiface.Line = (*fakeLine)(nil)

type sliceSource struct{ lines []*fakeLine }

func (s *sliceSource) Len() int            { return len(s.lines) }
func (s *sliceSource) Get(i int) *fakeLine { return s.lines[i] }

func up(idx int, lo, hi, macd float64) *fakeLine {
	return &fakeLine{idx: idx, dir: kline.Up, lo: lo, hi: hi, macd: macd}
}

func down(idx int, hi, lo, macd float64) *fakeLine {
	return &fakeLine{idx: idx, dir: kline.Down, lo: lo, hi: hi, macd: macd}
}

// buildPivot runs the over-seg pivot algorithm over src so helper tests
// exercise a genuine zs.CZs rather than a stub. The caller arranges the
// lines so exactly one pivot forms.
func buildPivot(t *testing.T, src *sliceSource) *zs.CZsList[*fakeLine] {
	t.Helper()
	zss := zs.NewCZsList[*fakeLine](src, zs.Config{Algo: zs.AlgoOverSeg})
	segs := seg.NewCSegListChan[*fakeLine](src, seg.Default())
	if err := zss.CalBiZs(segs); err != nil {
		t.Fatalf("test setup: CalBiZs: %v", err)
	}
	if zss.Len() != 1 {
		t.Fatalf("test setup: expected exactly 1 pivot, got %d", zss.Len())
	}
	return zss
}

// segListFor folds src's lines into a single trailing unsure segment so
// UpdateZsInSeg has a segment to attach pivots to.
func segListFor(t *testing.T, src *sliceSource) *seg.CSegListChan[*fakeLine] {
	t.Helper()
	segs := seg.NewCSegListChan[*fakeLine](src, seg.Default())
	if _, err := segs.Update(src.Len() - 1); err != nil {
		t.Fatalf("test setup: seg Update: %v", err)
	}
	if segs.Len() == 0 {
		t.Fatalf("test setup: expected at least one segment")
	}
	return segs
}

// pivotFixture yields a pivot with core band [12,18] and peak extent
// [10,20] spanning lines 1..3.
func pivotFixture(t *testing.T) (*sliceSource, *zs.CZsList[*fakeLine]) {
	t.Helper()
	src := &sliceSource{lines: []*fakeLine{
		down(0, 16, 10, 1),
		up(1, 10, 20, 1),
		down(2, 18, 12, 1),
		up(3, 11, 19, 1),
		down(4, 30, 25, 1),
	}}
	for _, line := range src.lines {
		line.SetParentSeg(0, kline.Down)
	}
	return src, buildPivot(t, src)
}
