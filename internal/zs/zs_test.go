package zs

import (
	"time"

	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
)

// fakeLine is a minimal lineiface.Line stand-in for exercising the
// pivot layer without depending on the stroke/segment packages.
type fakeLine struct {
	idx          int
	dir          kline.KlineDir
	lo, hi       float64
	segIdx       *int
	parentSegDir *kline.KlineDir
}

func (f *fakeLine) Index() int        { return f.idx }
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
func (f *fakeLine) BeginTime() time.Time                                 { return time.Unix(int64(f.idx), 0) }
func (f *fakeLine) EndTime() time.Time                                   { return time.Unix(int64(f.idx+1), 0) }
func (f *fakeLine) BeginKluIdx() int                                     { return f.idx * 10 }
func (f *fakeLine) EndKluIdx() int                                       { return f.idx*10 + 9 }
func (f *fakeLine) Dir() kline.KlineDir                                  { return f.dir }
func (f *fakeLine) IsUp() bool                                           { return f.dir == kline.Up }
func (f *fakeLine) IsDown() bool                                         { return f.dir == kline.Down }
func (f *fakeLine) High() float64                                        { return f.hi }
func (f *fakeLine) Low() float64                                         { return f.lo }
func (f *fakeLine) Amp() float64                                         { return f.hi - f.lo }
func (f *fakeLine) IsSure() bool                                         { return true }
func (f *fakeLine) MacdMetric(lineiface.MacdAlgo, bool) (float64, error) { return 0, nil }
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
func (f *fakeLine) Bsp() (int, bool)                         { return 0, false }
func (f *fakeLine) SetBsp(int)                               {}

var _ lineiface.Line = (*fakeLine)(nil)

type sliceSource struct{ lines []*fakeLine }

func (s *sliceSource) Len() int            { return len(s.lines) }
func (s *sliceSource) Get(i int) *fakeLine { return s.lines[i] }

func up(idx int, lo, hi float64) *fakeLine {
	return &fakeLine{idx: idx, dir: kline.Up, lo: lo, hi: hi}
}

func down(idx int, hi, lo float64) *fakeLine {
	return &fakeLine{idx: idx, dir: kline.Down, lo: lo, hi: hi}
}
