package eigen

import (
	"time"

	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
)

// fakeLine is a minimal lineiface.Line stand-in for exercising the
// feature-sequence layer without depending on the stroke/segment
// packages built on top of it.
type fakeLine struct {
	idx      int
	dir      kline.KlineDir
	hi, lo   float64
	beginVal float64
	endVal   float64
	sure     bool
}

func (f *fakeLine) Index() int                                          { return f.idx }
func (f *fakeLine) BeginVal() float64                                   { return f.beginVal }
func (f *fakeLine) EndVal() float64                                     { return f.endVal }
func (f *fakeLine) BeginTime() time.Time                                { return time.Unix(int64(f.idx), 0) }
func (f *fakeLine) EndTime() time.Time                                  { return time.Unix(int64(f.idx+1), 0) }
func (f *fakeLine) BeginKluIdx() int                                    { return f.idx * 10 }
func (f *fakeLine) EndKluIdx() int                                      { return f.idx*10 + 9 }
func (f *fakeLine) Dir() kline.KlineDir                                 { return f.dir }
func (f *fakeLine) IsUp() bool                                          { return f.dir == kline.Up }
func (f *fakeLine) IsDown() bool                                        { return f.dir == kline.Down }
func (f *fakeLine) High() float64                                       { return f.hi }
func (f *fakeLine) Low() float64                                        { return f.lo }
func (f *fakeLine) Amp() float64                                        { return f.hi - f.lo }
func (f *fakeLine) IsSure() bool                                        { return f.sure }
func (f *fakeLine) MacdMetric(lineiface.MacdAlgo, bool) (float64, error) { return 0, nil }
func (f *fakeLine) SegIdx() (int, bool)                                 { return 0, false }
func (f *fakeLine) SetSegIdx(int)                                       {}
func (f *fakeLine) ParentSegIdx() (int, bool)                           { return 0, false }
func (f *fakeLine) ParentSegDir() (kline.KlineDir, bool)                { return 0, false }
func (f *fakeLine) SetParentSeg(int, kline.KlineDir)                    {}
func (f *fakeLine) ClearParentSeg()                                     {}
func (f *fakeLine) Bsp() (int, bool)                                    { return 0, false }
func (f *fakeLine) SetBsp(int)                                          {}

var _ lineiface.Line = (*fakeLine)(nil)

// up/down build sure lines of the given direction with idx as their
// stroke index, used to feed a CEigenFx tracking the opposite segment
// direction (per spec §4.C, a feature sequence absorbs lines running
// opposite to the segment hypothesis).
func up(idx int, lo, hi float64) *fakeLine {
	return &fakeLine{idx: idx, dir: kline.Up, lo: lo, hi: hi, beginVal: lo, endVal: hi, sure: true}
}

func down(idx int, hi, lo float64) *fakeLine {
	return &fakeLine{idx: idx, dir: kline.Down, lo: lo, hi: hi, beginVal: hi, endVal: lo, sure: true}
}

// fakeSource is a slice-backed LineSource[T] for tests that need
// CanBeEnd/actualBreak's forward-looking evidence.
type fakeSource[T lineiface.Line] []T

func (s fakeSource[T]) Len() int    { return len(s) }
func (s fakeSource[T]) Get(i int) T { return s[i] }
