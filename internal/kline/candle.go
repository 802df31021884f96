package kline

import (
	"fmt"
	"time"

	"chanalyzer/internal/chanerr"
)

// Candle is a maximal run of bars merged under the inclusion rule. Its
// member bars are recorded by index into the owning BarList.
type Candle struct {
	Index     int
	TimeBegin time.Time
	TimeEnd   time.Time
	High      float64
	Low       float64
	Dir       KlineDir
	Fx        FxType
	Bars      []int // member bar indices, in arrival order
}

// CandleList is the append-only arena of merged candles, built
// incrementally from a BarList.
type CandleList struct {
	bars    *BarList
	candles []Candle
}

// NewCandleList returns an empty candle arena over the given bar arena.
func NewCandleList(bars *BarList) *CandleList {
	return &CandleList{bars: bars}
}

// Len reports the number of candles formed so far.
func (l *CandleList) Len() int { return len(l.candles) }

// Get returns the candle at idx by value.
func (l *CandleList) Get(idx int) Candle { return l.candles[idx] }

// Slice returns a read-only view of all candles.
func (l *CandleList) Slice() []Candle { return l.candles }

// BarList returns the bar arena this candle list merges over.
func (l *CandleList) BarList() *BarList { return l.bars }

// Last returns the index of the most recently formed candle, or -1 if
// none exist yet.
func (l *CandleList) Last() int { return len(l.candles) - 1 }

func (l *CandleList) candleHigh(idx int) float64 { return l.candles[idx].High }
func (l *CandleList) candleLow(idx int) float64  { return l.candles[idx].Low }

// testCombine classifies how a new bar relates to the current candle
// under the containment rule.
func testCombine(cur Candle, bar Bar) (KlineDir, error) {
	if cur.High >= bar.High && cur.Low <= bar.Low {
		return Combine, nil
	}
	if cur.High <= bar.High && cur.Low >= bar.Low {
		return Combine, nil
	}
	if cur.High > bar.High && cur.Low > bar.Low {
		return Down, nil
	}
	if cur.High < bar.High && cur.Low < bar.Low {
		return Up, nil
	}
	return 0, fmt.Errorf("bar %d against candle %d: %w", bar.Index, cur.Index, chanerr.ErrCombiner)
}

// tryAdd merges bar into cur if it is contained (or contains cur),
// applying the rising/falling containment formula and the one-price-bar
// skip-update guard. Returns the classification.
func (l *CandleList) tryAdd(cur *Candle, bar Bar) (KlineDir, error) {
	dir, err := testCombine(*cur, bar)
	if err != nil {
		return 0, err
	}
	if dir != Combine {
		return dir, nil
	}
	cur.Bars = append(cur.Bars, bar.Index)
	l.bars.setKlc(bar.Index, cur.Index)

	switch cur.Dir {
	case Up:
		if bar.High != bar.Low || bar.High != cur.High {
			cur.High = max2(cur.High, bar.High)
			cur.Low = max2(cur.Low, bar.Low)
		}
	case Down:
		if bar.High != bar.Low || bar.Low != cur.Low {
			cur.High = min2(cur.High, bar.High)
			cur.Low = min2(cur.Low, bar.Low)
		}
	default:
		return 0, fmt.Errorf("candle %d has non-directional dir during merge: %w", cur.Index, chanerr.ErrCombiner)
	}
	cur.TimeEnd = bar.Time
	return dir, nil
}

func (l *CandleList) openCandle(bar Bar, dir KlineDir) int {
	idx := len(l.candles)
	c := Candle{
		Index:     idx,
		TimeBegin: bar.Time,
		TimeEnd:   bar.Time,
		High:      bar.High,
		Low:       bar.Low,
		Dir:       dir,
		Fx:        FxUnknown,
		Bars:      []int{bar.Index},
	}
	l.candles = append(l.candles, c)
	l.bars.setKlc(bar.Index, idx)
	return idx
}

// UpdateCandle merges barIdx into the current candle, or opens a new one
// when containment fails. Returns true iff a new candle opened, matching
// the Analyzer's dispatch contract (spec §4.G).
func (l *CandleList) UpdateCandle(barIdx int) (bool, error) {
	bar := l.bars.Get(barIdx)

	if len(l.candles) == 0 {
		l.openCandle(bar, Up)
		return true, nil
	}

	cur := &l.candles[len(l.candles)-1]
	dir, err := l.tryAdd(cur, bar)
	if err != nil {
		return false, err
	}
	if dir == Combine {
		return false, nil
	}

	l.openCandle(bar, dir)
	if len(l.candles) >= 3 {
		l.computeFractal(len(l.candles) - 2)
	}
	return true, nil
}

// computeFractal labels candles[idx] as Top, Bottom, or Unknown by
// comparing it against its immediate neighbors (spec §4.A).
func (l *CandleList) computeFractal(idx int) {
	pre, cur, next := l.candles[idx-1], l.candles[idx], l.candles[idx+1]
	switch {
	case pre.High < cur.High && next.High < cur.High && pre.Low < cur.Low && next.Low < cur.Low:
		l.candles[idx].Fx = FxTop
	case pre.High > cur.High && next.High > cur.High && pre.Low > cur.Low && next.Low > cur.Low:
		l.candles[idx].Fx = FxBottom
	default:
		l.candles[idx].Fx = FxUnknown
	}
}

// HasGapWithNext reports whether candle idx's underlying-bar range has no
// overlap with candle idx+1's underlying-bar range.
func (l *CandleList) HasGapWithNext(idx int) bool {
	next := l.candles[idx+1]
	lo1, hi1 := l.kluRange(idx)
	lo2, hi2 := l.barRangeOf(next)
	return !hasOverlap(lo1, hi1, lo2, hi2, true)
}

func (l *CandleList) kluRange(idx int) (lo, hi float64) {
	return l.barRangeOf(l.candles[idx])
}

func (l *CandleList) barRangeOf(c Candle) (lo, hi float64) {
	hi = l.bars.Get(c.Bars[0]).High
	lo = l.bars.Get(c.Bars[0]).Low
	for _, bi := range c.Bars[1:] {
		b := l.bars.Get(bi)
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	return lo, hi
}

// GetPeakBar returns the index of the bar carrying candle idx's extreme
// (high if isHigh, else low).
func (l *CandleList) GetPeakBar(idx int, isHigh bool) Bar {
	c := l.candles[idx]
	for i := len(c.Bars) - 1; i >= 0; i-- {
		b := l.bars.Get(c.Bars[i])
		if isHigh && b.High == c.High {
			return b
		}
		if !isHigh && b.Low == c.Low {
			return b
		}
	}
	return l.bars.Get(c.Bars[len(c.Bars)-1])
}

// HasOverlap reports whether [lo1,hi1] and [lo2,hi2] overlap. When
// inclusive is true, ranges that merely touch at an endpoint count as
// overlapping; when false, a genuine overlap is required.
func HasOverlap(lo1, hi1, lo2, hi2 float64, inclusive bool) bool {
	if inclusive {
		return hi1 >= lo2 && hi2 >= lo1
	}
	return hi1 > lo2 && hi2 > lo1
}

func hasOverlap(lo1, hi1, lo2, hi2 float64, inclusive bool) bool {
	return HasOverlap(lo1, hi1, lo2, hi2, inclusive)
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
