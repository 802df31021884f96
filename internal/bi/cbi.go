package bi

import (
	"fmt"
	"math"
	"time"

	"chanalyzer/internal/chanerr"
	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
)

// CBi is a stroke: a directed line between two oppositely-labeled
// fractal candles. See spec §3.
type CBi struct {
	owner *CBiList

	index    int
	beginKlc int
	endKlc   int
	dir      kline.KlineDir
	isSure   bool
	// sureEnd records candidate confirmed ends that were superseded by a
	// later, more extreme virtual end, so a failed hypothesis can roll
	// back to them in order.
	sureEnd []int

	segIdx       *int
	parentSegIdx *int
	parentSegDir *kline.KlineDir
	bsp          *int
}

// Index returns this stroke's stable position in the arena.
func (b *CBi) Index() int { return b.index }

// BeginKlc/EndKlc return the candle indices delimiting the stroke.
func (b *CBi) BeginKlc() int { return b.beginKlc }
func (b *CBi) EndKlc() int   { return b.endKlc }

func (b *CBi) Dir() kline.KlineDir { return b.dir }
func (b *CBi) IsUp() bool          { return b.dir == kline.Up }
func (b *CBi) IsDown() bool        { return b.dir == kline.Down }
func (b *CBi) IsSure() bool        { return b.isSure }

func (b *CBi) beginCandle() kline.Candle { return b.owner.candles.Get(b.beginKlc) }
func (b *CBi) endCandle() kline.Candle   { return b.owner.candles.Get(b.endKlc) }

// check validates the direction-vs-endpoint invariant on every
// mutation of the stroke's ends: a down stroke's begin must stay above
// its end, an up stroke's below.
func (b *CBi) check() error {
	if b.IsDown() {
		if b.beginCandle().High <= b.endCandle().Low {
			return fmt.Errorf("down stroke %d..%d does not descend: %w", b.beginKlc, b.endKlc, chanerr.ErrBi)
		}
		return nil
	}
	if b.beginCandle().Low >= b.endCandle().High {
		return fmt.Errorf("up stroke %d..%d does not ascend: %w", b.beginKlc, b.endKlc, chanerr.ErrBi)
	}
	return nil
}

// BeginVal/EndVal are the extremal prices anchoring the stroke: for an Up
// stroke, BeginVal is the bottom fractal's low and EndVal the top
// fractal's high (and mirrored for Down).
func (b *CBi) BeginVal() float64 {
	if b.IsUp() {
		return b.beginCandle().Low
	}
	return b.beginCandle().High
}

func (b *CBi) EndVal() float64 {
	if b.IsUp() {
		return b.endCandle().High
	}
	return b.endCandle().Low
}

func (b *CBi) BeginTime() time.Time { return b.beginCandle().TimeBegin }
func (b *CBi) EndTime() time.Time   { return b.endCandle().TimeEnd }

// BeginKluIdx/EndKluIdx locate the exact bars carrying the stroke's
// endpoint extremes: for an Up stroke the begin candle's lowest bar and
// the end candle's highest, mirrored for Down.
func (b *CBi) BeginKluIdx() int {
	return b.owner.candles.GetPeakBar(b.beginKlc, !b.IsUp()).Index
}

func (b *CBi) EndKluIdx() int {
	return b.owner.candles.GetPeakBar(b.endKlc, b.IsUp()).Index
}

func (b *CBi) High() float64 {
	if b.IsUp() {
		return b.EndVal()
	}
	return b.BeginVal()
}

func (b *CBi) Low() float64 {
	if b.IsUp() {
		return b.BeginVal()
	}
	return b.EndVal()
}

func (b *CBi) Amp() float64 { return math.Abs(b.EndVal() - b.BeginVal()) }

func (b *CBi) SegIdx() (int, bool) {
	if b.segIdx == nil {
		return 0, false
	}
	return *b.segIdx, true
}
func (b *CBi) SetSegIdx(idx int) { v := idx; b.segIdx = &v }

func (b *CBi) ParentSegIdx() (int, bool) {
	if b.parentSegIdx == nil {
		return 0, false
	}
	return *b.parentSegIdx, true
}

func (b *CBi) ParentSegDir() (kline.KlineDir, bool) {
	if b.parentSegDir == nil {
		return 0, false
	}
	return *b.parentSegDir, true
}

func (b *CBi) SetParentSeg(idx int, dir kline.KlineDir) {
	i := idx
	b.parentSegIdx = &i
	d := dir
	b.parentSegDir = &d
}

func (b *CBi) ClearParentSeg() {
	b.parentSegIdx = nil
	b.parentSegDir = nil
}

// Bsp returns the index of the buy/sell point anchored at this stroke's
// end, if any.
func (b *CBi) Bsp() (int, bool) {
	if b.bsp == nil {
		return 0, false
	}
	return *b.bsp, true
}
func (b *CBi) SetBsp(idx int) { v := idx; b.bsp = &v }

// barRange returns this stroke's underlying bars, first-to-last.
func (b *CBi) barRange() []kline.Bar {
	return b.owner.candles.BarList().Range(
		b.owner.candles.Get(b.beginKlc).Bars[0],
		b.owner.candles.Get(b.endKlc).Bars[len(b.owner.candles.Get(b.endKlc).Bars)-1],
	)
}

// MacdMetric computes this stroke's momentum-divergence metric over its
// bar range, grounded on the cal_macd_* kernel family (cbi.rs).
func (b *CBi) MacdMetric(algo lineiface.MacdAlgo, reverse bool) (float64, error) {
	bars := b.barRange()
	if len(bars) == 0 {
		return 0, nil
	}
	up := b.IsUp()
	if reverse {
		up = !up
	}
	switch algo {
	case lineiface.MacdArea:
		var sum float64
		for _, bar := range bars {
			if up && bar.Macd > 0 {
				sum += bar.Macd
			} else if !up && bar.Macd < 0 {
				sum += -bar.Macd
			}
		}
		return sum, nil
	case lineiface.MacdFullArea:
		var sum float64
		for _, bar := range bars {
			sum += math.Abs(bar.Macd)
		}
		return sum, nil
	case lineiface.MacdPeak:
		peak := 0.0
		for _, bar := range bars {
			if v := math.Abs(bar.Macd); v > peak {
				peak = v
			}
		}
		return peak, nil
	case lineiface.MacdDiff:
		return math.Abs(bars[len(bars)-1].Macd - bars[0].Macd), nil
	case lineiface.MacdSlope:
		if len(bars) < 2 {
			return 0, nil
		}
		return b.Amp() / float64(len(bars)-1), nil
	case lineiface.MacdAmp:
		return b.Amp(), nil
	default:
		return 0, chanerr.ErrPara
	}
}

var _ lineiface.Line = (*CBi)(nil)
