// Package bi implements strokes (CBi) and their incremental maintenance
// (CBiList), including the virtual-stroke lifecycle and sub-peak
// promotion. See spec §4.B.
package bi

import (
	"fmt"

	"chanalyzer/internal/chanerr"
	"chanalyzer/internal/kline"
)

// CBiList incrementally maintains the stroke arena from the candle
// sequence.
type CBiList struct {
	candles *kline.CandleList
	cfg     Config

	bis []*CBi

	// freeKlc holds fractal candle indices observed before the very
	// first stroke has been created.
	freeKlc []int
}

// NewCBiList returns an empty stroke arena driven by candles.
func NewCBiList(candles *kline.CandleList, cfg Config) *CBiList {
	return &CBiList{candles: candles, cfg: cfg}
}

func (l *CBiList) Len() int      { return len(l.bis) }
func (l *CBiList) Get(i int) *CBi { return l.bis[i] }
func (l *CBiList) Slice() []*CBi  { return l.bis }

func (l *CBiList) last() *CBi {
	if len(l.bis) == 0 {
		return nil
	}
	return l.bis[len(l.bis)-1]
}

// UpdateBi runs the confirmed pass over klcIdx (the second-to-last
// candle) and, if calVirtual, the virtual pass over lastKlcIdx (the
// trailing in-progress candle). Returns true iff anything changed.
func (l *CBiList) UpdateBi(klcIdx, lastKlcIdx int, calVirtual bool) (bool, error) {
	changed1, err := l.updateBiSure(klcIdx)
	if err != nil {
		return false, err
	}
	if !calVirtual {
		return changed1, nil
	}
	changed2, err := l.TryAddVirtualBi(lastKlcIdx, false)
	if err != nil {
		return false, err
	}
	return changed1 || changed2, nil
}

// updateBiSure is the confirmed pass over the second-to-last candle. It
// first tears down any trailing virtual stroke so the confirmed logic
// always starts from the last sure end; a stroke that was extended
// virtually is re-minted as sure through the normal paths below once
// its end fractal confirms.
func (l *CBiList) updateBiSure(klcIdx int) (bool, error) {
	candle := l.candles.Get(klcIdx)
	tmpEnd := l.lastKluOfLastBi()
	if err := l.deleteVirtualBi(); err != nil {
		return false, err
	}

	if candle.Fx == kline.FxUnknown {
		// no new fractal; report whether the virtual teardown moved the
		// tail so downstream layers re-derive
		return tmpEnd != l.lastKluOfLastBi(), nil
	}
	if len(l.bis) == 0 {
		return l.tryCreateFirstBi(klcIdx)
	}
	last := l.last()
	lastEndCandle := l.candles.Get(last.endKlc)

	if candle.Fx == lastEndCandle.Fx {
		return l.tryUpdateEnd(last, klcIdx, false)
	}

	ok, err := l.canMakeBi(last.endKlc, klcIdx, false)
	if err != nil {
		return false, err
	}
	if ok {
		return l.addNewBi(last.endKlc, klcIdx, true)
	}
	ok, err = l.updatePeak(klcIdx, false)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return tmpEnd != l.lastKluOfLastBi(), nil
}

// lastKluOfLastBi returns the bar index ending the last stroke, or -1
// with an empty arena; updateBiSure compares it across the virtual
// teardown to detect tail movement.
func (l *CBiList) lastKluOfLastBi() int {
	if len(l.bis) == 0 {
		return -1
	}
	return l.bis[len(l.bis)-1].EndKluIdx()
}

func (l *CBiList) tryCreateFirstBi(curIdx int) (bool, error) {
	cur := l.candles.Get(curIdx)
	for _, cand := range l.freeKlc {
		candCandle := l.candles.Get(cand)
		if candCandle.Fx == cur.Fx || candCandle.Fx == kline.FxUnknown {
			continue
		}
		ok, err := l.canMakeBi(cand, curIdx, false)
		if err != nil {
			return false, err
		}
		if ok {
			l.freeKlc = l.freeKlc[:0]
			return l.addNewBi(cand, curIdx, true)
		}
	}
	l.freeKlc = append(l.freeKlc, curIdx)
	return false, nil
}

// tryUpdateEnd replaces the stroke's end with a more extreme candidate
// on its winning side. A confirmed replacement requires the candidate
// to carry the matching fractal label; a virtual one only needs the
// candle to run the stroke's way, and records the superseded end for a
// later rollback.
func (l *CBiList) tryUpdateEnd(target *CBi, newEndIdx int, forVirtual bool) (bool, error) {
	cur := l.candles.Get(newEndIdx)
	var matches bool
	if forVirtual {
		if target.IsUp() {
			matches = cur.Dir == kline.Up
		} else {
			matches = cur.Dir == kline.Down
		}
	} else {
		if target.IsUp() {
			matches = cur.Fx == kline.FxTop
		} else {
			matches = cur.Fx == kline.FxBottom
		}
	}
	curEnd := l.candles.Get(target.endKlc)
	var exceeds bool
	if target.IsUp() {
		exceeds = cur.High >= curEnd.High
	} else {
		exceeds = cur.Low <= curEnd.Low
	}
	if !matches || !exceeds {
		return false, nil
	}
	if forVirtual {
		return true, l.updateVirtualEnd(target, newEndIdx)
	}
	target.endKlc = newEndIdx
	return true, target.check()
}

// updateVirtualEnd extends target's end virtually, recording the
// superseded end so deleteVirtualBi can restore it.
func (l *CBiList) updateVirtualEnd(target *CBi, newEndIdx int) error {
	target.sureEnd = append(target.sureEnd, target.endKlc)
	target.endKlc = newEndIdx
	target.isSure = false
	return target.check()
}

// TryAddVirtualBi hypothesizes against the trailing in-progress candle:
// the current stroke may extend virtually, or a new virtual stroke may
// open off its end. With needDelEnd the previous virtual hypothesis is
// torn down first, so each call re-derives the tail from the last sure
// end. Returns true iff the tail changed, teardown included.
func (l *CBiList) TryAddVirtualBi(lastKlcIdx int, needDelEnd bool) (bool, error) {
	tmpEnd := l.lastKluOfLastBi()
	if needDelEnd {
		if err := l.deleteVirtualBi(); err != nil {
			return false, err
		}
	}
	torn := tmpEnd != l.lastKluOfLastBi()

	if len(l.bis) == 0 {
		ok, err := l.tryCreateFirstVirtualBi(lastKlcIdx)
		if err != nil {
			return false, err
		}
		return ok || torn, nil
	}
	last := l.last()
	if lastKlcIdx == last.endKlc {
		return torn, nil
	}
	lastKlc := l.candles.Get(lastKlcIdx)
	endCandle := l.candles.Get(last.endKlc)

	if (last.IsUp() && lastKlc.High >= endCandle.High) ||
		(last.IsDown() && lastKlc.Low <= endCandle.Low) {
		if err := l.updateVirtualEnd(last, lastKlcIdx); err != nil {
			return false, err
		}
		return true, nil
	}

	for cur := lastKlcIdx; cur > last.endKlc; cur-- {
		ok, err := l.canMakeBi(last.endKlc, cur, true)
		if err != nil {
			return false, err
		}
		if ok {
			if _, err := l.addNewBi(last.endKlc, cur, false); err != nil {
				return false, err
			}
			return true, nil
		}
		ok, err = l.updatePeak(cur, true)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return torn, nil
}

func (l *CBiList) tryCreateFirstVirtualBi(curIdx int) (bool, error) {
	cur := l.candles.Get(curIdx)
	for _, cand := range l.freeKlc {
		candCandle := l.candles.Get(cand)
		if candCandle.Fx == cur.Fx || candCandle.Fx == kline.FxUnknown {
			continue
		}
		ok, err := l.canMakeBi(cand, curIdx, true)
		if err != nil {
			return false, err
		}
		if ok {
			return l.addNewBi(cand, curIdx, false)
		}
	}
	return false, nil
}

// deleteVirtualBi tears down a trailing virtual stroke, if any: with no
// recorded confirmed ends the stroke is popped entirely; otherwise it
// is restored to the earliest recorded end and a confirmed stroke is
// synthesized for each later recorded end in turn (re-materializing
// strokes a virtual sub-peak promotion consumed). Either way the arena
// resumes from a sure end.
func (l *CBiList) deleteVirtualBi() error {
	last := l.last()
	if last == nil || last.isSure {
		return nil
	}
	if len(last.sureEnd) == 0 {
		l.bis = l.bis[:len(l.bis)-1]
		return nil
	}
	first := last.sureEnd[0]
	rest := last.sureEnd[1:]
	last.endKlc = first
	last.isSure = true
	last.sureEnd = nil
	if err := last.check(); err != nil {
		return err
	}

	prevEnd := first
	for _, e := range rest {
		if _, err := l.addNewBi(prevEnd, e, true); err != nil {
			return err
		}
		prevEnd = e
	}
	return nil
}

// canUpdatePeak reports whether klcIdx's candle is a sub-peak candidate
// against the prior stroke's begin extreme, is the widest peak back to
// that prior stroke's own begin, and does not violate monotonicity with
// the previous-previous stroke's extremum.
func (l *CBiList) canUpdatePeak(klcIdx int) bool {
	if len(l.bis) < 2 || !l.cfg.AllowSubPeak {
		return false
	}
	last := l.bis[len(l.bis)-1]
	prev := l.bis[len(l.bis)-2]
	cur := l.candles.Get(klcIdx)

	if last.IsDown() && cur.High < last.BeginVal() {
		return false
	}
	if last.IsUp() && cur.Low > last.BeginVal() {
		return false
	}
	if !l.endIsPeak(prev.beginKlc, klcIdx) {
		return false
	}
	if last.IsDown() && last.EndVal() < prev.BeginVal() {
		return false
	}
	if last.IsUp() && last.EndVal() > prev.BeginVal() {
		return false
	}
	return true
}

// updatePeak promotes a more extreme opposite-polarity candle into the
// prior stroke's end when it would not itself start a valid new stroke,
// popping the in-between stroke. In the virtual pass the popped
// stroke's end is recorded so deleteVirtualBi can resurrect it.
func (l *CBiList) updatePeak(klcIdx int, forVirtual bool) (bool, error) {
	if !l.canUpdatePeak(klcIdx) {
		return false, nil
	}
	last := l.bis[len(l.bis)-1]
	prev := l.bis[len(l.bis)-2]

	l.bis = l.bis[:len(l.bis)-1]
	ok, err := l.tryUpdateEnd(prev, klcIdx, forVirtual)
	if err != nil {
		return false, err
	}
	if !ok {
		l.bis = append(l.bis, last)
		return false, nil
	}
	if forVirtual {
		prev.sureEnd = append(prev.sureEnd, last.endKlc)
	}
	return true, nil
}

// addNewBi appends a stroke whose direction comes from the start
// candle's fractal; the end candle's own label may still be unknown
// while the stroke is virtual.
func (l *CBiList) addNewBi(startIdx, endIdx int, isSure bool) (bool, error) {
	startFx := l.candles.Get(startIdx).Fx
	if startFx != kline.FxTop && startFx != kline.FxBottom {
		return false, fmt.Errorf("stroke %d..%d starts on an unlabeled candle: %w", startIdx, endIdx, chanerr.ErrBi)
	}
	dir := kline.Down
	if startFx == kline.FxBottom {
		dir = kline.Up
	}
	nb := &CBi{
		owner:    l,
		index:    len(l.bis),
		beginKlc: startIdx,
		endKlc:   endIdx,
		dir:      dir,
		isSure:   isSure,
	}
	if err := nb.check(); err != nil {
		return false, err
	}
	l.bis = append(l.bis, nb)
	return true, nil
}

// canMakeBi decides whether [startIdx,endIdx] may delimit a stroke under
// the configured span/validity/peak rules. See spec §4.B.
func (l *CBiList) canMakeBi(startIdx, endIdx int, forVirtual bool) (bool, error) {
	if l.cfg.Algo == AlgoNormal {
		if !l.satisfyBiSpan(startIdx, endIdx) {
			return false, nil
		}
	}
	if !l.candles.CheckFxValid(startIdx, endIdx, l.cfg.FxCheckMethod, forVirtual) {
		return false, nil
	}
	if l.cfg.EndIsPeak {
		if !l.endIsPeak(startIdx, endIdx) {
			return false, nil
		}
	}
	return true, nil
}

func (l *CBiList) satisfyBiSpan(startIdx, endIdx int) bool {
	span := endIdx - startIdx
	if !l.cfg.GapAsKl {
		for i := startIdx; i < endIdx; i++ {
			if l.candles.HasGapWithNext(i) {
				span++
			}
		}
	}
	if l.cfg.IsStrict {
		return span >= 4
	}
	if span < 3 {
		return false
	}
	barCount := 0
	for i := startIdx + 1; i < endIdx; i++ {
		barCount += len(l.candles.Get(i).Bars)
	}
	return barCount >= 3
}

// endIsPeak reports whether no candle strictly between startIdx and
// endIdx exceeds endIdx's extremum on the winning side implied by the
// start candle's fractal (a bottom start means the high side), so it
// also works while the end candle is still unlabeled.
func (l *CBiList) endIsPeak(startIdx, endIdx int) bool {
	end := l.candles.Get(endIdx)
	switch l.candles.Get(startIdx).Fx {
	case kline.FxBottom:
		for i := startIdx + 1; i < endIdx; i++ {
			if l.candles.Get(i).High > end.High {
				return false
			}
		}
	case kline.FxTop:
		for i := startIdx + 1; i < endIdx; i++ {
			if l.candles.Get(i).Low < end.Low {
				return false
			}
		}
	}
	return true
}
