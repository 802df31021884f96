// Package zs implements pivots: price-range clusters formed by
// overlapping consecutive lines within a segment, with adjacent-pivot
// merging and in/out-line linkage. See spec §4.E.
package zs

import (
	"time"

	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
)

// CZs is one pivot. [low, high] is the core overlap band of the founding
// lines; [peakLow, peakHigh] the full extent reached by every member.
// biIn/biOut are the lines entering and leaving the pivot, attached
// after pivot calculation by UpdateZsInSeg.
type CZs[T lineiface.Line] struct {
	owner *CZsList[T]

	index  int
	isSure bool

	// subZsLst preserves the pre-merge pivots after a combine, oldest
	// first, with a copy of the pre-merge receiver at slot 0.
	subZsLst []*CZs[T]

	beginBarIdx int // klu index anchoring the first member's start
	beginBiIdx  int
	endBarIdx   int
	endBiIdx    int

	low, high         float64
	peakLow, peakHigh float64

	biIn  int // line entering the pivot, -1 until attached
	biOut int // line leaving the pivot, -1 until attached

	// biLst holds the member line indices from beginBi to endBi,
	// refreshed by UpdateZsInSeg.
	biLst []int
}

// newCZs builds a pivot from the current free list. lst must be
// non-empty; the caller has already established the overlap.
func newCZs[T lineiface.Line](owner *CZsList[T], index int, lst []T, isSure bool) *CZs[T] {
	z := &CZs[T]{
		owner:       owner,
		index:       index,
		isSure:      isSure,
		beginBarIdx: lst[0].BeginKluIdx(),
		beginBiIdx:  lst[0].Index(),
		peakHigh:    negInf(),
		peakLow:     posInf(),
		biIn:        -1,
		biOut:       -1,
	}
	z.updateZsRange(lst)
	for _, item := range lst {
		z.updateZsEnd(item)
	}
	return z
}

func (z *CZs[T]) Index() int   { return z.index }
func (z *CZs[T]) IsSure() bool { return z.isSure }

func (z *CZs[T]) Low() float64      { return z.low }
func (z *CZs[T]) High() float64     { return z.high }
func (z *CZs[T]) PeakLow() float64  { return z.peakLow }
func (z *CZs[T]) PeakHigh() float64 { return z.peakHigh }

func (z *CZs[T]) BeginBiIdx() int  { return z.beginBiIdx }
func (z *CZs[T]) EndBiIdx() int    { return z.endBiIdx }
func (z *CZs[T]) BeginBarIdx() int { return z.beginBarIdx }
func (z *CZs[T]) EndBarIdx() int   { return z.endBarIdx }

// BiIn reports the line entering the pivot, if attached.
func (z *CZs[T]) BiIn() (int, bool) { return z.biIn, z.biIn >= 0 }

// BiOut reports the line leaving the pivot, if attached.
func (z *CZs[T]) BiOut() (int, bool) { return z.biOut, z.biOut >= 0 }

// BiLst returns the member line indices from beginBi to endBi.
func (z *CZs[T]) BiLst() []int { return z.biLst }

// SubZsLst returns the pre-merge pivots folded into this one, if any.
func (z *CZs[T]) SubZsLst() []*CZs[T] { return z.subZsLst }

func (z *CZs[T]) BeginTime() time.Time { return z.owner.src.Get(z.beginBiIdx).BeginTime() }
func (z *CZs[T]) EndTime() time.Time   { return z.owner.src.Get(z.endBiIdx).EndTime() }

// IsOneBiZs reports whether the pivot still spans a single line.
func (z *CZs[T]) IsOneBiZs() bool { return z.beginBiIdx == z.endBiIdx }

// updateZsRange recomputes the core band as the intersection of the
// given lines' ranges: low is the highest member low, high the lowest
// member high.
func (z *CZs[T]) updateZsRange(lst []T) {
	low := lst[0].Low()
	high := lst[0].High()
	for _, item := range lst[1:] {
		if item.Low() > low {
			low = item.Low()
		}
		if item.High() < high {
			high = item.High()
		}
	}
	z.low = low
	z.high = high
}

// updateZsEnd extends the pivot's end to item and widens the peak band.
func (z *CZs[T]) updateZsEnd(item T) {
	z.endBarIdx = item.EndKluIdx()
	z.endBiIdx = item.Index()
	if item.Low() < z.peakLow {
		z.peakLow = item.Low()
	}
	if item.High() > z.peakHigh {
		z.peakHigh = item.High()
	}
}

// InRange reports whether item's range genuinely overlaps the core band.
func (z *CZs[T]) InRange(item T) bool {
	return kline.HasOverlap(z.low, z.high, item.Low(), item.High(), false)
}

// TryAddToEnd extends the pivot with item if it overlaps the core band.
// A single-line pivot is promoted by recomputing the band over both.
func (z *CZs[T]) TryAddToEnd(item T) bool {
	if !z.InRange(item) {
		return false
	}
	if z.IsOneBiZs() {
		z.updateZsRange([]T{z.owner.src.Get(z.beginBiIdx), item})
	}
	z.updateZsEnd(item)
	return true
}

// IsInside reports whether the pivot's body starts inside the line span
// [segStartIdx, segEndIdx].
func (z *CZs[T]) IsInside(segStartIdx, segEndIdx int) bool {
	return segStartIdx <= z.beginBiIdx && z.beginBiIdx <= segEndIdx
}

// CanCombine tests whether rhs may merge into this pivot under mode: the
// right pivot must be multi-line, both must start in the same segment,
// and the configured bands must overlap.
func (z *CZs[T]) CanCombine(rhs *CZs[T], mode CombineMode) bool {
	if rhs.IsOneBiZs() {
		return false
	}
	lSeg, lOk := z.owner.src.Get(z.beginBiIdx).SegIdx()
	rSeg, rOk := z.owner.src.Get(rhs.beginBiIdx).SegIdx()
	if lOk != rOk || (lOk && lSeg != rSeg) {
		return false
	}
	if mode == CombinePeak {
		return kline.HasOverlap(z.peakLow, z.peakHigh, rhs.peakLow, rhs.peakHigh, false)
	}
	return kline.HasOverlap(z.low, z.high, rhs.low, rhs.high, true)
}

func (z *CZs[T]) makeCopy() *CZs[T] {
	cp := *z
	cp.subZsLst = nil
	cp.biLst = append([]int(nil), z.biLst...)
	return &cp
}

// doCombine folds rhs into this pivot, preserving both pre-merge states
// in subZsLst. The merged band is the union; end/biOut come from rhs.
func (z *CZs[T]) doCombine(rhs *CZs[T]) {
	if len(z.subZsLst) == 0 {
		z.subZsLst = append(z.subZsLst, z.makeCopy())
	}
	if rhs.low < z.low {
		z.low = rhs.low
	}
	if rhs.high > z.high {
		z.high = rhs.high
	}
	if rhs.peakLow < z.peakLow {
		z.peakLow = rhs.peakLow
	}
	if rhs.peakHigh > z.peakHigh {
		z.peakHigh = rhs.peakHigh
	}
	z.endBarIdx = rhs.endBarIdx
	z.endBiIdx = rhs.endBiIdx
	z.biOut = rhs.biOut
	z.subZsLst = append(z.subZsLst, rhs)
}

// endBiBreak reports whether outLine (or the attached out-line) actually
// leaves the core band on its own side.
func (z *CZs[T]) endBiBreak(outLine lineiface.Line) bool {
	if outLine == nil {
		if z.biOut < 0 {
			return false
		}
		outLine = z.owner.src.Get(z.biOut)
	}
	if outLine.IsDown() {
		return outLine.Low() < z.low
	}
	return outLine.High() > z.high
}

// IsDivergence runs the momentum-divergence test between the entering
// line and outLine (or the attached out-line when outLine is nil): the
// outgoing metric must not exceed rate times the incoming one. A rate
// above 100 is a free pass. Returns the metric ratio alongside.
func (z *CZs[T]) IsDivergence(algo lineiface.MacdAlgo, rate float64, outLine lineiface.Line) (bool, float64, error) {
	if !z.endBiBreak(outLine) {
		return false, 0, nil
	}
	if z.biIn < 0 {
		return false, 0, nil
	}
	inMetric, err := z.owner.src.Get(z.biIn).MacdMetric(algo, false)
	if err != nil {
		return false, 0, err
	}
	var outMetric float64
	if outLine != nil {
		outMetric, err = outLine.MacdMetric(algo, true)
	} else {
		if z.biOut < 0 {
			return false, 0, nil
		}
		outMetric, err = z.owner.src.Get(z.biOut).MacdMetric(algo, true)
	}
	if err != nil {
		return false, 0, err
	}
	ratio := outMetric / (inMetric + 1e-7)
	if rate > 100 {
		return true, ratio, nil
	}
	return outMetric <= rate*inMetric, ratio, nil
}

// OutBiIsPeak reports whether the out-line's end is more extreme than
// every member line up to endBiIdx, along with how close the nearest
// member end came to it, as a rate.
func (z *CZs[T]) OutBiIsPeak(endBiIdx int) (bool, float64) {
	if len(z.biLst) == 0 || z.biOut < 0 {
		return false, 0
	}
	out := z.owner.src.Get(z.biOut)
	peakRate := posInf()
	for _, biIdx := range z.biLst {
		if biIdx > endBiIdx {
			break
		}
		member := z.owner.src.Get(biIdx)
		if (out.IsDown() && member.Low() < out.Low()) || (out.IsUp() && member.High() > out.High()) {
			return false, 0
		}
		r := abs(member.EndVal()-out.EndVal()) / out.EndVal()
		if r < peakRate {
			peakRate = r
		}
	}
	return true, peakRate
}

func (z *CZs[T]) setBiIn(idx int)    { z.biIn = idx }
func (z *CZs[T]) setBiOut(idx int)   { z.biOut = idx }
func (z *CZs[T]) setBiLst(lst []int) { z.biLst = lst }
