package zs

import (
	"fmt"
	"math"

	"chanalyzer/internal/chanerr"
	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
	"chanalyzer/internal/seg"
)

// LineSource is the read surface a pivot list needs from the line arena
// it is built over.
type LineSource[T lineiface.Line] interface {
	Len() int
	Get(i int) T
}

// CZsList incrementally maintains the pivot arena over a line source.
// Pivots at or past the last confirmed segment's start are dropped and
// re-derived on every CalBiZs; everything earlier is frozen.
type CZsList[T lineiface.Line] struct {
	src LineSource[T]
	cfg Config

	zss         []*CZs[T]
	freeItemLst []T
	lastSurePos int
}

// NewCZsList returns an empty pivot arena over src.
func NewCZsList[T lineiface.Line](src LineSource[T], cfg Config) *CZsList[T] {
	return &CZsList[T]{src: src, cfg: cfg, lastSurePos: -1}
}

func (l *CZsList[T]) Len() int          { return len(l.zss) }
func (l *CZsList[T]) Get(i int) *CZs[T] { return l.zss[i] }
func (l *CZsList[T]) Slice() []*CZs[T]  { return l.zss }

func (l *CZsList[T]) updateLastPos(segs *seg.CSegListChan[T]) {
	l.lastSurePos = -1
	for i := segs.Len() - 1; i >= 0; i-- {
		if segs.Get(i).IsSure() {
			l.lastSurePos = segs.Get(i).StartIdx()
			return
		}
	}
}

func (l *CZsList[T]) segNeedCal(s *seg.CSeg[T]) bool {
	return s.StartIdx() >= l.lastSurePos
}

func (l *CZsList[T]) clearFreeLst() { l.freeItemLst = l.freeItemLst[:0] }

// addToFreeLst pushes item onto the rolling free list (replacing a
// stale entry for the same line after an end revision) and tries to
// mint a pivot from the list's tail. A pivot may never start at the
// very first line.
func (l *CZsList[T]) addToFreeLst(item T, isSure bool, algo Algo) {
	if n := len(l.freeItemLst); n > 0 && l.freeItemLst[n-1].Index() == item.Index() {
		l.freeItemLst = l.freeItemLst[:n-1]
	}
	l.freeItemLst = append(l.freeItemLst, item)
	res := l.tryConstructZs(isSure, algo)
	if res != nil && res.beginBiIdx > 0 {
		l.zss = append(l.zss, res)
		l.clearFreeLst()
		l.tryCombine()
	}
}

// update routes one line either into the last pivot's tail (when the
// free list is empty) or onto the free list.
func (l *CZsList[T]) update(line T, isSure bool) {
	if len(l.freeItemLst) == 0 && l.tryAddToEnd(line) {
		// only effective under peak combining; band combining has
		// already absorbed anything this could reach
		l.tryCombine()
		return
	}
	l.addToFreeLst(line, isSure, AlgoNormal)
}

func (l *CZsList[T]) tryAddToEnd(line T) bool {
	if len(l.zss) == 0 {
		return false
	}
	return l.zss[len(l.zss)-1].TryAddToEnd(line)
}

// addZsFromBiRange feeds the lines [from, to] of one segment's body into
// the pivot builder. Only lines running against the segment are fed:
// the first of them goes straight onto the free list, and each later one
// first tries to extend the last pivot.
func (l *CZsList[T]) addZsFromBiRange(from, to int, segDir kline.KlineDir, segIsSure bool) {
	dealBiCnt := 0
	for i := from; i <= to && i < l.src.Len(); i++ {
		line := l.src.Get(i)
		if line.Dir() == segDir {
			continue
		}
		if dealBiCnt < 1 {
			l.addToFreeLst(line, segIsSure, AlgoNormal)
			dealBiCnt++
		} else {
			l.update(line, segIsSure)
		}
	}
}

// tryConstructZs mints a pivot from the free list's tail if the tail
// ranges share a band. Normal mode founds a pivot on the last two free
// lines (unless single-line pivots are allowed); OverSeg mode needs
// three, and drops the first when it runs with its parent segment.
func (l *CZsList[T]) tryConstructZs(isSure bool, algo Algo) *CZs[T] {
	switch algo {
	case AlgoNormal:
		if !l.cfg.OneBiZs {
			if len(l.freeItemLst) == 1 {
				return nil
			}
			l.freeItemLst = append(l.freeItemLst[:0:0], l.freeItemLst[len(l.freeItemLst)-2:]...)
		}
	case AlgoOverSeg:
		if len(l.freeItemLst) < 3 {
			return nil
		}
		lst := append(l.freeItemLst[:0:0], l.freeItemLst[len(l.freeItemLst)-3:]...)
		l.freeItemLst = lst
		if dir, ok := lst[0].ParentSegDir(); ok && lst[0].Dir() == dir {
			l.freeItemLst = lst[1:]
			return nil
		}
	}

	minHigh := posInf()
	maxLow := negInf()
	for _, item := range l.freeItemLst {
		if item.High() < minHigh {
			minHigh = item.High()
		}
		if item.Low() > maxLow {
			maxLow = item.Low()
		}
	}
	if minHigh > maxLow {
		return newCZs(l, len(l.zss), l.freeItemLst, isSure)
	}
	return nil
}

// CalBiZs re-derives every pivot from the last confirmed segment's
// start onward, per the configured algorithm.
func (l *CZsList[T]) CalBiZs(segs *seg.CSegListChan[T]) error {
	keep := l.zss[:0]
	for _, z := range l.zss {
		if z.beginBiIdx < l.lastSurePos {
			keep = append(keep, z)
		}
	}
	l.zss = keep

	switch l.cfg.Algo {
	case AlgoNormal:
		for i := 0; i < segs.Len(); i++ {
			sg := segs.Get(i)
			if !l.segNeedCal(sg) {
				continue
			}
			l.clearFreeLst()
			l.addZsFromBiRange(sg.StartIdx(), sg.EndIdx(), sg.Dir(), sg.IsSure())
		}
		// whatever trails the last segment forms with direction flipped,
		// so the next segment's opening pivot is already taking shape
		if segs.Len() > 0 {
			l.clearFreeLst()
			last := segs.Get(segs.Len() - 1)
			l.addZsFromBiRange(last.EndIdx()+1, l.src.Len()-1, last.Dir().Flip(), false)
		}

	case AlgoOverSeg:
		if l.cfg.OneBiZs {
			return fmt.Errorf("one_bi_zs is incompatible with the over-seg pivot algorithm: %w", chanerr.ErrPara)
		}
		l.clearFreeLst()
		beginBiIdx := 0
		if len(l.zss) > 0 {
			beginBiIdx = l.zss[len(l.zss)-1].endBiIdx + 1
		}
		for i := beginBiIdx; i < l.src.Len(); i++ {
			l.updateOversegZs(l.src.Get(i))
		}

	case AlgoAuto:
		sureSegAppear := false
		existSureSeg := segs.ExistSureSeg()
		for i := 0; i < segs.Len(); i++ {
			sg := segs.Get(i)
			if sg.IsSure() {
				sureSegAppear = true
			}
			if !l.segNeedCal(sg) {
				continue
			}
			if sg.IsSure() || (!sureSegAppear && existSureSeg) {
				l.clearFreeLst()
				l.addZsFromBiRange(sg.StartIdx(), sg.EndIdx(), sg.Dir(), sg.IsSure())
			} else {
				l.clearFreeLst()
				for k := sg.StartIdx(); k < l.src.Len(); k++ {
					l.updateOversegZs(l.src.Get(k))
				}
				break
			}
		}
	}

	l.updateLastPos(segs)
	return nil
}

// updateOversegZs feeds one line through the segment-boundary-blind
// builder: prefer extending the last pivot, drop trivial re-appends
// adjacent to it, and otherwise grow the free list.
func (l *CZsList[T]) updateOversegZs(line T) {
	if len(l.zss) > 0 && len(l.freeItemLst) == 0 {
		if line.Index()+1 >= l.src.Len() {
			return
		}
		last := l.zss[len(l.zss)-1]
		next := l.src.Get(line.Index() + 1)
		if line.Index()-last.endBiIdx <= 1 && last.InRange(next) && last.TryAddToEnd(line) {
			return
		}
	}
	if len(l.zss) > 0 && len(l.freeItemLst) == 0 {
		last := l.zss[len(l.zss)-1]
		if last.InRange(line) && line.Index()-last.endBiIdx <= 1 {
			return
		}
	}
	l.addToFreeLst(line, line.IsSure(), AlgoOverSeg)
}

// tryCombine merges the trailing pivot into its predecessor while the
// configured bands keep overlapping.
func (l *CZsList[T]) tryCombine() {
	if !l.cfg.NeedCombine {
		return
	}
	for len(l.zss) >= 2 && l.zss[len(l.zss)-2].CanCombine(l.zss[len(l.zss)-1], l.cfg.Combine) {
		last := l.zss[len(l.zss)-1]
		l.zss = l.zss[:len(l.zss)-1]
		l.zss[len(l.zss)-1].doCombine(last)
	}
}

// UpdateZsInSeg walks segments newest-first until a frozen interior is
// hit, re-attaching to each segment the pivots whose body starts inside
// it and refreshing every visited pivot's in/out-line and member list.
// Once more than two confirmed segments have been counted on the walk,
// the segment itself included (for a confirmed segment: once two
// confirmed segments follow it), its interior is frozen for good.
func (l *CZsList[T]) UpdateZsInSeg(segs *seg.CSegListChan[T]) {
	sureSegCnt := 0
	for si := segs.Len() - 1; si >= 0; si-- {
		sg := segs.Get(si)
		if sg.EleInsideIsSure() {
			break
		}
		if sg.IsSure() {
			sureSegCnt++
		}
		sg.ClearZsLst()
		for zi := len(l.zss) - 1; zi >= 0; zi-- {
			z := l.zss[zi]
			if z.endBarIdx < sg.BeginKluIdx() {
				break
			}
			if z.IsInside(sg.StartIdx(), sg.EndIdx()) {
				sg.AddZs(z.index)
			}
			if z.beginBiIdx > 0 {
				z.setBiIn(z.beginBiIdx - 1)
			}
			if z.endBiIdx+1 < l.src.Len() {
				z.setBiOut(z.endBiIdx + 1)
			}
			members := make([]int, 0, z.endBiIdx-z.beginBiIdx+1)
			for k := z.beginBiIdx; k <= z.endBiIdx; k++ {
				members = append(members, k)
			}
			z.setBiLst(members)
		}
		if sureSegCnt > 2 && !sg.EleInsideIsSure() {
			sg.SetEleInsideIsSure()
		}
	}
}

func posInf() float64 { return math.Inf(1) }
func negInf() float64 { return math.Inf(-1) }

func abs(v float64) float64 { return math.Abs(v) }
