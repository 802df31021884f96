package bsp

import (
	"math"

	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
	"chanalyzer/internal/seg"
	"chanalyzer/internal/zs"
)

// LineSource is the read surface a buy/sell-point list needs from the
// line arena it is built over.
type LineSource[T lineiface.Line] interface {
	Len() int
	Get(i int) T
}

// CBSPointList incrementally maintains the buy/sell-point arenas over a
// line source, its segment list and its pivot list. Every point ever
// computed lives in history; lst holds the currently active target
// points, bsp1Lst the type-1 anchors.
type CBSPointList[T lineiface.Line] struct {
	src LineSource[T]
	zss *zs.CZsList[T]
	cfg Config

	history []*CBspPoint
	lst     []int // history indices of active points
	bsp1Lst []int // history indices of T1/T1P anchors

	// lastSurePos is the bar index where the last confirmed segment's
	// final line begins; points anchored past it are unsure.
	lastSurePos int

	segLevel bool
}

// NewCBSPointList returns an empty buy/sell-point arena over src, whose
// pivots are read from zss. segLevel stamps every produced point as a
// segment-layer point.
func NewCBSPointList[T lineiface.Line](src LineSource[T], zss *zs.CZsList[T], cfg Config, segLevel bool) *CBSPointList[T] {
	return &CBSPointList[T]{src: src, zss: zss, cfg: cfg, lastSurePos: -1, segLevel: segLevel}
}

// Len reports the number of active target points.
func (l *CBSPointList[T]) Len() int { return len(l.lst) }

// Get returns the i-th active target point.
func (l *CBSPointList[T]) Get(i int) *CBspPoint { return l.history[l.lst[i]] }

// HistoryLen reports the number of points ever recorded.
func (l *CBSPointList[T]) HistoryLen() int { return len(l.history) }

// HistoryAt returns the point at the given history index, the index
// space line.Bsp() references.
func (l *CBSPointList[T]) HistoryAt(i int) *CBspPoint { return l.history[i] }

// Cal re-runs the staged point tests over the unsure tail: type 1/1P,
// then 2/2S, then 3A/3B, then the confirmed-position refresh. Returns
// true iff the history length or the active-list length differs from
// before the call.
func (l *CBSPointList[T]) Cal(segs *seg.CSegListChan[T]) (bool, error) {
	before := len(l.history)
	lstBefore := len(l.lst)

	l.removeUnsureBsp()
	if err := l.calSegBs1Point(segs); err != nil {
		return false, err
	}
	l.calSegBs2Point(segs)
	l.calSegBs3Point(segs)
	l.updateLastPos(segs)

	return len(l.history) != before || len(l.lst) != lstBefore, nil
}

// removeUnsureBsp drops every active point anchored past the last
// confirmed position; history is never pruned.
func (l *CBSPointList[T]) removeUnsureBsp() {
	l.lst = retainSure(l.lst, l.history, l.lastSurePos)
	l.bsp1Lst = retainSure(l.bsp1Lst, l.history, l.lastSurePos)
}

func retainSure(idxs []int, history []*CBspPoint, lastSurePos int) []int {
	keep := idxs[:0]
	for _, hi := range idxs {
		if lastSurePos >= 0 && history[hi].kluIdx <= lastSurePos {
			keep = append(keep, hi)
		}
	}
	return keep
}

func (l *CBSPointList[T]) updateLastPos(segs *seg.CSegListChan[T]) {
	l.lastSurePos = -1
	for i := segs.Len() - 1; i >= 0; i-- {
		sg := segs.Get(i)
		if sg.IsSure() {
			l.lastSurePos = l.src.Get(sg.EndIdx()).BeginKluIdx()
			return
		}
	}
}

func (l *CBSPointList[T]) segNeedCal(sg *seg.CSeg[T]) bool {
	if l.lastSurePos < 0 {
		return true
	}
	return l.src.Get(sg.EndIdx()).EndKluIdx() > l.lastSurePos
}

// addBs records a point of kind t at line's end, merging into any
// existing active point at the same bar. Non-target points are only
// recorded when they are type-1 anchors other kinds may reference.
func (l *CBSPointList[T]) addBs(t Type, line T, relateBsp1 *int, isTargetBsp bool, features map[string]float64) {
	isBuy := line.IsDown()
	kluIdx := line.EndKluIdx()
	for _, hi := range l.lst {
		if l.history[hi].kluIdx == kluIdx {
			l.history[hi].addAnotherBspProp(t, relateBsp1)
			return
		}
	}

	if !l.cfg.Get(isBuy).HasTarget(t) {
		isTargetBsp = false
	}
	if !isTargetBsp && t != T1 && t != T1P {
		return
	}

	p := &CBspPoint{
		index:      len(l.history),
		biIdx:      line.Index(),
		kluIdx:     kluIdx,
		isBuy:      isBuy,
		isSegbsp:   l.segLevel,
		types:      []Type{t},
		relateBsp1: relateBsp1,
		features:   features,
	}
	l.history = append(l.history, p)
	line.SetBsp(p.index)

	if isTargetBsp {
		l.lst = append(l.lst, p.index)
	}
	if t == T1 || t == T1P {
		l.bsp1Lst = append(l.bsp1Lst, p.index)
	}
}

// bsp1IdxDict maps line index to the history index of the type-1 anchor
// ending on it.
func (l *CBSPointList[T]) bsp1IdxDict() map[int]int {
	dict := make(map[int]int, len(l.bsp1Lst))
	for _, hi := range l.bsp1Lst {
		dict[l.history[hi].biIdx] = hi
	}
	return dict
}

// ---- type 1 / 1P ----

func (l *CBSPointList[T]) calSegBs1Point(segs *seg.CSegListChan[T]) error {
	for i := 0; i < segs.Len(); i++ {
		sg := segs.Get(i)
		if !l.segNeedCal(sg) {
			continue
		}
		if err := l.calSingleBs1Point(sg); err != nil {
			return err
		}
	}
	return nil
}

// calSingleBs1Point routes a segment end to the trend-divergence test
// when its last pivot genuinely reaches the end, and to the
// consolidation test otherwise.
func (l *CBSPointList[T]) calSingleBs1Point(sg *seg.CSeg[T]) error {
	isBuy := sg.IsDown()
	conf := l.cfg.Get(isBuy)

	zsCnt := len(sg.ZsLst())
	if conf.Bsp1OnlyMultibiZs {
		zsCnt = l.multiBiZsCnt(sg)
	}
	isTargetBsp := conf.MinZsCnt == 0 || zsCnt >= conf.MinZsCnt

	if len(sg.ZsLst()) == 0 {
		return nil
	}
	lastZs := l.zss.Get(sg.ZsLst()[len(sg.ZsLst())-1])

	if l.validLastZs(lastZs, sg) {
		return l.treatBsp1(sg, lastZs, isBuy, isTargetBsp)
	}
	return l.treatPzBsp1(sg, isBuy, isTargetBsp)
}

// validLastZs: the pivot spans more than one line, reaches the segment
// end (through its out-line or its last member), and sits more than two
// lines past its in-line.
func (l *CBSPointList[T]) validLastZs(lastZs *zs.CZs[T], sg *seg.CSeg[T]) bool {
	if lastZs.IsOneBiZs() {
		return false
	}
	biOut, hasOut := lastZs.BiOut()
	reachesEnd := hasOut && biOut >= sg.EndIdx()
	if !reachesEnd {
		members := lastZs.BiLst()
		reachesEnd = len(members) > 0 && members[len(members)-1] >= sg.EndIdx()
	}
	if !reachesEnd {
		return false
	}
	biIn, hasIn := lastZs.BiIn()
	return hasIn && sg.EndIdx()-biIn > 2
}

func (l *CBSPointList[T]) treatBsp1(sg *seg.CSeg[T], lastZs *zs.CZs[T], isBuy, isTargetBsp bool) error {
	conf := l.cfg.Get(isBuy)

	breakPeak, _ := lastZs.OutBiIsPeak(sg.EndIdx())
	if conf.Bs1Peak && !breakPeak {
		isTargetBsp = false
	}

	endLine := l.src.Get(sg.EndIdx())
	isDiver, rate, err := lastZs.IsDivergence(conf.MacdAlgo, conf.DivergenceRate, endLine)
	if err != nil {
		return err
	}
	if !isDiver {
		isTargetBsp = false
	}

	l.addBs(T1, endLine, nil, isTargetBsp, map[string]float64{
		"divergence_rate": rate,
	})
	return nil
}

// treatPzBsp1 is the consolidation variant: the segment's last line must
// continue its two-back predecessor's segment, push a new extreme past
// it, and still diverge on the momentum metric.
func (l *CBSPointList[T]) treatPzBsp1(sg *seg.CSeg[T], isBuy, isTargetBsp bool) error {
	conf := l.cfg.Get(isBuy)

	lastBi := l.src.Get(sg.EndIdx())
	preIdx := lastBi.Index() - 2
	if preIdx < 0 {
		return nil
	}
	preBi := l.src.Get(preIdx)

	lastSeg, lastOk := lastBi.SegIdx()
	preSeg, preOk := preBi.SegIdx()
	if lastOk != preOk || (lastOk && lastSeg != preSeg) {
		return nil
	}
	if lastBi.Dir() != sg.Dir() {
		return nil
	}
	if lastBi.IsDown() && lastBi.Low() > preBi.Low() {
		return nil
	}
	if lastBi.IsUp() && lastBi.High() < preBi.High() {
		return nil
	}

	inMetric, err := preBi.MacdMetric(conf.MacdAlgo, false)
	if err != nil {
		return err
	}
	outMetric, err := lastBi.MacdMetric(conf.MacdAlgo, true)
	if err != nil {
		return err
	}
	isDiver := outMetric <= conf.DivergenceRate*inMetric
	rate := outMetric / (inMetric + 1e-7)
	if !isDiver {
		isTargetBsp = false
	}

	l.addBs(T1P, lastBi, nil, isTargetBsp, map[string]float64{
		"divergence_rate": rate,
		"bsp1_bi_amp":     lastBi.Amp(),
	})
	return nil
}

// ---- type 2 / 2S ----

func (l *CBSPointList[T]) calSegBs2Point(segs *seg.CSegListChan[T]) {
	dict := l.bsp1IdxDict()
	for i := 0; i < segs.Len(); i++ {
		sg := segs.Get(i)
		conf := l.cfg.Get(sg.IsDown())
		if !conf.HasTarget(T2) && !conf.HasTarget(T2S) {
			continue
		}
		l.treatBsp2(sg, dict, segs)
	}
}

// treatBsp2 tests the first pullback after a type-1 end: the line two
// past the anchor must retrace no more than MaxBs2Rate of the break
// line's amplitude. The single-segment case anchors on the opening run
// instead.
func (l *CBSPointList[T]) treatBsp2(sg *seg.CSeg[T], dict map[int]int, segs *seg.CSegListChan[T]) {
	if !l.segNeedCal(sg) {
		return
	}

	var (
		conf      PointConfig
		bsp1BiIdx = -1
		realBsp1  *int
		breakBi   T
		bsp2Bi    T
		isBuy     bool
	)
	if segs.Len() > 1 {
		isBuy = sg.IsDown()
		conf = l.cfg.Get(isBuy)
		bsp1BiIdx = sg.EndIdx()
		if hi, ok := dict[bsp1BiIdx]; ok {
			v := hi
			realBsp1 = &v
		}
		if bsp1BiIdx+2 >= l.src.Len() {
			return
		}
		breakBi = l.src.Get(bsp1BiIdx + 1)
		bsp2Bi = l.src.Get(bsp1BiIdx + 2)
	} else {
		isBuy = sg.IsUp()
		conf = l.cfg.Get(isBuy)
		if l.src.Len() < 2 {
			return
		}
		breakBi = l.src.Get(0)
		bsp2Bi = l.src.Get(1)
	}

	if conf.Bsp2Follow1 {
		if _, ok := dict[bsp1BiIdx]; bsp1BiIdx < 0 || !ok {
			return
		}
	}

	retraceRate := bsp2Bi.Amp() / breakBi.Amp()
	if retraceRate <= conf.MaxBs2Rate {
		l.addBs(T2, bsp2Bi, realBsp1, true, map[string]float64{
			"bsp2_retrace_rate": retraceRate,
			"bsp2_break_bi_amp": breakBi.Amp(),
			"bsp2_bi_amp":       bsp2Bi.Amp(),
		})
	} else if conf.Bsp2sFollow2 {
		return
	}

	if !l.cfg.Get(sg.IsDown()).HasTarget(T2S) {
		return
	}
	l.treatBsp2s(segs, bsp2Bi, breakBi, realBsp1, isBuy)
}

// treatBsp2s chains further pullbacks in +2 line steps, holding a
// rolling price-overlap window anchored on the type-2 line, until a
// candidate leaves the window, breaks the original break line, retraces
// too far, strays into an unrelated segment, or exceeds the level cap.
func (l *CBSPointList[T]) treatBsp2s(segs *seg.CSegListChan[T], bsp2Bi, breakBi T, realBsp1 *int, isBuy bool) {
	conf := l.cfg.Get(isBuy)

	bsp2BiIdx := bsp2Bi.Index()
	bsp2SegIdx, hasSeg := bsp2Bi.SegIdx()
	if !hasSeg {
		return
	}
	breakEndVal := breakBi.EndVal()
	breakAmp := breakBi.Amp()

	bias := 2
	var overlapLow, overlapHigh float64

	for bsp2BiIdx+bias < l.src.Len() {
		bsp2sBi := l.src.Get(bsp2BiIdx + bias)
		bsp2sSegIdx, ok := bsp2sBi.SegIdx()
		if !ok {
			break
		}
		if conf.MaxBsp2sLv >= 0 && bias/2 > conf.MaxBsp2sLv {
			break
		}
		if bsp2sSegIdx != bsp2SegIdx &&
			(bsp2sSegIdx < segs.Len()-1 ||
				bsp2sSegIdx-bsp2SegIdx >= 2 ||
				(bsp2SegIdx < segs.Len() && segs.Get(bsp2SegIdx).IsSure())) {
			break
		}

		if bias == 2 {
			if !kline.HasOverlap(bsp2Bi.Low(), bsp2Bi.High(), bsp2sBi.Low(), bsp2sBi.High(), false) {
				break
			}
			overlapLow = math.Max(bsp2Bi.Low(), bsp2sBi.Low())
			overlapHigh = math.Min(bsp2Bi.High(), bsp2sBi.High())
		} else if !kline.HasOverlap(overlapLow, overlapHigh, bsp2sBi.Low(), bsp2sBi.High(), false) {
			break
		}

		retraceRate := math.Abs(bsp2sBi.EndVal()-breakEndVal) / breakAmp
		if bsp2sBreakBsp1(bsp2sBi, breakBi) || retraceRate > conf.MaxBs2Rate {
			break
		}

		l.addBs(T2S, bsp2sBi, realBsp1, true, map[string]float64{
			"bsp2_retrace_rate": retraceRate,
			"bsp2_break_bi_amp": breakAmp,
			"bsp2_bi_amp":       bsp2Bi.Amp(),
			"bsp2s_lv":          float64(bias) / 2,
		})
		bias += 2
	}
}

// ---- type 3A / 3B ----

func (l *CBSPointList[T]) calSegBs3Point(segs *seg.CSegListChan[T]) {
	dict := l.bsp1IdxDict()
	isMultiSeg := segs.Len() > 1

	for i := 0; i < segs.Len(); i++ {
		sg := segs.Get(i)
		if !l.segNeedCal(sg) {
			continue
		}
		isBuy := sg.IsDown()
		conf := l.cfg.Get(isBuy)
		if !conf.HasTarget(T3A) && !conf.HasTarget(T3B) {
			continue
		}

		var (
			nextSeg    *seg.CSeg[T]
			nextSegIdx = sg.Index()
			bsp1BiIdx  = -1
			realBsp1   *int
		)
		if isMultiSeg {
			bsp1BiIdx = sg.EndIdx()
			if hi, ok := dict[bsp1BiIdx]; ok {
				v := hi
				realBsp1 = &v
			}
			nextSegIdx = sg.Index() + 1
			if nextSegIdx < segs.Len() {
				nextSeg = segs.Get(nextSegIdx)
			}
		} else {
			nextSeg = sg
		}

		if conf.Bsp3Follow1 {
			if _, ok := dict[bsp1BiIdx]; bsp1BiIdx < 0 || !ok {
				continue
			}
		}

		if nextSeg != nil {
			l.treatBsp3After(segs, nextSeg, isBuy, realBsp1, bsp1BiIdx, nextSegIdx)
		}
		l.treatBsp3Before(segs, sg, nextSeg, bsp1BiIdx, isBuy, realBsp1, nextSegIdx)
	}
}

// treatBsp3After looks for the line following the next segment's first
// multi-line pivot's exit that does not re-enter the pivot's band.
func (l *CBSPointList[T]) treatBsp3After(segs *seg.CSegListChan[T], nextSeg *seg.CSeg[T], isBuy bool, realBsp1 *int, bsp1BiIdx, nextSegIdx int) {
	firstZs := l.firstMultiBiZs(nextSeg)
	if firstZs == nil {
		return
	}
	conf := l.cfg.Get(isBuy)

	if conf.StrictBsp3 {
		biIn, ok := firstZs.BiIn()
		want := 1
		if bsp1BiIdx >= 0 {
			want = bsp1BiIdx + 1
		}
		if !ok || biIn != want {
			return
		}
	}

	biOut, ok := firstZs.BiOut()
	if !ok || biOut+1 >= l.src.Len() {
		return
	}
	bsp3Bi := l.src.Get(biOut + 1)

	if parentIdx, ok := bsp3Bi.ParentSegIdx(); !ok {
		if nextSeg.Index() != segs.Len()-1 {
			return
		}
	} else if parentIdx != nextSeg.Index() && parentIdx < segs.Len() {
		parent := segs.Get(parentIdx)
		if parent.EndIdx()-parent.StartIdx()+1 >= 3 {
			return
		}
	}

	if bsp3Bi.Dir() == nextSeg.Dir() {
		return
	}
	if segIdx, ok := bsp3Bi.SegIdx(); (!ok || segIdx != nextSegIdx) && nextSegIdx < segs.Len()-2 {
		return
	}
	if bsp3Back2zs(bsp3Bi, firstZs) {
		return
	}
	if conf.Bsp3Peak && !bsp3BreakZsPeak(bsp3Bi, firstZs) {
		return
	}

	l.addBs(T3A, bsp3Bi, realBsp1, true, map[string]float64{
		"bsp3_zs_height": (firstZs.High() - firstZs.Low()) / firstZs.Low(),
		"bsp3_bi_amp":    bsp3Bi.Amp(),
	})
}

// treatBsp3Before walks forward from the type-1 anchor in +2 line steps
// looking for the first line that stays clear of the prior segment's
// final multi-line pivot.
func (l *CBSPointList[T]) treatBsp3Before(segs *seg.CSegListChan[T], sg, nextSeg *seg.CSeg[T], bsp1BiIdx int, isBuy bool, realBsp1 *int, nextSegIdx int) {
	cmpZs := l.finalMultiBiZs(sg)
	if cmpZs == nil || bsp1BiIdx < 0 {
		return
	}
	conf := l.cfg.Get(isBuy)
	if conf.StrictBsp3 {
		biOut, ok := cmpZs.BiOut()
		if !ok || biOut != bsp1BiIdx {
			return
		}
	}

	endBiIdx := l.calBsp3BiEndIdx(segs, nextSeg)
	for idx := bsp1BiIdx + 2; idx < l.src.Len(); idx += 2 {
		if idx > endBiIdx {
			break
		}
		bsp3Bi := l.src.Get(idx)
		if segIdx, ok := bsp3Bi.SegIdx(); ok && segIdx != nextSegIdx && segIdx < segs.Len()-1 {
			break
		}
		if bsp3Back2zs(bsp3Bi, cmpZs) {
			continue
		}

		l.addBs(T3B, bsp3Bi, realBsp1, true, map[string]float64{
			"bsp3_zs_height": (cmpZs.High() - cmpZs.Low()) / cmpZs.Low(),
			"bsp3_bi_amp":    bsp3Bi.Amp(),
		})
		break
	}
}

// calBsp3BiEndIdx bounds how far a 3B scan may run: up to the next
// segment's first multi-line pivot exit, or unbounded when no later
// structure constrains it yet.
func (l *CBSPointList[T]) calBsp3BiEndIdx(segs *seg.CSegListChan[T], nextSeg *seg.CSeg[T]) int {
	if nextSeg == nil {
		return math.MaxInt
	}
	if l.multiBiZsCnt(nextSeg) == 0 && nextSeg.Index()+1 >= segs.Len() {
		return math.MaxInt
	}
	endBiIdx := nextSeg.EndIdx() - 1
	for _, zi := range nextSeg.ZsLst() {
		z := l.zss.Get(zi)
		if z.IsOneBiZs() {
			continue
		}
		if biOut, ok := z.BiOut(); ok {
			endBiIdx = biOut
			break
		}
	}
	return endBiIdx
}

// ---- seg-pivot helpers ----

func (l *CBSPointList[T]) firstMultiBiZs(sg *seg.CSeg[T]) *zs.CZs[T] {
	for _, zi := range sg.ZsLst() {
		if z := l.zss.Get(zi); !z.IsOneBiZs() {
			return z
		}
	}
	return nil
}

func (l *CBSPointList[T]) finalMultiBiZs(sg *seg.CSeg[T]) *zs.CZs[T] {
	lst := sg.ZsLst()
	for i := len(lst) - 1; i >= 0; i-- {
		if z := l.zss.Get(lst[i]); !z.IsOneBiZs() {
			return z
		}
	}
	return nil
}

func (l *CBSPointList[T]) multiBiZsCnt(sg *seg.CSeg[T]) int {
	cnt := 0
	for _, zi := range sg.ZsLst() {
		if !l.zss.Get(zi).IsOneBiZs() {
			cnt++
		}
	}
	return cnt
}

// bsp2sBreakBsp1 reports whether a 2S candidate has pushed past the far
// side of the original break line.
func bsp2sBreakBsp1[T lineiface.Line](bsp2sBi, breakBi T) bool {
	if bsp2sBi.IsDown() {
		return bsp2sBi.Low() < breakBi.Low()
	}
	return bsp2sBi.High() > breakBi.High()
}

// bsp3Back2zs reports whether the candidate line re-enters the pivot's
// core band.
func bsp3Back2zs[T lineiface.Line](bsp3Bi T, z *zs.CZs[T]) bool {
	if bsp3Bi.IsDown() {
		return bsp3Bi.Low() < z.High()
	}
	return bsp3Bi.High() > z.Low()
}

// bsp3BreakZsPeak reports whether the candidate line clears the pivot's
// peak band on its own side.
func bsp3BreakZsPeak[T lineiface.Line](bsp3Bi T, z *zs.CZs[T]) bool {
	if bsp3Bi.IsDown() {
		return bsp3Bi.High() >= z.PeakHigh()
	}
	return bsp3Bi.Low() <= z.PeakLow()
}
