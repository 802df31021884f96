package seg

import (
	"errors"
	"math"

	"chanalyzer/internal/chanerr"
	"chanalyzer/internal/eigen"
	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
)

// LineSource is the read surface a segment list needs from whatever
// arena it is built over: a stroke arena (CBiList) for first-order
// segments, or another CSegListChan for second-order segments of
// segments.
type LineSource[T lineiface.Line] interface {
	Len() int
	Get(i int) T
}

// CSegListChan incrementally maintains the segment arena over a line
// source. Each Update re-examines the tail of the arena: unconfirmed
// trailing segments are purged, confirmation is retried forward from
// there by racing an up-segment and a down-segment feature-sequence
// hypothesis over the same run of lines, and whatever lines are left
// over past the last confirmed segment are collected into a trailing
// unsure segment. See spec §4.D.
type CSegListChan[T lineiface.Line] struct {
	src LineSource[T]
	cfg Config

	segs []*CSeg[T]
	rev  int
}

// NewCSegListChan returns an empty segment arena over src.
func NewCSegListChan[T lineiface.Line](src LineSource[T], cfg Config) *CSegListChan[T] {
	return &CSegListChan[T]{src: src, cfg: cfg}
}

func (l *CSegListChan[T]) Len() int          { return len(l.segs) }
func (l *CSegListChan[T]) Get(i int) *CSeg[T] { return l.segs[i] }
func (l *CSegListChan[T]) Slice() []*CSeg[T]  { return l.segs }

// boundedSource restricts visibility of an outer line source to its
// first n lines, so a tracker built mid-update never looks past the
// portion of the arena this Update call was asked to consider.
type boundedSource[T lineiface.Line] struct {
	src LineSource[T]
	n   int
}

func (b boundedSource[T]) Len() int    { return b.n }
func (b boundedSource[T]) Get(i int) T { return b.src.Get(i) }

// Update re-examines the tail of the segment arena over every line up
// to and including uptoIdx; confirmed segments kept by doInit are not
// re-derived. Returns true iff the arena changed.
func (l *CSegListChan[T]) Update(uptoIdx int) (bool, error) {
	n := uptoIdx + 1
	if n <= 0 || n > l.src.Len() {
		n = l.src.Len()
	}
	if n == 0 {
		return false, nil
	}
	lines := boundedSource[T]{src: l.src, n: n}
	before := l.rev

	l.doInit(lines)

	beginIdx := 0
	if len(l.segs) > 0 {
		beginIdx = l.segs[len(l.segs)-1].endIdx + 1
	}

	if err := l.calSegSure(lines, beginIdx); err != nil {
		return l.rev != before, err
	}
	if err := l.collectLeftSeg(lines); err != nil {
		return l.rev != before, err
	}
	return l.rev != before, nil
}

// doInit purges every unconfirmed segment off the tail of the arena,
// clearing the parent-segment link on their member lines since that
// membership was only ever tentative. If the last remaining confirmed
// segment's own confirming fractal drew its final feature element from
// a line that is still unsure, that segment is purged too: the
// fractal's high/low could still move once that line firms up.
func (l *CSegListChan[T]) doInit(lines boundedSource[T]) {
	for len(l.segs) > 0 && !l.segs[len(l.segs)-1].isSure {
		last := l.segs[len(l.segs)-1]
		for i := last.startIdx; i <= last.endIdx && i < lines.Len(); i++ {
			lines.Get(i).ClearParentSeg()
		}
		l.segs = l.segs[:len(l.segs)-1]
		l.rev++
	}

	if len(l.segs) == 0 {
		return
	}
	last := l.segs[len(l.segs)-1]
	fx := last.eigenFx
	if fx == nil {
		return
	}
	third := fx.Third()
	if third == nil {
		return
	}
	thirdLines := third.Lines()
	lastLine := thirdLines[len(thirdLines)-1]
	if !lastLine.IsSure() {
		l.segs = l.segs[:len(l.segs)-1]
		l.rev++
	}
}

// calSegSure races an up-segment and a down-segment feature-sequence
// hypothesis forward from beginIdx and, on the first confirmed
// fractal, hands off to treatFxEigen. Recursion mirrors the reference's
// own recursive retry structure: a refuted fractal retries from its
// second fed line, and a confirmed one resumes from just past its end.
func (l *CSegListChan[T]) calSegSure(lines boundedSource[T], beginIdx int) error {
	fxEigen, err := l.calEigenFx(lines, beginIdx)
	if err != nil {
		return err
	}
	if fxEigen == nil {
		return nil
	}
	return l.treatFxEigen(lines, fxEigen)
}

// calEigenFx runs both hypotheses concurrently over lines[beginIdx:],
// mirroring cal_eigen_fx: a down line feeds the up hypothesis (a
// segment's feature sequence is built from the strokes running against
// it) and an up line feeds the down hypothesis, except once the
// previous segment's direction is known, only the hypothesis opposite
// that direction is fed at all. While no segment exists yet, the first
// hypothesis to seat a second feature element locks the working
// direction rather than letting whichever confirms first decide it
// (guards against counterexamples where the other side would complete
// a spurious one-sided fractal first).
func (l *CSegListChan[T]) calEigenFx(lines boundedSource[T], beginIdx int) (*eigen.CEigenFx[T], error) {
	upEigen := eigen.NewCEigenFx[T](kline.Up, true, lines)
	downEigen := eigen.NewCEigenFx[T](kline.Down, true, lines)

	var lastSegDir *kline.KlineDir
	if len(l.segs) > 0 {
		d := l.segs[len(l.segs)-1].dir
		lastSegDir = &d
	}

	for i := beginIdx; i < lines.Len(); i++ {
		line := lines.Get(i)
		var confirmedDir kline.KlineDir
		var confirmed bool

		switch {
		case line.IsDown() && (lastSegDir == nil || *lastSegDir == kline.Down):
			ok, err := upEigen.AddLine(line)
			if err != nil {
				return nil, err
			}
			if ok {
				confirmedDir, confirmed = kline.Up, true
			}
		case line.IsUp() && (lastSegDir == nil || *lastSegDir == kline.Up):
			ok, err := downEigen.AddLine(line)
			if err != nil {
				return nil, err
			}
			if ok {
				confirmedDir, confirmed = kline.Down, true
			}
		}

		if len(l.segs) == 0 && lastSegDir == nil {
			// Neither hypothesis has a confirmed segment to anchor its
			// direction yet. Once one side seats its middle feature
			// element first, lock onto it and drop the other: letting
			// both race to confirmation risks accepting whichever one
			// happens to complete first even when it is the spurious
			// side (counterexamples of this exist in real data).
			if upEigen.Middle() != nil {
				d := kline.Down
				lastSegDir = &d
				downEigen.Reset()
			} else if downEigen.Middle() != nil {
				d := kline.Up
				lastSegDir = &d
				upEigen.Reset()
			}
		}

		if confirmed {
			if confirmedDir == kline.Up {
				return upEigen, nil
			}
			return downEigen, nil
		}
	}
	return nil, nil
}

// treatFxEigen dispatches on whether the confirmed fractal may actually
// end the segment. A true or undetermined verdict commits the segment
// (sure only when the verdict was definite and every line behind the
// fractal is itself confirmed); only a true verdict then resumes
// scanning past it, an undetermined one stops there. A refuted
// verdict discards the fractal and resumes from its own second line,
// since that line may yet seed a different fractal.
func (l *CSegListChan[T]) treatFxEigen(lines boundedSource[T], fxEigen *eigen.CEigenFx[T]) error {
	verdict, err := fxEigen.CanBeEnd()
	if err != nil {
		return err
	}
	endBiIdx := fxEigen.PeakBiIndex()

	if verdict == eigen.EndFalse {
		retryFrom := fxEigen.Lst()[1].Index()
		return l.calSegSure(lines, retryFrom)
	}

	isTrue := verdict == eigen.EndTrue
	ok, err := l.addNewSeg(lines, endBiIdx, isTrue && fxEigen.AllLinesSure(), nil, true, "normal")
	if err != nil {
		return err
	}
	if !ok {
		return l.calSegSure(lines, endBiIdx+1)
	}

	l.segs[len(l.segs)-1].eigenFx = fxEigen
	if isTrue {
		return l.calSegSure(lines, endBiIdx+1)
	}
	return nil
}

// collectFirstSeg seeds the very first segment once no confirmed
// segment exists yet, either spanning every available line (LeftAll)
// or cut at whichever side's peak the run has moved further toward
// (LeftPeak), with any remainder past that peak folded in separately.
func (l *CSegListChan[T]) collectFirstSeg(lines boundedSource[T]) error {
	if lines.Len() < 3 {
		return nil
	}

	switch l.cfg.LeftMethod {
	case LeftPeak:
		high, low := math.Inf(-1), math.Inf(1)
		for i := 0; i < lines.Len(); i++ {
			ln := lines.Get(i)
			high = math.Max(high, ln.High())
			low = math.Min(low, ln.Low())
		}
		first := lines.Get(0)
		order := ascending(0, lines.Len()-1)
		if math.Abs(high-first.BeginVal()) >= math.Abs(low-first.BeginVal()) {
			if peak, ok := findPeakBi(lines, order, true); ok {
				dir := kline.Up
				if err := mustAddNewSeg(l, lines, peak.Index(), false, &dir, false, "0seg_find_high"); err != nil {
					return err
				}
			}
		} else {
			if peak, ok := findPeakBi(lines, order, false); ok {
				dir := kline.Down
				if err := mustAddNewSeg(l, lines, peak.Index(), false, &dir, false, "0seg_find_low"); err != nil {
					return err
				}
			}
		}
		return l.collectLeftAsSeg(lines)

	default: // LeftAll
		last := lines.Get(lines.Len() - 1)
		dir := kline.Up
		if last.EndVal() < lines.Get(0).BeginVal() {
			dir = kline.Down
		}
		return mustAddNewSeg(l, lines, lines.Len()-1, false, &dir, false, "0seg_collect_all")
	}
}

// collectLeftSegPeakMethod extends the last confirmed segment with a
// new unsure segment cut at the most extreme line of the opposite side
// found at least 3 strokes past its end, then folds in whatever is left
// with collectLeftAsSeg.
func (l *CSegListChan[T]) collectLeftSegPeakMethod(lines boundedSource[T], lastSegEndIdx int) error {
	last := lines.Get(lastSegEndIdx)
	order := ascending(lastSegEndIdx+3, lines.Len()-1)

	if last.IsDown() {
		if peak, ok := findPeakBi(lines, order, true); ok && peak.Index()-lastSegEndIdx >= 3 {
			dir := kline.Up
			if err := mustAddNewSeg(l, lines, peak.Index(), false, &dir, true, "collectleft_find_high"); err != nil {
				return err
			}
		}
	} else {
		if peak, ok := findPeakBi(lines, order, false); ok && peak.Index()-lastSegEndIdx >= 3 {
			dir := kline.Down
			if err := mustAddNewSeg(l, lines, peak.Index(), false, &dir, true, "collectleft_find_low"); err != nil {
				return err
			}
		}
	}
	return l.collectLeftAsSeg(lines)
}

// collectSegs handles the non-empty-arena case: if fewer than 3 lines
// lie past the last confirmed segment there is nothing new to collect
// yet; if the trailing run has broken back past the last segment's own
// extreme, that break seeds a fresh opposite-direction segment and the
// whole collection is retried; otherwise the configured LeftMethod
// decides how the leftover run becomes a trailing unsure segment.
func (l *CSegListChan[T]) collectSegs(lines boundedSource[T]) error {
	lastSeg := l.segs[len(l.segs)-1]
	lastBi := lines.Get(lines.Len() - 1)

	if lines.Len()-1-lastSeg.endIdx < 3 {
		return nil
	}

	switch {
	case lastSeg.IsDown() && lastBi.EndVal() <= lastSeg.EndVal():
		order := ascending(lastSeg.endIdx+3, lines.Len()-1)
		if peak, ok := findPeakBi(lines, order, true); ok {
			dir := kline.Up
			if err := mustAddNewSeg(l, lines, peak.Index(), false, &dir, true, "collectleft_find_high_force"); err != nil {
				return err
			}
			return l.collectLeftSeg(lines)
		}
	case lastSeg.IsUp() && lastBi.EndVal() >= lastSeg.EndVal():
		order := ascending(lastSeg.endIdx+3, lines.Len()-1)
		if peak, ok := findPeakBi(lines, order, false); ok {
			dir := kline.Down
			if err := mustAddNewSeg(l, lines, peak.Index(), false, &dir, true, "collectleft_find_low_force"); err != nil {
				return err
			}
			return l.collectLeftSeg(lines)
		}
	default:
		if l.cfg.LeftMethod == LeftAll {
			return l.collectLeftAsSeg(lines)
		}
		return l.collectLeftSegPeakMethod(lines, lastSeg.endIdx)
	}
	return nil
}

// collectLeftSeg is the entry point for folding whatever lines trail
// the last confirmed segment (or, if none exists yet, the whole run)
// into a new unsure segment.
func (l *CSegListChan[T]) collectLeftSeg(lines boundedSource[T]) error {
	if len(l.segs) == 0 {
		return l.collectFirstSeg(lines)
	}
	return l.collectSegs(lines)
}

// collectLeftAsSeg folds every line past the last confirmed segment
// into one new unsure segment, trimming its last line off when that
// line continues the same direction as the segment it follows (that
// line may still reverse before it is itself confirmed).
func (l *CSegListChan[T]) collectLeftAsSeg(lines boundedSource[T]) error {
	if len(l.segs) == 0 {
		return nil
	}
	lastSeg := l.segs[len(l.segs)-1]
	lastBi := lines.Get(lines.Len() - 1)
	if lastSeg.endIdx+1 >= lines.Len() {
		return nil
	}
	if lastSeg.dir == lastBi.Dir() {
		return mustAddNewSeg(l, lines, lines.Len()-2, false, nil, true, "collect_left_1")
	}
	return mustAddNewSeg(l, lines, lines.Len()-1, false, nil, true, "collect_left_0")
}

// mustAddNewSeg calls addNewSeg and discards its "accepted" bool: every
// collectLeftSeg-family caller treats a refused append (an empty-arena
// monotonicity violation) as nothing to do rather than an error.
func mustAddNewSeg[T lineiface.Line](l *CSegListChan[T], lines boundedSource[T], endBiIdx int, isSure bool, segDir *kline.KlineDir, splitFirstSeg bool, reason string) error {
	_, err := l.addNewSeg(lines, endBiIdx, isSure, segDir, splitFirstSeg, reason)
	return err
}

// addNewSeg attempts to append a new segment and reports whether it was
// accepted. A monotonicity violation on an otherwise-empty arena is not
// an error: the caller is expected to retry from further along instead.
func (l *CSegListChan[T]) addNewSeg(lines boundedSource[T], endBiIdx int, isSure bool, segDir *kline.KlineDir, splitFirstSeg bool, reason string) (bool, error) {
	err := l.tryAddNewSeg(lines, endBiIdx, isSure, segDir, splitFirstSeg, reason)
	if err != nil {
		if errors.Is(err, chanerr.ErrSegEndValue) && len(l.segs) == 0 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// tryAddNewSeg appends a single segment ending at endBiIdx, unless the
// arena is still empty and splitFirstSeg asks for the opening run to be
// split first: if a peak opposite endBiIdx's own direction is found
// earlier in the run and it clears the very first line's own extreme,
// that peak becomes a short leading segment and endBiIdx becomes the
// segment right after it instead of one long first segment.
func (l *CSegListChan[T]) tryAddNewSeg(lines boundedSource[T], endBiIdx int, isSure bool, segDir *kline.KlineDir, splitFirstSeg bool, reason string) error {
	if len(l.segs) == 0 && splitFirstSeg && endBiIdx >= 3 {
		order := descending(0, endBiIdx-3)
		isHigh := lines.Get(endBiIdx).IsDown()
		if peak, ok := findPeakBi(lines, order, isHigh); ok {
			first := lines.Get(0)
			qualifies := (peak.IsDown() && (peak.Low() < first.Low() || peak.Index() == 0)) ||
				(peak.IsUp() && (peak.High() > first.High() || peak.Index() == 0))
			if qualifies {
				dir := peak.Dir()
				if err := l.tryAddNewSeg(lines, peak.Index(), false, &dir, true, "split_first_1st"); err != nil {
					return err
				}
				return l.tryAddNewSeg(lines, endBiIdx, false, nil, true, "split_first_2nd")
			}
		}
	}

	bi1Idx := 0
	if len(l.segs) > 0 {
		bi1Idx = l.segs[len(l.segs)-1].endIdx + 1
	}

	newSeg, err := newCSeg(l, len(l.segs), bi1Idx, endBiIdx, isSure, segDir, reason)
	if err != nil {
		return err
	}
	l.segs = append(l.segs, newSeg)
	l.rev++
	for i := bi1Idx; i <= endBiIdx; i++ {
		lines.Get(i).SetParentSeg(newSeg.index, newSeg.dir)
	}
	return nil
}

// ExistSureSeg reports whether any segment in the arena is confirmed.
func (l *CSegListChan[T]) ExistSureSeg() bool {
	for _, s := range l.segs {
		if s.isSure {
			return true
		}
	}
	return false
}

// ascending returns [from, to] in increasing order, or nil if the range
// is empty.
func ascending(from, to int) []int {
	if to < from {
		return nil
	}
	order := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		order = append(order, i)
	}
	return order
}

// descending returns [from, to] in decreasing order, or nil if the
// range is empty.
func descending(from, to int) []int {
	if to < from {
		return nil
	}
	order := make([]int, 0, to-from+1)
	for i := to; i >= from; i-- {
		order = append(order, i)
	}
	return order
}

// findPeakBi scans indices in the given order for the most extreme
// up (resp. down) line by end value, skipping a candidate whose own
// two-lines-back predecessor was already further out: that predecessor
// would have been the real turning point.
func findPeakBi[T lineiface.Line](lines boundedSource[T], order []int, isHigh bool) (T, bool) {
	var peak T
	found := false
	peakVal := math.Inf(-1)
	if !isHigh {
		peakVal = math.Inf(1)
	}

	for _, idx := range order {
		if idx < 0 || idx >= lines.Len() {
			continue
		}
		line := lines.Get(idx)
		ok := false
		if isHigh {
			ok = line.EndVal() >= peakVal && line.IsUp()
		} else {
			ok = line.EndVal() <= peakVal && line.IsDown()
		}
		if !ok {
			continue
		}
		if idx >= 2 {
			prevPrev := lines.Get(idx - 2)
			if isHigh && prevPrev.EndVal() > line.EndVal() {
				continue
			}
			if !isHigh && prevPrev.EndVal() < line.EndVal() {
				continue
			}
		}
		peakVal = line.EndVal()
		peak = line
		found = true
	}
	return peak, found
}
