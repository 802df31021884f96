package eigen

import (
	"fmt"

	"chanalyzer/internal/chanerr"
	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
)

// EqualMode relaxes the strict-inequality side of the feature-sequence
// containment test, letting a line that exactly matches one of the
// element's extremes win a direction instead of falling through to
// Included/Combine. It is derived per incoming line from that line's
// own direction (see treatThirdEle), never configured statically.
type EqualMode int

const (
	EqualModeNone EqualMode = iota
	EqualModeTopEqual
	EqualModeBottomEqual
)

// EndVerdict is the tri-state result of CanBeEnd: a gapped fractal may
// be confirmed, refuted, or left undetermined pending more lines.
type EndVerdict int

const (
	EndUnknown EndVerdict = iota
	EndTrue
	EndFalse
)

// LineSource gives a feature-sequence tracker random access to the full
// line arena it is drawing a run from, used by CanBeEnd and
// actualBreak's fallback to gather reversal evidence past the third
// feature element. A nil source disables that extra evidence gathering
// without otherwise affecting the state machine.
type LineSource[T lineiface.Line] interface {
	Len() int
	Get(i int) T
}

// CEigenFx is the 3-slot feature-sequence state machine: it absorbs a
// run of lines running opposite to a hypothesized segment direction
// into up to three feature elements and watches the middle one for a
// fractal matching that hypothesis (top for an up segment, bottom for a
// down one). See spec §4.C.
type CEigenFx[T lineiface.Line] struct {
	dir             kline.KlineDir // the segment direction being hypothesized
	excludeIncluded bool
	src             LineSource[T]

	ele [3]*CEigen[T]
	lst []T

	lastEvidence    T
	hasLastEvidence bool
}

// NewCEigenFx returns a feature-sequence tracker hypothesizing a
// segment in direction dir. src, if non-nil, is consulted for the extra
// reversal evidence actualBreak and CanBeEnd gather past the third
// feature element; pass nil to track without that evidence (e.g. in
// isolated tests).
func NewCEigenFx[T lineiface.Line](dir kline.KlineDir, excludeIncluded bool, src LineSource[T]) *CEigenFx[T] {
	return &CEigenFx[T]{dir: dir, excludeIncluded: excludeIncluded, src: src}
}

func (fx *CEigenFx[T]) Dir() kline.KlineDir { return fx.dir }
func (fx *CEigenFx[T]) IsUp() bool          { return fx.dir == kline.Up }
func (fx *CEigenFx[T]) IsDown() bool        { return fx.dir == kline.Down }

// AddLine folds a newly confirmed line into the feature sequence. line
// must run opposite to the hypothesized segment direction. Returns true
// iff this call completed a fractal matching the hypothesis.
func (fx *CEigenFx[T]) AddLine(line T) (bool, error) {
	fx.lst = append(fx.lst, line)
	switch {
	case fx.ele[0] == nil:
		return fx.treatFirstEle(line), nil
	case fx.ele[1] == nil:
		return fx.treatSecondEle(line)
	case fx.ele[2] == nil:
		return fx.treatThirdEle(line)
	default:
		return false, fmt.Errorf("feature sequence already has 3 elements: %w", chanerr.ErrEigenFxFull)
	}
}

func (fx *CEigenFx[T]) treatFirstEle(line T) bool {
	fx.ele[0] = newCEigen[T](line, fx.dir)
	return false
}

func (fx *CEigenFx[T]) treatSecondEle(line T) (bool, error) {
	dir, err := fx.ele[0].TryAdd(line, fx.excludeIncluded, EqualModeNone)
	if err != nil {
		return false, err
	}
	if dir == kline.Combine {
		return false, nil
	}

	fx.ele[1] = newCEigen[T](line, fx.dir)
	if (fx.IsUp() && fx.ele[1].High < fx.ele[0].High) || (fx.IsDown() && fx.ele[1].Low > fx.ele[0].Low) {
		return fx.reset()
	}
	return false, nil
}

func (fx *CEigenFx[T]) treatThirdEle(line T) (bool, error) {
	fx.lastEvidence, fx.hasLastEvidence = line, true

	allowTopEqual := EqualModeNone
	if fx.excludeIncluded {
		if line.IsDown() {
			allowTopEqual = EqualModeTopEqual
		} else {
			allowTopEqual = EqualModeBottomEqual
		}
	}

	dir, err := fx.ele[1].TryAdd(line, false, allowTopEqual)
	if err != nil {
		return false, err
	}
	if dir == kline.Combine {
		return false, nil
	}

	fx.ele[2] = newCEigen[T](line, dir)

	brk, err := fx.actualBreak()
	if err != nil {
		return false, err
	}
	if !brk {
		return fx.reset()
	}

	fx.updateFx(allowTopEqual)

	fxType := fx.ele[1].FxType
	isFx := (fx.IsUp() && fxType == kline.FxTop) || (fx.IsDown() && fxType == kline.FxBottom)
	if isFx {
		return true, nil
	}
	return fx.reset()
}

// checkFx re-derives the middle element's fractal type from the three
// elements' extents. excludeInclude relaxes the formula asymmetrically
// (only the breaking side needs to strictly exceed); the plain formula
// requires both sides to strictly exceed on both neighbors.
func (fx *CEigenFx[T]) checkFx(excludeInclude bool, allowTopEqual EqualMode) kline.FxType {
	k1, k2, k3 := fx.ele[0], fx.ele[1], fx.ele[2]
	if excludeInclude {
		if k1.High < k2.High && k3.High <= k2.High && k3.Low < k2.Low {
			if allowTopEqual == EqualModeTopEqual || k3.High < k2.High {
				return kline.FxTop
			}
		} else if k1.Low > k2.Low && k3.Low >= k2.Low && k3.High > k2.High &&
			(allowTopEqual == EqualModeBottomEqual || k3.Low > k2.Low) {
			return kline.FxBottom
		}
		return kline.FxUnknown
	}
	if k1.High < k2.High && k3.High < k2.High && k1.Low < k2.Low && k3.Low < k2.Low {
		return kline.FxTop
	}
	if k1.High > k2.High && k3.High > k2.High && k1.Low > k2.Low && k3.Low > k2.Low {
		return kline.FxBottom
	}
	return kline.FxUnknown
}

func (fx *CEigenFx[T]) checkGap() bool {
	k1, k2 := fx.ele[0], fx.ele[1]
	return (k2.FxType == kline.FxTop && k1.High < k2.Low) || (k2.FxType == kline.FxBottom && k1.Low > k2.High)
}

func (fx *CEigenFx[T]) updateFx(allowTopEqual EqualMode) {
	fx.ele[1].FxType = fx.checkFx(fx.excludeIncluded, allowTopEqual)
	fx.ele[1].Gap = fx.checkGap()
}

// actualBreak reports whether the third element truly broke past the
// second's extreme, rather than merely sitting inside a containment
// relationship the exclude-included rule papered over. When the third
// element is a single still-forming line that didn't itself break,
// the next two lines in src are consulted as corroborating evidence.
func (fx *CEigenFx[T]) actualBreak() (bool, error) {
	if !fx.excludeIncluded {
		return true, nil
	}

	e1Last := fx.ele[1].lst[len(fx.ele[1].lst)-1]
	if (fx.IsUp() && fx.ele[2].Low < e1Last.Low()) || (fx.IsDown() && fx.ele[2].High > e1Last.High()) {
		return true, nil
	}

	if fx.src == nil || len(fx.ele[2].lst) != 1 {
		return false, nil
	}
	e2Line := fx.ele[2].lst[0]
	nextNextIdx := e2Line.Index() + 2
	if nextNextIdx >= fx.src.Len() {
		return false, nil
	}
	nextNext := fx.src.Get(nextNextIdx)
	if e2Line.IsDown() && nextNext.Low() < e2Line.Low() {
		fx.lastEvidence, fx.hasLastEvidence = nextNext, true
		return true, nil
	}
	if e2Line.IsUp() && nextNext.High() > e2Line.High() {
		fx.lastEvidence, fx.hasLastEvidence = nextNext, true
		return true, nil
	}
	return false, nil
}

// reset recovers from a failed third-element test by replaying every
// line after the very first one fed so far. Under exclude_included it
// restarts the whole tracker and re-feeds that tail through AddLine,
// possibly confirming a fractal immediately. Otherwise it merely slides
// the window: element 1 becomes element 0, element 2 becomes element 1,
// and the accumulated line list is trimmed to element 1's own start.
func (fx *CEigenFx[T]) reset() (bool, error) {
	tail := append([]T(nil), fx.lst[1:]...)

	if fx.excludeIncluded {
		fx.clear()
		for _, line := range tail {
			ok, err := fx.AddLine(line)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	ele2BeginIdx := fx.ele[1].lst[0].Index()
	fx.ele[0] = fx.ele[1]
	fx.ele[1] = fx.ele[2]
	fx.ele[2] = nil

	var filtered []T
	for _, line := range tail {
		if line.Index() >= ele2BeginIdx {
			filtered = append(filtered, line)
		}
	}
	fx.lst = filtered
	return false, nil
}

func (fx *CEigenFx[T]) clear() {
	fx.ele = [3]*CEigen[T]{}
	fx.lst = nil
}

// Reset discards all accumulated state, preserving configuration, so
// the tracker can be reused from scratch for the next run.
func (fx *CEigenFx[T]) Reset() {
	fx.clear()
	fx.hasLastEvidence = false
}

// Found reports the detected fractal type, if the middle element has
// been labeled by a completed third-element test.
func (fx *CEigenFx[T]) Found() (kline.FxType, bool) {
	if fx.ele[1] == nil || fx.ele[1].FxType == kline.FxUnknown {
		return kline.FxUnknown, false
	}
	return fx.ele[1].FxType, true
}

// First returns the first feature element, if any.
func (fx *CEigenFx[T]) First() *CEigen[T] {
	return fx.ele[0]
}

// Third returns the third feature element, if any. do_init-style
// re-validation of a stored tracker consults this to see whether the
// line that shaped the confirming break is still sure.
func (fx *CEigenFx[T]) Third() *CEigen[T] {
	return fx.ele[2]
}

// Middle returns the second feature element, the one a confirmed
// fractal is labeled on.
func (fx *CEigenFx[T]) Middle() *CEigen[T] {
	if fx.ele[1] == nil {
		return nil
	}
	return fx.ele[1]
}

// PeakBiIndex returns the index, one before the middle element's peak
// line, that a confirming segment should end at.
func (fx *CEigenFx[T]) PeakBiIndex() int {
	return fx.ele[1].peakBiIndex()
}

// CanBeEnd decides whether the confirmed fractal may legitimately end
// the segment being tracked. An ungapped fractal always qualifies; a
// gapped one needs forward evidence of an opposing fractal before the
// price revisits the gap's threshold, gathered via src.
func (fx *CEigenFx[T]) CanBeEnd() (EndVerdict, error) {
	if fx.ele[1] == nil {
		return EndFalse, nil
	}
	if !fx.ele[1].Gap {
		return EndTrue, nil
	}
	if fx.src == nil {
		return EndTrue, nil
	}

	endBiIdx := fx.PeakBiIndex()
	if endBiIdx < 0 || endBiIdx >= fx.src.Len() {
		return EndTrue, nil
	}
	thredValue := fx.src.Get(endBiIdx).EndVal()
	return fx.findRevertFx(endBiIdx + 2, thredValue)
}

func (fx *CEigenFx[T]) findRevertFx(beginIdx int, thredValue float64) (EndVerdict, error) {
	if beginIdx >= fx.src.Len() {
		return EndUnknown, nil
	}
	firstDir := fx.src.Get(beginIdx).Dir()
	revertFx := NewCEigenFx[T](firstDir.Flip(), false, fx.src)

	for i := beginIdx; i < fx.src.Len(); i += 2 {
		line := fx.src.Get(i)
		ok, err := revertFx.AddLine(line)
		if err != nil {
			return EndUnknown, err
		}
		if ok {
			return EndTrue, nil
		}
		if (line.IsDown() && line.Low() < thredValue) || (line.IsUp() && line.High() > thredValue) {
			return EndFalse, nil
		}
	}
	return EndUnknown, nil
}

// AllLinesSure reports whether every line absorbed into this tracker,
// plus whatever line last supplied actualBreak evidence, is confirmed
// rather than still virtual.
func (fx *CEigenFx[T]) AllLinesSure() bool {
	for _, l := range fx.lst {
		if !l.IsSure() {
			return false
		}
	}
	return fx.hasLastEvidence && fx.lastEvidence.IsSure()
}

// Lst returns every line fed to this tracker since its last reset, in
// arrival order.
func (fx *CEigenFx[T]) Lst() []T { return fx.lst }
