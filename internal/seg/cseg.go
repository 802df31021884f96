// Package seg implements segments: the second layer of structure built
// over strokes by detecting a reverting fractal in the feature sequence
// of same-direction lines. The same machinery recurses one level up to
// build segments of segments. See spec §4.D.
package seg

import (
	"math"
	"time"

	"chanalyzer/internal/chanerr"
	"chanalyzer/internal/eigen"
	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
)

// CSeg is a segment: a directed run of member lines between two
// reversal points. It implements lineiface.Line itself so a
// CSegListChan[*CSeg[T]] can build second-order segments over segments.
type CSeg[T lineiface.Line] struct {
	owner *CSegListChan[T]

	index    int
	startIdx int // src index of the first member line
	endIdx   int // src index of the last member line
	dir      kline.KlineDir
	isSure   bool

	// eigenFx is the feature-sequence tracker whose confirmed fractal
	// produced this segment's end, kept so a later do_init pass can tell
	// whether the line that shaped that fractal is still sure.
	eigenFx *eigen.CEigenFx[T]

	// reason tags which code path committed this segment.
	reason string

	// zsLst holds the indices of the pivots whose body falls inside this
	// segment, re-attached after every pivot recalculation. Once two
	// confirmed segments follow this one, eleInsideIsSure freezes the
	// attachment and later recalculations skip it.
	zsLst           []int
	eleInsideIsSure bool

	segIdx       *int
	parentSegIdx *int
	parentSegDir *kline.KlineDir
	bsp          *int
}

// newCSeg builds a segment spanning [startIdx, endIdx] of owner's line
// source. dirOverride, when non-nil, forces the segment's own direction
// rather than taking the end line's; a segment shorter than 3 member
// lines can never be sure, regardless of the isSure argument. A sure
// segment must still satisfy the start/end monotonicity invariant for
// its direction.
func newCSeg[T lineiface.Line](owner *CSegListChan[T], index, startIdx, endIdx int, isSure bool, dirOverride *kline.KlineDir, reason string) (*CSeg[T], error) {
	startLine := owner.src.Get(startIdx)
	endLine := owner.src.Get(endIdx)

	dir := endLine.Dir()
	if dirOverride != nil {
		dir = *dirOverride
	}
	if endIdx-startIdx < 2 {
		isSure = false
	}

	s := &CSeg[T]{owner: owner, index: index, startIdx: startIdx, endIdx: endIdx, dir: dir, isSure: isSure, reason: reason}
	if !isSure {
		return s, nil
	}
	if dir == kline.Down && startLine.BeginVal() < endLine.EndVal() {
		return nil, chanerr.ErrSegEndValue
	}
	if dir == kline.Up && startLine.BeginVal() > endLine.EndVal() {
		return nil, chanerr.ErrSegEndValue
	}
	return s, nil
}

func (s *CSeg[T]) Index() int { return s.index }

func (s *CSeg[T]) StartIdx() int { return s.startIdx }
func (s *CSeg[T]) EndIdx() int   { return s.endIdx }

func (s *CSeg[T]) beginLine() T { return s.owner.src.Get(s.startIdx) }
func (s *CSeg[T]) endLine() T   { return s.owner.src.Get(s.endIdx) }

func (s *CSeg[T]) Dir() kline.KlineDir { return s.dir }
func (s *CSeg[T]) IsUp() bool          { return s.dir == kline.Up }
func (s *CSeg[T]) IsDown() bool        { return s.dir == kline.Down }
func (s *CSeg[T]) IsSure() bool        { return s.isSure }

// EigenFx returns the feature-sequence tracker that confirmed this
// segment's end, if any.
func (s *CSeg[T]) EigenFx() *eigen.CEigenFx[T] { return s.eigenFx }

// Reason reports which code path committed this segment.
func (s *CSeg[T]) Reason() string { return s.reason }

// ZsLst returns the indices of the pivots attached to this segment, in
// ascending pivot order.
func (s *CSeg[T]) ZsLst() []int { return s.zsLst }

// AddZs prepends a pivot index: the attachment walk runs newest-first,
// so prepending keeps the list ascending.
func (s *CSeg[T]) AddZs(zsIdx int) { s.zsLst = append([]int{zsIdx}, s.zsLst...) }

// ClearZsLst drops every attached pivot ahead of a re-attachment pass.
func (s *CSeg[T]) ClearZsLst() { s.zsLst = s.zsLst[:0] }

// EleInsideIsSure reports whether this segment's interior is frozen.
func (s *CSeg[T]) EleInsideIsSure() bool     { return s.eleInsideIsSure }
func (s *CSeg[T]) SetEleInsideIsSure()       { s.eleInsideIsSure = true }

func (s *CSeg[T]) BeginVal() float64 { return s.beginLine().BeginVal() }
func (s *CSeg[T]) EndVal() float64   { return s.endLine().EndVal() }

func (s *CSeg[T]) BeginTime() time.Time { return s.beginLine().BeginTime() }
func (s *CSeg[T]) EndTime() time.Time   { return s.endLine().EndTime() }

func (s *CSeg[T]) BeginKluIdx() int { return s.beginLine().BeginKluIdx() }
func (s *CSeg[T]) EndKluIdx() int   { return s.endLine().EndKluIdx() }

func (s *CSeg[T]) High() float64 {
	if s.IsUp() {
		return s.EndVal()
	}
	return s.BeginVal()
}

func (s *CSeg[T]) Low() float64 {
	if s.IsUp() {
		return s.BeginVal()
	}
	return s.EndVal()
}

func (s *CSeg[T]) Amp() float64 { return math.Abs(s.EndVal() - s.BeginVal()) }

// Lines returns this segment's member lines, first to last.
func (s *CSeg[T]) Lines() []T {
	out := make([]T, 0, s.endIdx-s.startIdx+1)
	for i := s.startIdx; i <= s.endIdx; i++ {
		out = append(out, s.owner.src.Get(i))
	}
	return out
}

// MacdMetric aggregates the member lines' own metric. Area/FullArea sum
// across members; Peak takes the largest; Diff/Slope/Amp fall back to
// the segment's own endpoint values, matching cbi.rs's cal_macd_*
// family applied one layer up.
func (s *CSeg[T]) MacdMetric(algo lineiface.MacdAlgo, reverse bool) (float64, error) {
	switch algo {
	case lineiface.MacdArea, lineiface.MacdFullArea:
		var sum float64
		for _, line := range s.Lines() {
			v, err := line.MacdMetric(algo, reverse)
			if err != nil {
				return 0, err
			}
			sum += v
		}
		return sum, nil
	case lineiface.MacdPeak:
		var peak float64
		for _, line := range s.Lines() {
			v, err := line.MacdMetric(algo, reverse)
			if err != nil {
				return 0, err
			}
			if v > peak {
				peak = v
			}
		}
		return peak, nil
	case lineiface.MacdDiff:
		return math.Abs(s.EndVal() - s.BeginVal()), nil
	case lineiface.MacdSlope:
		n := len(s.Lines())
		if n < 2 {
			return 0, nil
		}
		return s.Amp() / float64(n-1), nil
	case lineiface.MacdAmp:
		return s.Amp(), nil
	default:
		return 0, chanerr.ErrPara
	}
}

func (s *CSeg[T]) SegIdx() (int, bool) {
	if s.segIdx == nil {
		return 0, false
	}
	return *s.segIdx, true
}
func (s *CSeg[T]) SetSegIdx(idx int) { v := idx; s.segIdx = &v }

func (s *CSeg[T]) ParentSegIdx() (int, bool) {
	if s.parentSegIdx == nil {
		return 0, false
	}
	return *s.parentSegIdx, true
}

func (s *CSeg[T]) ParentSegDir() (kline.KlineDir, bool) {
	if s.parentSegDir == nil {
		return 0, false
	}
	return *s.parentSegDir, true
}

func (s *CSeg[T]) SetParentSeg(idx int, dir kline.KlineDir) {
	i := idx
	s.parentSegIdx = &i
	d := dir
	s.parentSegDir = &d
}

func (s *CSeg[T]) ClearParentSeg() {
	s.parentSegIdx = nil
	s.parentSegDir = nil
}

func (s *CSeg[T]) Bsp() (int, bool) {
	if s.bsp == nil {
		return 0, false
	}
	return *s.bsp, true
}
func (s *CSeg[T]) SetBsp(idx int) { v := idx; s.bsp = &v }

var _ lineiface.Line = (*CSeg[lineiface.Line])(nil)
