// Package eigen implements the feature-sequence layer used to detect
// segment-ending fractals from a run of same-direction lines (strokes
// or, recursively, segments). See spec §4.C.
package eigen

import (
	"fmt"

	"chanalyzer/internal/chanerr"
	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
)

// CEigen is one feature element: a run of lines merged under the
// feature-sequence containment rule (see TryAdd), carrying the fractal
// label and gap flag once it plays the middle slot of a CEigenFx
// triple.
type CEigen[T lineiface.Line] struct {
	Dir    kline.KlineDir
	High   float64
	Low    float64
	FxType kline.FxType
	Gap    bool
	lst    []T
}

// newCEigen starts a feature element from first. dir is the direction
// of the segment hypothesis this feature sequence belongs to, which
// drives TryAdd's merge-extremum update - not first.Dir(), since a
// feature element is built from lines running opposite to that
// hypothesis (spec §4.C).
func newCEigen[T lineiface.Line](first T, dir kline.KlineDir) *CEigen[T] {
	return &CEigen[T]{Dir: dir, High: first.High(), Low: first.Low(), lst: []T{first}}
}

// Lines returns the member lines this feature element absorbed, in
// arrival order.
func (e *CEigen[T]) Lines() []T { return e.lst }

// peakBiIndex returns the index one before this element's extreme line
// on the side opposite the member lines' own direction: for a run of Up
// lines, one before the low peak; for a run of Down lines, one before
// the high peak.
func (e *CEigen[T]) peakBiIndex() int {
	if e.lst[0].IsUp() {
		return e.lowPeakLine().Index() - 1
	}
	return e.highPeakLine().Index() - 1
}

func (e *CEigen[T]) highPeakLine() T {
	for i := len(e.lst) - 1; i >= 0; i-- {
		if e.lst[i].High() == e.High {
			return e.lst[i]
		}
	}
	return e.lst[len(e.lst)-1]
}

func (e *CEigen[T]) lowPeakLine() T {
	for i := len(e.lst) - 1; i >= 0; i-- {
		if e.lst[i].Low() == e.Low {
			return e.lst[i]
		}
	}
	return e.lst[len(e.lst)-1]
}

// TryAdd tests line against the element's extent and, on Combine, folds
// it in. Containment in a feature sequence is not symmetric the way
// candle containment is: a line fully inside the element always
// merges, but a line that instead contains the element only merges
// when excludeIncluded is false - otherwise it is reported Included and
// left for the caller to start a new element. allowTopEqual relaxes
// that second branch when one side matches exactly, letting the
// relaxed side win a direction outright instead of falling through to
// Included/Combine.
func (e *CEigen[T]) TryAdd(line T, excludeIncluded bool, allowTopEqual EqualMode) (kline.KlineDir, error) {
	dir, err := e.testCombine(line, excludeIncluded, allowTopEqual)
	if err != nil {
		return 0, err
	}
	if dir != kline.Combine {
		return dir, nil
	}

	e.lst = append(e.lst, line)
	h, lo := line.High(), line.Low()
	switch e.Dir {
	case kline.Up:
		if h != lo || h != e.High {
			e.High = max2(e.High, h)
			e.Low = max2(e.Low, lo)
		}
	case kline.Down:
		if h != lo || lo != e.Low {
			e.High = min2(e.High, h)
			e.Low = min2(e.Low, lo)
		}
	}
	return dir, nil
}

func (e *CEigen[T]) testCombine(line T, excludeIncluded bool, allowTopEqual EqualMode) (kline.KlineDir, error) {
	h, lo := line.High(), line.Low()

	if e.High >= h && e.Low <= lo {
		return kline.Combine, nil
	}
	if e.High <= h && e.Low >= lo {
		if allowTopEqual == EqualModeTopEqual && e.High == h && e.Low > lo {
			return kline.Down, nil
		}
		if allowTopEqual == EqualModeBottomEqual && e.Low == lo && e.High < h {
			return kline.Up, nil
		}
		if excludeIncluded {
			return kline.Included, nil
		}
		return kline.Combine, nil
	}
	if e.High > h && e.Low > lo {
		return kline.Down, nil
	}
	if e.High < h && e.Low < lo {
		return kline.Up, nil
	}
	return 0, fmt.Errorf("line %d against feature element: %w", line.Index(), chanerr.ErrCombiner)
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
