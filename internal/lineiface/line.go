// Package lineiface defines the capability set shared by strokes (CBi)
// and segments (CSeg), so that CSegListChan, CZsList, CBSPointList and
// CEigenFx can operate generically over either "line" type without
// runtime dispatch (spec §9: "Dynamic dispatch over line-like").
package lineiface

import (
	"time"

	"chanalyzer/internal/kline"
)

// MacdAlgo selects the momentum-divergence metric used by the buy/sell
// point layer and by pivot divergence tests.
type MacdAlgo int

const (
	MacdArea MacdAlgo = iota
	MacdPeak
	MacdFullArea
	MacdDiff
	MacdSlope
	MacdAmp
)

// Line is the capability set a "line" (stroke or segment) must expose to
// the layers built on top of it.
type Line interface {
	Index() int

	BeginVal() float64
	EndVal() float64
	BeginTime() time.Time
	EndTime() time.Time

	// BeginKluIdx/EndKluIdx are the indices of the raw bars anchoring the
	// line's endpoints (the peak bar inside each endpoint candle).
	BeginKluIdx() int
	EndKluIdx() int

	Dir() kline.KlineDir
	IsUp() bool
	IsDown() bool

	High() float64
	Low() float64
	Amp() float64

	IsSure() bool

	// MacdMetric computes the divergence metric over this line's bar
	// range. reverse selects the "outgoing" orientation used when this
	// line plays the role of an exiting stroke in a divergence test.
	MacdMetric(algo MacdAlgo, reverse bool) (float64, error)

	// SegIdx reports the segment this line belongs to, if assigned.
	SegIdx() (int, bool)
	SetSegIdx(idx int)

	// ParentSegIdx/ParentSegDir are set while this line is a live member
	// of a still-open segment and cleared when that segment is purged.
	ParentSegIdx() (int, bool)
	ParentSegDir() (kline.KlineDir, bool)
	SetParentSeg(idx int, dir kline.KlineDir)
	ClearParentSeg()

	// Bsp reports the buy/sell point anchored at this line's end, if any.
	Bsp() (int, bool)
	SetBsp(idx int)
}
