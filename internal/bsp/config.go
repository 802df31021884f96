package bsp

import (
	"math"

	"chanalyzer/internal/lineiface"
)

// PointConfig holds the buy/sell-point knobs for one side (buy or sell)
// of one layer. See spec §6 for each field's effect.
type PointConfig struct {
	// DivergenceRate is the momentum-ratio threshold for the type-1
	// divergence test; above 100 every break passes.
	DivergenceRate float64
	// MinZsCnt is the minimum number of pivots a segment must carry
	// before its end can be a type-1 point. 0 disables the requirement.
	MinZsCnt int
	// Bsp1OnlyMultibiZs counts only multi-line pivots toward MinZsCnt.
	Bsp1OnlyMultibiZs bool
	// MaxBs2Rate caps the pullback of a type-2 point relative to the
	// break line's amplitude.
	MaxBs2Rate float64
	// MacdAlgo selects the divergence metric.
	MacdAlgo lineiface.MacdAlgo
	// Bs1Peak requires the type-1 line to break the pivot's peak band.
	Bs1Peak bool
	// TargetTypes lists the point kinds exposed in the active list;
	// non-target T1/T1P points are still recorded in history as anchors.
	TargetTypes []Type
	// Bsp2Follow1 requires a type-2's anchoring type-1 to have qualified.
	Bsp2Follow1 bool
	// Bsp3Follow1 requires a type-3's anchoring type-1 to have qualified.
	Bsp3Follow1 bool
	// Bsp3Peak requires a 3A line to break the pivot's peak band.
	Bsp3Peak bool
	// Bsp2sFollow2 stops the 2S chain when the type-2 itself failed.
	Bsp2sFollow2 bool
	// MaxBsp2sLv caps the depth of the 2S chain; negative is unlimited.
	MaxBsp2sLv int
	// StrictBsp3 requires the anchoring type-1's line to exactly precede
	// (3A) or exit (3B) the compared pivot.
	StrictBsp3 bool
}

// HasTarget reports whether t is among the point kinds exposed in the
// active list.
func (c PointConfig) HasTarget(t Type) bool {
	for _, x := range c.TargetTypes {
		if x == t {
			return true
		}
	}
	return false
}

// Config pairs the buy-side and sell-side point configurations of one
// layer.
type Config struct {
	BConf PointConfig
	SConf PointConfig
}

// Get returns the side configuration for the given point direction.
func (c Config) Get(isBuy bool) PointConfig {
	if isBuy {
		return c.BConf
	}
	return c.SConf
}

func allTypes() []Type {
	return []Type{T1, T2, T3A, T1P, T2S, T3B}
}

func defaultPointConfig() PointConfig {
	return PointConfig{
		DivergenceRate:    math.Inf(1),
		MinZsCnt:          1,
		Bsp1OnlyMultibiZs: true,
		MaxBs2Rate:        0.9999,
		MacdAlgo:          lineiface.MacdPeak,
		Bs1Peak:           false,
		TargetTypes:       allTypes(),
		Bsp2Follow1:       false,
		Bsp3Follow1:       false,
		Bsp3Peak:          false,
		Bsp2sFollow2:      false,
		MaxBsp2sLv:        -1,
		StrictBsp3:        false,
	}
}

// Default returns the stroke-layer defaults: peak-metric divergence,
// multi-line pivots only.
func Default() Config {
	return Config{BConf: defaultPointConfig(), SConf: defaultPointConfig()}
}

// DefaultSeg returns the segment-layer defaults, which swap the
// divergence metric to slope and count every pivot.
func DefaultSeg() Config {
	b := defaultPointConfig()
	b.MacdAlgo = lineiface.MacdSlope
	b.Bsp1OnlyMultibiZs = false
	s := b
	return Config{BConf: b, SConf: s}
}
