package kline

// KlineDir is the direction of a merged candle, or the transient outcome
// of testing a bar against the current candle for containment.
type KlineDir int

const (
	Up KlineDir = iota
	Down
	Combine
	// Included marks an incoming line that contains the feature-sequence
	// element, under exclude-included containment: unlike
	// candle merging, this does not auto-merge (spec §4.C).
	Included
)

func (d KlineDir) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Combine:
		return "combine"
	case Included:
		return "included"
	default:
		return "unknown"
	}
}

// Flip returns the opposite direction; only meaningful for Up/Down.
func (d KlineDir) Flip() KlineDir {
	if d == Up {
		return Down
	}
	return Up
}

// FxType is the fractal label carried by a merged candle.
type FxType int

const (
	FxUnknown FxType = iota
	FxTop
	FxBottom
)

func (f FxType) String() string {
	switch f {
	case FxTop:
		return "top"
	case FxBottom:
		return "bottom"
	default:
		return "unknown"
	}
}

// FxCheckMethod selects the strictness of check_fx_valid's neighbor
// comparison. See spec §4.A.
type FxCheckMethod int

const (
	FxCheckStrict FxCheckMethod = iota
	FxCheckLoss
	FxCheckHalf
	FxCheckTotally
)
