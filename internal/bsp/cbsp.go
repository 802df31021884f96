// Package bsp implements buy/sell points: typed extremal points derived
// from segments, pivots and momentum divergence. See spec §4.F.
package bsp

// Type enumerates the six buy/sell point kinds a single line end may
// carry (a line can accumulate more than one).
type Type int

const (
	T1 Type = iota
	T1P
	T2
	T2S
	T3A
	T3B
)

func (t Type) String() string {
	switch t {
	case T1:
		return "T1"
	case T1P:
		return "T1P"
	case T2:
		return "T2"
	case T2S:
		return "T2S"
	case T3A:
		return "T3A"
	case T3B:
		return "T3B"
	default:
		return "unknown"
	}
}

// CBspPoint is one buy/sell point: a line end carrying one or more
// qualifying Types, an optional reference to the type-1 point it is
// attached to, and a diagnostic feature map (SPEC_FULL.md §4.I)
// recording the metric values that qualified it.
type CBspPoint struct {
	index    int
	biIdx    int
	kluIdx   int
	isBuy    bool
	isSegbsp bool
	types    []Type
	// relateBsp1 is the history index of the anchoring type-1 point.
	relateBsp1 *int
	features   map[string]float64
}

// Index returns this point's stable position in the history arena.
func (p *CBspPoint) Index() int { return p.index }

// BiIdx returns the index of the line whose end is the point.
func (p *CBspPoint) BiIdx() int { return p.biIdx }

// KluIdx returns the index of the bar anchoring the point.
func (p *CBspPoint) KluIdx() int { return p.kluIdx }

func (p *CBspPoint) IsBuy() bool    { return p.isBuy }
func (p *CBspPoint) IsSegBsp() bool { return p.isSegbsp }
func (p *CBspPoint) Types() []Type  { return p.types }

// RelateBsp1 reports the history index of the anchoring type-1 point,
// if any.
func (p *CBspPoint) RelateBsp1() (int, bool) {
	if p.relateBsp1 == nil {
		return 0, false
	}
	return *p.relateBsp1, true
}

func (p *CBspPoint) HasType(t Type) bool {
	for _, x := range p.types {
		if x == t {
			return true
		}
	}
	return false
}

func (p *CBspPoint) Feature(name string) (float64, bool) {
	v, ok := p.features[name]
	return v, ok
}

func (p *CBspPoint) Features() map[string]float64 { return p.features }

// addAnotherBspProp tags an existing point with an additional kind. The
// first attached type-1 reference wins; later tags keep it.
func (p *CBspPoint) addAnotherBspProp(t Type, relateBsp1 *int) {
	p.types = append(p.types, t)
	if p.relateBsp1 == nil {
		p.relateBsp1 = relateBsp1
	}
}
