package kline

// CheckFxValid decides whether two oppositely-labeled fractal candles may
// legitimately delimit a stroke, per the configured strictness method.
// lhs must carry the earlier fractal, rhs the later one with lhs.Index <
// rhs.Index. forVirtual relaxes the requirement that rhs already carry a
// confirmed opposite fractal (used while hypothesizing a virtual stroke
// end). See spec §4.A.
func (l *CandleList) CheckFxValid(lhsIdx, rhsIdx int, method FxCheckMethod, forVirtual bool) bool {
	lhs := l.candles[lhsIdx]
	rhs := l.candles[rhsIdx]

	switch lhs.Fx {
	case FxTop:
		if !forVirtual && rhs.Fx != FxBottom {
			return false
		}
		if forVirtual && rhs.Dir != Down {
			return false
		}
		item2High, selfLow := l.topNeighborExtremes(lhsIdx, rhsIdx, method, forVirtual)
		if method == FxCheckTotally {
			return lhs.Low > item2High
		}
		return lhs.High > item2High && rhs.Low < selfLow

	case FxBottom:
		if !forVirtual && rhs.Fx != FxTop {
			return false
		}
		if forVirtual && rhs.Dir != Up {
			return false
		}
		item2Low, curHigh := l.bottomNeighborExtremes(lhsIdx, rhsIdx, method, forVirtual)
		if method == FxCheckTotally {
			return lhs.High < item2Low
		}
		return lhs.Low < item2Low && rhs.High > curHigh

	default:
		return false
	}
}

func (l *CandleList) topNeighborExtremes(lhsIdx, rhsIdx int, method FxCheckMethod, forVirtual bool) (item2High, selfLow float64) {
	lhs, rhs := l.candles[lhsIdx], l.candles[rhsIdx]
	switch method {
	case FxCheckHalf:
		return max2(l.candles[rhsIdx-1].High, rhs.High), min2(lhs.Low, l.candles[lhsIdx+1].Low)
	case FxCheckLoss:
		return rhs.High, lhs.Low
	default: // Strict, Totally
		if forVirtual {
			return max2(l.candles[rhsIdx-1].High, rhs.High),
				min3(l.candles[lhsIdx-1].Low, lhs.Low, l.candles[lhsIdx+1].Low)
		}
		return max3(l.candles[rhsIdx-1].High, rhs.High, l.candles[rhsIdx+1].High),
			min3(l.candles[lhsIdx-1].Low, lhs.Low, l.candles[lhsIdx+1].Low)
	}
}

func (l *CandleList) bottomNeighborExtremes(lhsIdx, rhsIdx int, method FxCheckMethod, forVirtual bool) (item2Low, curHigh float64) {
	lhs, rhs := l.candles[lhsIdx], l.candles[rhsIdx]
	switch method {
	case FxCheckHalf:
		return min2(l.candles[rhsIdx-1].Low, rhs.Low), max2(lhs.High, l.candles[lhsIdx+1].High)
	case FxCheckLoss:
		return rhs.Low, lhs.High
	default: // Strict, Totally
		if forVirtual {
			return min2(l.candles[rhsIdx-1].Low, rhs.Low),
				max3(l.candles[lhsIdx-1].High, lhs.High, l.candles[lhsIdx+1].High)
		}
		return min3(l.candles[rhsIdx-1].Low, rhs.Low, l.candles[rhsIdx+1].Low),
			max3(l.candles[lhsIdx-1].High, lhs.High, l.candles[lhsIdx+1].High)
	}
}

func max3(a, b, c float64) float64 { return max2(max2(a, b), c) }
func min3(a, b, c float64) float64 { return min2(min2(a, b), c) }
