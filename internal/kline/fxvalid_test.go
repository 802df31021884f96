package kline

import "testing"

// synthCandles builds a CandleList with candles set directly (bypassing
// UpdateCandle) so CheckFxValid can be exercised against a known fractal
// shape without needing a full bar-merge sequence.
func synthCandles(cs ...Candle) *CandleList {
	for i := range cs {
		cs[i].Index = i
	}
	return &CandleList{bars: NewBarList(), candles: cs}
}

func TestCheckFxValidLossMethodTop(t *testing.T) {
	// lhsIdx=1 is a top fractal, rhsIdx=3 is a bottom fractal, strictly
	// lower than lhs and with rhs's high above lhs's neighbor low.
	l := synthCandles(
		Candle{High: 10, Low: 8, Dir: Up, Fx: FxUnknown},
		Candle{High: 15, Low: 11, Dir: Up, Fx: FxTop},
		Candle{High: 12, Low: 9, Dir: Down, Fx: FxUnknown},
		Candle{High: 9, Low: 5, Dir: Down, Fx: FxBottom},
	)
	if !l.CheckFxValid(1, 3, FxCheckLoss, false) {
		t.Fatalf("expected valid top->bottom fractal pair under FxCheckLoss")
	}
}

func TestCheckFxValidRequiresOppositeFractal(t *testing.T) {
	l := synthCandles(
		Candle{High: 10, Low: 8, Dir: Up, Fx: FxUnknown},
		Candle{High: 15, Low: 11, Dir: Up, Fx: FxTop},
		Candle{High: 12, Low: 9, Dir: Down, Fx: FxUnknown},
		Candle{High: 14, Low: 10, Dir: Down, Fx: FxTop},
	)
	if l.CheckFxValid(1, 3, FxCheckLoss, false) {
		t.Fatalf("expected invalid pair: rhs is not a bottom fractal")
	}
}

func TestCheckFxValidVirtualRelaxesFxRequirement(t *testing.T) {
	l := synthCandles(
		Candle{High: 10, Low: 8, Dir: Up, Fx: FxUnknown},
		Candle{High: 15, Low: 11, Dir: Up, Fx: FxTop},
		Candle{High: 12, Low: 9, Dir: Down, Fx: FxUnknown},
		Candle{High: 9, Low: 5, Dir: Down, Fx: FxUnknown},
	)
	if !l.CheckFxValid(1, 3, FxCheckLoss, true) {
		t.Fatalf("expected virtual check to accept an unconfirmed opposite-direction candle")
	}
}
