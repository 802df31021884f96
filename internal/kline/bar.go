// Package kline implements the lowest two layers of the structural
// analyzer: raw Bars and the inclusion-merged Candle sequence built from
// them, including fractal labeling and fractal-validity checks.
package kline

import (
	"fmt"
	"time"

	"chanalyzer/internal/chanerr"
)

// Bar is one raw OHLC record, appended once and never relocated.
type Bar struct {
	Index int
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
	// Macd is a precomputed momentum metric supplied by an injected
	// collaborator (see spec §1); the analyzer never computes it itself.
	Macd float64
	// Klc is the index of the Candle this bar was merged into, or -1
	// before that candle is known.
	Klc int
}

// BarList is the append-only arena of raw bars.
type BarList struct {
	bars []Bar
}

// NewBarList returns an empty bar arena.
func NewBarList() *BarList {
	return &BarList{}
}

// Len reports the number of bars appended so far.
func (l *BarList) Len() int { return len(l.bars) }

// Get returns the bar at idx by value; callers must treat Bar as
// immutable apart from the Klc field, which only the kline package sets.
func (l *BarList) Get(idx int) Bar { return l.bars[idx] }

// Slice returns a read-only view of all bars.
func (l *BarList) Slice() []Bar { return l.bars }

// Range returns the bars from index `from` to `to` inclusive.
func (l *BarList) Range(from, to int) []Bar { return l.bars[from : to+1] }

// Add appends a new bar, enforcing strictly increasing time and OHLC
// consistency (with autofix, matching spec §7's "bar OHLC consistency on
// append (with optional autofix)").
func (l *BarList) Add(t time.Time, open, high, low, close, macd float64) (int, error) {
	if n := len(l.bars); n > 0 {
		if !t.After(l.bars[n-1].Time) {
			return 0, fmt.Errorf("bar time %s not after previous %s: %w", t, l.bars[n-1].Time, chanerr.ErrKlNotMonotonous)
		}
	}
	if low > open {
		low = open
	}
	if low > close {
		low = close
	}
	if high < open {
		high = open
	}
	if high < close {
		high = close
	}
	b := Bar{
		Index: len(l.bars),
		Time:  t,
		Open:  open,
		High:  high,
		Low:   low,
		Close: close,
		Macd:  macd,
		Klc:   -1,
	}
	l.bars = append(l.bars, b)
	return b.Index, nil
}

func (l *BarList) setKlc(barIdx, candleIdx int) {
	l.bars[barIdx].Klc = candleIdx
}
