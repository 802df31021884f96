package kline

import (
	"errors"
	"testing"
	"time"

	"chanalyzer/internal/chanerr"
)

func mustAdd(t *testing.T, l *BarList, sec int, o, h, lo, c float64) int {
	t.Helper()
	idx, err := l.Add(time.Unix(int64(sec), 0), o, h, lo, c, 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return idx
}

func TestBarListMonotonicTime(t *testing.T) {
	l := NewBarList()
	mustAdd(t, l, 100, 1, 2, 0.5, 1.5)
	_, err := l.Add(time.Unix(100, 0), 1, 2, 0.5, 1.5, 0)
	if !errors.Is(err, chanerr.ErrKlNotMonotonous) {
		t.Fatalf("expected ErrKlNotMonotonous, got %v", err)
	}
}

func TestBarListOHLCAutofix(t *testing.T) {
	l := NewBarList()
	// low above open/close, high below open/close: both must widen.
	idx := mustAdd(t, l, 1, 10, 9, 11, 9.5)
	b := l.Get(idx)
	if b.Low > 9.5 {
		t.Errorf("expected low <= min(open,close), got %v", b.Low)
	}
	if b.High < 10 {
		t.Errorf("expected high >= open, got %v", b.High)
	}
}

func TestBarListRange(t *testing.T) {
	l := NewBarList()
	mustAdd(t, l, 1, 1, 1, 1, 1)
	mustAdd(t, l, 2, 2, 2, 2, 2)
	mustAdd(t, l, 3, 3, 3, 3, 3)
	got := l.Range(1, 2)
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 2 {
		t.Fatalf("unexpected range: %+v", got)
	}
}
