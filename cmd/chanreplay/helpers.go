package main

import (
	"strings"
	"time"

	"chanalyzer/internal/bsp"
)

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func typesToCSV(pt *bsp.CBspPoint) string {
	types := pt.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ",")
}
