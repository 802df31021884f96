// Package feed broadcasts structural events (new strokes, segments,
// pivots, buy/sell points) to external subscribers over a websocket hub
// and, optionally, a Redis pub/sub channel.
package feed

import "time"

// Event is one structure notification.
type Event struct {
	Kind    string    `json:"kind"` // "bi" | "seg" | "zs" | "bsp"
	Index   int       `json:"index"`
	Dir     string    `json:"dir,omitempty"`
	IsBuy   bool      `json:"is_buy,omitempty"`
	Time    time.Time `json:"time"`
	Details map[string]float64 `json:"details,omitempty"`
}
