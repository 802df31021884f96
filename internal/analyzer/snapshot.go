package analyzer

import "time"

// Snapshot is a point-in-time summary of the analyzer's layer sizes and
// last bar time, suitable for a checkpoint UI or a metrics scrape. It is
// not a serialization of the full arena state (see SPEC_FULL.md §4.H):
// it records no structures, and the package has no way to restore an
// analyzer from it.
type Snapshot struct {
	TakenAt time.Time `json:"taken_at"`

	BarCount    int `json:"bar_count"`
	CandleCount int `json:"candle_count"`
	BiCount     int `json:"bi_count"`
	SegCount    int `json:"seg_count"`
	ZsCount     int `json:"zs_count"`
	BspCount    int `json:"bsp_count"`

	SegSegCount int `json:"seg_seg_count"`
	SegZsCount  int `json:"seg_zs_count"`
	SegBspCount int `json:"seg_bsp_count"`

	LastBarTime time.Time `json:"last_bar_time,omitempty"`
}

// Snapshot captures the analyzer's current layer sizes and last bar
// time, grounded on the teacher's own indicator-engine checkpoint
// (Engine.Snapshot/RestoreFromSnapshot), generalized to this layer set.
func (a *Analyzer) Snapshot() Snapshot {
	s := Snapshot{
		BarCount:    a.bars.Len(),
		CandleCount: a.candles.Len(),
		BiCount:     a.bis.Len(),
		SegCount:    a.segs.Len(),
		ZsCount:     a.zss.Len(),
		BspCount:    a.bsps.Len(),
		SegSegCount: a.segSegs.Len(),
		SegZsCount:  a.segZss.Len(),
		SegBspCount: a.segBsps.Len(),
	}
	if a.bars.Len() > 0 {
		s.LastBarTime = a.bars.Get(a.bars.Len() - 1).Time
	}
	return s
}
