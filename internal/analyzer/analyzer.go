// Package analyzer orchestrates every layer into the single incremental
// entry point: AddK folds one new bar through candles, strokes,
// segments, pivots and buy/sell points, and recurses one level up to
// build segments of segments. See spec §4.G and SPEC_FULL.md §4.H.
package analyzer

import (
	"time"

	"chanalyzer/internal/bi"
	"chanalyzer/internal/bsp"
	"chanalyzer/internal/chanconfig"
	"chanalyzer/internal/kline"
	"chanalyzer/internal/lineiface"
	"chanalyzer/internal/logger"
	"chanalyzer/internal/seg"
	"chanalyzer/internal/zs"
)

// Analyzer holds the full structural decomposition of one instrument's
// bar stream.
type Analyzer struct {
	cfg chanconfig.Config

	bars    *kline.BarList
	candles *kline.CandleList
	bis     *bi.CBiList

	segs *seg.CSegListChan[*bi.CBi]
	zss  *zs.CZsList[*bi.CBi]
	bsps *bsp.CBSPointList[*bi.CBi]

	segSegs *seg.CSegListChan[*seg.CSeg[*bi.CBi]]
	segZss  *zs.CZsList[*seg.CSeg[*bi.CBi]]
	segBsps *bsp.CBSPointList[*seg.CSeg[*bi.CBi]]

	// lastUpdateID identifies the most recent AddK call in log output;
	// hosts put it in their logging context via logger.WithUpdateID.
	lastUpdateID uint64
}

// New returns an empty analyzer under cfg.
func New(cfg chanconfig.Config) *Analyzer {
	bars := kline.NewBarList()
	candles := kline.NewCandleList(bars)
	bis := bi.NewCBiList(candles, cfg.Bi)
	segs := seg.NewCSegListChan[*bi.CBi](bis, cfg.Seg)
	zss := zs.NewCZsList[*bi.CBi](bis, cfg.Zs)
	bsps := bsp.NewCBSPointList[*bi.CBi](bis, zss, cfg.Bsp, false)

	segSegs := seg.NewCSegListChan[*seg.CSeg[*bi.CBi]](segs, cfg.Seg)
	segZss := zs.NewCZsList[*seg.CSeg[*bi.CBi]](segs, cfg.Zs)
	segBsps := bsp.NewCBSPointList[*seg.CSeg[*bi.CBi]](segs, segZss, cfg.SegBsp, true)

	return &Analyzer{
		cfg: cfg, bars: bars, candles: candles, bis: bis,
		segs: segs, zss: zss, bsps: bsps,
		segSegs: segSegs, segZss: segZss, segBsps: segBsps,
	}
}

func (a *Analyzer) Bars() *kline.BarList        { return a.bars }
func (a *Analyzer) Candles() *kline.CandleList  { return a.candles }
func (a *Analyzer) Bis() *bi.CBiList            { return a.bis }
func (a *Analyzer) Segs() *seg.CSegListChan[*bi.CBi] { return a.segs }
func (a *Analyzer) Zss() *zs.CZsList[*bi.CBi]        { return a.zss }
func (a *Analyzer) Bsps() *bsp.CBSPointList[*bi.CBi] { return a.bsps }

func (a *Analyzer) SegSegs() *seg.CSegListChan[*seg.CSeg[*bi.CBi]] { return a.segSegs }
func (a *Analyzer) SegZss() *zs.CZsList[*seg.CSeg[*bi.CBi]]        { return a.segZss }
func (a *Analyzer) SegBsps() *bsp.CBSPointList[*seg.CSeg[*bi.CBi]] { return a.segBsps }

// LastUpdateID returns the id allocated to the most recent AddK call.
func (a *Analyzer) LastUpdateID() uint64 { return a.lastUpdateID }

// AddK folds one new bar into the analyzer, cascading through every
// layer. Returns true iff the stroke layer changed (and the layers above
// it were therefore re-derived); a bar that only grows the bar and candle
// layers returns false. Each call gets a
// fresh update id so a host can correlate its log lines per bar.
func (a *Analyzer) AddK(t time.Time, open, high, low, close, macd float64) (bool, error) {
	a.lastUpdateID = logger.NextUpdateID()

	barIdx, err := a.bars.Add(t, open, high, low, close, macd)
	if err != nil {
		return false, err
	}

	opened, err := a.candles.UpdateCandle(barIdx)
	if err != nil {
		return false, err
	}

	biChanged := false
	if opened {
		if a.candles.Len() >= 2 {
			secondLast := a.candles.Len() - 2
			last := a.candles.Len() - 1
			ok, err := a.bis.UpdateBi(secondLast, last, true)
			if err != nil {
				return false, err
			}
			biChanged = ok
		}
	} else if a.candles.Len() >= 1 {
		last := a.candles.Len() - 1
		ok, err := a.bis.TryAddVirtualBi(last, true)
		if err != nil {
			return false, err
		}
		biChanged = ok
	}

	if !biChanged {
		return false, nil
	}
	if _, err := a.calSegAndZs(); err != nil {
		return false, err
	}
	return true, nil
}

// calSegAndZs re-derives segments, pivots and buy/sell points from the
// current stroke arena: first the stroke level, then the same machinery
// one level up over the segments themselves, then both buy/sell-point
// layers.
func (a *Analyzer) calSegAndZs() (bool, error) {
	changed, err := calLevel[*bi.CBi](a.bis, a.segs, a.zss)
	if err != nil {
		return false, err
	}
	ok, err := calLevel[*seg.CSeg[*bi.CBi]](a.segs, a.segSegs, a.segZss)
	if err != nil {
		return changed, err
	}
	changed = changed || ok

	ok, err = a.segBsps.Cal(a.segSegs)
	if err != nil {
		return changed, err
	}
	changed = changed || ok
	ok, err = a.bsps.Cal(a.segs)
	if err != nil {
		return changed, err
	}
	return changed || ok, nil
}

// lineSource is the read surface calLevel needs from a line arena.
type lineSource[T lineiface.Line] interface {
	Len() int
	Get(i int) T
}

// calLevel runs one level of the pipeline: segment derivation, segment
// membership propagation onto the lines, pivot calculation, and the
// pivot-to-segment attachment pass.
func calLevel[T lineiface.Line](lines lineSource[T], segs *seg.CSegListChan[T], zss *zs.CZsList[T]) (bool, error) {
	if lines.Len() == 0 {
		return false, nil
	}
	changed, err := segs.Update(lines.Len() - 1)
	if err != nil {
		return false, err
	}
	updateLineSegIdx[T](lines, segs)
	if err := zss.CalBiZs(segs); err != nil {
		return changed, err
	}
	zss.UpdateZsInSeg(segs)
	return changed, nil
}

// updateLineSegIdx stamps every line with the segment it belongs to.
// Lines past the last segment's end are claimed by the segment yet to
// form; lines before the first segment's start belong to the first.
func updateLineSegIdx[T lineiface.Line](lines lineSource[T], segs *seg.CSegListChan[T]) {
	if segs.Len() == 0 {
		for i := 0; i < lines.Len(); i++ {
			lines.Get(i).SetSegIdx(0)
		}
		return
	}
	for si := 0; si < segs.Len(); si++ {
		sg := segs.Get(si)
		for i := sg.StartIdx(); i <= sg.EndIdx() && i < lines.Len(); i++ {
			lines.Get(i).SetSegIdx(sg.Index())
		}
	}
	for i := segs.Get(segs.Len() - 1).EndIdx() + 1; i < lines.Len(); i++ {
		lines.Get(i).SetSegIdx(segs.Len())
	}
	for i := 0; i < segs.Get(0).StartIdx(); i++ {
		lines.Get(i).SetSegIdx(0)
	}
}
