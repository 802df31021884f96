// Command chananalyze runs the structural analyzer over a
// newline-delimited JSON bar stream read from stdin, exposing layer
// sizes on a Prometheus metrics server and broadcasting over a websocket
// feed each newly appended stroke (which may still be virtual) and the
// buy/sell point anchored at its end, if any.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chanalyzer/config"
	"chanalyzer/internal/analyzer"
	"chanalyzer/internal/chanconfig"
	"chanalyzer/internal/feed"
	"chanalyzer/internal/logger"
	"chanalyzer/internal/metrics"
)

// redisEventChannel is the Redis pub/sub channel chanfeed relays from.
const redisEventChannel = "chanalyzer:events"

// inputBar is one line of the stdin stream.
type inputBar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
	Macd  float64   `json:"macd"`
}

func main() {
	log := logger.Init("chananalyze", slog.LevelInfo)
	cfg := config.Load()
	chanCfg := chanconfig.FromEnv("CHANALYZER")

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	hub := feed.NewHub(log)
	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	redisPub := feed.NewRedisPublisher(rdb, redisEventChannel, m)
	broadcaster := feed.NewBroadcaster(hub, redisPub, m, log)

	mux := http.NewServeMux()
	mux.Handle("/feed", hub)
	feedSrv := &http.Server{Addr: cfg.FeedAddr, Handler: mux}
	go func() {
		log.Info("feed server listening", "addr", cfg.FeedAddr)
		if err := feedSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("feed server error", "err", err)
		}
	}()

	a := analyzer.New(chanCfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{})
	go runStdinLoop(ctx, log, a, m, health, broadcaster, done)

	log.Info("analyzer started", "bi_config", chanCfg.Bi, "seg_config", chanCfg.Seg)

	select {
	case <-ctx.Done():
	case <-done:
	}
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	feedSrv.Shutdown(shutdownCtx)
}

func runStdinLoop(ctx context.Context, log *slog.Logger, a *analyzer.Analyzer, m *metrics.Metrics, health *metrics.HealthStatus, broadcaster *feed.Broadcaster, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var bar inputBar
		if err := json.Unmarshal(scanner.Bytes(), &bar); err != nil {
			log.Warn("chananalyze: skipping malformed line", "err", err)
			continue
		}

		start := time.Now()
		prevBi := a.Bis().Len()
		changed, err := a.AddK(bar.Time, bar.Open, bar.High, bar.Low, bar.Close, bar.Macd)
		m.AddKDur.Observe(time.Since(start).Seconds())
		barCtx := logger.WithUpdateID(ctx, a.LastUpdateID())
		if err != nil {
			m.RejectedBars.Inc()
			log.Warn("chananalyze: rejected bar", append(logger.LogWithUpdate(barCtx), "err", err, "time", bar.Time)...)
			continue
		}
		m.BarsTotal.Inc()
		health.SetLastBarTime(bar.Time)
		refreshGauges(a, m)

		if changed && a.Bis().Len() > prevBi {
			last := a.Bis().Get(a.Bis().Len() - 1)
			broadcaster.Emit(barCtx, feed.Event{
				Kind:  "bi",
				Index: last.Index(),
				Dir:   last.Dir().String(),
				Time:  last.EndTime(),
			})
			if bsIdx, ok := last.Bsp(); ok {
				pt := a.Bsps().HistoryAt(bsIdx)
				broadcaster.Emit(barCtx, feed.Event{
					Kind:    "bsp",
					Index:   pt.Index(),
					IsBuy:   pt.IsBuy(),
					Time:    last.EndTime(),
					Details: pt.Features(),
				})
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		log.Error("chananalyze: stdin read error", "err", err)
	}
}

func refreshGauges(a *analyzer.Analyzer, m *metrics.Metrics) {
	m.CandleCount.Set(float64(a.Candles().Len()))
	m.BiCount.Set(float64(a.Bis().Len()))
	m.SegCount.Set(float64(a.Segs().Len()))
	m.ZsCount.Set(float64(a.Zss().Len()))
	m.BspCount.Set(float64(a.Bsps().Len()))
	m.SegSegCount.Set(float64(a.SegSegs().Len()))
	m.SegZsCount.Set(float64(a.SegZss().Len()))
	m.SegBspCount.Set(float64(a.SegBsps().Len()))
}
