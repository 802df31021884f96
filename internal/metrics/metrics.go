// Package metrics exposes the analyzer's layer sizes and AddK latency
// as Prometheus metrics, plus a /healthz endpoint, mirroring the
// teacher's own metrics server (see DESIGN.md).
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the analyzer exposes.
type Metrics struct {
	BarsTotal        prometheus.Counter
	RejectedBars     prometheus.Counter
	AddKDur          prometheus.Histogram
	CandleCount      prometheus.Gauge
	BiCount          prometheus.Gauge
	SegCount         prometheus.Gauge
	ZsCount          prometheus.Gauge
	BspCount         prometheus.Gauge
	SegSegCount      prometheus.Gauge
	SegZsCount       prometheus.Gauge
	SegBspCount      prometheus.Gauge
	FeedBroadcasts   *prometheus.CounterVec // labels: kind (bi|seg|bsp)
	FeedSubscribers  prometheus.Gauge
	RedisPublishDur  prometheus.Histogram
}

// NewMetrics registers and returns every analyzer metric.
func NewMetrics() *Metrics {
	m := &Metrics{
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanalyzer_bars_total",
			Help: "Total bars folded into the analyzer",
		}),
		RejectedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanalyzer_rejected_bars_total",
			Help: "Bars rejected by AddK (non-monotonic time or a layer error)",
		}),
		AddKDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chanalyzer_addk_duration_seconds",
			Help:    "AddK processing latency per bar",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		CandleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanalyzer_candle_count",
			Help: "Current number of merged candles",
		}),
		BiCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanalyzer_bi_count",
			Help: "Current number of strokes",
		}),
		SegCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanalyzer_seg_count",
			Help: "Current number of segments",
		}),
		ZsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanalyzer_zs_count",
			Help: "Current number of pivots over strokes",
		}),
		BspCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanalyzer_bsp_count",
			Help: "Current number of buy/sell points over strokes",
		}),
		SegSegCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanalyzer_seg_seg_count",
			Help: "Current number of second-order segments (segments of segments)",
		}),
		SegZsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanalyzer_seg_zs_count",
			Help: "Current number of pivots over segments",
		}),
		SegBspCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanalyzer_seg_bsp_count",
			Help: "Current number of buy/sell points over segments",
		}),
		FeedBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanalyzer_feed_broadcasts_total",
			Help: "Confirmed-structure events broadcast to feed subscribers",
		}, []string{"kind"}),
		FeedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanalyzer_feed_subscribers",
			Help: "Current number of connected websocket feed subscribers",
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chanalyzer_redis_publish_duration_seconds",
			Help:    "Redis publish latency for confirmed-structure events",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.BarsTotal,
		m.RejectedBars,
		m.AddKDur,
		m.CandleCount,
		m.BiCount,
		m.SegCount,
		m.ZsCount,
		m.BspCount,
		m.SegSegCount,
		m.SegZsCount,
		m.SegBspCount,
		m.FeedBroadcasts,
		m.FeedSubscribers,
		m.RedisPublishDur,
	)

	return m
}

// HealthStatus represents the analyzer process's health.
type HealthStatus struct {
	mu sync.RWMutex

	LastBarTime time.Time `json:"last_bar_time"`
	RedisOK     bool      `json:"redis_ok"`
	SQLiteOK    bool      `json:"sqlite_ok"`
	StartedAt   time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisOK(v bool) {
	h.mu.Lock()
	h.RedisOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := struct {
		Status      string `json:"status"`
		Uptime      string `json:"uptime"`
		LastBarTime string `json:"last_bar_time"`
		RedisOK     bool   `json:"redis_ok"`
		SQLiteOK    bool   `json:"sqlite_ok"`
	}{
		Status:      "healthy",
		Uptime:      time.Since(h.StartedAt).Round(time.Second).String(),
		LastBarTime: h.LastBarTime.Format(time.RFC3339),
		RedisOK:     h.RedisOK,
		SQLiteOK:    h.SQLiteOK,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
