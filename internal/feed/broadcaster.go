package feed

import (
	"context"
	"log/slog"

	"chanalyzer/internal/logger"
	"chanalyzer/internal/metrics"
)

// Broadcaster fans a structure Event out to the websocket hub
// and, if configured, the Redis publisher, while keeping the feed
// metrics counters current.
type Broadcaster struct {
	hub     *Hub
	redis   *RedisPublisher
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewBroadcaster returns a Broadcaster over hub, with an optional redis
// publisher (nil disables the Redis sink).
func NewBroadcaster(hub *Hub, redis *RedisPublisher, m *metrics.Metrics, log *slog.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, redis: redis, metrics: m, log: log}
}

// Emit broadcasts ev to every configured sink.
func (b *Broadcaster) Emit(ctx context.Context, ev Event) {
	b.hub.Broadcast(ev)
	if b.metrics != nil {
		b.metrics.FeedBroadcasts.WithLabelValues(ev.Kind).Inc()
		b.metrics.FeedSubscribers.Set(float64(b.hub.Subscribers()))
	}
	if b.redis != nil {
		if err := b.redis.Publish(ctx, ev); err != nil {
			b.log.Warn("feed: redis publish failed", append(logger.LogWithUpdate(ctx), "kind", ev.Kind, "err", err)...)
		}
	}
}
