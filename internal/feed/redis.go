package feed

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chanalyzer/internal/metrics"
)

// RedisPublisher mirrors structure events onto a Redis
// pub/sub channel, as an alternate sink alongside the websocket Hub.
type RedisPublisher struct {
	client  *goredis.Client
	channel string
	metrics *metrics.Metrics
}

// NewRedisPublisher returns a publisher bound to channel on client.
func NewRedisPublisher(client *goredis.Client, channel string, m *metrics.Metrics) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, metrics: m}
}

// Publish serializes ev and publishes it to the configured channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.client.Publish(ctx, p.channel, payload).Err()
	if p.metrics != nil {
		p.metrics.RedisPublishDur.Observe(time.Since(start).Seconds())
	}
	return err
}
