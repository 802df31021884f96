// Command chanfeed relays confirmed-structure events from the Redis
// pub/sub channel chananalyze publishes to onto its own websocket hub,
// letting many lightweight feed processes fan out from one analyzer
// without each holding its own websocket connection set.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/go-redis/redis/v8"

	"chanalyzer/config"
	"chanalyzer/internal/feed"
	"chanalyzer/internal/logger"
)

func main() {
	log := logger.Init("chanfeed", slog.LevelInfo)
	cfg := config.Load()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	hub := feed.NewHub(log)
	mux := http.NewServeMux()
	mux.Handle("/feed", hub)
	srv := &http.Server{Addr: cfg.FeedAddr, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go relayLoop(ctx, log, rdb, hub)

	go func() {
		log.Info("chanfeed: listening", "addr", cfg.FeedAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("chanfeed: server error", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("chanfeed: shutting down")
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}

func relayLoop(ctx context.Context, log *slog.Logger, rdb *goredis.Client, hub *feed.Hub) {
	sub := rdb.Subscribe(ctx, "chanalyzer:events")
	defer sub.Close()
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev feed.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn("chanfeed: malformed event on channel", "err", err)
				continue
			}
			hub.Broadcast(ev)
		}
	}
}
