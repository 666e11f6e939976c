// The consumer binary runs the stream worker: one reader in the consumer
// group driving handler → rules → tripwire for every event.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/zacharyclement/feature-restrictions/internal/config"
	"github.com/zacharyclement/feature-restrictions/internal/consumer"
	"github.com/zacharyclement/feature-restrictions/internal/infra"
	"github.com/zacharyclement/feature-restrictions/internal/monitoring"
	"github.com/zacharyclement/feature-restrictions/internal/store"
	"github.com/zacharyclement/feature-restrictions/internal/tripwire"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	streamClient, err := infra.NewRedisAdapter(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.StreamDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis (stream): %v", err)
	}
	defer streamClient.Close()

	userClient, err := infra.NewRedisAdapter(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.UserDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis (users): %v", err)
	}
	defer userClient.Close()

	tripwireClient, err := infra.NewRedisAdapter(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.TripwireDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis (tripwire): %v", err)
	}
	defer tripwireClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Lifecycle.Flush {
		if err := tripwireClient.FlushDB(ctx); err != nil {
			slog.Error("Startup tripwire flush failed", "error", err)
		} else {
			slog.Info("Cleared tripwire database on startup")
		}
	}

	users := store.NewUserStore(userClient)
	trip := tripwire.New(tripwireClient, cfg.Tripwire.Window(), cfg.Tripwire.Threshold)
	metrics := monitoring.NewMetrics()

	c := consumer.New(streamClient, users, trip, metrics, consumer.Config{
		Stream:    cfg.Stream.Key,
		Group:     cfg.Stream.Group,
		Consumer:  cfg.Stream.Consumer,
		BatchSize: cfg.Stream.BatchSize,
		Block:     cfg.Stream.Block(),
	})

	if err := c.Run(ctx); err != nil {
		log.Fatalf("Consumer failed: %v", err)
	}

	if cfg.Lifecycle.Flush {
		// Clean-shutdown hygiene for dev/test runs: drop everything the
		// run produced.
		cleanup := context.Background()
		for name, client := range map[string]*infra.RedisAdapter{
			"stream":   streamClient,
			"users":    userClient,
			"tripwire": tripwireClient,
		} {
			if err := client.FlushDB(cleanup); err != nil {
				slog.Error("Shutdown flush failed", "db", name, "error", err)
			}
		}
		slog.Info("Flushed stream, user and tripwire databases on shutdown")
	}
}
