// The api binary is the HTTP ingress: it validates events onto the stream
// and answers access-flag queries from the user store.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zacharyclement/feature-restrictions/internal/config"
	"github.com/zacharyclement/feature-restrictions/internal/httpapi"
	"github.com/zacharyclement/feature-restrictions/internal/infra"
	"github.com/zacharyclement/feature-restrictions/internal/monitoring"
	"github.com/zacharyclement/feature-restrictions/internal/publisher"
	"github.com/zacharyclement/feature-restrictions/internal/store"
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

	pub := publisher.New(streamClient, cfg.Stream.Key)
	users := store.NewUserStore(userClient)
	metrics := monitoring.NewMetrics()

	router := mux.NewRouter()
	httpapi.Register(router, pub, users, metrics)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}()

	slog.Info("Ingress API starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
	slog.Info("Server stopped")
}
