// Command fusiond runs the crowd-sourced earthquake detection service:
// signal ingest over HTTP, asynchronous fusion analysis, optional Kafka
// alert fan-out, and the official observatory feed poller.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/kenet-project/seismic-fusion/internal/adapter/http"
	kafkaadapter "github.com/kenet-project/seismic-fusion/internal/adapter/kafka"
	"github.com/kenet-project/seismic-fusion/internal/adapter/kandilli"
	"github.com/kenet-project/seismic-fusion/internal/config"
	"github.com/kenet-project/seismic-fusion/internal/fusion"
	"github.com/kenet-project/seismic-fusion/internal/observability"
	"github.com/kenet-project/seismic-fusion/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	st, err := store.Open(cfg.DBPath, clock)
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer st.Close()

	// Alert fan-out is feature-flagged via KAFKA_BROKERS / ALERTS_ENABLED.
	var publisher fusion.AlertPublisher
	var publisherCloser interface{ Close() error }
	if cfg.AlertsEnabled {
		p := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		publisher = p
		publisherCloser = p
		logger.Info("kafka alerts enabled", "topic", cfg.KafkaAlertTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka alerts disabled")
	}

	engine := fusion.NewEngine(st, publisher, fusion.Params{
		ClusterRadiusKm:   cfg.ClusterRadiusKm,
		FusionWindow:      cfg.FusionWindow,
		DedupRadiusKm:     cfg.DedupRadiusKm,
		DedupCooldown:     cfg.DedupCooldown,
		PopulationRecency: cfg.PopulationRecency,
		Quorum:            cfg.Quorum,
	}, clock, logger, metrics)

	pool := fusion.NewPool(engine, cfg.FusionWorkers, cfg.FusionQueueSize, logger, metrics)

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:              cfg.HTTPAddr,
		IngestDeviceRPS:   cfg.IngestDeviceRPS,
		IngestDeviceBurst: cfg.IngestDeviceBurst,
	}, st, pool, readiness{st, pool}, clock, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := pool.Run(ctx); err != nil {
			logger.Error("fusion pool error", "error", err)
		}
	}()

	if cfg.FeedEnabled {
		client := kandilli.NewClient(cfg.FeedURL, cfg.FeedTimeout, logger)
		poller := kandilli.NewPoller(client, st, cfg.FeedInterval, clock, logger, metrics)
		go func() {
			if err := poller.Run(ctx); err != nil {
				logger.Error("feed poller error", "error", err)
			}
		}()
		logger.Info("official feed enabled", "url", cfg.FeedURL, "interval", cfg.FeedInterval)
	} else {
		logger.Info("official feed disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisherCloser != nil {
		if err := publisherCloser.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// readiness requires both the database and the fusion pool.
type readiness struct {
	store *store.Store
	pool  *fusion.Pool
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if err := r.store.CheckReadiness(ctx); err != nil {
		return err
	}
	return r.pool.CheckReadiness(ctx)
}
