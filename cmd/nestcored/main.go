// Command nestcored runs the nesting lifecycle daemon: it owns the store,
// the remote console client, the expiry sweeper, and the metrics endpoint.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"nestcore/internal/blob"
	"nestcore/internal/config"
	"nestcore/internal/domain"
	"nestcore/internal/infra/persistence/postgres"
	"nestcore/internal/infra/persistence/sqlite"
	"nestcore/internal/metrics"
	"nestcore/internal/nesting"
	"nestcore/internal/rcon"
	"nestcore/internal/roster"
)

func main() {
	if err := run(); err != nil {
		slog.Error("nestcored exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	images, err := openImages(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open image store: %w", err)
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	console := rcon.NewClient(cfg.RCONHost, cfg.RCONPort, cfg.RCONPassword,
		rcon.WithTimeout(cfg.RCONTimeout),
		rcon.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.RCONRatePerSec), 1)),
	)

	players := roster.NewService(store, nil, log)
	engine := nesting.NewEngine(store, console, players,
		nesting.Config{
			ServerName:      cfg.ServerName,
			NestLifetime:    cfg.NestLifetime,
			GrowthThreshold: cfg.GrowthThreshold,
		},
		nesting.WithLogger(log),
		nesting.WithMetrics(met),
		nesting.WithImageStore(imageAdapter{images}),
	)

	sweeper := nesting.NewSweeper(engine, nil, cfg.SweepInterval, log, met)
	go sweeper.Run(ctx)

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	log.Info("nestcored started",
		"server", cfg.ServerName,
		"store", storeKind(cfg),
		"blob", images.Driver(),
		"sweep_interval", cfg.SweepInterval.String(),
	)

	<-ctx.Done()
	log.Info("shutting down")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (domain.Store, error) {
	if cfg.DatabaseURL != "" {
		return postgres.NewStore(ctx, cfg.DatabaseURL)
	}
	return sqlite.NewStore(cfg.SQLitePath)
}

func storeKind(cfg config.Config) string {
	if cfg.DatabaseURL != "" {
		return "postgres"
	}
	return "sqlite"
}

func openImages(ctx context.Context, cfg config.Config) (blob.Store, error) {
	switch cfg.BlobDriver {
	case "s3":
		return blob.NewS3(ctx, blob.S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			PathStyle:       cfg.S3PathStyle,
		})
	case "memory", "":
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}

// imageAdapter narrows blob.Store to the engine's byte-oriented interface.
type imageAdapter struct {
	store blob.Store
}

func (a imageAdapter) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := a.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: contentType})
	return err
}
