package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/datasets/internal/ai"
	"github.com/JonMunkholm/datasets/internal/config"
	"github.com/JonMunkholm/datasets/internal/core"
	"github.com/JonMunkholm/datasets/internal/database"
	"github.com/JonMunkholm/datasets/internal/logging"
	"github.com/JonMunkholm/datasets/internal/metrics"
	"github.com/JonMunkholm/datasets/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	blobs, err := core.NewLocalBlobStore(cfg.Upload.Dir)
	if err != nil {
		return err
	}
	slog.Info("storing uploads", "dir", blobs.Dir())

	var gen core.MetadataGenerator = ai.Unconfigured{}
	if cfg.AI.Enabled() {
		client, err := ai.New(ai.Config{
			Endpoint:   cfg.AI.Endpoint,
			APIKey:     cfg.AI.APIKey,
			Model:      cfg.AI.Model,
			APIVersion: cfg.AI.APIVersion,
			Timeout:    cfg.AI.Timeout,
			Breaker: ai.BreakerConfig{
				MaxRequests:  cfg.AI.BreakerMaxRequests,
				Interval:     cfg.AI.BreakerInterval,
				Timeout:      cfg.AI.BreakerTimeout,
				MinRequests:  cfg.AI.BreakerMinRequests,
				FailureRatio: cfg.AI.BreakerFailureRatio,
			},
		})
		if err != nil {
			return err
		}
		gen = client
		slog.Info("metadata generation enabled", "model", cfg.AI.Model)
	} else {
		slog.Warn("AI_ENDPOINT not set, metadata generation disabled")
	}

	opts := web.Options{
		MaxFileSize:    cfg.Upload.MaxFileSize,
		UploadTimeout:  cfg.Upload.Timeout,
		TrustedProxies: cfg.Server.TrustedProxies,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	}

	var rec core.Recorder
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector := metrics.New(reg)
		rec = collector
		opts.Metrics = collector.Middleware
		opts.MetricsHandler = metrics.Handler(reg)
		opts.MetricsPath = cfg.Metrics.Path
	}

	service := core.NewService(store, blobs, gen, core.Config{
		MaxFileSize:          cfg.Upload.MaxFileSize,
		MaxConcurrentUploads: cfg.Upload.MaxConcurrent,
		UploadWait:           cfg.Upload.MaxWaitTime,
		Dispatcher: core.DispatcherConfig{
			Workers:   cfg.AI.Workers,
			QueueSize: cfg.AI.QueueSize,
			Timeout:   cfg.AI.Timeout,
			Retries:   cfg.AI.Retries,
			Backoff:   cfg.AI.Backoff,
		},
	}, rec)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	service.Start(jobCtx)

	server := web.NewServer(service, opts)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first so no new uploads or jobs arrive.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}

		status := service.UploadStatus()
		slog.Info("draining uploads and metadata queue", "active_uploads", status.Active)
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("service did not drain in time", "error", err)
		}
		cancelJobs()
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	slog.Info("server stopped")
	return nil
}

// openStore returns the configured dataset store and its cleanup function.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	if cfg.Store.Driver == config.DriverMemory {
		slog.Warn("using in-memory store, datasets are lost on restart")
		return core.NewMemoryStore(), func() {}, nil
	}

	pool, err := database.Open(ctx, database.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if cfg.Database.AutoMigrate {
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return database.NewDatasetStore(pool), pool.Close, nil
}
