// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-media/internal/auth"
	"github.com/tendant/simple-media/internal/blob"
	"github.com/tendant/simple-media/internal/bus"
	"github.com/tendant/simple-media/internal/cache"
	"github.com/tendant/simple-media/internal/classify"
	"github.com/tendant/simple-media/internal/config"
	"github.com/tendant/simple-media/internal/convert"
	"github.com/tendant/simple-media/internal/converters"
	"github.com/tendant/simple-media/internal/httpapi"
	"github.com/tendant/simple-media/internal/img"
	"github.com/tendant/simple-media/internal/logging"
	"github.com/tendant/simple-media/internal/media"
	"github.com/tendant/simple-media/internal/metrics"
	"github.com/tendant/simple-media/internal/process"
	"github.com/tendant/simple-media/internal/reconcile"
	"github.com/tendant/simple-media/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat).With("node", cfg.ServerAddress)
	slog.SetDefault(logger)
	logger.Info("server starting", "addr", cfg.Addr(), "database_type", cfg.DatabaseType, "storage_path", cfg.StoragePath, "auth_required", cfg.AuthRequired)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := store.Open(cfg.Store())
	if err != nil {
		fatal(logger, "open database", err, "database_type", cfg.DatabaseType)
	}
	repo := store.New(db)
	if err := repo.Migrate(ctx); err != nil {
		fatal(logger, "migrate database", err)
	}
	logger.Info("database ready", "database_type", cfg.DatabaseType)

	blobs, err := blob.New(cfg.StoragePath)
	if err != nil {
		fatal(logger, "open blob area", err, "storage_path", cfg.StoragePath)
	}
	logger.Info("ensured blob directory", "dir", blobs.Dir())

	ff := converters.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	if !process.Available(cfg.FFprobePath) || !process.Available(cfg.FFmpegPath) {
		logger.Warn("ffmpeg/ffprobe not found, probe and intermediate fallbacks will fail", "ffmpeg", cfg.FFmpegPath, "ffprobe", cfg.FFprobePath)
	}

	codec := img.NewCodec(img.Options{WebPQuality: cfg.WebPQuality, JPEGQuality: cfg.JPEGQuality})
	m := metrics.New()

	var variants cache.Variants = cache.Nop{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.VariantCacheTTL, logger)
		if err != nil {
			fatal(logger, "connect to redis", err)
		}
		defer rc.Close()
		variants = rc
		logger.Info("variant cache enabled", "ttl", cfg.VariantCacheTTL)
	}

	var events bus.Publisher = bus.Nop{}
	var nc *bus.Client
	if cfg.NATSURL != "" {
		nc, err = bus.Connect(cfg.NATSURL, cfg.EventSubject)
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		defer nc.Close()
		events = nc
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL, "subject", cfg.EventSubject)
	}

	svc := media.New(media.Config{
		ServerAddress:  cfg.ServerAddress,
		AuthRequired:   cfg.AuthRequired,
		MaxFileSize:    cfg.MaxFileSize,
		MaxImageEdge:   cfg.MaxImageEdge,
		MaxImagePixels: cfg.MaxImagePixels,
		MaxOutputEdge:  cfg.MaxOutputEdge,
	}, media.Deps{
		Repo:       repo,
		Blobs:      blobs,
		Classifier: classify.New(codec, ff, classify.WithLogger(logger)),
		Converter:  convert.New(codec, ff, logger),
		Cache:      variants,
		Events:     events,
		Metrics:    m,
		Logger:     logger,
	})

	if nc != nil {
		if _, err := nc.SubscribeJSON(cfg.EventSubject, svc.HandleEvent); err != nil {
			fatal(logger, "subscribe events", err, "subject", cfg.EventSubject)
		}
	}

	if cfg.ReconcileSchedule != "" {
		rec := reconcile.New(repo, blobs, cfg.ServerAddress, reconcile.WithMetrics(m), reconcile.WithLogger(logger))
		if _, err := reconcile.Schedule(ctx, rec, cfg.ReconcileSchedule); err != nil {
			fatal(logger, "schedule reconcile", err)
		}
		logger.Info("reconcile scheduled", "schedule", cfg.ReconcileSchedule)
	}

	handler := httpapi.NewRouter(httpapi.Options{
		Service:  svc,
		Resolver: auth.NewResolver(cfg.MasterKey, repo, repo),
		Health:   repo,
		Metrics:  m,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "serve", err)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
			_ = srv.Close()
		}
		logger.Info("shutdown complete")
	}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
