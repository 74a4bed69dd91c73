// cmd/reconcile/main.go runs one reconcile pass against this node's blob area
// and the shared artifact records.
//
// Usage:
//
//	./reconcile            # report only
//	./reconcile -execute   # also remove orphan blob files
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/tendant/simple-media/internal/blob"
	"github.com/tendant/simple-media/internal/config"
	"github.com/tendant/simple-media/internal/logging"
	"github.com/tendant/simple-media/internal/reconcile"
	"github.com/tendant/simple-media/internal/store"
)

func main() {
	var execute bool
	var timeout time.Duration
	flag.BoolVar(&execute, "execute", false, "Remove orphan blob files (default is a dry run)")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Abort the pass after this long")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("reconcile starting", "node", cfg.ServerAddress, "storage_path", cfg.StoragePath, "dry_run", !execute)

	db, err := store.Open(cfg.Store())
	if err != nil {
		fatal(logger, "open database", err, "database_type", cfg.DatabaseType)
	}
	blobs, err := blob.New(cfg.StoragePath)
	if err != nil {
		fatal(logger, "open blob area", err, "storage_path", cfg.StoragePath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rec := reconcile.New(store.New(db), blobs, cfg.ServerAddress,
		reconcile.WithDryRun(!execute),
		reconcile.WithLogger(logger),
	)
	rep, err := rec.Run(ctx)
	if err != nil {
		fatal(logger, "reconcile", err)
	}

	for _, id := range rep.Orphans {
		logger.Info("orphan blob", "artifact_id", id, "removed", execute)
	}
	for _, id := range rep.Missing {
		logger.Warn("missing blob", "artifact_id", id)
	}
	logger.Info("reconcile complete", "orphans", len(rep.Orphans), "removed", rep.Removed, "missing", len(rep.Missing))
	if len(rep.Missing) > 0 {
		os.Exit(2)
	}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
