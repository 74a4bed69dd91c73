// Package reconcile brings the local blob area and the artifact records back
// in line after partial failures.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-media/internal/metrics"
	"github.com/tendant/simple-media/internal/store"
)

type Records interface {
	ArtifactExists(ctx context.Context, id string) (bool, error)
	ListHomedAt(ctx context.Context, node string) ([]store.Artifact, error)
}

type Blobs interface {
	List() ([]string, error)
	Exists(id string) (bool, error)
	Remove(id string) error
}

// Report is the outcome of one pass. Orphans are blob files without a record;
// Missing are records homed on this node whose blob is gone.
type Report struct {
	Orphans []string
	Removed int
	Missing []string
}

type Reconciler struct {
	records Records
	blobs   Blobs
	node    string
	dryRun  bool
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu sync.Mutex
}

type Option func(*Reconciler)

// WithDryRun reports orphans without removing them.
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) { r.dryRun = dryRun }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func New(records Records, blobs Blobs, node string, opts ...Option) *Reconciler {
	r := &Reconciler{records: records, blobs: blobs, node: node}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run performs one pass. Concurrent calls are serialised.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rep Report
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orphans, removed, err := r.sweepOrphans(gctx)
		rep.Orphans, rep.Removed = orphans, removed
		return err
	})
	g.Go(func() error {
		missing, err := r.findMissing(gctx)
		rep.Missing = missing
		return err
	})
	if err := g.Wait(); err != nil {
		r.metrics.ReconcileRuns.WithLabelValues("failed").Inc()
		return rep, err
	}

	r.metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	r.metrics.ReconcileFound.WithLabelValues("orphan").Set(float64(len(rep.Orphans)))
	r.metrics.ReconcileFound.WithLabelValues("missing").Set(float64(len(rep.Missing)))
	r.logger.Info("reconcile finished", "orphans", len(rep.Orphans), "removed", rep.Removed, "missing", len(rep.Missing), "dry_run", r.dryRun)
	return rep, nil
}

func (r *Reconciler) sweepOrphans(ctx context.Context) ([]string, int, error) {
	ids, err := r.blobs.List()
	if err != nil {
		return nil, 0, fmt.Errorf("list blobs: %w", err)
	}

	var orphans []string
	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return orphans, removed, err
		}
		ok, err := r.records.ArtifactExists(ctx, id)
		if err != nil {
			return orphans, removed, fmt.Errorf("check record %s: %w", id, err)
		}
		if ok {
			continue
		}
		orphans = append(orphans, id)
		if r.dryRun {
			continue
		}
		if err := r.blobs.Remove(id); err != nil {
			r.logger.Warn("failed to remove orphan blob", "artifact_id", id, "error", err)
			continue
		}
		removed++
	}
	return orphans, removed, nil
}

func (r *Reconciler) findMissing(ctx context.Context) ([]string, error) {
	records, err := r.records.ListHomedAt(ctx, r.node)
	if err != nil {
		return nil, fmt.Errorf("list homed records: %w", err)
	}

	var missing []string
	for _, a := range records {
		ok, err := r.blobs.Exists(a.ID)
		if err != nil {
			return missing, fmt.Errorf("stat blob %s: %w", a.ID, err)
		}
		if !ok {
			r.logger.Warn("record without blob", "artifact_id", a.ID)
			missing = append(missing, a.ID)
		}
	}
	return missing, nil
}

// Schedule runs the reconciler on a cron schedule until ctx is cancelled.
func Schedule(ctx context.Context, r *Reconciler, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := r.Run(ctx); err != nil {
			r.logger.Error("scheduled reconcile failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}
