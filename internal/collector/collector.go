// Package collector runs the background jobs of the archive service: the
// periodic store statistics and the live feature-extraction pipeline.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ae-archive/vae/internal/metrics"
	"github.com/ae-archive/vae/internal/store"
)

// Collector is the interface for periodic jobs.
type Collector interface {
	Name() string
	Collect(ctx context.Context) error
	Interval() time.Duration
}

// WorkerPool bounds concurrent feature computations.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a worker pool with the given max concurrent workers.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	return &WorkerPool{sem: make(chan struct{}, max(maxWorkers, 1))}
}

// Submit runs fn in the pool, blocking if all workers are busy.
// Returns ctx.Err() if context is cancelled while waiting.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		go func() {
			defer func() { <-p.sem }()
			fn()
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts a collector loop that calls Collect at the configured interval.
// It blocks until the context is cancelled.
func Run(ctx context.Context, c Collector) error {
	name := c.Name()
	interval := c.Interval()
	slog.Info("collector started", "name", name, "interval", interval)

	// Collect immediately on startup
	if err := c.Collect(ctx); err != nil {
		slog.Error("collection failed", "collector", name, "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("collector stopped", "name", name)
			return ctx.Err()
		case <-ticker.C:
			if err := c.Collect(ctx); err != nil {
				slog.Error("collection failed", "collector", name, "error", err)
			}
		}
	}
}

// Stats publishes row counts and writer status of open stores as gauges.
type Stats struct {
	dbs      []*store.Database
	interval time.Duration
}

// NewStats creates a stats collector. Nil stores are skipped.
func NewStats(interval time.Duration, dbs ...*store.Database) *Stats {
	s := &Stats{interval: interval}
	for _, d := range dbs {
		if d != nil {
			s.dbs = append(s.dbs, d)
		}
	}
	return s
}

func (s *Stats) Name() string            { return "stats" }
func (s *Stats) Interval() time.Duration { return s.interval }

// Collect refreshes the gauges of every store. It reports the first error
// but still visits the remaining stores.
func (s *Stats) Collect(ctx context.Context) error {
	var first error
	for _, d := range s.dbs {
		if err := collectStore(ctx, d); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func collectStore(ctx context.Context, d *store.Database) error {
	name := d.Kind().Name
	rows, err := d.Rows(ctx, d.Kind().DataTable())
	if err != nil {
		return fmt.Errorf("counting %s rows: %w", name, err)
	}
	status, err := d.FileStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading %s file status: %w", name, err)
	}
	metrics.StoreRows.WithLabelValues(name).Set(float64(rows))
	metrics.StoreFileStatus.WithLabelValues(name).Set(float64(status))
	return nil
}
