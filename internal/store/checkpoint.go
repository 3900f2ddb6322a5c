package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultCheckpointInterval is the WAL checkpoint period for writers.
const DefaultCheckpointInterval = 5 * time.Minute

// Checkpointer periodically truncates the write-ahead log of writable
// databases so long acquisitions do not grow the -wal file without bound.
type Checkpointer struct {
	dbs      []*Database
	interval time.Duration
}

// NewCheckpointer creates a checkpointer for the given databases. Read-only
// databases are ignored.
func NewCheckpointer(interval time.Duration, dbs ...*Database) *Checkpointer {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	var writable []*Database
	for _, d := range dbs {
		if d != nil && !d.ReadOnly() {
			writable = append(writable, d)
		}
	}
	return &Checkpointer{dbs: writable, interval: interval}
}

// Run starts the checkpoint loop. It blocks until the context is cancelled.
func (c *Checkpointer) Run(ctx context.Context) error {
	slog.Info("checkpointer started", "interval", c.interval, "databases", len(c.dbs))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final checkpoint so the file is self-contained after shutdown.
			c.checkpoint(context.WithoutCancel(ctx))
			slog.Info("checkpointer stopped")
			return ctx.Err()
		case <-ticker.C:
			c.checkpoint(ctx)
		}
	}
}

func (c *Checkpointer) checkpoint(ctx context.Context) {
	for _, d := range c.dbs {
		if err := d.Checkpoint(ctx); err != nil {
			slog.Error("checkpoint failed", "path", d.path, "error", err)
		}
	}
}

// Checkpoint flushes the WAL into the main file and truncates it.
func (d *Database) Checkpoint(ctx context.Context) error {
	if d.writer == nil {
		return &ReadOnlyError{Path: d.path}
	}
	var busy, logFrames, checkpointed int
	err := d.writer.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return err
	}
	if checkpointed > 0 {
		slog.Debug("checkpointed wal", "path", d.path, "frames", checkpointed)
	}
	return nil
}
