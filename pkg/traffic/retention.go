package traffic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PruneStore is the subset of pkg/store.Store the pruner needs.
type PruneStore interface {
	PruneTrafficOlderThan(cutoff time.Time) (int64, error)
}

// RetentionConfig controls the pruner (mirrors
// config.TrafficConfig.RetentionDays/PruneSchedule).
type RetentionConfig struct {
	// RetentionDays is how long traffic records are kept. 0 disables pruning.
	RetentionDays int
	// PruneSchedule is a cron expression; empty disables scheduled pruning.
	PruneSchedule string
}

// Pruner enforces RetentionConfig.RetentionDays against the traffic table.
type Pruner struct {
	store  PruneStore
	cfg    RetentionConfig
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPruner constructs a Pruner. Prune must be called explicitly (directly
// or via Start) to actually delete anything.
func NewPruner(s PruneStore, cfg RetentionConfig) *Pruner {
	return &Pruner{
		store:  s,
		cfg:    cfg,
		logger: slog.Default().With("component", "traffic.retention"),
		cron:   cron.New(),
	}
}

// Prune deletes traffic records older than cfg.RetentionDays. A
// RetentionDays of 0 is a no-op.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -p.cfg.RetentionDays)
	deleted, err := p.store.PruneTrafficOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune traffic: %w", err)
	}
	if deleted > 0 {
		p.logger.Info("pruned traffic records", "deleted_count", deleted, "retention_days", p.cfg.RetentionDays)
	}
	return deleted, nil
}

// Start schedules Prune on cfg.PruneSchedule. A blank schedule is a no-op.
// The scheduler stops itself when ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.PruneSchedule == "" {
		p.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(p.cfg.PruneSchedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.cfg.PruneSchedule, err)
	}

	_, err := p.cron.AddFunc(p.cfg.PruneSchedule, func() {
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error("scheduled traffic pruning failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule traffic pruning: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("traffic retention scheduler started", "schedule", p.cfg.PruneSchedule, "retention_days", p.cfg.RetentionDays)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		stopCtx := p.cron.Stop()
		<-stopCtx.Done()
		p.running = false
		p.logger.Info("traffic retention scheduler stopped")
	}
}
