package history

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"plancost/internal/errors"
	"plancost/internal/logging"
)

// RetentionPolicy bounds the run history by age and count. Zero values
// disable the corresponding phase.
type RetentionPolicy struct {
	// MaxAgeDays deletes runs older than this many days
	MaxAgeDays int

	// MaxRuns keeps at most this many runs, newest first
	MaxRuns int64

	// Schedule is a cron expression for automatic pruning, for
	// example "0 3 * * *" for daily at 3 AM. Empty disables the
	// scheduler; Prune can still be called directly.
	Schedule string
}

// Pruner enforces the retention policy, either on demand or on a cron
// schedule.
type Pruner struct {
	store  *Store
	policy RetentionPolicy
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewPruner creates a pruner over the store
func NewPruner(store *Store, policy RetentionPolicy) *Pruner {
	return &Pruner{
		store:  store,
		policy: policy,
		cron:   cron.New(),
		logger: logging.Named("history.retention"),
	}
}

// Prune applies the policy once: age-based deletion first, then the
// count cap. Returns the total number of runs deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.policy.MaxAgeDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -p.policy.MaxAgeDays)
		deleted, err := p.store.PruneOlderThan(ctx, cutoff)
		if err != nil {
			return total, err
		}
		total += deleted
	}

	if p.policy.MaxRuns > 0 {
		deleted, err := p.store.PruneToCount(ctx, p.policy.MaxRuns)
		if err != nil {
			return total, err
		}
		total += deleted
	}

	return total, nil
}

// Start schedules automatic pruning. It returns immediately; the
// scheduler stops when ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.policy.Schedule == "" {
		p.logger.Debug("prune schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(p.policy.Schedule); err != nil {
		return errors.Wrapf(errors.TypeConfig, err, "invalid prune schedule %q", p.policy.Schedule)
	}

	if _, err := p.cron.AddFunc(p.policy.Schedule, func() {
		p.runPruning(ctx)
	}); err != nil {
		return errors.Config("failed to schedule history pruning", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("retention scheduler started",
		zap.String("schedule", p.policy.Schedule),
		zap.Int("max_age_days", p.policy.MaxAgeDays),
		zap.Int64("max_runs", p.policy.MaxRuns))

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

func (p *Pruner) runPruning(ctx context.Context) {
	deleted, err := p.Prune(ctx)
	if err != nil {
		p.logger.Error("scheduled pruning failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("scheduled pruning completed", zap.Int64("deleted", deleted))
	}
}

// Stop halts the scheduler and waits for a running job to finish.
// Stop is safe to call when the scheduler never started.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		<-p.cron.Stop().Done()
		p.running = false
		p.logger.Debug("retention scheduler stopped")
	}
}

// NextRun returns the next scheduled pruning time, or nil when the
// scheduler is idle.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
