package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Maintenance runs the background cache jobs on one gocron scheduler. Warming and
// pruning are registered separately; either may be absent.
type Maintenance struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
	jobs      int
}

// NewMaintenance creates an idle scheduler. Nothing runs until Start.
func NewMaintenance(logger *zap.Logger) (*Maintenance, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Maintenance{scheduler: s, logger: logger}, nil
}

// AddWarming schedules w.Warm over locations every interval, first run on Start.
func (m *Maintenance) AddWarming(w *CacheWarmer, locations []string, interval time.Duration) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			if err := w.Warm(ctx, locations); err != nil {
				m.logger.Warn("cache warming had failures", zap.Error(err))
			}
		}),
		gocron.WithName("cache-warm"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	m.jobs++
	return nil
}

// AddPruning schedules c.Prune every interval when c's store needs it. It reports
// false, and schedules nothing, for stores that expire entries natively.
func (m *Maintenance) AddPruning(c *WeatherCache, interval time.Duration) (bool, error) {
	if c == nil || !c.NeedsPruning() {
		return false, nil
	}
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			n, err := c.Prune(ctx)
			if err != nil {
				m.logger.Warn("cache prune failed", zap.Error(err))
				return
			}
			if n > 0 {
				m.logger.Info("cache pruned", zap.Int64("removed", n), zap.String("backend", c.Backend()))
			}
		}),
		gocron.WithName("cache-prune"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return false, fmt.Errorf("schedule cache pruning: %w", err)
	}
	m.jobs++
	return true, nil
}

// Jobs returns how many jobs are registered.
func (m *Maintenance) Jobs() int { return m.jobs }

// Start begins running registered jobs.
func (m *Maintenance) Start() {
	m.scheduler.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (m *Maintenance) Shutdown() error {
	return m.scheduler.Shutdown()
}
