package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imertz/greek-sites-monitor/internal/domain"
)

// Batcher hands the controller its next due batch and takes the probed
// results back. The store-backed source and the remote API client both
// satisfy it, which is the whole client/server split.
type Batcher interface {
	NextBatch(ctx context.Context) ([]domain.Site, error)
	Record(ctx context.Context, results []domain.CheckResult) error
}

// Checker performs a single reachability check.
type Checker interface {
	Check(ctx context.Context, site domain.Site) domain.CheckResult
}

// Cycle drives the monitoring loop: one tick selects a batch, probes all
// of it concurrently, and records the results in one write.
type Cycle struct {
	Logger   *zap.Logger
	Source   Batcher
	Checker  Checker
	Interval time.Duration
	Timeout  time.Duration
}

func NewCycle(logger *zap.Logger, source Batcher, checker Checker, interval, timeout time.Duration) *Cycle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Cycle{
		Logger:   logger,
		Source:   source,
		Checker:  checker,
		Interval: interval,
		Timeout:  timeout,
	}
}

// Run executes an immediate tick, then re-arms the timer after each tick
// completes. A slow batch therefore stretches the effective period;
// ticks never overlap. Stops when ctx is cancelled.
func (c *Cycle) Run(ctx context.Context) {
	if c.Interval <= 0 {
		c.Logger.Info("monitor_disabled")
		return
	}
	for {
		c.RunOnce(ctx)

		t := time.NewTimer(c.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			c.Logger.Info("monitor_stopped")
			return
		case <-t.C:
		}
	}
}

// RunOnce performs a single tick. Failures are logged and swallowed so
// the loop always reaches its next tick.
func (c *Cycle) RunOnce(ctx context.Context) {
	started := time.Now()

	batch, err := c.Source.NextBatch(ctx)
	if err != nil {
		c.Logger.Warn("batch_fetch_error", zap.Error(err))
		return
	}
	if len(batch) == 0 {
		// nothing due: skip the probe and record phases entirely
		return
	}

	results := c.probeBatch(ctx, batch)

	for _, r := range results {
		if r.Up {
			c.Logger.Info("site_up",
				zap.String("site", r.SiteName),
				zap.Intp("status", r.StatusCode),
				zap.Float64p("response_time", r.ResponseTime),
			)
		} else {
			c.Logger.Info("site_down",
				zap.String("site", r.SiteName),
				zap.Intp("status", r.StatusCode),
				zap.Stringp("error", r.ErrorMessage),
			)
		}
	}

	if err := c.Source.Record(ctx, results); err != nil {
		c.Logger.Warn("record_error", zap.Int("results", len(results)), zap.Error(err))
		return
	}

	c.Logger.Info("cycle_completed",
		zap.Int("checked", len(results)),
		zap.Duration("elapsed", time.Since(started)),
	)
}

// probeBatch checks every batch member concurrently and waits for all of
// them to settle. One hung probe is bounded by its own timeout; one
// failed probe never blocks the others from being recorded.
func (c *Cycle) probeBatch(ctx context.Context, batch []domain.Site) []domain.CheckResult {
	results := make([]domain.CheckResult, len(batch))
	var wg sync.WaitGroup
	wg.Add(len(batch))
	for i, site := range batch {
		go func(i int, site domain.Site) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.Timeout)
			defer cancel()
			results[i] = c.Checker.Check(cctx, site)
		}(i, site)
	}
	wg.Wait()
	return results
}
