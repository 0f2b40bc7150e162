package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/twentyfive/authgate/internal/monitoring"
	"github.com/twentyfive/authgate/pkg/logger"
	"github.com/twentyfive/authgate/pkg/metrics"
)

const (
	defaultTokenSpec = "@hourly"
	defaultCacheSpec = "@every 15m"

	JobVerificationTokens = "verification_tokens"
	JobCacheEntries       = "cache_entries"
)

// Purger deletes rows that expired before now and reports how many went.
// Satisfied by services.VerificationTokenService and cache.DatabaseStore.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type job struct {
	name     string
	schedule string
	purger   Purger
}

// Cleaner runs the background sweeps that keep the token and cache tables small.
type Cleaner struct {
	tokens  Purger
	cache   Purger
	tracker *monitoring.JobTracker
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger

	tokenSchedule string
	cacheSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithVerificationTokens enables the expired OTP token sweep.
func WithVerificationTokens(p Purger) Option {
	return func(cleaner *Cleaner) {
		cleaner.tokens = p
	}
}

// WithCacheEntries enables the expired cache row sweep. Only the database
// store needs it; Redis expires keys itself.
func WithCacheEntries(p Purger) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = p
	}
}

// WithTracker records job outcomes for the maintenance health probe.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache cleanup.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. Jobs without a purger are skipped.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		now:           time.Now,
		tokenSchedule: defaultTokenSpec,
		cacheSchedule: defaultCacheSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.tokens != nil {
		jobs = append(jobs, job{name: JobVerificationTokens, schedule: c.tokenSchedule, purger: c.tokens})
	}
	if c.cache != nil {
		jobs = append(jobs, job{name: JobCacheEntries, schedule: c.cacheSchedule, purger: c.cache})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			_ = c.run(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every enabled job sequentially, aggregating failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.run(ctx, j))
	}
	return errs
}

func (c *Cleaner) run(ctx context.Context, j job) error {
	now := c.now()
	removed, err := j.purger.PurgeExpired(ctx, now)
	if c.tracker != nil {
		c.tracker.Record(j.name, now, err)
	}

	if err != nil {
		metrics.MaintenanceRuns.WithLabelValues(j.name, "failure").Inc()
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		return fmt.Errorf("maintenance: %s: %w", j.name, err)
	}

	metrics.MaintenanceRuns.WithLabelValues(j.name, "success").Inc()
	if removed > 0 {
		c.log.Debug("maintenance job purged rows", zap.String("job", j.name), zap.Int64("removed", removed))
	}
	return nil
}
