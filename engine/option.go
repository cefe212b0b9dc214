package engine

import (
	"time"

	"github.com/dreamerjackson/leadcrawler/election"
	"github.com/dreamerjackson/leadcrawler/enrich"
	"go.uber.org/zap"
)

type Option func(opts *options)

type options struct {
	WorkCount      int
	Logger         *zap.Logger
	tick           string
	enrichSchedule string
	enrichRequest  enrich.Request
	leader         election.Leader
	scheduler      Scheduler
	now            func() time.Time
}

var defaultOptions = options{
	WorkCount: 4,
	Logger:    zap.NewNop(),
	tick:      "@every 1m",
	leader:    election.Always{},
	now:       time.Now,
}

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.Logger = logger
	}
}

func WithWorkCount(workCount int) Option {
	return func(opts *options) {
		opts.WorkCount = workCount
	}
}

// WithTick sets the cron spec of the due-target scan.
func WithTick(spec string) Option {
	return func(opts *options) {
		opts.tick = spec
	}
}

// WithEnrichment schedules an enrichment batch on the cron spec. An empty
// spec disables scheduled enrichment.
func WithEnrichment(spec string, req enrich.Request) Option {
	return func(opts *options) {
		opts.enrichSchedule = spec
		opts.enrichRequest = req
	}
}

func WithLeader(l election.Leader) Option {
	return func(opts *options) {
		opts.leader = l
	}
}

func WithScheduler(scheduler Scheduler) Option {
	return func(opts *options) {
		opts.scheduler = scheduler
	}
}

func WithClock(now func() time.Time) Option {
	return func(opts *options) {
		opts.now = now
	}
}
