package enrich

import (
	"time"

	"github.com/dreamerjackson/leadcrawler/notify"
	"github.com/dreamerjackson/leadcrawler/quality"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 50
	DefaultDelay = 2 * time.Second
)

type options struct {
	logger *zap.Logger
	gates  *quality.Registry
	sink   notify.Sink
	delay  time.Duration
	limit  int
}

var defaultOptions = options{
	logger: zap.NewNop(),
	sink:   notify.Nop{},
	delay:  DefaultDelay,
	limit:  DefaultLimit,
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithGates(g *quality.Registry) Option {
	return func(opts *options) {
		opts.gates = g
	}
}

func WithSink(s notify.Sink) Option {
	return func(opts *options) {
		opts.sink = s
	}
}

// WithDelay sets the minimum spacing between two detail fetches.
func WithDelay(d time.Duration) Option {
	return func(opts *options) {
		opts.delay = d
	}
}

func WithLimit(n int) Option {
	return func(opts *options) {
		opts.limit = n
	}
}
