package election

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	logger        *zap.Logger
	prefix        string
	ttl           int
	checkInterval time.Duration
}

var defaultOptions = options{
	logger:        zap.NewNop(),
	prefix:        "/leadcrawler/election",
	ttl:           5,
	checkInterval: 20 * time.Second,
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithPrefix(prefix string) Option {
	return func(opts *options) {
		opts.prefix = prefix
	}
}

// WithTTL sets the session lease in seconds.
func WithTTL(ttl int) Option {
	return func(opts *options) {
		opts.ttl = ttl
	}
}

func WithCheckInterval(d time.Duration) Option {
	return func(opts *options) {
		opts.checkInterval = d
	}
}
