package runner

import (
	"github.com/dreamerjackson/leadcrawler/notify"
	"github.com/dreamerjackson/leadcrawler/quality"
	"go.uber.org/zap"
)

type options struct {
	logger *zap.Logger
	gates  *quality.Registry
	sink   notify.Sink
}

var defaultOptions = options{
	logger: zap.NewNop(),
	sink:   notify.Nop{},
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
