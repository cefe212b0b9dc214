package sqldb

import (
	"go.uber.org/zap"
)

type options struct {
	logger       *zap.Logger
	sqlURL       string
	dialect      Dialect
	maxOpenConns int
}

var defaultOptions = options{
	logger:       zap.NewNop(),
	dialect:      MySQL,
	maxOpenConns: 64,
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithConnURL(sqlURL string) Option {
	return func(opts *options) {
		opts.sqlURL = sqlURL
	}
}

func WithDialect(d Dialect) Option {
	return func(opts *options) {
		opts.dialect = d
	}
}

func WithMaxOpenConns(n int) Option {
	return func(opts *options) {
		opts.maxOpenConns = n
	}
}
