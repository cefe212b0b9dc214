package sqlstorage

import (
	"github.com/dreamerjackson/leadcrawler/generator"
	"github.com/dreamerjackson/leadcrawler/sqldb"
	"go.uber.org/zap"
)

type options struct {
	logger  *zap.Logger
	sqlURL  string
	dialect sqldb.Dialect
	ids     generator.IDGenerator
}

var defaultOptions = options{
	logger:  zap.NewNop(),
	dialect: sqldb.MySQL,
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithSQLURL(sqlURL string) Option {
	return func(opts *options) {
		opts.sqlURL = sqlURL
	}
}

func WithDialect(d sqldb.Dialect) Option {
	return func(opts *options) {
		opts.dialect = d
	}
}

// WithIDGenerator sets the source of IDs for rows saved without one.
func WithIDGenerator(g generator.IDGenerator) Option {
	return func(opts *options) {
		opts.ids = g
	}
}
