package fetcher

import (
	"time"

	"github.com/dreamerjackson/leadcrawler/limiter"
	"github.com/dreamerjackson/leadcrawler/proxy"
	"go.uber.org/zap"
)

type options struct {
	logger       *zap.Logger
	timeout      time.Duration
	userAgent    string
	proxy        proxy.Func
	limiter      limiter.RateLimiter
	hostInterval time.Duration
	browserPath  string
	headless     bool
	browserProxy string
}

var defaultOptions = options{
	logger:   zap.NewNop(),
	timeout:  30 * time.Second,
	headless: true,
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithTimeout sets the timeout used when a request carries none.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *options) {
		opts.timeout = timeout
	}
}

// WithUserAgent pins the User-Agent; by default it rotates per request.
func WithUserAgent(ua string) Option {
	return func(opts *options) {
		opts.userAgent = ua
	}
}

func WithProxy(p proxy.Func) Option {
	return func(opts *options) {
		opts.proxy = p
	}
}

// WithLimiter throttles every fetch, regardless of host.
func WithLimiter(l limiter.RateLimiter) Option {
	return func(opts *options) {
		opts.limiter = l
	}
}

// WithHostInterval spaces requests to the same host by at least d.
func WithHostInterval(d time.Duration) Option {
	return func(opts *options) {
		opts.hostInterval = d
	}
}

func WithBrowserPath(path string) Option {
	return func(opts *options) {
		opts.browserPath = path
	}
}

func WithHeadless(headless bool) Option {
	return func(opts *options) {
		opts.headless = headless
	}
}

// WithBrowserProxy routes rendered fetches through one proxy server.
func WithBrowserProxy(addr string) Option {
	return func(opts *options) {
		opts.browserProxy = addr
	}
}
