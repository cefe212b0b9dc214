// Package fetcher retrieves page content either with a plain HTTP GET or
// by rendering the page in a headless browser.
package fetcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dreamerjackson/leadcrawler/limiter"
	"go.uber.org/zap"
	"golang.org/x/text/transform"
)

type Mode string

const (
	Static   Mode = "static"
	Rendered Mode = "rendered"
)

// ParseMode accepts the canonical names plus the legacy "html" and
// "playwright" aliases found in older target files.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static", "html":
		return Static, nil
	case "rendered", "playwright", "browser":
		return Rendered, nil
	}
	return "", fmt.Errorf("unknown fetch mode %q", s)
}

// WaitCondition decides when a rendered page is ready to be captured.
type WaitCondition string

const (
	WaitLoad             WaitCondition = "load"
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitNetworkIdle      WaitCondition = "networkidle"
)

func ParseWaitCondition(s string) (WaitCondition, error) {
	switch w := WaitCondition(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return WaitNetworkIdle, nil
	case WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle:
		return w, nil
	}
	return "", fmt.Errorf("unknown wait condition %q", s)
}

type Request struct {
	URL       string
	Mode      Mode
	Timeout   time.Duration
	Headers   map[string]string
	WaitUntil WaitCondition
}

type Page struct {
	URL        string
	Body       []byte
	StatusCode int
	Mode       Mode
	Elapsed    time.Duration
}

type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Page, error)
}

var ErrInvalidURL = errors.New("invalid url")

type Service struct {
	options
	client *http.Client
	hosts  *limiter.PerHost

	browserMu sync.Mutex
	browser   *browser
	// launch starts a browser process. Replaced in tests.
	launch func() (*browser, error)
}

func New(opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if options.proxy != nil {
		transport.Proxy = options.proxy
	}

	s := &Service{
		options: options,
		client:  &http.Client{Transport: transport},
	}
	s.launch = s.launchBrowser
	if options.hostInterval > 0 {
		interval := options.hostInterval
		s.hosts = limiter.NewPerHost(func() limiter.RateLimiter {
			return limiter.NewBucket(interval, 1)
		})
	}

	return s
}

func (s *Service) Fetch(ctx context.Context, req *Request) (*Page, error) {
	if req == nil {
		return nil, &Error{Kind: KindUnknown, Err: ErrInvalidURL}
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &Error{Kind: KindUnknown, URL: req.URL, Err: ErrInvalidURL}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, newError(req.URL, err)
		}
	}
	if s.hosts != nil {
		if err := s.hosts.Wait(ctx, u.Host); err != nil {
			return nil, newError(req.URL, err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var page *Page
	if req.Mode == Rendered {
		page, err = s.fetchRendered(ctx, req)
	} else {
		page, err = s.fetchStatic(ctx, req)
	}
	if err != nil {
		fe := newError(req.URL, err)
		if ctx.Err() == context.DeadlineExceeded {
			fe.Kind = KindTimeout
		}
		s.logger.Debug("fetch failed",
			zap.String("url", req.URL),
			zap.String("mode", string(req.Mode)),
			zap.String("kind", string(fe.Kind)),
			zap.Error(err),
		)
		return nil, fe
	}

	page.Elapsed = time.Since(start)
	s.logger.Debug("fetched",
		zap.String("url", req.URL),
		zap.String("mode", string(page.Mode)),
		zap.Int("bytes", len(page.Body)),
		zap.Duration("elapsed", page.Elapsed),
	)

	return page, nil
}

func (s *Service) fetchStatic(ctx context.Context, req *Request) (*Page, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", s.agent())
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &Error{
			Kind:       KindHTTP,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("error status code:%d", resp.StatusCode),
		}
	}

	bodyReader := bufio.NewReader(resp.Body)
	e := DetermineEncoding(bodyReader, resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(transform.NewReader(bodyReader, e.NewDecoder()))
	if err != nil {
		return nil, err
	}

	return &Page{
		URL:        resp.Request.URL.String(),
		Body:       body,
		StatusCode: resp.StatusCode,
		Mode:       Static,
	}, nil
}

func (s *Service) agent() string {
	if s.userAgent != "" {
		return s.userAgent
	}
	return randomUserAgent()
}

// Close shuts down the browser if one was started.
func (s *Service) Close() error {
	s.browserMu.Lock()
	if s.browser != nil {
		s.browser.close()
		s.browser = nil
	}
	s.browserMu.Unlock()
	s.client.CloseIdleConnections()
	return nil
}
