package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// browser owns one Chrome process; every rendered fetch opens its own tab.
type browser struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func (b *browser) close() {
	b.browserCancel()
	b.allocCancel()
}

// startBrowser returns the running browser, launching a new one when none
// is running or the previous one died. Failed launches are not cached.
func (s *Service) startBrowser() (*browser, error) {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()

	if s.browser != nil {
		if s.browser.browserCtx.Err() == nil {
			return s.browser, nil
		}
		s.logger.Warn("browser exited, restarting", zap.Error(s.browser.browserCtx.Err()))
		s.browser.close()
		s.browser = nil
	}

	b, err := s.launch()
	if err != nil {
		return nil, err
	}
	s.browser = b
	return b, nil
}

// discardBrowser drops b so that the next rendered fetch launches a new one.
func (s *Service) discardBrowser(b *browser) {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()
	if s.browser == b {
		b.close()
		s.browser = nil
	}
}

func (s *Service) launchBrowser() (*browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserAgent(s.agent()),
	)
	if s.browserPath != "" {
		opts = append(opts, chromedp.ExecPath(s.browserPath))
	}
	if s.browserProxy != "" {
		opts = append(opts, chromedp.ProxyServer(s.browserProxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(s.logger.Sugar().Debugf),
	)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	s.logger.Info("browser started", zap.Bool("headless", s.headless))
	return &browser{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func (s *Service) fetchRendered(ctx context.Context, req *Request) (*Page, error) {
	b, err := s.startBrowser()
	if err != nil {
		return nil, err
	}
	p, err := s.render(ctx, b, req)
	if err != nil && ctx.Err() == nil && (b.browserCtx.Err() != nil || errors.Is(err, context.Canceled)) {
		// the tab was torn down from the browser side
		s.logger.Warn("browser lost during fetch", zap.String("url", req.URL), zap.Error(err))
		s.discardBrowser(b)
	}
	return p, err
}

func (s *Service) render(ctx context.Context, b *browser, req *Request) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	wait := req.WaitUntil
	if wait == "" {
		wait = WaitNetworkIdle
	}

	var navigating atomic.Bool
	idle := make(chan struct{})
	var idleOnce atomic.Bool
	if wait == WaitNetworkIdle {
		chromedp.ListenTarget(tabCtx, func(ev interface{}) {
			e, ok := ev.(*page.EventLifecycleEvent)
			if !ok || e.Name != "networkIdle" || !navigating.Load() {
				return
			}
			if idleOnce.CompareAndSwap(false, true) {
				close(idle)
			}
		})
	}

	setup := []chromedp.Action{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
	}
	if len(req.Headers) > 0 {
		headers := make(network.Headers, len(req.Headers))
		for k, v := range req.Headers {
			headers[k] = v
		}
		setup = append(setup, network.SetExtraHTTPHeaders(headers))
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		return nil, s.renderErr(ctx, err)
	}

	navigating.Store(true)
	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(req.URL))
	if err != nil {
		return nil, s.renderErr(ctx, err)
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}
	if status >= 400 {
		return nil, &Error{
			Kind:       KindHTTP,
			URL:        req.URL,
			StatusCode: status,
			Err:        fmt.Errorf("error status code:%d", status),
		}
	}

	var (
		location string
		content  string
	)
	actions := []chromedp.Action{}
	switch wait {
	case WaitNetworkIdle:
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			select {
			case <-idle:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))
	case WaitDOMContentLoaded:
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &content, chromedp.ByQuery),
	)
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, s.renderErr(ctx, err)
	}

	return &Page{
		URL:        location,
		Body:       []byte(content),
		StatusCode: status,
		Mode:       Rendered,
	}, nil
}

// renderErr prefers the caller's deadline over the context.Canceled that
// chromedp reports once the tab is torn down.
func (s *Service) renderErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
