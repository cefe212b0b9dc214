// Package app builds the crawler's object graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dreamerjackson/leadcrawler/config"
	"github.com/dreamerjackson/leadcrawler/election"
	"github.com/dreamerjackson/leadcrawler/engine"
	"github.com/dreamerjackson/leadcrawler/enrich"
	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/generator"
	"github.com/dreamerjackson/leadcrawler/limiter"
	"github.com/dreamerjackson/leadcrawler/log"
	"github.com/dreamerjackson/leadcrawler/notify"
	"github.com/dreamerjackson/leadcrawler/proxy"
	"github.com/dreamerjackson/leadcrawler/quality"
	"github.com/dreamerjackson/leadcrawler/runner"
	"github.com/dreamerjackson/leadcrawler/spider"
	"github.com/dreamerjackson/leadcrawler/sqldb"
	"github.com/dreamerjackson/leadcrawler/sqlstorage"
	"github.com/dreamerjackson/leadcrawler/strategy"
	"go.uber.org/zap"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	NodeIP   string
	Store    *sqlstorage.SQLStorage
	Fetcher  *fetcher.Service
	Registry *strategy.Registry
	Gates    *quality.Registry
	Sink     notify.Sink
	Runner   *runner.Runner
	Enricher *enrich.Coordinator

	closers []io.Closer
}

func New(cfg *config.Config) (*App, error) {
	logger, logCloser, err := log.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, closers: []io.Closer{logCloser}}

	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.Config

	a.NodeIP = cfg.Scheduler.NodeIP
	if a.NodeIP == "" {
		if ip, err := election.LocalIP(); err == nil {
			a.NodeIP = ip
		}
	}
	ids, err := generator.NewSnowflake(generator.NodeID(a.NodeIP))
	if err != nil {
		return err
	}

	dialect, err := sqldb.ParseDialect(cfg.Storage.Type)
	if err != nil {
		return err
	}
	a.Store, err = sqlstorage.New(
		sqlstorage.WithSQLURL(cfg.Storage.SQLURL),
		sqlstorage.WithDialect(dialect),
		sqlstorage.WithLogger(a.Logger.Named("sqlstorage")),
		sqlstorage.WithIDGenerator(ids),
	)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", dialect, err)
	}
	a.closers = append(a.closers, a.Store)
	a.Logger.Info("storage ready", zap.String("type", string(dialect)))

	fopts := []fetcher.Option{
		fetcher.WithLogger(a.Logger.Named("fetcher")),
		fetcher.WithHeadless(cfg.Fetcher.Headless),
		fetcher.WithHostInterval(cfg.Fetcher.HostIntervalDuration()),
	}
	if d := cfg.Fetcher.TimeoutDuration(); d > 0 {
		fopts = append(fopts, fetcher.WithTimeout(d))
	}
	if cfg.Fetcher.UserAgent != "" {
		fopts = append(fopts, fetcher.WithUserAgent(cfg.Fetcher.UserAgent))
	}
	if cfg.Fetcher.BrowserPath != "" {
		fopts = append(fopts, fetcher.WithBrowserPath(cfg.Fetcher.BrowserPath))
	}
	if len(cfg.Fetcher.Proxy) > 0 {
		p, err := proxy.RoundRobinProxySwitcher(cfg.Fetcher.Proxy...)
		if err != nil {
			return fmt.Errorf("proxy list: %w", err)
		}
		fopts = append(fopts, fetcher.WithProxy(p), fetcher.WithBrowserProxy(cfg.Fetcher.Proxy[0]))
	}
	if l := limiter.FromConfig(cfg.Fetcher.Limits); l != nil {
		fopts = append(fopts, fetcher.WithLimiter(l))
	}
	a.Fetcher = fetcher.New(fopts...)
	a.closers = append(a.closers, a.Fetcher)

	a.Registry = strategy.Default()
	if err := a.Registry.RegisterScripts(cfg.Strategies); err != nil {
		return err
	}
	a.Gates = quality.NewRegistry()

	sinks := notify.Multi{notify.LogSink{Logger: a.Logger.Named("notify")}}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Webhook.URL,
			notify.WithWebhookLogger(a.Logger.Named("webhook")),
			notify.WithWebhookTimeout(cfg.Webhook.Timeout())))
	}
	a.Sink = sinks

	a.Runner = runner.New(a.Store, a.Fetcher,
		runner.WithLogger(a.Logger.Named("runner")),
		runner.WithGates(a.Gates),
		runner.WithSink(a.Sink))
	a.Enricher = enrich.New(a.Store, a.Fetcher, a.Registry,
		enrich.WithLogger(a.Logger.Named("enrich")),
		enrich.WithGates(a.Gates),
		enrich.WithSink(a.Sink),
		enrich.WithDelay(cfg.Enrichment.Delay()),
		enrich.WithLimit(cfg.Enrichment.BatchSize))

	return nil
}

// Leader returns the etcd elector when endpoints are configured, and a
// permanent leader otherwise.
func (a *App) Leader() (election.Leader, error) {
	if len(a.Config.Scheduler.Etcd) == 0 {
		return election.Always{}, nil
	}
	cli, err := election.Dial(a.Config.Scheduler.Etcd)
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	e := election.New(cli, election.NodeID(a.NodeIP), election.WithLogger(a.Logger.Named("election")))
	a.closers = append(a.closers, e)
	return e, nil
}

func (a *App) Engine(leader election.Leader) *engine.Engine {
	cfg := a.Config
	opts := []engine.Option{
		engine.WithLogger(a.Logger.Named("engine")),
		engine.WithWorkCount(cfg.Scheduler.Workers),
		engine.WithTick(cfg.Scheduler.Tick),
		engine.WithLeader(leader),
	}
	if cfg.Enrichment.Enabled {
		opts = append(opts, engine.WithEnrichment(cfg.Enrichment.Schedule, enrich.Request{
			Platform: cfg.Enrichment.Platform,
			Limit:    cfg.Enrichment.BatchSize,
		}))
	}
	return engine.New(a.Store, a.Runner, a.Enricher, opts...)
}

// ResolveTarget finds a target by numeric ID or by name.
func (a *App) ResolveTarget(ctx context.Context, ref string) (*spider.Target, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("target name or id is required")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		t, err := a.Store.GetTarget(ctx, id)
		if err == nil || !errors.Is(err, spider.ErrNotFound) {
			return t, err
		}
	}
	t, err := a.Store.GetTargetByName(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", ref, err)
	}
	return t, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.Logger.Sync()
	return errors.Join(errs...)
}

// Load reads the configuration at path and builds the application.
func Load(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}
