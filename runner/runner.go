// Package runner executes one scrape pass for one target and keeps its run
// record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dreamerjackson/leadcrawler/extract"
	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/notify"
	"github.com/dreamerjackson/leadcrawler/quality"
	"github.com/dreamerjackson/leadcrawler/spider"
	"go.uber.org/zap"
)

type Runner struct {
	options
	store   spider.Store
	fetcher fetcher.Fetcher
}

func New(store spider.Store, f fetcher.Fetcher, opts ...Option) *Runner {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.gates == nil {
		options.gates = quality.NewRegistry()
	}
	return &Runner{options: options, store: store, fetcher: f}
}

// failure is a run error with the kind it is recorded under.
type failure struct {
	kind string
	err  error
}

func (f *failure) Error() string { return f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func fail(kind string, err error) *failure {
	return &failure{kind: kind, err: err}
}

// Run performs one pass over the target and returns its terminal run
// record. A failed run is reported through the record, not the error; the
// error is set only when the run could not be loaded or persisted.
func (r *Runner) Run(ctx context.Context, targetID int64, trigger spider.Trigger) (*spider.RunRecord, error) {
	target, err := r.store.GetTarget(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("load target %d: %w", targetID, err)
	}

	run := spider.NewRun(target.ID, trigger, time.Now())
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run for %q: %w", target.Name, err)
	}
	logger := r.logger.With(zap.String("target", target.Name), zap.Int64("run", run.ID))

	if err := run.Start(time.Now()); err != nil {
		return run, err
	}
	if err := r.store.UpdateRun(ctx, run); err != nil {
		logger.Error("persist running state failed", zap.Error(err))
	}
	logger.Info("run started", zap.String("trigger", string(run.Trigger)), zap.String("url", target.StartURL))

	ferr := r.execute(ctx, logger, target, run)

	// terminal bookkeeping outlives a cancelled caller
	persistCtx := context.WithoutCancel(ctx)
	finished := time.Now()
	if ferr == nil {
		err = run.Succeed(finished)
		if mErr := r.store.MarkRun(persistCtx, target.ID, finished); mErr != nil {
			logger.Error("mark last run failed", zap.Error(mErr))
		}
	} else {
		err = run.Fail(ferr.kind, ferr.Error(), finished)
	}
	if err != nil {
		return run, err
	}

	if err := r.store.UpdateRun(persistCtx, run); err != nil {
		return run, fmt.Errorf("persist run %d: %w", run.ID, err)
	}
	if err := r.sink.RunFinished(persistCtx, notify.Summarize(run)); err != nil {
		logger.Warn("publish run summary failed", zap.Error(err))
	}

	return run, nil
}

func (r *Runner) execute(ctx context.Context, logger *zap.Logger, target *spider.Target, run *spider.RunRecord) *failure {
	plan, err := target.Config.Compile()
	if err != nil {
		return fail(spider.KindConfig, err)
	}

	gate := r.gates.Gate(quality.Prospect)
	if len(plan.IdentityFields) > 0 {
		gate = quality.IdentityGate{Fields: plan.IdentityFields}
	}

	runCtx, cancel := context.WithTimeout(ctx, plan.RunTimeout)
	defer cancel()

	var (
		pageItems []int
		warnings  []string
	)
	defer func() {
		run.Stats["pages"] = len(pageItems)
		run.Stats["page_items"] = pageItems
		if len(warnings) > 0 {
			run.Stats["warnings"] = warnings
		}
	}()

	pageURL := target.StartURL
	for page := 1; page <= plan.MaxPages && pageURL != ""; page++ {
		if f := r.interrupted(ctx, runCtx, plan.RunTimeout, page); f != nil {
			return f
		}

		p, err := r.fetcher.Fetch(runCtx, &fetcher.Request{
			URL:       pageURL,
			Mode:      target.Mode,
			Timeout:   plan.Timeout,
			Headers:   plan.Headers,
			WaitUntil: plan.WaitUntil,
		})
		if err != nil {
			if f := r.interrupted(ctx, runCtx, plan.RunTimeout, page); f != nil {
				return f
			}
			return fail(string(fetcher.KindOf(err)), err)
		}
		run.Stats["last_url"] = p.URL

		res, err := plan.Extractor.Extract(p.Body, p.URL)
		switch {
		case errors.Is(err, extract.ErrNoItems) && page == 1:
			return fail(spider.KindExtraction, fmt.Errorf("%s: %w", p.URL, err))
		case errors.Is(err, extract.ErrNoItems):
			warnings = append(warnings, fmt.Sprintf("page %d returned no items", page))
			logger.Info("pagination stopped on empty page", zap.Int("page", page), zap.String("url", p.URL))
			return nil
		case errors.Is(err, extract.ErrConfig):
			return fail(spider.KindConfig, err)
		case err != nil:
			return fail(spider.KindExtraction, err)
		}

		pageItems = append(pageItems, len(res.Items))
		run.ItemCount += len(res.Items)

		for _, item := range res.Items {
			stored, created, err := r.store.UpsertRecord(runCtx, spider.NewRecord(target.ID, p.URL, item.Strings()))
			if err != nil {
				if f := r.interrupted(ctx, runCtx, plan.RunTimeout, page); f != nil {
					return f
				}
				return fail(spider.KindStorage, err)
			}
			if created {
				run.CreatedCount++
			} else {
				run.UpdatedCount++
			}

			if !gate.Meaningful(stored.Merged()) {
				continue
			}
			if err := r.sink.Discovery(runCtx, notify.NewEvent(notify.KindDiscovery, stored, time.Now())); err != nil {
				logger.Warn("publish discovery failed", zap.Int64("record", stored.ID), zap.Error(err))
				continue
			}
			run.ForwardedCount++
		}

		logger.Debug("page done",
			zap.Int("page", page),
			zap.Int("items", len(res.Items)),
			zap.String("next", res.Next))
		pageURL = res.Next
	}

	return nil
}

// interrupted reports a run that hit its overall deadline or whose caller
// went away.
func (r *Runner) interrupted(ctx, runCtx context.Context, limit time.Duration, page int) *failure {
	if runCtx.Err() == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fail(string(fetcher.KindUnknown), fmt.Errorf("run cancelled on page %d: %w", page, ctx.Err()))
	}
	return fail(string(fetcher.KindTimeout), fmt.Errorf("run exceeded %s on page %d: %w", limit, page, runCtx.Err()))
}
