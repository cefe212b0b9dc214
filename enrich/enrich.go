// Package enrich fetches the detail page of discovered records and merges
// what the platform strategy finds there.
package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/limiter"
	"github.com/dreamerjackson/leadcrawler/notify"
	"github.com/dreamerjackson/leadcrawler/quality"
	"github.com/dreamerjackson/leadcrawler/spider"
	"github.com/dreamerjackson/leadcrawler/strategy"
	"go.uber.org/zap"
)

var ErrNothingExtracted = errors.New("no detail fields extracted")

type Request struct {
	// TargetID restricts the batch to one target when non-zero.
	TargetID int64
	// Platform restricts the batch to targets whose start URL resolves to
	// this strategy.
	Platform      string
	Limit         int
	IncludeFailed bool
	// Mode overrides the fetch mode of the record's target.
	Mode fetcher.Mode
	// Delay overrides the coordinator's delay floor when positive.
	Delay  time.Duration
	DryRun bool
}

type Outcome struct {
	RecordID  int64
	TargetID  int64
	SourceURL string
	Strategy  string
	State     spider.EnrichState
	Added     int
	Forwarded bool
	// Unsaved is set when the result could not be stored; State is then the
	// state the record still has in storage.
	Unsaved bool
	Err     string
}

type BatchResult struct {
	Selected  int
	Enriched  int
	Failed    int
	Forwarded int
	Unsaved   int
	Outcomes  []Outcome
}

type Coordinator struct {
	options
	store    spider.Store
	fetcher  fetcher.Fetcher
	registry *strategy.Registry
}

func New(store spider.Store, f fetcher.Fetcher, registry *strategy.Registry, opts ...Option) *Coordinator {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.gates == nil {
		options.gates = quality.NewRegistry()
	}
	return &Coordinator{options: options, store: store, fetcher: f, registry: registry}
}

// Enrich runs one batch. Per-record failures are reported in the result;
// the error is set when the selection fails or ctx ends the batch early, in
// which case the partial result is returned with it.
func (c *Coordinator) Enrich(ctx context.Context, req Request) (*BatchResult, error) {
	recs, err := c.selectRecords(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{Selected: len(recs)}
	if req.DryRun {
		for _, r := range recs {
			res.Outcomes = append(res.Outcomes, Outcome{
				RecordID:  r.ID,
				TargetID:  r.TargetID,
				SourceURL: r.SourceURL,
				Strategy:  c.registry.Resolve(r.SourceURL),
				State:     r.EnrichState,
			})
		}
		return res, nil
	}

	delay := c.delay
	if req.Delay > 0 {
		delay = req.Delay
	}
	floor := limiter.Floor(delay)
	targets := make(map[int64]*spider.Target)

	for _, r := range recs {
		if err := floor.Wait(ctx); err != nil {
			return res, err
		}

		out, cancelled := c.enrichOne(ctx, r, req.Mode, c.target(ctx, targets, r.TargetID))
		if cancelled {
			return res, ctx.Err()
		}
		res.Outcomes = append(res.Outcomes, out)
		switch out.State {
		case spider.Enriched:
			res.Enriched++
		case spider.EnrichFailed:
			res.Failed++
		}
		if out.Forwarded {
			res.Forwarded++
		}
		if out.Unsaved {
			res.Unsaved++
		}
	}

	c.logger.Info("enrichment batch done",
		zap.Int("selected", res.Selected),
		zap.Int("enriched", res.Enriched),
		zap.Int("failed", res.Failed),
		zap.Int("forwarded", res.Forwarded),
		zap.Int("unsaved", res.Unsaved))

	return res, nil
}

func (c *Coordinator) selectRecords(ctx context.Context, req Request) ([]*spider.Record, error) {
	f := spider.RecordFilter{Limit: req.Limit, IncludeFailed: req.IncludeFailed}
	if f.Limit <= 0 {
		f.Limit = c.limit
	}
	if req.TargetID != 0 {
		f.TargetIDs = []int64{req.TargetID}
	}

	if req.Platform != "" {
		all, err := c.store.ListTargets(ctx, false)
		if err != nil {
			return nil, fmt.Errorf("list targets: %w", err)
		}
		var ids []int64
		for _, t := range all {
			if c.registry.Resolve(t.StartURL) != req.Platform {
				continue
			}
			if req.TargetID != 0 && t.ID != req.TargetID {
				continue
			}
			ids = append(ids, t.ID)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		f.TargetIDs = ids
	}

	recs, err := c.store.ListUndetailed(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	return recs, nil
}

func (c *Coordinator) target(ctx context.Context, cache map[int64]*spider.Target, id int64) *spider.Target {
	if t, ok := cache[id]; ok {
		return t
	}
	t, err := c.store.GetTarget(ctx, id)
	if err != nil {
		c.logger.Warn("load target for enrichment failed", zap.Int64("target", id), zap.Error(err))
		t = nil
	}
	cache[id] = t
	return t
}

// enrichOne processes a single record. It reports cancelled when ctx ended
// before the record reached a result state.
func (c *Coordinator) enrichOne(ctx context.Context, r *spider.Record, mode fetcher.Mode, t *spider.Target) (Outcome, bool) {
	out := Outcome{RecordID: r.ID, TargetID: r.TargetID, SourceURL: r.SourceURL}

	s := c.registry.For(r.SourceURL)
	if s.Name() == strategy.Generic && t != nil {
		s = c.registry.For(t.StartURL)
	}
	out.Strategy = s.Name()

	fr := &fetcher.Request{URL: r.SourceURL, Mode: mode}
	if t != nil {
		if fr.Mode == "" {
			fr.Mode = t.Mode
		}
		fr.Timeout = time.Duration(t.Config.TimeoutSeconds) * time.Second
		fr.Headers = t.Config.Headers
	}

	extracted, err := c.detail(ctx, s, fr)
	if err != nil && ctx.Err() != nil {
		return out, true
	}

	stored := r.EnrichState
	now := time.Now()
	if err != nil {
		r.EnrichState = spider.EnrichFailed
		r.EnrichError = err.Error()
	} else {
		out.Added = r.MergeDetail(extracted)
		r.EnrichState = spider.Enriched
		r.EnrichError = ""
	}
	r.EnrichedAt = &now
	out.State = r.EnrichState
	out.Err = r.EnrichError

	logger := c.logger.With(zap.Int64("record", r.ID), zap.String("url", r.SourceURL), zap.String("strategy", s.Name()))
	if err := c.store.SaveEnrichment(context.WithoutCancel(ctx), r); err != nil {
		logger.Error("save enrichment failed", zap.Error(err))
		out.State = stored
		out.Unsaved = true
		out.Err = fmt.Sprintf("%s: %v", spider.KindStorage, err)
		return out, false
	}
	if r.EnrichState == spider.EnrichFailed {
		logger.Warn("enrichment failed", zap.String("error", r.EnrichError))
		return out, false
	}

	if c.gates.Meaningful(quality.Lead, r.Merged()) {
		if err := c.sink.Enrichment(ctx, notify.NewEvent(notify.KindEnrichment, r, now)); err != nil {
			logger.Warn("publish enrichment failed", zap.Error(err))
		} else {
			out.Forwarded = true
		}
	}
	logger.Debug("record enriched", zap.Int("added", out.Added), zap.Bool("forwarded", out.Forwarded))

	return out, false
}

func (c *Coordinator) detail(ctx context.Context, s strategy.Strategy, fr *fetcher.Request) (map[string]string, error) {
	page, err := c.fetcher.Fetch(ctx, fr)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", spider.KindEnrichment, page.URL, err)
	}
	fields, err := s.Detail(doc, page.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", spider.KindEnrichment, s.Name(), err)
	}
	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			return fields, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", spider.KindEnrichment, ErrNothingExtracted)
}
