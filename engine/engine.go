// Package engine dispatches due targets and enrichment batches to a bounded
// pool of workers.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamerjackson/leadcrawler/enrich"
	"github.com/dreamerjackson/leadcrawler/spider"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type JobKind string

const (
	JobRun    JobKind = "run"
	JobEnrich JobKind = "enrich"
)

type Job struct {
	Kind     JobKind
	TargetID int64
	Trigger  spider.Trigger
	// Priority jobs overtake queued ones.
	Priority int
	Enrich   enrich.Request
}

type Runner interface {
	Run(ctx context.Context, targetID int64, trigger spider.Trigger) (*spider.RunRecord, error)
}

type Enricher interface {
	Enrich(ctx context.Context, req enrich.Request) (*enrich.BatchResult, error)
}

type TargetLister interface {
	ListTargets(ctx context.Context, enabledOnly bool) ([]*spider.Target, error)
}

type Engine struct {
	targets  TargetLister
	runner   Runner
	enricher Enricher

	mu           sync.Mutex
	inflight     map[int64]bool
	lastDispatch map[int64]time.Time
	enriching    int32

	wg sync.WaitGroup
	options
}

func New(targets TargetLister, runner Runner, enricher Enricher, opts ...Option) *Engine {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.scheduler == nil {
		options.scheduler = NewSchedule()
	}
	if options.WorkCount <= 0 {
		options.WorkCount = 1
	}

	return &Engine{
		targets:      targets,
		runner:       runner,
		enricher:     enricher,
		inflight:     make(map[int64]bool),
		lastDispatch: make(map[int64]time.Time),
		options:      options,
	}
}

// Run starts the scheduler, the workers and the cron entries, and blocks
// until ctx is done and in-progress jobs returned.
func (e *Engine) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(e.tick, func() { e.Tick(ctx) }); err != nil {
		return fmt.Errorf("scheduler tick %q: %w", e.tick, err)
	}
	if e.enrichSchedule != "" && e.enricher != nil {
		if _, err := c.AddFunc(e.enrichSchedule, func() { e.ScheduleEnrichment(ctx) }); err != nil {
			return fmt.Errorf("enrichment schedule %q: %w", e.enrichSchedule, err)
		}
	}

	go e.scheduler.Schedule(ctx)
	for i := 0; i < e.WorkCount; i++ {
		e.wg.Add(1)
		go e.CreateWork(ctx)
	}

	c.Start()
	e.Logger.Info("engine started",
		zap.Int("workers", e.WorkCount),
		zap.String("tick", e.tick),
		zap.String("enrichment", e.enrichSchedule))
	e.Tick(ctx)

	<-ctx.Done()
	<-c.Stop().Done()
	e.wg.Wait()
	e.Logger.Info("engine stopped")

	return nil
}

// Tick queues a scheduled run for every enabled target that is due and has
// no scheduled run in flight. It returns the number of runs queued.
func (e *Engine) Tick(ctx context.Context) int {
	if !e.leader.IsLeader() {
		e.Logger.Debug("not leader, skip dispatch")
		return 0
	}

	ts, err := e.targets.ListTargets(ctx, true)
	if err != nil {
		e.Logger.Error("list targets failed", zap.Error(err))
		return 0
	}

	now := e.now()
	var jobs []*Job
	e.mu.Lock()
	for _, t := range ts {
		if e.inflight[t.ID] {
			e.Logger.Debug("run in flight", zap.String("target", t.Name))
			continue
		}
		if !t.Due(now, e.lastDispatch[t.ID]) {
			continue
		}
		e.inflight[t.ID] = true
		e.lastDispatch[t.ID] = now
		jobs = append(jobs, &Job{Kind: JobRun, TargetID: t.ID, Trigger: spider.TriggerScheduled})
	}
	e.mu.Unlock()

	for i, j := range jobs {
		if err := e.scheduler.Push(ctx, j); err != nil {
			for _, rest := range jobs[i:] {
				e.done(rest)
			}
			return i
		}
	}
	if len(jobs) > 0 {
		e.Logger.Info("dispatched due targets", zap.Int("count", len(jobs)))
	}

	return len(jobs)
}

// ScheduleEnrichment queues the configured enrichment batch unless one is
// still queued or running.
func (e *Engine) ScheduleEnrichment(ctx context.Context) bool {
	if !e.leader.IsLeader() || e.enricher == nil {
		return false
	}
	if !atomic.CompareAndSwapInt32(&e.enriching, 0, 1) {
		e.Logger.Debug("enrichment in flight")
		return false
	}
	j := &Job{Kind: JobEnrich, Trigger: spider.TriggerScheduled, Enrich: e.enrichRequest}
	if err := e.scheduler.Push(ctx, j); err != nil {
		e.done(j)
		return false
	}
	return true
}

// Submit queues a job right away. Jobs not triggered by the schedule are
// prioritised and bypass in-flight suppression.
func (e *Engine) Submit(ctx context.Context, j *Job) error {
	if j.Trigger == "" {
		j.Trigger = spider.TriggerManual
	}
	if j.Kind == "" {
		j.Kind = JobRun
	}
	if j.Trigger != spider.TriggerScheduled && j.Priority == 0 {
		j.Priority = 1
	}
	return e.scheduler.Push(ctx, j)
}

func (e *Engine) CreateWork(ctx context.Context) {
	defer e.wg.Done()

	for {
		j, err := e.scheduler.Pull(ctx)
		if err != nil {
			return
		}
		e.handle(ctx, j)
	}
}

func (e *Engine) handle(ctx context.Context, j *Job) {
	defer func() {
		if err := recover(); err != nil {
			e.Logger.Error("worker panic",
				zap.Any("err", err),
				zap.String("stack", string(debug.Stack())))
		}
		e.done(j)
	}()

	switch j.Kind {
	case JobEnrich:
		if e.enricher == nil {
			return
		}
		res, err := e.enricher.Enrich(ctx, j.Enrich)
		if err != nil {
			e.Logger.Error("enrichment batch failed", zap.Error(err))
			return
		}
		e.Logger.Info("enrichment batch finished",
			zap.Int("selected", res.Selected),
			zap.Int("enriched", res.Enriched),
			zap.Int("failed", res.Failed))
	default:
		run, err := e.runner.Run(ctx, j.TargetID, j.Trigger)
		if err != nil {
			e.Logger.Error("run failed", zap.Int64("target", j.TargetID), zap.Error(err))
			return
		}
		e.Logger.Debug("run finished",
			zap.Int64("target", j.TargetID),
			zap.Int64("run", run.ID),
			zap.String("status", string(run.Status)))
	}
}

func (e *Engine) done(j *Job) {
	if j.Trigger != spider.TriggerScheduled {
		return
	}
	switch j.Kind {
	case JobEnrich:
		atomic.StoreInt32(&e.enriching, 0)
	default:
		e.mu.Lock()
		delete(e.inflight, j.TargetID)
		e.mu.Unlock()
	}
}
