// Package notify carries records that passed the quality gate, and run
// outcomes, to whatever sits downstream of the crawler.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/dreamerjackson/leadcrawler/spider"
	"go.uber.org/zap"
)

type Kind string

const (
	KindDiscovery  Kind = "discovery"
	KindEnrichment Kind = "enrichment"
)

type Event struct {
	Kind      Kind              `json:"kind"`
	RecordID  int64             `json:"record_id"`
	TargetID  int64             `json:"target_id"`
	SourceURL string            `json:"source_url,omitempty"`
	Fields    map[string]string `json:"fields"`
	At        time.Time         `json:"at"`
}

func NewEvent(kind Kind, r *spider.Record, at time.Time) Event {
	return Event{
		Kind:      kind,
		RecordID:  r.ID,
		TargetID:  r.TargetID,
		SourceURL: r.SourceURL,
		Fields:    r.Merged(),
		At:        at,
	}
}

type RunSummary struct {
	TargetID     int64            `json:"target_id"`
	RunID        int64            `json:"run_id"`
	Trigger      spider.Trigger   `json:"trigger"`
	Status       spider.RunStatus `json:"status"`
	ItemCount    int              `json:"item_count"`
	Created      int              `json:"created"`
	Updated      int              `json:"updated"`
	Forwarded    int              `json:"forwarded"`
	ErrorKind    string           `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Duration     time.Duration    `json:"duration"`
}

func Summarize(r *spider.RunRecord) RunSummary {
	return RunSummary{
		TargetID:     r.TargetID,
		RunID:        r.ID,
		Trigger:      r.Trigger,
		Status:       r.Status,
		ItemCount:    r.ItemCount,
		Created:      r.CreatedCount,
		Updated:      r.UpdatedCount,
		Forwarded:    r.ForwardedCount,
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		Duration:     r.Duration(),
	}
}

// Sink receives events. Implementations must be safe for concurrent use;
// a returned error is logged by the caller and never fails a run.
type Sink interface {
	Discovery(ctx context.Context, e Event) error
	Enrichment(ctx context.Context, e Event) error
	RunFinished(ctx context.Context, s RunSummary) error
}

type Nop struct{}

func (Nop) Discovery(context.Context, Event) error        { return nil }
func (Nop) Enrichment(context.Context, Event) error       { return nil }
func (Nop) RunFinished(context.Context, RunSummary) error { return nil }

// LogSink writes every event as a structured log line.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Discovery(_ context.Context, e Event) error {
	s.event(e)
	return nil
}

func (s LogSink) Enrichment(_ context.Context, e Event) error {
	s.event(e)
	return nil
}

func (s LogSink) event(e Event) {
	s.Logger.Info("record forwarded",
		zap.String("kind", string(e.Kind)),
		zap.Int64("record", e.RecordID),
		zap.Int64("target", e.TargetID),
		zap.String("source_url", e.SourceURL),
		zap.Int("fields", len(e.Fields)))
}

func (s LogSink) RunFinished(_ context.Context, sum RunSummary) error {
	fields := []zap.Field{
		zap.Int64("target", sum.TargetID),
		zap.Int64("run", sum.RunID),
		zap.String("trigger", string(sum.Trigger)),
		zap.String("status", string(sum.Status)),
		zap.Int("items", sum.ItemCount),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("forwarded", sum.Forwarded),
		zap.Duration("duration", sum.Duration),
	}
	if sum.Status == spider.RunFailed {
		s.Logger.Warn("run failed", append(fields,
			zap.String("error_kind", sum.ErrorKind),
			zap.String("error", sum.ErrorMessage))...)
		return nil
	}
	s.Logger.Info("run finished", fields...)
	return nil
}

// Multi fans events out to every sink and returns the first error after all
// sinks were called.
type Multi []Sink

func (m Multi) Discovery(ctx context.Context, e Event) error {
	return m.each(func(s Sink) error { return s.Discovery(ctx, e) })
}

func (m Multi) Enrichment(ctx context.Context, e Event) error {
	return m.each(func(s Sink) error { return s.Enrichment(ctx, e) })
}

func (m Multi) RunFinished(ctx context.Context, sum RunSummary) error {
	return m.each(func(s Sink) error { return s.RunFinished(ctx, sum) })
}

func (m Multi) each(f func(Sink) error) error {
	var first error
	for _, s := range m {
		if err := f(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps everything it receives in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	runs   []RunSummary
}

func (r *Recorder) Discovery(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Enrichment(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) RunFinished(_ context.Context, s RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, s)
	return nil
}

// Events returns the recorded events of kind k, or all of them when k is
// empty.
func (r *Recorder) Events(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if k == "" || e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Runs() []RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunSummary(nil), r.runs...)
}
