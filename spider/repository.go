package spider

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type TargetRepository interface {
	// SaveTarget validates t and inserts it, or updates the target with the
	// same name. It reports whether a new target was created.
	SaveTarget(ctx context.Context, t *Target) (bool, error)
	GetTarget(ctx context.Context, id int64) (*Target, error)
	GetTargetByName(ctx context.Context, name string) (*Target, error)
	ListTargets(ctx context.Context, enabledOnly bool) ([]*Target, error)
	MarkRun(ctx context.Context, id int64, at time.Time) error
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

type RunRepository interface {
	CreateRun(ctx context.Context, r *RunRecord) error
	UpdateRun(ctx context.Context, r *RunRecord) error
	GetRun(ctx context.Context, id int64) (*RunRecord, error)
	ListRuns(ctx context.Context, targetID int64, limit int) ([]*RunRecord, error)
}

type RecordFilter struct {
	TargetIDs     []int64
	Limit         int
	IncludeFailed bool
}

type RecordRepository interface {
	// UpsertRecord inserts r or overwrites the non-enrichment columns of the
	// record with the same (target, key). CreatedAt and enrichment state of an
	// existing record are kept. It returns the stored record.
	UpsertRecord(ctx context.Context, r *Record) (*Record, bool, error)
	GetRecord(ctx context.Context, id int64) (*Record, error)
	// ListUndetailed returns records awaiting enrichment that have a source
	// URL, oldest first.
	ListUndetailed(ctx context.Context, f RecordFilter) ([]*Record, error)
	// SaveEnrichment writes only Detail, EnrichState, EnrichError and
	// EnrichedAt.
	SaveEnrichment(ctx context.Context, r *Record) error
}

type Store interface {
	TargetRepository
	RunRepository
	RecordRepository
}
