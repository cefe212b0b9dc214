package spider

import (
	"errors"
	"fmt"
	"time"
)

type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerRetry     Trigger = "retry"
)

// Error kinds recorded on failed runs besides the fetcher's network kinds.
const (
	KindConfig     = "config"
	KindExtraction = "extraction"
	KindStorage    = "storage"
	KindEnrichment = "enrichment"
)

var (
	ErrRunTerminal   = errors.New("run already finished")
	ErrRunTransition = errors.New("invalid run transition")
)

// RunRecord is one execution of a target. Only the coordinator that created
// it may mutate it.
type RunRecord struct {
	ID             int64                  `json:"id"`
	TargetID       int64                  `json:"target_id"`
	Trigger        Trigger                `json:"trigger"`
	Status         RunStatus              `json:"status"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	FinishedAt     *time.Time             `json:"finished_at,omitempty"`
	ItemCount      int                    `json:"item_count"`
	CreatedCount   int                    `json:"created_count"`
	UpdatedCount   int                    `json:"updated_count"`
	ForwardedCount int                    `json:"forwarded_count"`
	ErrorKind      string                 `json:"error_kind,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Stats          map[string]interface{} `json:"stats,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

func NewRun(targetID int64, trigger Trigger, now time.Time) *RunRecord {
	if trigger == "" {
		trigger = TriggerManual
	}
	return &RunRecord{
		TargetID:  targetID,
		Trigger:   trigger,
		Status:    RunPending,
		Stats:     make(map[string]interface{}),
		CreatedAt: now,
	}
}

func (r *RunRecord) Terminal() bool {
	return r.Status == RunSuccess || r.Status == RunFailed
}

// Start moves pending to running.
func (r *RunRecord) Start(now time.Time) error {
	if r.Terminal() {
		return ErrRunTerminal
	}
	if r.Status != RunPending {
		return fmt.Errorf("%w: %s -> %s", ErrRunTransition, r.Status, RunRunning)
	}
	r.Status = RunRunning
	r.StartedAt = &now
	return nil
}

// Succeed moves running to success.
func (r *RunRecord) Succeed(now time.Time) error {
	if err := r.finish(RunSuccess, now); err != nil {
		return err
	}
	r.ErrorKind, r.ErrorMessage = "", ""
	return nil
}

// Fail moves a pending or running record to failed, keeping kind and message.
func (r *RunRecord) Fail(kind, message string, now time.Time) error {
	if err := r.finish(RunFailed, now); err != nil {
		return err
	}
	r.ErrorKind, r.ErrorMessage = kind, message
	return nil
}

func (r *RunRecord) finish(to RunStatus, now time.Time) error {
	if r.Terminal() {
		return ErrRunTerminal
	}
	if to == RunSuccess && r.Status != RunRunning {
		return fmt.Errorf("%w: %s -> %s", ErrRunTransition, r.Status, to)
	}
	if r.StartedAt == nil {
		r.StartedAt = &now
	}
	r.Status = to
	r.FinishedAt = &now
	return nil
}

func (r *RunRecord) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}
