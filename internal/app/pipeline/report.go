package pipeline

import (
	"context"
	"errors"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
)

// Status classifies the outcome of one processing stage.
type Status uint8

const (
	StatusOK Status = iota
	StatusSkipped
	// StatusRecoverable covers backpressure drops: the in-memory outputs
	// are intact and the next message proceeds normally.
	StatusRecoverable
	// StatusFatal means the durable path itself is broken (WAL I/O).
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkipped:
		return "skipped"
	case StatusRecoverable:
		return "recoverable"
	default:
		return "fatal"
	}
}

const (
	StageRecent      = "recent"
	StageBroadcast   = "broadcast"
	StageReceipt     = "receipt"
	StageClassify    = "classify"
	StageRawLog      = "raw_log"
	StageState       = "state"
	StagePersist     = "persist"
	StagePublication = "publication"
	StageCleanup     = "cleanup"
)

type StageResult struct {
	Stage  string
	Status Status
	Err    error
}

// Report is the per-message outcome of Engine.Process.
type Report struct {
	Message    domain.RawMessage
	Descriptor domain.TopicDescriptor
	InScope    bool
	Stages     []StageResult
}

func (r *Report) record(stage string, err error) {
	r.Stages = append(r.Stages, StageResult{Stage: stage, Status: statusOf(err), Err: err})
}

func (r *Report) skip(stage string) {
	r.Stages = append(r.Stages, StageResult{Stage: stage, Status: StatusSkipped})
}

// Stage returns the result recorded for the named stage.
func (r Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Worst returns the most severe status across all stages.
func (r Report) Worst() Status {
	worst := StatusOK
	for _, s := range r.Stages {
		if s.Status != StatusSkipped && s.Status > worst {
			worst = s.Status
		}
	}
	return worst
}

// Err joins every stage error, nil when all stages succeeded or were skipped.
func (r Report) Err() error {
	var errs []error
	for _, s := range r.Stages {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrWALFull),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusRecoverable
	default:
		return StatusFatal
	}
}
