package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/app/analytics"
	"github.com/fasanicam/ferme-dashboard/internal/app/classify"
	"github.com/fasanicam/ferme-dashboard/internal/app/gate"
	"github.com/fasanicam/ferme-dashboard/internal/app/recent"
	"github.com/fasanicam/ferme-dashboard/internal/app/state"
	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// EngineConfig lists the collaborators of an Engine. Clock defaults to time.Now.
type EngineConfig struct {
	Classifier  *classify.Classifier
	State       *state.Store
	Gate        *gate.Gate
	Recorder    *analytics.Recorder
	Recent      *recent.Ring[domain.RawMessage]
	Broadcaster ports.Broadcaster
	Outbox      analytics.Submitter
	Obs         ports.Observability
	Clock       func() time.Time
}

// Engine applies one inbound message to the snapshot, the gate, the
// analytics counters and the ring, and emits the resulting events. It is
// driven by a single goroutine; readers use the collaborators' own copies.
type Engine struct {
	classifier *classify.Classifier
	state      *state.Store
	gate       *gate.Gate
	recorder   *analytics.Recorder
	recent     *recent.Ring[domain.RawMessage]
	bcast      ports.Broadcaster
	out        analytics.Submitter
	obs        ports.Observability
	now        func() time.Time
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch {
	case cfg.Classifier == nil:
		return nil, errors.New("engine: classifier is required")
	case cfg.State == nil:
		return nil, errors.New("engine: state store is required")
	case cfg.Gate == nil:
		return nil, errors.New("engine: persistence gate is required")
	case cfg.Recorder == nil:
		return nil, errors.New("engine: analytics recorder is required")
	case cfg.Recent == nil:
		return nil, errors.New("engine: recent ring is required")
	case cfg.Broadcaster == nil:
		return nil, errors.New("engine: broadcaster is required")
	case cfg.Outbox == nil:
		return nil, errors.New("engine: outbox is required")
	case cfg.Obs == nil:
		return nil, errors.New("engine: observability is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		classifier: cfg.Classifier,
		state:      cfg.State,
		gate:       cfg.Gate,
		recorder:   cfg.Recorder,
		recent:     cfg.Recent,
		bcast:      cfg.Broadcaster,
		out:        cfg.Outbox,
		obs:        cfg.Obs,
		now:        cfg.Clock,
	}, nil
}

func (e *Engine) Classifier() *classify.Classifier { return e.classifier }

// Process runs msg through every stage. Durable failures are reported, never
// returned early: the snapshot and the broadcast do not depend on them.
func (e *Engine) Process(ctx context.Context, msg domain.RawMessage) Report {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = e.now().UTC()
	}
	rep := Report{Message: msg}
	e.obs.IncCounter(ports.MetricMessagesReceived, 1)

	e.recent.Push(msg)
	rep.record(StageRecent, nil)
	e.bcast.Emit(domain.EventNewMessage, msg)
	rep.record(StageBroadcast, nil)
	rep.record(StageReceipt, e.recorder.RecordMessage(msg.ReceivedAt))

	desc, inScope := e.classifier.Classify(msg.Topic)
	rep.Descriptor, rep.InScope = desc, inScope
	if !inScope {
		e.obs.IncCounter(ports.MetricMessagesOutOfScope, 1)
		rep.skip(StageClassify)
	} else {
		rep.record(StageClassify, nil)
		if !desc.Compliant {
			e.obs.IncCounter(ports.MetricNonCompliant, 1)
			e.obs.LogWarn("non_compliant_topic",
				ports.Field{Key: "topic", Value: msg.Topic},
				ports.Field{Key: "category", Value: string(desc.Category)})
		}
		rep.record(StageRawLog, e.recorder.RecordRaw(msg, desc))

		if desc.IsDashboardValue() {
			e.applyValue(&rep, desc.SourceID, desc.Name, msg)
		}
	}

	if e.recorder.Tick() {
		if e.recorder.CleanupAsync(ctx) {
			rep.record(StageCleanup, nil)
		} else {
			rep.skip(StageCleanup)
		}
	}

	e.logFailures(rep)
	return rep
}

// applyValue mutates the snapshot for a dashboard value: an empty payload
// removes the variable, anything else overwrites it.
func (e *Engine) applyValue(rep *Report, module, variable string, msg domain.RawMessage) {
	if msg.Payload == "" {
		if e.state.Tombstone(module, variable) {
			e.bcast.Emit(domain.EventDeleteData, domain.DeleteData{Module: module, Variable: variable})
			rep.record(StageState, nil)
		} else {
			rep.skip(StageState)
		}
		e.obs.SetGauge(ports.GaugeTrackedVariables, float64(e.state.Len()))
		return
	}

	vs := e.state.Upsert(module, variable, msg.Payload, msg.ReceivedAt)
	rep.record(StageState, nil)
	e.obs.SetGauge(ports.GaugeTrackedVariables, float64(e.state.Len()))
	e.bcast.Emit(domain.EventUpdateData, domain.UpdateData{
		Module:    vs.Module,
		Variable:  vs.Variable,
		Value:     vs.Value,
		Timestamp: vs.LastUpdate,
	})

	key := gate.Key(module, variable)
	if e.gate.ShouldPersist(key, msg.Payload, msg.ReceivedAt) {
		err := e.out.Submit(domain.NewMeasurement(module, variable, msg.Payload, msg.ReceivedAt))
		if err == nil {
			e.gate.MarkPersisted(key, msg.Payload, msg.ReceivedAt)
		}
		rep.record(StagePersist, err)
	} else {
		e.obs.IncCounter(ports.MetricPersistSuppressed, 1)
		rep.skip(StagePersist)
	}

	rep.record(StagePublication, e.recorder.RecordPublication(module, msg.ReceivedAt))
}

func (e *Engine) logFailures(rep Report) {
	for _, s := range rep.Stages {
		switch s.Status {
		case StatusRecoverable:
			e.obs.LogWarn("stage_degraded",
				ports.Field{Key: "stage", Value: s.Stage},
				ports.Field{Key: "topic", Value: rep.Message.Topic},
				ports.Field{Key: "error", Value: s.Err.Error()})
		case StatusFatal:
			e.obs.LogCritical("stage_failed", s.Err,
				ports.Field{Key: "stage", Value: s.Stage},
				ports.Field{Key: "topic", Value: rep.Message.Topic})
		}
	}
}
