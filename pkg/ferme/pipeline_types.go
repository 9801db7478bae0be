package ferme

import (
	"github.com/fasanicam/ferme-dashboard/internal/app/pipeline"
	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// RawMessage is one publish observed on the broker.
type RawMessage = domain.RawMessage

// Event is what live subscribers receive: new_message, update_data or delete_data.
type Event = domain.Event

// EventKind names an Event.
type EventKind = domain.EventKind

const (
	EventNewMessage = domain.EventNewMessage
	EventUpdateData = domain.EventUpdateData
	EventDeleteData = domain.EventDeleteData
)

type (
	// UpdateData is the payload of an update_data event.
	UpdateData = domain.UpdateData
	// DeleteData is the payload of a delete_data event.
	DeleteData = domain.DeleteData
	// VariableState is the latest value of one module variable.
	VariableState = domain.VariableState
	// Snapshot maps module -> variable -> latest value.
	Snapshot = domain.Snapshot
	// PublicationCount is one module's in-memory publication counter.
	PublicationCount = domain.PublicationCount
)

// Record is the unit of durable write flowing through the WAL, the queue and the store.
type Record = domain.Record

// Report is the per-message outcome of the engine, one StageResult per stage.
type Report = pipeline.Report

// Transport delivers inbound broker traffic and carries outbound publishes.
type Transport = ports.Transport

// Store persists records and serves the history and analysis queries.
type Store = ports.Store

// Broadcaster pushes change events to live subscribers without blocking.
type Broadcaster = ports.Broadcaster

// RecordQueue is the bounded write-behind queue between the engine and the store writer.
type RecordQueue = ports.RecordQueue

// QueuedRecord is an item buffered inside the queue.
type QueuedRecord = ports.QueuedRecord

// Observability emits logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the write-ahead log used for durability and crash recovery.
type WAL = ports.WAL

// WALStats exposes WAL metadata for observability.
type WALStats = ports.WALStats

// WALEntryID uniquely identifies a WAL entry.
type WALEntryID = ports.WALEntryID

// ConnState is the transport lifecycle state.
type ConnState = ports.ConnState
