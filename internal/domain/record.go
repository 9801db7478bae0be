package domain

import (
	"fmt"
	"time"
)

// RecordKind selects the table a durable Record lands in.
type RecordKind uint8

const (
	RecordMeasurement RecordKind = iota + 1
	RecordReceipt
	RecordPublication
	RecordRawMessage
)

func (k RecordKind) String() string {
	switch k {
	case RecordMeasurement:
		return "measurement"
	case RecordReceipt:
		return "receipt"
	case RecordPublication:
		return "publication"
	case RecordRawMessage:
		return "raw_message"
	default:
		return fmt.Sprintf("record_kind(%d)", uint8(k))
	}
}

// Record is the unit of durable write that flows through the WAL, the
// write-behind queue and the store. Only the fields relevant to Kind are set.
type Record struct {
	Kind      RecordKind `json:"kind"`
	Timestamp time.Time  `json:"ts"`

	// measurement, publication
	Module   string `json:"module,omitempty"`
	Variable string `json:"variable,omitempty"`
	Value    string `json:"value,omitempty"`

	// raw message log
	Topic     string   `json:"topic,omitempty"`
	Payload   string   `json:"payload,omitempty"`
	Project   string   `json:"project,omitempty"`
	Category  Category `json:"category,omitempty"`
	Compliant bool     `json:"is_compliant,omitempty"`
}

func NewMeasurement(module, variable, value string, ts time.Time) Record {
	return Record{Kind: RecordMeasurement, Module: module, Variable: variable, Value: value, Timestamp: ts}
}

func NewReceipt(ts time.Time) Record {
	return Record{Kind: RecordReceipt, Timestamp: ts}
}

func NewPublication(module string, ts time.Time) Record {
	return Record{Kind: RecordPublication, Module: module, Timestamp: ts}
}

func NewRawLog(msg RawMessage, desc TopicDescriptor) Record {
	return Record{
		Kind:      RecordRawMessage,
		Topic:     msg.Topic,
		Payload:   msg.Payload,
		Project:   desc.SourceID,
		Category:  desc.Category,
		Compliant: desc.Compliant,
		Timestamp: msg.ReceivedAt,
	}
}
