package domain

import "time"

// EventKind names a change event pushed to live subscribers.
type EventKind string

const (
	EventNewMessage EventKind = "new_message"
	EventUpdateData EventKind = "update_data"
	EventDeleteData EventKind = "delete_data"
)

// Event is what subscribers receive. Data is one of RawMessage, UpdateData or DeleteData.
type Event struct {
	Kind EventKind `json:"event"`
	Data any       `json:"data"`
}

type UpdateData struct {
	Module    string    `json:"module"`
	Variable  string    `json:"variable"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type DeleteData struct {
	Module   string `json:"module"`
	Variable string `json:"variable"`
}
