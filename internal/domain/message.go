package domain

import "time"

// RawMessage is one publish observed on the broker, as delivered by the transport.
type RawMessage struct {
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"timestamp"`
}
