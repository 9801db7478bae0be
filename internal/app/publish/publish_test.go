package publish

import (
	"context"
	"errors"
	"testing"
)

type recordingSender struct {
	topic, payload string
	err            error
}

func (s *recordingSender) Publish(_ context.Context, topic, payload string) error {
	s.topic, s.payload = topic, payload
	return s.err
}

func TestSendBuildsTopic(t *testing.T) {
	s := &recordingSender{}
	p := NewPublisher(s, "bzh/mecatro/dashboard/")

	topic, err := p.Send(context.Background(), Request{Project: "serre", Variable: "pompe", Value: "1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if topic != "bzh/mecatro/dashboard/serre/pompe" || s.topic != topic {
		t.Fatalf("unexpected topic %q (sender saw %q)", topic, s.topic)
	}
	if s.payload != "1" {
		t.Fatalf("payload must be the raw value, got %q", s.payload)
	}
}

func TestSendRejectsBlankFields(t *testing.T) {
	tests := []Request{
		{Variable: "v", Value: "1"},
		{Project: "p", Variable: "  ", Value: "1"},
		{Project: "p", Variable: "v"},
	}
	for _, r := range tests {
		s := &recordingSender{}
		_, err := NewPublisher(s, "x").Send(context.Background(), r)
		if !errors.Is(err, ErrBlankField) {
			t.Fatalf("%+v: expected ErrBlankField, got %v", r, err)
		}
		if s.topic != "" {
			t.Fatalf("%+v: nothing should be published", r)
		}
	}
}

func TestSendWrapsTransportError(t *testing.T) {
	boom := errors.New("offline")
	_, err := NewPublisher(&recordingSender{err: boom}, "x").
		Send(context.Background(), Request{Project: "p", Variable: "v", Value: "1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}
