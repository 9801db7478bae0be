package queue

import (
	"testing"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	r1 := &domain.Record{Kind: domain.RecordMeasurement, Module: "m1"}
	r2 := &domain.Record{Kind: domain.RecordReceipt}

	if !q.Enqueue(1, r1) || !q.Enqueue(2, r2) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].ID != 1 || batch[0].Record.Module != "m1" {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].ID != 2 || remaining[0].Record.Kind != domain.RecordReceipt {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
	if q.DequeueBatch(5) != nil {
		t.Fatalf("empty queue should return nil batch")
	}
}

func TestMemQueueCapacity(t *testing.T) {
	q := NewMemQueue(2)

	rec := &domain.Record{Kind: domain.RecordPublication, Module: "cap"}

	if !q.Enqueue(1, rec) || !q.Enqueue(2, rec) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(3, rec) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}

	q.DequeueBatch(1)
	if !q.Enqueue(4, rec) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
	if got := q.DequeueBatch(0); len(got) != 2 || got[0].ID != 2 || got[1].ID != 4 {
		t.Fatalf("unexpected drain order: %+v", got)
	}
}
