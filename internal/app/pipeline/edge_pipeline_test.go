package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

func TestOutboxDropsWhenWALOverLimit(t *testing.T) {
	wal := &mockWAL{sizes: []int64{200}}
	obs := newMockObs()
	out := NewOutbox(wal, &mockQueue{}, ports.Policy{MaxWALSizeBytes: 100, OnWALFull: ports.WALFullDrop}, obs)

	err := out.Submit(domain.NewReceipt(time.Now()))
	if !errors.Is(err, ErrWALFull) {
		t.Fatalf("expected ErrWALFull, got %v", err)
	}
	if wal.appended != 0 {
		t.Fatalf("nothing may be appended over the limit, appended=%d", wal.appended)
	}
	if obs.counter(ports.MetricRecordsDropped) != 1 {
		t.Fatalf("expected drop to be counted")
	}
	if statusOf(err) != StatusRecoverable {
		t.Fatalf("a full WAL must be recoverable, got %s", statusOf(err))
	}
}

func TestOutboxGrowsPastWALLimit(t *testing.T) {
	wal := &mockWAL{sizes: []int64{200}}
	obs := newMockObs()
	out := NewOutbox(wal, &mockQueue{}, ports.Policy{MaxWALSizeBytes: 100, OnWALFull: ports.WALFullGrow}, obs)

	for i := 0; i < 3; i++ {
		if err := out.Submit(domain.NewReceipt(time.Now())); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if wal.appended != 3 {
		t.Fatalf("expected 3 appends, got %d", wal.appended)
	}
	if len(obs.warnings) != 1 || obs.warnings[0] != "wal_over_limit" {
		t.Fatalf("crossing the limit must be logged once, got %v", obs.warnings)
	}
}

func TestOutboxSpillsToWALWhenQueueFull(t *testing.T) {
	wal := &mockWAL{sizes: []int64{0}}
	q := &mockQueue{failAlways: true}
	obs := newMockObs()
	out := NewOutbox(wal, q, ports.Policy{OnQueueFull: ports.QueueFullSpill}, obs)

	for i := 0; i < 3; i++ {
		if err := out.Submit(domain.NewReceipt(time.Now())); err != nil {
			t.Fatalf("spilled record must not fail the submit: %v", err)
		}
	}
	if wal.appended != 3 {
		t.Fatalf("every record must reach the WAL, appended=%d", wal.appended)
	}
	if q.calls != 1 {
		t.Fatalf("records after the first spill must bypass the queue, enqueue calls=%d", q.calls)
	}
	if got := out.Backlog(); got != 1 {
		t.Fatalf("backlog must start at the first spilled id, got %d", got)
	}
	if obs.counter(ports.MetricRecordsDropped) != 0 {
		t.Fatalf("spilling is not dropping")
	}
}

func TestOutboxSubmitDropsWhenQueueFull(t *testing.T) {
	wal := &mockWAL{sizes: []int64{0}}
	obs := newMockObs()
	out := NewOutbox(wal, &mockQueue{failAlways: true}, ports.Policy{OnQueueFull: ports.QueueFullDrop, MaxWALSizeBytes: 100}, obs)

	err := out.Submit(domain.NewReceipt(time.Now()))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if wal.appended != 1 {
		t.Fatalf("record must reach the WAL before the queue, appended=%d", wal.appended)
	}
	if obs.counter(ports.MetricRecordsDropped) != 1 {
		t.Fatalf("expected drop to be counted")
	}
}

func TestOutboxSubmitWALFailureIsFatal(t *testing.T) {
	boom := errors.New("disk full")
	wal := &mockWAL{sizes: []int64{0}, appendErr: boom}
	out := NewOutbox(wal, &mockQueue{}, ports.Policy{}, newMockObs())

	err := out.Submit(domain.NewReceipt(time.Now()))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped WAL error, got %v", err)
	}
	if statusOf(err) != StatusFatal {
		t.Fatalf("WAL append failure must be fatal, got %s", statusOf(err))
	}
}

func TestRunEdgePipelineProcessesInOrder(t *testing.T) {
	h := newHarness(t, 1000)
	tr := &chanTransport{}

	ctx, cancel := context.WithCancel(context.Background())
	done, err := RunEdgePipeline(ctx, tr, h.engine, ports.Policy{InboundBuffer: 4}, h.obs)
	if err != nil {
		t.Fatalf("run edge pipeline: %v", err)
	}

	for _, v := range []string{"1", "2", "3"} {
		tr.out <- domain.RawMessage{Topic: "bzh/mecatro/dashboard/m1/v1", Payload: v}
	}

	deadline := time.After(2 * time.Second)
	for h.recorder.MessageCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("messages not processed")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	got, ok := h.state.Get("m1", "v1")
	if !ok || got.Value != "3" {
		t.Fatalf("last delivered value must win, got %+v", got)
	}
}

func TestRunEdgePipelineStartError(t *testing.T) {
	h := newHarness(t, 1000)
	boom := errors.New("bad broker url")
	if _, err := RunEdgePipeline(context.Background(), &chanTransport{startErr: boom}, h.engine, ports.Policy{}, h.obs); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
}

type chanTransport struct {
	out      chan<- domain.RawMessage
	startErr error
}

func (c *chanTransport) Start(out chan<- domain.RawMessage) error {
	c.out = out
	return c.startErr
}
func (c *chanTransport) Stop() error                                   { return nil }
func (c *chanTransport) Publish(context.Context, string, string) error { return nil }
func (c *chanTransport) State() ports.ConnState                        { return ports.Connected }

type mockWAL struct {
	ports.WAL
	sizes     []int64
	calls     int
	appended  int
	appendErr error
}

func (m *mockWAL) Stats() ports.WALStats {
	idx := m.calls
	if idx >= len(m.sizes) {
		idx = len(m.sizes) - 1
	}
	m.calls++
	return ports.WALStats{
		SizeBytes: m.sizes[idx],
	}
}

func (m *mockWAL) Append(*domain.Record) (ports.WALEntryID, error) {
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	m.appended++
	return ports.WALEntryID(m.appended), nil
}

type mockQueue struct {
	failures   int32
	failAlways bool
	calls      int
}

func (m *mockQueue) Enqueue(id ports.WALEntryID, r *domain.Record) bool {
	m.calls++
	if m.failAlways {
		return false
	}
	if atomic.LoadInt32(&m.failures) > 0 {
		atomic.AddInt32(&m.failures, -1)
		return false
	}
	return true
}

func (m *mockQueue) DequeueBatch(int) []ports.QueuedRecord { return nil }
func (m *mockQueue) Len() int                              { return 0 }

type mockObs struct {
	mu       sync.Mutex
	errors   []error
	warnings []string
	critical []error
	counters map[string]float64
}

func newMockObs() *mockObs {
	return &mockObs{counters: make(map[string]float64)}
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}

func (m *mockObs) LogWarn(msg string, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, msg)
}

func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}

func (m *mockObs) LogCritical(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.critical = append(m.critical, err)
}

func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += v
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(string, float64)       {}
