package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

var (
	// ErrWALFull indicates the WAL is over its size limit and OnWALFull is "drop".
	ErrWALFull = errors.New("wal full")
	// ErrQueueFull indicates the write-behind queue was full and OnQueueFull is "drop".
	ErrQueueFull = errors.New("write-behind queue full")

	errQueueSaturated = errors.New("queue saturated")
)

// Outbox is the durable half of the engine: every record is appended to the
// WAL, then enqueued for the store writer. Submit never waits on the store or
// on the writer. When the queue is full under the "spill" policy, records
// stay in the WAL only and the writer pulls them back with Refill.
type Outbox struct {
	mu  sync.Mutex
	wal ports.WAL
	q   ports.RecordQueue
	pol ports.Policy
	obs ports.Observability

	// backlog is the first WAL id not handed to the queue; 0 when caught up.
	backlog ports.WALEntryID
	overWAL bool
}

func NewOutbox(wal ports.WAL, q ports.RecordQueue, pol ports.Policy, obs ports.Observability) *Outbox {
	return &Outbox{wal: wal, q: q, pol: pol, obs: obs}
}

// Submit keeps WAL ids and queue order aligned so the writer can commit by
// the highest id of each batch: once a record has spilled, every later record
// spills too until Refill catches up.
func (o *Outbox) Submit(r domain.Record) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.walAccepts() {
		o.obs.IncCounter(ports.MetricRecordsDropped, 1)
		return ErrWALFull
	}

	rec := r
	id, err := o.wal.Append(&rec)
	if err != nil {
		return fmt.Errorf("wal append: %w", err)
	}

	if o.backlog != 0 {
		return nil
	}
	if o.q.Enqueue(id, &rec) {
		return nil
	}

	if o.pol.OnQueueFull == ports.QueueFullDrop {
		o.obs.IncCounter(ports.MetricRecordsDropped, 1)
		return ErrQueueFull
	}
	o.backlog = id
	o.obs.LogWarn("write_behind_spill",
		ports.Field{Key: "wal_id", Value: uint64(id)},
		ports.Field{Key: "queue_len", Value: o.q.Len()})
	return nil
}

// walAccepts reports whether one more record may be appended. Crossing the
// size limit is logged once per crossing.
func (o *Outbox) walAccepts() bool {
	if o.pol.MaxWALSizeBytes <= 0 {
		return true
	}
	size := o.wal.Stats().SizeBytes
	over := size >= o.pol.MaxWALSizeBytes
	if over && !o.overWAL {
		o.obs.LogWarn("wal_over_limit",
			ports.Field{Key: "size_bytes", Value: size},
			ports.Field{Key: "limit_bytes", Value: o.pol.MaxWALSizeBytes},
			ports.Field{Key: "policy", Value: o.pol.OnWALFull})
	}
	o.overWAL = over
	return !over || o.pol.OnWALFull != ports.WALFullDrop
}

// Backlog returns the first WAL id waiting outside the queue, 0 when none.
func (o *Outbox) Backlog() ports.WALEntryID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.backlog
}

// Refill moves spilled records from the WAL into the queue, oldest first,
// until the queue is full or the backlog is empty. It is called by the store
// writer and returns the number of records enqueued.
func (o *Outbox) Refill() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.backlog == 0 {
		return 0, nil
	}

	next, n := o.backlog, 0
	err := o.wal.Iterate(next, func(id ports.WALEntryID, r *domain.Record) error {
		if !o.q.Enqueue(id, r) {
			return errQueueSaturated
		}
		next, n = id+1, n+1
		return nil
	})
	switch {
	case err == nil:
		o.backlog = 0
		o.obs.LogInfo("write_behind_caught_up", ports.Field{Key: "last_refill", Value: n})
	case errors.Is(err, errQueueSaturated):
		o.backlog = next
	default:
		o.backlog = next
		return n, fmt.Errorf("wal refill from %d: %w", next, err)
	}
	return n, nil
}

// Recover schedules every uncommitted WAL entry for the writer. It runs once
// at startup, before the writer and the engine; what the queue cannot hold
// stays in the backlog.
func (o *Outbox) Recover() (int, error) {
	stats := o.wal.Stats()
	if stats.OldestUncommitted == 0 || stats.OldestUncommitted > stats.LatestAppended {
		return 0, nil
	}

	o.mu.Lock()
	o.backlog = stats.OldestUncommitted
	o.mu.Unlock()

	n, err := o.Refill()
	if err != nil {
		return n, err
	}
	o.obs.LogInfo("wal_recovered",
		ports.Field{Key: "queued", Value: n},
		ports.Field{Key: "from", Value: uint64(stats.OldestUncommitted)},
		ports.Field{Key: "to", Value: uint64(stats.LatestAppended)})
	return n, nil
}
