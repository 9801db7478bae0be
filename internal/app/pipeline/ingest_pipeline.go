package pipeline

import (
	"context"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

const (
	writeTimeout     = 30 * time.Second
	maxRetryBackoff  = 5 * time.Second
	truncateInterval = 10 * time.Second
)

// RunIngestPipeline drains the outbox into the store and commits the WAL
// behind each stored batch. A failed batch is retried in place until it lands
// or ctx is cancelled, so the WAL is never committed past an unwritten record.
// When the queue runs dry the WAL backlog left by a full queue is pulled back
// in. After cancellation the queue is drained once more; the backlog and what
// cannot be written stay in the WAL for the next start.
func RunIngestPipeline(ctx context.Context, out *Outbox, store ports.RecordWriter, pol ports.Policy, obs ports.Observability) {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 5 * time.Millisecond
	}
	var (
		dirty        bool
		lastTruncate = time.Now()
	)

	for {
		obs.SetGauge(ports.GaugeQueueLength, float64(out.q.Len()))
		batch := out.q.DequeueBatch(pol.MaxBatchSize)
		if len(batch) == 0 {
			if dirty && time.Since(lastTruncate) >= truncateInterval {
				truncate(out.wal, obs)
				dirty, lastTruncate = false, time.Now()
			}
			if ctx.Err() == nil {
				n, err := out.Refill()
				if err != nil {
					obs.LogError("wal_refill_failed", err)
				}
				if n > 0 {
					continue
				}
			}
			select {
			case <-ctx.Done():
				if dirty {
					truncate(out.wal, obs)
				}
				return
			case <-time.After(idle):
			}
			continue
		}

		if !writeWithRetry(ctx, batch, out.wal, store, idle, obs) {
			return
		}
		dirty = true
	}
}

func writeWithRetry(ctx context.Context, batch []ports.QueuedRecord, wal ports.WAL, store ports.RecordWriter, backoff time.Duration, obs ports.Observability) bool {
	records := make([]domain.Record, 0, len(batch))
	var maxID ports.WALEntryID
	for _, item := range batch {
		records = append(records, *item.Record)
		if item.ID > maxID {
			maxID = item.ID
		}
	}

	for attempt := 1; ; attempt++ {
		err := writeBatch(ctx, records, store, obs)
		if err == nil {
			break
		}
		obs.IncCounter(ports.MetricStoreWriteFailures, 1)
		obs.LogError("store_write_failed", err,
			ports.Field{Key: "store", Value: store.Name()},
			ports.Field{Key: "records", Value: len(records)},
			ports.Field{Key: "attempt", Value: attempt})

		select {
		case <-ctx.Done():
			// keep WAL; replays on next start
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}

	if err := wal.Commit(maxID); err != nil {
		obs.LogError("wal_commit_failed", err)
	}
	return true
}

func writeBatch(ctx context.Context, records []domain.Record, store ports.RecordWriter, obs ports.Observability) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	start := time.Now()
	if err := store.WriteBatch(wctx, records); err != nil {
		return err
	}
	obs.ObserveLatency(ports.HistStoreWriteLatency, time.Since(start).Seconds())
	obs.IncCounter(ports.MetricRecordsWritten, float64(len(records)))
	return nil
}

func truncate(wal ports.WAL, obs ports.Observability) {
	if err := wal.TruncateCommitted(); err != nil {
		obs.LogError("wal_truncate_failed", err)
		return
	}
	obs.SetGauge(ports.GaugeWALSize, float64(wal.Stats().SizeBytes))
}
