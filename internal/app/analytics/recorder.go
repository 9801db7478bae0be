// Package analytics tracks publication counters and caps the raw-message log.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

const (
	DefaultCleanupEvery     = 1000
	DefaultRetentionCeiling = 1_000_000
)

// Submitter accepts durable records for write-behind persistence.
type Submitter interface {
	Submit(r domain.Record) error
}

type Options struct {
	CleanupEvery     int
	RetentionCeiling int64
	CleanupTimeout   time.Duration
}

type Recorder struct {
	out  Submitter
	raw  ports.RawLog
	obs  ports.Observability
	opts Options

	messages     atomic.Int64
	sinceCleanup atomic.Int64
	cleaning     atomic.Bool
	wg           sync.WaitGroup

	mu           sync.RWMutex
	publications map[string]int64
}

func NewRecorder(out Submitter, raw ports.RawLog, obs ports.Observability, opts Options) *Recorder {
	if opts.CleanupEvery <= 0 {
		opts.CleanupEvery = DefaultCleanupEvery
	}
	if opts.RetentionCeiling <= 0 {
		opts.RetentionCeiling = DefaultRetentionCeiling
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = time.Minute
	}
	return &Recorder{
		out:          out,
		raw:          raw,
		obs:          obs,
		opts:         opts,
		publications: make(map[string]int64),
	}
}

// RecordMessage counts one receipt and queues its per-minute stat row.
func (r *Recorder) RecordMessage(at time.Time) error {
	r.messages.Add(1)
	return r.out.Submit(domain.NewReceipt(at))
}

// RecordPublication bumps the module's in-memory counter and queues a trend row.
func (r *Recorder) RecordPublication(module string, at time.Time) error {
	r.mu.Lock()
	r.publications[module]++
	r.mu.Unlock()
	return r.out.Submit(domain.NewPublication(module, at))
}

// RecordRaw queues the message for the raw-message log.
func (r *Recorder) RecordRaw(msg domain.RawMessage, desc domain.TopicDescriptor) error {
	return r.out.Submit(domain.NewRawLog(msg, desc))
}

func (r *Recorder) MessageCount() int64 { return r.messages.Load() }

// Publications returns the counters sorted by count, then module name.
func (r *Recorder) Publications() []domain.PublicationCount {
	r.mu.RLock()
	out := make([]domain.PublicationCount, 0, len(r.publications))
	for module, n := range r.publications {
		out = append(out, domain.PublicationCount{Module: module, Count: n})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Module < out[j].Module
	})
	return out
}

// Tick counts one processed message and reports whether a cleanup is due.
func (r *Recorder) Tick() bool {
	n := r.sinceCleanup.Add(1)
	if n < int64(r.opts.CleanupEvery) {
		return false
	}
	r.sinceCleanup.Store(0)
	return true
}

// CleanupAsync starts a cleanup in the background unless one is already running.
func (r *Recorder) CleanupAsync(ctx context.Context) bool {
	if !r.cleaning.CompareAndSwap(false, true) {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.cleaning.Store(false)

		cctx, cancel := context.WithTimeout(ctx, r.opts.CleanupTimeout)
		defer cancel()
		if _, err := r.Cleanup(cctx); err != nil {
			r.obs.LogError("raw_log_cleanup_failed", err)
		}
	}()
	return true
}

// Cleanup deletes the oldest raw-log rows above the retention ceiling.
func (r *Recorder) Cleanup(ctx context.Context) (int64, error) {
	total, err := r.raw.CountRawMessages(ctx)
	if err != nil {
		return 0, fmt.Errorf("count raw messages: %w", err)
	}
	if total <= r.opts.RetentionCeiling {
		return 0, nil
	}

	excess := total - r.opts.RetentionCeiling
	deleted, err := r.raw.DeleteOldestRawMessages(ctx, excess)
	if err != nil {
		return 0, fmt.Errorf("delete %d oldest raw messages: %w", excess, err)
	}
	r.obs.IncCounter(ports.MetricRawLogDeleted, float64(deleted))
	r.obs.LogInfo("raw_log_cleanup",
		ports.Field{Key: "deleted", Value: deleted},
		ports.Field{Key: "kept", Value: r.opts.RetentionCeiling})
	return deleted, nil
}

// Wait blocks until an in-flight background cleanup finishes.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
