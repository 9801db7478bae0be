package ports

import "time"

type Policy struct {
	MaxWALSizeBytes int64         `yaml:"max_wal_size_bytes"`
	MaxQueueLen     int           `yaml:"max_queue_len"`
	MaxBatchSize    int           `yaml:"max_batch_size"`
	IdleSleep       time.Duration `yaml:"idle_sleep"`

	// Transport -> engine hand-off buffer.
	InboundBuffer int `yaml:"inbound_buffer"`

	RateLimitWindow  time.Duration `yaml:"rate_limit_window"`
	RingCapacity     int           `yaml:"ring_capacity"`
	CleanupEvery     int           `yaml:"cleanup_every"`
	RetentionCeiling int64         `yaml:"retention_ceiling"`

	OnWALFull   string `yaml:"on_wal_full"`   // "grow", "drop"
	OnQueueFull string `yaml:"on_queue_full"` // "spill", "drop"
}

// Backpressure policies. Neither ever makes the engine wait.
const (
	// QueueFullSpill keeps records in the WAL only until the writer catches up.
	QueueFullSpill = "spill"
	QueueFullDrop  = "drop"

	// WALFullGrow appends past MaxWALSizeBytes and logs the crossing.
	WALFullGrow = "grow"
	WALFullDrop = "drop"
)

// DefaultPolicy returns the engine constants used when nothing is configured.
func DefaultPolicy() Policy {
	p := Policy{}
	p.ApplyDefaults()
	return p
}

func (p *Policy) ApplyDefaults() {
	if p.MaxWALSizeBytes == 0 {
		p.MaxWALSizeBytes = 1 << 30
	}
	if p.MaxQueueLen == 0 {
		p.MaxQueueLen = 100_000
	}
	if p.MaxBatchSize == 0 {
		p.MaxBatchSize = 500
	}
	if p.IdleSleep == 0 {
		p.IdleSleep = 5 * time.Millisecond
	}
	if p.InboundBuffer == 0 {
		p.InboundBuffer = 1024
	}
	if p.RateLimitWindow == 0 {
		p.RateLimitWindow = 5 * time.Second
	}
	if p.RingCapacity == 0 {
		p.RingCapacity = 10
	}
	if p.CleanupEvery == 0 {
		p.CleanupEvery = 1000
	}
	if p.RetentionCeiling == 0 {
		p.RetentionCeiling = 1_000_000
	}
	if p.OnQueueFull == "" {
		p.OnQueueFull = QueueFullSpill
	}
	if p.OnWALFull == "" {
		p.OnWALFull = WALFullGrow
	}
}
