package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// PromObs logs through slog and records metrics in Prometheus.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the engine metrics on reg (prometheus.DefaultRegisterer when nil).
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	p := &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricMessagesReceived:   counter(ports.MetricMessagesReceived, "Raw messages delivered by the transport."),
			ports.MetricMessagesOutOfScope: counter(ports.MetricMessagesOutOfScope, "Messages outside the subscribed namespace."),
			ports.MetricNonCompliant:       counter(ports.MetricNonCompliant, "In-scope messages whose topic breaks the grammar."),
			ports.MetricPersistSuppressed:  counter(ports.MetricPersistSuppressed, "Upserts not persisted by the rate-limit gate."),
			ports.MetricRecordsWritten:     counter(ports.MetricRecordsWritten, "Records committed to the store."),
			ports.MetricRecordsDropped:     counter(ports.MetricRecordsDropped, "Records lost to WAL or queue backpressure policies."),
			ports.MetricStoreWriteFailures: counter(ports.MetricStoreWriteFailures, "Failed store batch writes."),
			ports.MetricRawLogDeleted:      counter(ports.MetricRawLogDeleted, "Raw-log rows deleted by retention cleanup."),
			ports.MetricBroadcastDropped:   counter(ports.MetricBroadcastDropped, "Events dropped for slow subscribers."),
		},
		gauges: map[string]prometheus.Gauge{
			ports.GaugeWALSize:          gauge(ports.GaugeWALSize, "Size of WAL on disk."),
			ports.GaugeQueueLength:      gauge(ports.GaugeQueueLength, "Records waiting in the write-behind queue."),
			ports.GaugeSubscribers:      gauge(ports.GaugeSubscribers, "Connected live subscribers."),
			ports.GaugeTrackedVariables: gauge(ports.GaugeTrackedVariables, "Variables in the current-value snapshot."),
			ports.GaugeTransportState:   gauge(ports.GaugeTransportState, "Transport state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting)."),
		},
		histos: map[string]prometheus.Observer{
			ports.HistStoreWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    ports.HistStoreWriteLatency,
				Help:    "Latency of one store batch write.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			}),
			ports.HistProcessLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    ports.HistProcessLatency,
				Help:    "Time spent processing one inbound message.",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
			}),
		},
	}

	for _, c := range p.counters {
		reg.MustRegister(c)
	}
	for _, g := range p.gauges {
		reg.MustRegister(g)
	}
	for _, h := range p.histos {
		reg.MustRegister(h.(prometheus.Collector))
	}
	return p
}

func (p *PromObs) Logger() *slog.Logger { return p.logger }

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.logger.Warn(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), slog.Any("error", err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Log(context.Background(), LevelCritical, msg, append(attrs(fields), slog.Any("error", err))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
