package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	obs.IncCounter(ports.MetricRecordsWritten, 5)
	if got := testutil.ToFloat64(obs.counters[ports.MetricRecordsWritten]); got != 5 {
		t.Fatalf("expected written counter 5, got %f", got)
	}

	obs.IncCounter(ports.MetricRecordsDropped, 2)
	if got := testutil.ToFloat64(obs.counters[ports.MetricRecordsDropped]); got != 2 {
		t.Fatalf("expected drop counter 2, got %f", got)
	}

	obs.SetGauge(ports.GaugeWALSize, 42)
	if got := testutil.ToFloat64(obs.gauges[ports.GaugeWALSize]); got != 42 {
		t.Fatalf("expected wal gauge 42, got %f", got)
	}

	obs.ObserveLatency(ports.HistStoreWriteLatency, 0.5)
	hCollector := obs.histos[ports.HistStoreWriteLatency].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.IncCounter("unknown_metric", 1)
	obs.SetGauge("unknown_gauge", 1)

	if n, err := testutil.GatherAndCount(reg, ports.MetricMessagesReceived); err != nil || n != 1 {
		t.Fatalf("expected received counter registered, n=%d err=%v", n, err)
	}
}

func TestPromObsDefaultRegisterer(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	t.Cleanup(func() { prometheus.DefaultRegisterer = origReg })

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg

	obs := NewPromObs(nil, nil)
	obs.IncCounter(ports.MetricMessagesReceived, 1)
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("expected metrics on default registerer, n=%d err=%v", n, err)
	}
}

func TestPromObsLogsCriticalLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "text", slog.LevelInfo))
	obs := NewPromObs(prometheus.NewRegistry(), logger)

	obs.LogCritical("wal_append_failed", errors.New("disk full"), ports.Field{Key: "id", Value: 7})
	out := buf.String()
	if !strings.Contains(out, "level=CRITICAL") || !strings.Contains(out, "disk full") || !strings.Contains(out, "id=7") {
		t.Fatalf("unexpected log line: %s", out)
	}

	buf.Reset()
	obs.LogWarn("non_compliant_topic", ports.Field{Key: "topic", Value: "a/b"})
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("expected warn line, got %s", buf.String())
	}
}
