package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"

	"github.com/fasanicam/ferme-dashboard"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:], os.Stdout)
	case "stats":
		err = statsCommand(os.Args[2:])
	case "publish":
		err = publishCommand(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		printUsage(os.Stderr)
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("ferme-dashboard %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "./data/config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := ferme.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := ferme.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config %s looks good: transport=%s storage=%s namespace=%s/%s\n",
		*cfgPath, cfg.Transport.Kind, cfg.Storage.Driver, cfg.Topics.Root, cfg.Topics.Subsystem)
	return nil
}

func statsCommand(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap, err := fetchMetrics(ctx, http.DefaultClient, *url)
			if err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
				continue
			}
			fmt.Println(snap.String(time.Now()))
		}
	}
}

// statTargets are the series printed by the stats command, in output order.
var statTargets = []string{
	ports.MetricMessagesReceived,
	ports.MetricRecordsWritten,
	ports.MetricRecordsDropped,
	ports.GaugeQueueLength,
	ports.GaugeWALSize,
	ports.GaugeSubscribers,
}

type metricsSnapshot map[string]float64

func (m metricsSnapshot) String(at time.Time) string {
	return fmt.Sprintf("[%s] messages=%.0f written=%.0f dropped=%.0f queue=%.0f wal_bytes=%.0f subscribers=%.0f",
		at.Format(time.RFC3339),
		m[ports.MetricMessagesReceived],
		m[ports.MetricRecordsWritten],
		m[ports.MetricRecordsDropped],
		m[ports.GaugeQueueLength],
		m[ports.GaugeWALSize],
		m[ports.GaugeSubscribers],
	)
}

func fetchMetrics(ctx context.Context, client *http.Client, url string) (metricsSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return parseMetrics(resp.Body)
}

func parseMetrics(r io.Reader) (metricsSnapshot, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}

	out := make(metricsSnapshot, len(statTargets))
	for _, name := range statTargets {
		mf, ok := families[name]
		if !ok {
			continue
		}
		for _, m := range mf.GetMetric() {
			out[name] += metricValue(mf.GetType(), m)
		}
	}
	return out, nil
}

func metricValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}

func publishCommand(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("publish", pflag.ContinueOnError)
	api := fs.String("api", "http://localhost:8080", "Base URL of the dashboard HTTP API")
	project := fs.StringP("project", "p", "", "Project (group) name")
	variable := fs.StringP("variable", "v", "", "Variable name")
	value := fs.String("value", "", "Value to publish")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	topic, err := postPublish(ctx, http.DefaultClient, *api, *project, *variable, *value)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "published %q to %s\n", *value, topic)
	return nil
}

func postPublish(ctx context.Context, client *http.Client, api, project, variable, value string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"project":  project,
		"variable": variable,
		"value":    value,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/api/publish", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply struct {
		Topic string `json:"topic"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		if reply.Error == "" {
			reply.Error = resp.Status
		}
		return "", errors.New(reply.Error)
	}
	return reply.Topic, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `ferme-dashboard

Usage:
  ferme-dashboard <command> [flags]

Commands:
  run        Start the ingestion engine, HTTP API and live feed
  validate   Load and validate a config file without starting anything
  stats      Poll the Prometheus metrics endpoint and print live counters
  publish    Publish a dashboard value through a running instance

Examples:
  ferme-dashboard run --config ./data/config.yaml
  ferme-dashboard validate -c ./data/config.yaml
  ferme-dashboard stats --url http://localhost:9100/metrics --interval 1s
  ferme-dashboard publish -p serre -v pompe --value 1
`)
}
