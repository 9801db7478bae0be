package ferme

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fasanicam/ferme-dashboard/internal/adapters/loopback"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/mqtt"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/natsbridge"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/observability"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/queue"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/sink"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/sqlitestore"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/wal"
	"github.com/fasanicam/ferme-dashboard/internal/adapters/wshub"
	"github.com/fasanicam/ferme-dashboard/internal/api"
	"github.com/fasanicam/ferme-dashboard/internal/app/analytics"
	"github.com/fasanicam/ferme-dashboard/internal/app/config"
	"github.com/fasanicam/ferme-dashboard/internal/app/gate"
	"github.com/fasanicam/ferme-dashboard/internal/app/pipeline"
	"github.com/fasanicam/ferme-dashboard/internal/app/publish"
	"github.com/fasanicam/ferme-dashboard/internal/app/recent"
	"github.com/fasanicam/ferme-dashboard/internal/app/state"
	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	transport     Transport
	store         Store
	broadcaster   Broadcaster
	wal           WAL
	queue         RecordQueue
	observability Observability
	registry      *prometheus.Registry
	subscribers   []Broadcaster
}

// WithTransport injects a custom transport (an Injector, a simulator, another broker client).
func WithTransport(tr Transport) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.transport = tr
	}
}

// WithStore injects a custom store instead of opening the configured database.
func WithStore(s Store) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.store = s
	}
}

// WithBroadcaster replaces the websocket hub. The /ws route is then not served.
func WithBroadcaster(b Broadcaster) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.broadcaster = b
	}
}

// WithWAL lets callers bring their own WAL implementation or reuse an existing instance.
func WithWAL(w WAL) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithRecordQueue injects a custom write-behind queue.
func WithRecordQueue(q RecordQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithRegistry registers the default metrics on reg and serves it on /metrics
// instead of the global registry.
func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithSubscriber adds a broadcaster that receives every event alongside the
// websocket hub. See NewCallbackSubscriber and NewChannelSubscriber.
func WithSubscriber(b Broadcaster) RuntimeOption {
	return func(o *runtimeOverrides) {
		if b != nil {
			o.subscribers = append(o.subscribers, b)
		}
	}
}

// Runtime wires transport -> engine -> (snapshot, broadcast, WAL -> queue ->
// store) and serves the API, the websocket feed and the metrics endpoint.
type Runtime struct {
	cfg       *Config
	policy    ports.Policy
	logger    *slog.Logger
	logCloser io.Closer
	obs       ports.Observability
	metrics   http.Handler

	wal       ports.WAL
	queue     ports.RecordQueue
	outbox    *pipeline.Outbox
	store     ports.Store
	transport ports.Transport
	hub       *wshub.Hub

	state     *state.Store
	recent    *recent.Ring[domain.RawMessage]
	recorder  *analytics.Recorder
	engine    *pipeline.Engine
	publisher *publish.Publisher
	api       *api.Server

	mu           sync.Mutex
	started      bool
	edgeCancel   context.CancelFunc
	edgeDoneCh   <-chan struct{}
	ingestCancel context.CancelFunc
	ingestDoneCh chan struct{}
	apiSrv       *http.Server
	apiAddr      net.Addr
	metricsSrv   *http.Server
	metricsAddr  net.Addr
	gaugeStopCh  chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewRuntime bootstraps the default adapters (configured transport, file WAL,
// in-memory queue, configured store, websocket hub, Prometheus observability)
// and schedules the uncommitted WAL tail for the store writer. RuntimeOption values
// override any dependency.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (rt *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	logger, logCloser, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	var closers []io.Closer
	closers = append(closers, logCloser)
	defer func() {
		if err != nil {
			closeAll(closers)
		}
	}()

	metrics := promhttp.Handler()
	obs := overrides.observability
	if obs == nil {
		var reg prometheus.Registerer
		if overrides.registry != nil {
			reg = overrides.registry
		}
		obs = observability.NewPromObs(reg, logger)
	}
	if overrides.registry != nil {
		metrics = promhttp.HandlerFor(overrides.registry, promhttp.HandlerOpts{})
	}

	walAdapter := overrides.wal
	if walAdapter == nil {
		fw, err := wal.NewFileWAL(cfg.WAL.Dir)
		if err != nil {
			return nil, fmt.Errorf("wal: %w", err)
		}
		walAdapter = fw
		closers = append(closers, fw)
	}

	q := overrides.queue
	if q == nil {
		q = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	outbox := pipeline.NewOutbox(walAdapter, q, cfg.Policy, obs)
	if _, err := outbox.Recover(); err != nil {
		return nil, fmt.Errorf("wal recover: %w", err)
	}

	store := overrides.store
	if store == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err = openStore(ctx, cfg.Storage, logger)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		closers = append(closers, store)
	}

	tr := overrides.transport
	if tr == nil {
		if tr, err = newTransport(cfg.Transport, logger); err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
	}

	var hub *wshub.Hub
	bcast := overrides.broadcaster
	if bcast == nil {
		hub = wshub.NewHub(obs, wshub.DefaultSendBuffer)
		bcast = hub
	}
	if len(overrides.subscribers) > 0 {
		bcast = append(fanout{bcast}, overrides.subscribers...)
	}

	snapshot := state.New()
	ring := recent.New[domain.RawMessage](cfg.Policy.RingCapacity)
	recorder := analytics.NewRecorder(outbox, store, obs, analytics.Options{
		CleanupEvery:     cfg.Policy.CleanupEvery,
		RetentionCeiling: cfg.Policy.RetentionCeiling,
	})

	engine, err := pipeline.NewEngine(pipeline.EngineConfig{
		Classifier:  cfg.Classifier(),
		State:       snapshot,
		Gate:        gate.New(cfg.Policy.RateLimitWindow),
		Recorder:    recorder,
		Recent:      ring,
		Broadcaster: bcast,
		Outbox:      outbox,
		Obs:         obs,
	})
	if err != nil {
		return nil, err
	}

	publisher := publish.NewPublisher(tr, cfg.Topics.PublishPrefix)
	deps := api.Deps{
		State:     snapshot,
		Recent:    ring,
		Recorder:  recorder,
		Reader:    store,
		Admin:     store,
		Publisher: publisher,
		WSPath:    cfg.HTTP.WSPath,
		Obs:       obs,
	}
	if hub != nil {
		deps.WS = hub
	}
	apiSrv, err := api.NewServer(deps)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		cfg:       cfg,
		policy:    cfg.Policy,
		logger:    logger,
		logCloser: logCloser,
		obs:       obs,
		metrics:   metrics,
		wal:       walAdapter,
		queue:     q,
		outbox:    outbox,
		store:     store,
		transport: tr,
		hub:       hub,
		state:     snapshot,
		recent:    ring,
		recorder:  recorder,
		engine:    engine,
		publisher: publisher,
		api:       apiSrv,
	}, nil
}

// Start launches the store writer, the transport and the HTTP listeners.
// It returns immediately; call Run to block on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runtime already started")
	}

	ingestCtx, ingestCancel := context.WithCancel(context.Background())
	r.ingestCancel = ingestCancel
	r.ingestDoneCh = make(chan struct{})
	go func() {
		defer close(r.ingestDoneCh)
		pipeline.RunIngestPipeline(ingestCtx, r.outbox, r.store, r.policy, r.obs)
	}()

	edgeCtx, edgeCancel := context.WithCancel(context.Background())
	done, err := pipeline.RunEdgePipeline(edgeCtx, r.transport, r.engine, r.policy, r.obs)
	if err != nil {
		edgeCancel()
		ingestCancel()
		<-r.ingestDoneCh
		return fmt.Errorf("start transport: %w", err)
	}
	r.edgeCancel, r.edgeDoneCh = edgeCancel, done
	r.started = true

	if err := r.startServers(); err != nil {
		return err
	}

	r.gaugeStopCh = make(chan struct{})
	go r.recordResourceGauges(r.gaugeStopCh, time.Second)

	r.obs.LogInfo("runtime_started",
		ports.Field{Key: "namespace", Value: r.engine.Classifier().Namespace()},
		ports.Field{Key: "store", Value: r.store.Name()},
		ports.Field{Key: "api_addr", Value: addrString(r.apiAddr)})
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		_ = r.Shutdown(context.Background())
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops intake first, lets the writer drain the queue, then releases
// the store, the WAL and the log file. Records the writer could not store
// stay in the WAL for the next start.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		r.shutdownErr = r.shutdown(ctx)
	})
	return r.shutdownErr
}

func (r *Runtime) shutdown(ctx context.Context) error {
	var errs []error

	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
	}

	for _, srv := range []*http.Server{r.apiSrv, r.metricsSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if err := r.transport.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop transport: %w", err))
	}
	if r.edgeCancel != nil {
		r.edgeCancel()
		if err := wait(ctx, r.edgeDoneCh); err != nil {
			errs = append(errs, fmt.Errorf("engine drain: %w", err))
		}
	}
	r.recorder.Wait()

	if r.ingestCancel != nil {
		r.ingestCancel()
		if err := wait(ctx, r.ingestDoneCh); err != nil {
			errs = append(errs, fmt.Errorf("store writer drain: %w", err))
		}
	}

	if r.hub != nil {
		if err := r.hub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.wal.Close(); err != nil {
		errs = append(errs, err)
	}

	r.obs.LogInfo("runtime_stopped", ports.Field{Key: "messages", Value: r.recorder.MessageCount()})
	if err := r.logCloser.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Handler returns the API handler, for mounting inside another server.
func (r *Runtime) Handler() http.Handler { return r.api }

// APIAddr is the bound API address once started.
func (r *Runtime) APIAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return addrString(r.apiAddr)
}

// MetricsAddr is the bound metrics address once started.
func (r *Runtime) MetricsAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return addrString(r.metricsAddr)
}

// Snapshot returns a copy of the current values.
func (r *Runtime) Snapshot() Snapshot { return r.state.Snapshot() }

// RecentMessages returns up to limit raw messages, newest first.
func (r *Runtime) RecentMessages(limit int) []RawMessage { return r.recent.Snapshot(limit) }

// Publications returns the in-memory publication counters, busiest module first.
func (r *Runtime) Publications() []PublicationCount { return r.recorder.Publications() }

// MessageCount is the number of messages processed since start.
func (r *Runtime) MessageCount() int64 { return r.recorder.MessageCount() }

// Publish sends value to <publish_prefix>/<project>/<variable> and returns the topic.
func (r *Runtime) Publish(ctx context.Context, project, variable, value string) (string, error) {
	return r.publisher.Send(ctx, publish.Request{Project: project, Variable: variable, Value: value})
}

func (r *Runtime) startServers() error {
	if addr := r.cfg.HTTP.Addr; addr != "" {
		srv, bound, err := serve(addr, r.api, r.logger.With("server", "api"))
		if err != nil {
			return fmt.Errorf("api listener: %w", err)
		}
		r.apiSrv, r.apiAddr = srv, bound
	}

	if addr := r.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", r.metrics)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		srv, bound, err := serve(addr, mux, r.logger.With("server", "metrics"))
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		r.metricsSrv, r.metricsAddr = srv, bound
	}
	return nil
}

func serve(addr string, h http.Handler, logger *slog.Logger) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited", "error", err)
		}
	}()
	return srv, ln.Addr(), nil
}

func (r *Runtime) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(ports.GaugeWALSize, float64(r.wal.Stats().SizeBytes))
			r.obs.SetGauge(ports.GaugeQueueLength, float64(r.queue.Len()))
			r.obs.SetGauge(ports.GaugeTransportState, float64(r.transport.State()))
		}
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (ports.Store, error) {
	if cfg.Driver == config.DriverSQLite {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		s, err := sqlitestore.Open(sqlitestore.Config{Path: cfg.Path, PoolSize: cfg.PoolSize, Logger: logger})
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	d, err := sink.DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	s, err := sink.Open(ctx, d, cfg.DSN, cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newTransport(cfg config.TransportConfig, logger *slog.Logger) (ports.Transport, error) {
	switch cfg.Kind {
	case config.TransportNATS:
		return natsbridge.NewTransport(cfg.NATS, logger)
	case config.TransportLoopback:
		return loopback.New(), nil
	default:
		return mqtt.NewTransport(cfg.MQTT, logger)
	}
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i].Close()
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
