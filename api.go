package ferme

import (
	"github.com/prometheus/client_golang/prometheus"

	base "github.com/fasanicam/ferme-dashboard/pkg/ferme"
)

// Type aliases so consumers can import github.com/fasanicam/ferme-dashboard directly.
type (
	Config           = base.Config
	Policy           = base.Policy
	TopicsConfig     = base.TopicsConfig
	TransportConfig  = base.TransportConfig
	MQTTConfig       = base.MQTTConfig
	NATSConfig       = base.NATSConfig
	StorageConfig    = base.StorageConfig
	HTTPConfig       = base.HTTPConfig
	MetricsConfig    = base.MetricsConfig
	WALConfig        = base.WALConfig
	LogConfig        = base.LogConfig
	Flow             = base.Flow
	FlowOption       = base.FlowOption
	StreamInOption   = base.StreamInOption
	StreamOutOption  = base.StreamOutOption
	Runtime          = base.Runtime
	RuntimeOption    = base.RuntimeOption
	Injector         = base.Injector
	EventHandler     = base.EventHandler
	RawMessage       = base.RawMessage
	Event            = base.Event
	EventKind        = base.EventKind
	UpdateData       = base.UpdateData
	DeleteData       = base.DeleteData
	Snapshot         = base.Snapshot
	VariableState    = base.VariableState
	PublicationCount = base.PublicationCount
	Record           = base.Record
	Report           = base.Report
	Transport        = base.Transport
	Store            = base.Store
	Broadcaster      = base.Broadcaster
	RecordQueue      = base.RecordQueue
	WAL              = base.WAL
	Observability    = base.Observability
	QueuedRecord     = base.QueuedRecord
	WALEntryID       = base.WALEntryID
	WALStats         = base.WALStats
)

const (
	TransportMQTT     = base.TransportMQTT
	TransportNATS     = base.TransportNATS
	TransportLoopback = base.TransportLoopback

	DriverPostgres = base.DriverPostgres
	DriverMySQL    = base.DriverMySQL
	DriverSQLite   = base.DriverSQLite

	EventNewMessage = base.EventNewMessage
	EventUpdateData = base.EventUpdateData
	EventDeleteData = base.EventDeleteData
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInTransport(tr Transport) StreamInOption {
	return base.StreamInTransport(tr)
}

func StreamInQueue(q RecordQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInWAL(w WAL) StreamInOption {
	return base.StreamInWAL(w)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutStore(s Store) StreamOutOption {
	return base.StreamOutStore(s)
}

func StreamOutBroadcaster(b Broadcaster) StreamOutOption {
	return base.StreamOutBroadcaster(b)
}

func StreamOutCallback(fn EventHandler) StreamOutOption {
	return base.StreamOutCallback(fn)
}

func StreamOutSubscriber(b Broadcaster) StreamOutOption {
	return base.StreamOutSubscriber(b)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithTransport(tr Transport) RuntimeOption {
	return base.WithTransport(tr)
}

func WithStore(s Store) RuntimeOption {
	return base.WithStore(s)
}

func WithBroadcaster(b Broadcaster) RuntimeOption {
	return base.WithBroadcaster(b)
}

func WithWAL(w WAL) RuntimeOption {
	return base.WithWAL(w)
}

func WithRecordQueue(q RecordQueue) RuntimeOption {
	return base.WithRecordQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return base.WithRegistry(reg)
}

func WithSubscriber(b Broadcaster) RuntimeOption {
	return base.WithSubscriber(b)
}

// Subscribers and injection.
func NewCallbackSubscriber(fn EventHandler) Broadcaster {
	return base.NewCallbackSubscriber(fn)
}

func NewChannelSubscriber(buffer int) (Broadcaster, <-chan Event, func()) {
	return base.NewChannelSubscriber(buffer)
}

func NewInjector() *Injector {
	return base.NewInjector()
}
