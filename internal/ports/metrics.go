package ports

// Metric names understood by Observability implementations.
const (
	MetricMessagesReceived   = "ferme_messages_received_total"
	MetricMessagesOutOfScope = "ferme_messages_out_of_scope_total"
	MetricNonCompliant       = "ferme_messages_non_compliant_total"
	MetricPersistSuppressed  = "ferme_persist_suppressed_total"
	MetricRecordsWritten     = "ferme_records_written_total"
	MetricRecordsDropped     = "ferme_records_dropped_total"
	MetricStoreWriteFailures = "ferme_store_write_failures_total"
	MetricRawLogDeleted      = "ferme_raw_log_deleted_total"
	MetricBroadcastDropped   = "ferme_broadcast_dropped_total"

	GaugeWALSize          = "ferme_wal_size_bytes"
	GaugeQueueLength      = "ferme_queue_length"
	GaugeSubscribers      = "ferme_subscribers"
	GaugeTrackedVariables = "ferme_tracked_variables"
	GaugeTransportState   = "ferme_transport_state"

	HistStoreWriteLatency = "ferme_store_write_latency_seconds"
	HistProcessLatency    = "ferme_message_process_seconds"
)
