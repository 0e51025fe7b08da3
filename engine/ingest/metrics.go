package ingest

import "github.com/WessleyAI/ragdesk/pkg/metrics"

// Metrics are the ingestion counters exported on /metrics.
type Metrics struct {
	Done        *metrics.Counter
	Skipped     *metrics.Counter
	Failed      *metrics.Counter
	Chunks      *metrics.Counter
	Indexed     *metrics.Counter
	Rejected    *metrics.Counter
	Retries     *metrics.Counter
	DeadLetters *metrics.Counter
	InFlight    *metrics.Gauge
	Duration    *metrics.Histogram
}

// NewMetrics registers the ingestion metrics on reg. A nil registry gets a
// private one, which keeps tests and the preload command self-contained.
func NewMetrics(reg *metrics.Registry) *Metrics {
	if reg == nil {
		reg = metrics.New()
	}
	runs := func(status string) *metrics.Counter {
		return reg.Counter(metrics.WithLabels("ragdesk_ingest_runs_total", "status", status), "Ingestion runs by outcome")
	}
	return &Metrics{
		Done:        runs("done"),
		Skipped:     runs("skipped"),
		Failed:      runs("failed"),
		Chunks:      reg.Counter("ragdesk_ingest_chunks_total", "Chunks produced by the splitter"),
		Indexed:     reg.Counter("ragdesk_ingest_indexed_total", "Chunks accepted by the index"),
		Rejected:    reg.Counter("ragdesk_ingest_rejected_total", "Chunks rejected by the index"),
		Retries:     reg.Counter("ragdesk_ingest_retries_total", "Tasks requeued after a failure"),
		DeadLetters: reg.Counter("ragdesk_ingest_dlq_total", "Tasks sent to the dead letter subject"),
		InFlight:    reg.Gauge("ragdesk_ingest_in_flight", "Tasks currently running"),
		Duration:    reg.Histogram("ragdesk_ingest_duration_seconds", "Per-document pipeline time", nil),
	}
}
