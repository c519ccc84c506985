package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Unmarshall API Metrics
	apiCallsTotal   *prometheus.CounterVec
	apiCallDuration *prometheus.HistogramVec
	apiErrorsTotal  *prometheus.CounterVec
	apiPagesFetched *prometheus.HistogramVec

	// Sync Metrics
	syncWorkflowDuration        *prometheus.HistogramVec
	syncWorkflowExecutionsTotal *prometheus.CounterVec
	syncActivityDuration        *prometheus.HistogramVec
	transactionsFetchedTotal    *prometheus.CounterVec
	transactionsWrittenTotal    *prometheus.CounterVec
	transactionsSkippedTotal    *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Unmarshall API Metrics
		apiCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unmarshall_api_calls_total",
				Help: "Total number of Unmarshall API calls by operation and status class",
			},
			[]string{"operation", "status"},
		),
		apiCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unmarshall_api_call_duration_seconds",
				Help:    "Duration of Unmarshall API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),
		apiErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unmarshall_api_errors_total",
				Help: "Total number of failed Unmarshall API calls by error kind",
			},
			[]string{"operation", "kind"},
		),
		apiPagesFetched: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unmarshall_api_pages_fetched",
				Help:    "Number of pages fetched per paginated call",
				Buckets: []float64{1, 2, 3, 5, 10, 25, 50},
			},
			[]string{"operation"},
		),

		// Sync Metrics
		syncWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_workflow_duration_seconds",
				Help:    "Duration of wallet sync workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"chain", "status"},
		),
		syncWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_workflow_executions_total",
				Help: "Total number of wallet sync executions",
			},
			[]string{"chain", "status"},
		),
		syncActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_activity_duration_seconds",
				Help:    "Duration of wallet sync activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "chain"},
		),
		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of transactions fetched from the Unmarshall API",
			},
			[]string{"chain"},
		),
		transactionsWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_written_total",
				Help: "Total number of transactions written to database",
			},
			[]string{"chain"},
		),
		transactionsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_skipped_total",
				Help: "Total number of fetched transactions already present in the database",
			},
			[]string{"chain"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"chain", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"chain"},
		),
	}
}

// Unmarshall API metric helpers. These satisfy client.Recorder.

// RecordAPICall records a completed API call with its status and duration.
func (m *Metrics) RecordAPICall(operation string, statusCode int, duration float64) {
	m.apiCallsTotal.WithLabelValues(operation, statusCodeToString(statusCode)).Inc()
	m.apiCallDuration.WithLabelValues(operation).Observe(duration)
}

// RecordAPIError records a failed API call ("bad_response_code", "timeout", "client_error").
func (m *Metrics) RecordAPIError(operation, kind string) {
	m.apiErrorsTotal.WithLabelValues(operation, kind).Inc()
}

// RecordPagesFetched records how many pages a paginated call fetched.
func (m *Metrics) RecordPagesFetched(operation string, pages int) {
	m.apiPagesFetched.WithLabelValues(operation).Observe(float64(pages))
}

// Sync metric helpers

// RecordWorkflowDuration records sync workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(chain, status string, duration float64) {
	m.syncWorkflowDuration.WithLabelValues(chain, status).Observe(duration)
	m.syncWorkflowExecutionsTotal.WithLabelValues(chain, status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, chain string, duration float64) {
	m.syncActivityDuration.WithLabelValues(activity, chain).Observe(duration)
}

// RecordTransactionsFetched records transactions fetched from the API.
func (m *Metrics) RecordTransactionsFetched(chain string, count int) {
	m.transactionsFetchedTotal.WithLabelValues(chain).Add(float64(count))
}

// RecordTransactionsWritten records transactions written to database.
func (m *Metrics) RecordTransactionsWritten(chain string, count int) {
	m.transactionsWrittenTotal.WithLabelValues(chain).Add(float64(count))
}

// RecordTransactionsSkipped records transactions skipped as duplicates.
func (m *Metrics) RecordTransactionsSkipped(chain string, count int) {
	m.transactionsSkippedTotal.WithLabelValues(chain).Add(float64(count))
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(chain, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(chain, status).Inc()
	m.natsPublishDuration.WithLabelValues(chain).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
