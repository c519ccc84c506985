package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/brojonat/unmarshall/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var _ client.Recorder = (*Metrics)(nil)

func TestRecordAPICall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAPICall("get_transactions", 200, 0.2)
	m.RecordAPICall("get_transactions", 204, 0.1)
	m.RecordAPICall("get_transactions", 503, 0.3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiCallsTotal.WithLabelValues("get_transactions", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiCallsTotal.WithLabelValues("get_transactions", "5xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.apiCallDuration))
}

func TestRecordAPIErrorAndPages(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAPIError("get_transaction", "timeout")
	m.RecordAPIError("get_transaction", "timeout")
	m.RecordPagesFetched("get_transactions", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiErrorsTotal.WithLabelValues("get_transaction", "timeout")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.apiPagesFetched))
}

func TestRecordSyncCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTransactionsFetched("ethereum", 10)
	m.RecordTransactionsWritten("ethereum", 7)
	m.RecordTransactionsSkipped("ethereum", 3)
	m.RecordWorkflowDuration("ethereum", "success", 2)
	m.RecordActivityDuration("FetchTransactions", "ethereum", 1)

	assert.Equal(t, 10.0, testutil.ToFloat64(m.transactionsFetchedTotal.WithLabelValues("ethereum")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.transactionsWrittenTotal.WithLabelValues("ethereum")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.transactionsSkippedTotal.WithLabelValues("ethereum")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncWorkflowExecutionsTotal.WithLabelValues("ethereum", "success")))
}

func TestRecordDBQueryStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDBQuery("insert", "transactions", 0.01, nil)
	m.RecordDBQuery("insert", "transactions", 0.01, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("insert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("insert", "error")))
}

func TestRecordNATSPublish(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordNATSPublish("solana", "success", 0.002)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.natsMessagesPublished.WithLabelValues("solana", "success")))
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(201))
	assert.Equal(t, "3xx", statusCodeToString(302))
	assert.Equal(t, "4xx", statusCodeToString(429))
	assert.Equal(t, "5xx", statusCodeToString(500))
	assert.Equal(t, "unknown", statusCodeToString(0))
}

func TestTimer(t *testing.T) {
	var got float64
	done := Timer(time.Now().Add(-time.Second), func(d float64) { got = d })
	done()
	assert.GreaterOrEqual(t, got, 1.0)
}
