package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordIssueOperation(t *testing.T) {
	m := NewMetrics()

	m.RecordIssueOperation("assign_issue", "ok")
	m.RecordIssueOperation("assign_issue", "CONFLICT")
	m.RecordIssueOperation("assign_issue", "CONFLICT")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.issueOps.WithLabelValues("assign_issue", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.issueOps.WithLabelValues("assign_issue", "CONFLICT")))
}

func TestMetrics_RecordRequestAndError(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/api/v1/issues/all", "GET", 200, 15*time.Millisecond)
	m.RecordError("/api/v1/issues/all", "GET", "FORBIDDEN")

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["issueservice_http_request_duration_seconds"])
	assert.True(t, names["issueservice_http_errors_total"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.RecordIssueOperation("op", "ok")
		m.RecordDBPool(nil)
	})
}
