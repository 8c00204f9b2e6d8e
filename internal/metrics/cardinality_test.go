package metrics

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizePathLabel(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/", "/"},
		{"/metrics", "/metrics"},
		{"/health", "/health"},
		{"/api/snippets", "/api/*"},
		{"/api/snippets/with/more/segments", "/api/*"},
		{"/api", "/api"},
		{"/api?query=param", "/api"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := sanitizePathLabel(tt.path)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRecordHTTPRequest_Cardinality(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	// Record requests with high cardinality paths
	m.RecordHTTPRequest(context.Background(), "GET", "/snippets/1", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/snippets/2", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/search/1", http.StatusOK, time.Millisecond, 100)

	// Verify /snippets/* count is 2
	countSnippets := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/snippets/*", "OK"))
	assert.Equal(t, 2.0, countSnippets)

	// Verify /search/* count is 1
	countSearch := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/search/*", "OK"))
	assert.Equal(t, 1.0, countSearch)
}

func TestRecordStoreOperation_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg, Config{EnableOperationLabel: true})

	m.RecordStoreOperation(context.Background(), "InsertSnippet", time.Millisecond)
	m.RecordStoreOperation(context.Background(), "InsertSnippet", time.Millisecond)

	count := testutil.ToFloat64(m.storeOperationsTotal.WithLabelValues("InsertSnippet"))
	assert.Equal(t, 2.0, count)
}

func TestRecordStoreError_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg, Config{EnableOperationLabel: true})

	m.RecordStoreError(context.Background(), "FindSnippetByIDAndOwner", "not_found")
	m.RecordStoreError(context.Background(), "FindSnippetByIDAndOwner", "not_found")

	count := testutil.ToFloat64(m.storeOperationErrors.WithLabelValues("FindSnippetByIDAndOwner", "not_found"))
	assert.Equal(t, 2.0, count)
}
