package main

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func TestFetchOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{&FetchError{Err: ErrMissingCredential}, "missing_credential"},
		{&FetchError{Err: ErrNoMeaningfulContent}, "no_content"},
		{&FetchError{Err: ErrServiceUnreachable, Cause: errors.New("timeout")}, "unreachable"},
		{errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, fetchOutcome(tt.err))
		})
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeFetch(nil, 0)
		m.observeRecord(StatusSuccess)
		m.observeBatch("completed")
	})
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.observeRecord(StatusFailed)
	m.observeBatch("completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `article_extractor_records_total{status="FAILED"} 1`)
	assert.Contains(t, string(body), `article_extractor_batches_total{outcome="completed"} 1`)
}
