package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapterhttp "github.com/couchcryptid/precip-cleaner/internal/adapter/http"
	"github.com/couchcryptid/precip-cleaner/internal/pipeline"
)

type fakeReporter struct {
	ready  bool
	status pipeline.RunStatus
	hasRun bool
}

func (f *fakeReporter) CheckReadiness(context.Context) error {
	if !f.ready {
		return errors.New("no cleaning run has completed yet")
	}
	return nil
}

func (f *fakeReporter) Status() (pipeline.RunStatus, bool) {
	return f.status, f.hasRun
}

func newTestServer(reporter *fakeReporter) *adapterhttp.Server {
	return adapterhttp.NewServer(":0", reporter, slog.New(slog.DiscardHandler))
}

func get(t *testing.T, srv *adapterhttp.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(&fakeReporter{})

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestServer_ReadyzBeforeAndAfterFirstRun(t *testing.T) {
	reporter := &fakeReporter{}
	srv := newTestServer(reporter)

	rec := get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	reporter.ready = true
	rec = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_StatuszReportsLastRun(t *testing.T) {
	reporter := &fakeReporter{
		hasRun: true,
		status: pipeline.RunStatus{
			StartedAt: time.Date(2026, time.August, 4, 12, 0, 0, 0, time.UTC),
			RawRows:   120,
			CleanRows: 118,
			Upserted:  118,
		},
	}
	srv := newTestServer(reporter)

	rec := get(t, srv, "/statusz")
	require.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 120, got.RawRows)
	assert.Equal(t, 118, got.CleanRows)
	assert.Equal(t, int64(118), got.Upserted)
}

func TestServer_StatuszBeforeFirstRun(t *testing.T) {
	srv := newTestServer(&fakeReporter{})

	rec := get(t, srv, "/statusz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no run completed yet")
}

func TestServer_MetricsExposed(t *testing.T) {
	srv := newTestServer(&fakeReporter{})

	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_UnknownMethodRejected(t *testing.T) {
	srv := newTestServer(&fakeReporter{})

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
