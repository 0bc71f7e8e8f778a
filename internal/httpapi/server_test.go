package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/config"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jss"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/monitor"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/retry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMonitor struct {
	rows       []jobs.Row
	safe       bool
	connected  bool
	incomplete []string
	next       time.Time
	changes    chan struct{}

	submitted []monitor.SubmitRequest
	actionErr error
	retried   []string
	cancelled []string
	resyncs   int
}

func (f *fakeMonitor) Rows() []jobs.Row           { return f.rows }
func (f *fakeMonitor) SafeToExit() bool           { return f.safe }
func (f *fakeMonitor) Connected() bool            { return f.connected }
func (f *fakeMonitor) IncompleteJobIDs() []string { return f.incomplete }
func (f *fakeMonitor) NextResync() time.Time      { return f.next }

func (f *fakeMonitor) Subscribe() (<-chan struct{}, func()) {
	if f.changes == nil {
		f.changes = make(chan struct{}, 1)
	}
	return f.changes, func() {}
}

func (f *fakeMonitor) Submit(_ context.Context, req monitor.SubmitRequest) (string, error) {
	if f.actionErr != nil {
		return "", f.actionErr
	}
	f.submitted = append(f.submitted, req)
	return "job-1", nil
}

func (f *fakeMonitor) RetryJob(_ context.Context, jobID string) error {
	if f.actionErr != nil {
		return f.actionErr
	}
	f.retried = append(f.retried, jobID)
	return nil
}

func (f *fakeMonitor) CancelJob(_ context.Context, jobID string) error {
	if f.actionErr != nil {
		return f.actionErr
	}
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeMonitor) Resync(context.Context) error {
	f.resyncs++
	return f.actionErr
}

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
	updated   bool
}

func (f *fakeSettingsStore) Pending() bool { return f.updated }

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	f.updated = true
	return f.current, nil
}

type fakeClipboard struct {
	text string
}

func (f *fakeClipboard) Permitted() bool { return true }

func (f *fakeClipboard) WriteAll(text string) error {
	f.text = text
	return nil
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_ListJobs(t *testing.T) {
	m := &fakeMonitor{rows: []jobs.Row{{Key: "a", JobID: "a", Name: "plate.czi", Status: jobs.StatusWorking}}}
	srv := NewServer(m, alerts.NewCenter())

	rec := do(t, srv, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []jobs.Row
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "plate.czi", rows[0].Name)
}

func TestServer_SubmitJob(t *testing.T) {
	m := &fakeMonitor{}
	srv := NewServer(m, alerts.NewCenter())

	rec := do(t, srv, http.MethodPost, "/api/jobs", map[string]any{
		"jobName":    "plate.czi",
		"files":      []string{"/data/plate.czi"},
		"totalBytes": 4000,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"jobId":"job-1"}`, rec.Body.String())
	require.Len(t, m.submitted, 1)
	assert.Equal(t, int64(4000), m.submitted[0].TotalBytes)

	rec = do(t, srv, http.MethodPost, "/api/jobs", map[string]any{"files": []string{"x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_JobActions(t *testing.T) {
	m := &fakeMonitor{}
	srv := NewServer(m, alerts.NewCenter())

	assert.Equal(t, http.StatusAccepted, do(t, srv, http.MethodPost, "/api/jobs/j1/retry", nil).Code)
	assert.Equal(t, http.StatusAccepted, do(t, srv, http.MethodPost, "/api/jobs/j2/cancel", nil).Code)
	assert.Equal(t, []string{"j1"}, m.retried)
	assert.Equal(t, []string{"j2"}, m.cancelled)
}

func TestServer_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "rejected", err: &jss.APIError{StatusCode: http.StatusConflict, Message: "job is complete"}, want: http.StatusConflict},
		{name: "unreachable", err: retry.ErrServiceUnreachable, want: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&fakeMonitor{actionErr: tt.err}, alerts.NewCenter())
			rec := do(t, srv, http.MethodPost, "/api/jobs/j1/retry", nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestServer_Status(t *testing.T) {
	next := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := &fakeMonitor{safe: false, connected: true, incomplete: []string{"a", "b"}, next: next}
	center := alerts.NewCenter()
	center.SetAlert(alerts.Alert{Type: alerts.LevelInfo, Message: "Started upload"})
	srv := NewServer(m, center)

	rec := do(t, srv, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.SafeToExit)
	assert.True(t, got.Connected)
	assert.Equal(t, []string{"a", "b"}, got.IncompleteJobIDs)
	require.NotNil(t, got.NextResync)
	assert.True(t, next.Equal(*got.NextResync))
	assert.Equal(t, "Started upload moments ago", got.StatusText)
}

func TestServer_AlertLifecycle(t *testing.T) {
	center := alerts.NewCenter()
	cb := &fakeClipboard{}
	srv := NewServer(&fakeMonitor{}, center, WithClipboard(cb))

	rec := do(t, srv, http.MethodGet, "/api/alert", nil)
	assert.JSONEq(t, `{"alert":null}`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/alert/copy", nil).Code)

	center.SetAlert(alerts.Alert{Type: alerts.LevelError, Message: "Upload failed", ManualClear: true})

	rec = do(t, srv, http.MethodGet, "/api/alert", nil)
	assert.Contains(t, rec.Body.String(), "Upload failed")

	rec = do(t, srv, http.MethodPost, "/api/alert/copy", nil)
	assert.JSONEq(t, `{"copied":true}`, rec.Body.String())
	assert.Equal(t, "Upload failed", cb.text)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/alert", nil).Code)
	_, ok := center.Current()
	assert.False(t, ok)

	rec = do(t, srv, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Upload failed moments ago")
}

func TestServer_Settings(t *testing.T) {
	store := &fakeSettingsStore{current: config.RuntimeSettings{
		JSSURL: "http://jss.example", User: "jane", ResyncCron: "@every 1m",
	}}
	srv := NewServer(&fakeMonitor{}, alerts.NewCenter(), WithRuntimeSettingsStore(store))

	rec := do(t, srv, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jss.example")
	assert.Contains(t, rec.Body.String(), `"restartRequired":false`)

	next := config.RuntimeSettings{JSSURL: "http://other.example", User: "joe", ResyncCron: "*/5 * * * *"}
	rec = do(t, srv, http.MethodPut, "/api/settings", next)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, next, store.current)
	assert.Contains(t, rec.Body.String(), `"restartRequired":true`)

	rec = do(t, srv, http.MethodPut, "/api/settings", config.RuntimeSettings{JSSURL: "http://x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bare := NewServer(&fakeMonitor{}, alerts.NewCenter())
	assert.Equal(t, http.StatusNotImplemented, do(t, bare, http.MethodGet, "/api/settings", nil).Code)
}

func TestServer_MetricsMountedOnlyWhenConfigured(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("upload_jobs_incomplete 0\n"))
	})
	srv := NewServer(&fakeMonitor{}, alerts.NewCenter(), WithMetricsHandler(metrics))
	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "upload_jobs_incomplete")

	bare := NewServer(&fakeMonitor{}, alerts.NewCenter())
	assert.Equal(t, http.StatusNotFound, do(t, bare, http.MethodGet, "/metrics", nil).Code)
}

func TestServer_JobStream(t *testing.T) {
	m := &fakeMonitor{rows: []jobs.Row{{Key: "a", Name: "plate.czi"}}}
	srv := httptest.NewServer(NewServer(m, alerts.NewCenter(), WithStreamInterval(time.Hour)).Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/jobs/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "data: "))
	assert.Contains(t, line, "plate.czi")
}
