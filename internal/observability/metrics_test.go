package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func shutdownLater(t *testing.T, shutdown func(context.Context) error) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdown(ctx)
	})
}

func TestInitMetrics_CustomMetricAppearsInOutput(t *testing.T) {
	handler, shutdown, err := InitMetrics()
	require.NoError(t, err)
	require.NotNil(t, handler)
	shutdownLater(t, shutdown)

	counter, err := otel.Meter("test-meter").Int64Counter("test_custom_counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 42)

	body := scrape(t, handler)
	assert.Contains(t, body, "test_custom_counter")
	assert.Contains(t, body, "42")
}

type fakeState struct {
	ids       []string
	connected bool
}

func (f fakeState) IncompleteJobIDs() []string { return f.ids }
func (f fakeState) Connected() bool            { return f.connected }

func TestRegisterUploadGauges(t *testing.T) {
	handler, shutdown, err := InitMetrics()
	require.NoError(t, err)
	shutdownLater(t, shutdown)

	require.NoError(t, RegisterUploadGauges(fakeState{ids: []string{"a", "b", "c"}, connected: true}))

	body := scrape(t, handler)
	assert.Contains(t, body, "upload_jobs_incomplete")
	assert.Contains(t, body, "upload_stream_connected")
}
