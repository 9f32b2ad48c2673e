package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/metrics"
)

func TestSinkCountsEventsByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	at := time.Unix(1700000000, 0)
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess, OccurredAt: at}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess, OccurredAt: at}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventRefreshFailure, OccurredAt: at}))

	count, err := testutil.GatherAndCount(reg, "session_auth_activity_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	body := scrape(t, reg)
	assert.Contains(t, body, `session_auth_activity_events_total{event="auth.login.success"} 2`)
	assert.Contains(t, body, `session_auth_activity_events_total{event="auth.refresh.failure"} 1`)
	assert.Contains(t, body, `session_auth_activity_last_event_timestamp_seconds{event="auth.login.success"} 1.7e+09`)
}

func TestNewSinkRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewSink(reg)
	require.NoError(t, err)

	_, err = metrics.NewSink(reg)
	assert.Error(t, err)
}

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()

	app := fiber.New()
	app.Get("/metrics", metrics.Handler(reg))

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}
