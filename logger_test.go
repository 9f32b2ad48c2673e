package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-session-auth"
)

func TestLogrusLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)

	logger := auth.NewLogrusLogger(base, "auth")
	logger.Info("login", "username", "alice", "attempt", 2)
	logger.Error("rotate failed", "error", errors.New("boom"))
	logger.Warn("odd args", "dangling")

	entries := hook.AllEntries()
	require.Len(t, entries, 3)

	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "login", entries[0].Message)
	assert.Equal(t, "auth", entries[0].Data["logger"])
	assert.Equal(t, "alice", entries[0].Data["username"])
	assert.Equal(t, 2, entries[0].Data["attempt"])

	assert.Equal(t, logrus.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].Data["error"])

	assert.Equal(t, "dangling", entries[2].Data["!BADKEY"])
}

func TestLogrusLoggerRespectsLevel(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.InfoLevel)

	logger := auth.NewLogrusLogger(base, "")
	logger.Debug("hidden")
	logger.Info("shown")

	require.Len(t, hook.AllEntries(), 1)
	_, named := hook.LastEntry().Data["logger"]
	assert.False(t, named)
}

func TestMultiActivitySink(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	failing := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return errors.New("sink down")
	})

	sink := auth.MultiActivitySink{first, nil, failing, second}
	err := sink.Record(context.Background(), auth.ActivityEvent{EventType: auth.ActivityEventLogout})

	assert.EqualError(t, err, "sink down")
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventLogout}, first.types())
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventLogout}, second.types())

	var nilFunc auth.ActivitySinkFunc
	assert.NoError(t, nilFunc.Record(context.Background(), auth.ActivityEvent{}))
}

func TestLoggerActivitySink(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	sink := auth.NewLoggerActivitySink(auth.NewLogrusLogger(base, "activity"))
	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType:   auth.ActivityEventLoginSuccess,
		PrincipalID: "p-1",
		Username:    "alice",
		Metadata:    map[string]any{"source": "password"},
		OccurredAt:  baseTime,
	})
	require.NoError(t, err)

	line := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "auth activity", line["msg"])
	assert.Equal(t, string(auth.ActivityEventLoginSuccess), line["event"])
	assert.Equal(t, "p-1", line["principal_id"])
	assert.Equal(t, "alice", line["username"])
	assert.Equal(t, "password", line["source"])
	assert.Equal(t, "activity", line["logger"])
}
