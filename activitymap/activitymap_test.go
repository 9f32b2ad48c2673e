package activitymap_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/activitymap"
)

func TestMapKnownEvents(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		event   auth.ActivityEvent
		action  string
		outcome string
		method  string
		target  string
		reason  string
	}{
		{
			name:    "password login",
			event:   auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess, PrincipalID: "p-1", Username: "alice"},
			action:  "login",
			outcome: activitymap.OutcomeSuccess,
			method:  "password",
			target:  "p-1",
		},
		{
			name: "failed login for unknown user",
			event: auth.ActivityEvent{
				EventType: auth.ActivityEventLoginFailure,
				Metadata:  map[string]any{"username": "mallory", "error": "principal not found"},
			},
			action:  "login",
			outcome: activitymap.OutcomeFailure,
			method:  "password",
			reason:  "principal not found",
		},
		{
			name:    "federated login",
			event:   auth.ActivityEvent{EventType: auth.ActivityEventFederatedLogin, PrincipalID: "p-2"},
			action:  "login",
			outcome: activitymap.OutcomeSuccess,
			method:  "federated",
			target:  "p-2",
		},
		{
			name: "federated enrollment",
			event: auth.ActivityEvent{
				EventType:   auth.ActivityEventSignup,
				PrincipalID: "p-3",
				Metadata:    map[string]any{"source": "federated"},
			},
			action:  "signup",
			outcome: activitymap.OutcomeSuccess,
			method:  "federated",
			target:  "p-3",
		},
		{
			name: "rejected signup",
			event: auth.ActivityEvent{
				EventType: auth.ActivityEventSignup,
				Metadata:  map[string]any{"username": "alice", "error": "identity already taken"},
			},
			action:  "signup",
			outcome: activitymap.OutcomeFailure,
			method:  "password",
			reason:  "identity already taken",
		},
		{
			name:    "refresh rotation",
			event:   auth.ActivityEvent{EventType: auth.ActivityEventRefreshSuccess, PrincipalID: "p-4"},
			action:  "refresh",
			outcome: activitymap.OutcomeSuccess,
			method:  "refresh_token",
			target:  "p-4",
		},
		{
			name:    "password reset",
			event:   auth.ActivityEvent{EventType: auth.ActivityEventPasswordResetSuccess, PrincipalID: "p-5"},
			action:  "reset_password",
			outcome: activitymap.OutcomeSuccess,
			method:  "email_token",
			target:  "p-5",
		},
		{
			name: "access denied targets the resource",
			event: auth.ActivityEvent{
				EventType:   auth.ActivityEventAccessDenied,
				PrincipalID: "p-6",
				Metadata:    map[string]any{"resource_id": "task-9"},
			},
			action:  "access",
			outcome: activitymap.OutcomeDenied,
			target:  "task-9",
		},
		{
			name:    "unlisted type is parsed",
			event:   auth.ActivityEvent{EventType: "auth.mfa.challenge.failure"},
			action:  "mfa",
			outcome: activitymap.OutcomeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.OccurredAt = ts
			rec := activitymap.Map(tt.event)

			assert.Equal(t, tt.action, rec.Action)
			assert.Equal(t, tt.outcome, rec.Outcome)
			assert.Equal(t, tt.method, rec.Method)
			assert.Equal(t, tt.target, rec.Target)
			assert.Equal(t, tt.reason, rec.Reason)
			assert.Equal(t, ts, rec.OccurredAt)
		})
	}
}

func TestMapActor(t *testing.T) {
	assert.Equal(t, "p-1", activitymap.Map(auth.ActivityEvent{PrincipalID: "p-1", Username: "alice"}).Actor)
	assert.Equal(t, "alice", activitymap.Map(auth.ActivityEvent{Username: "alice"}).Actor)

	anon := activitymap.Map(auth.ActivityEvent{EventType: auth.ActivityEventRefreshFailure})
	assert.Equal(t, "anonymous", anon.Actor)
	assert.False(t, anon.OccurredAt.IsZero())
}

func TestRecordLevelAndFields(t *testing.T) {
	ok := activitymap.Map(auth.ActivityEvent{EventType: auth.ActivityEventLogout, PrincipalID: "p-1"})
	assert.Equal(t, logrus.InfoLevel, ok.Level())
	assert.Equal(t, logrus.Fields{
		"actor":   "p-1",
		"action":  "logout",
		"outcome": activitymap.OutcomeSuccess,
		"target":  "p-1",
	}, ok.Fields())

	denied := activitymap.Map(auth.ActivityEvent{EventType: auth.ActivityEventAccessDenied})
	assert.Equal(t, logrus.WarnLevel, denied.Level())
}

func TestNewSink(t *testing.T) {
	var got []activitymap.Record
	sink := activitymap.NewSink(func(_ context.Context, record activitymap.Record) error {
		got = append(got, record)
		return nil
	})

	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType:   auth.ActivityEventLogout,
		PrincipalID: "p-9",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "logout", got[0].Action)

	assert.NoError(t, activitymap.NewSink(nil).Record(context.Background(), auth.ActivityEvent{}))
}

func TestNewLogSink(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := activitymap.NewLogSink(logger)

	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{
		EventType:   auth.ActivityEventLoginSuccess,
		PrincipalID: "p-1",
		Username:    "alice",
	}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{
		EventType:   auth.ActivityEventAccessDenied,
		PrincipalID: "p-2",
		Metadata:    map[string]any{"resource_id": "task-1"},
	}))

	entries := hook.AllEntries()
	require.Len(t, entries, 2)

	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "audit", entries[0].Message)
	assert.Equal(t, "login", entries[0].Data["action"])
	assert.Equal(t, "alice", entries[0].Data["username"])

	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, "task-1", entries[1].Data["target"])
	assert.Equal(t, activitymap.OutcomeDenied, entries[1].Data["outcome"])
}
