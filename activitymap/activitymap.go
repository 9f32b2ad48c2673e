package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	auth "github.com/goliatone/go-session-auth"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"

	anonymousActor = "anonymous"
)

// Record is the audit line written for one auth event.
type Record struct {
	Actor      string    `json:"actor"`
	Username   string    `json:"username,omitempty"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	Method     string    `json:"method,omitempty"`
	Target     string    `json:"target,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type mapping struct {
	action  string
	outcome string
	method  string
}

var known = map[auth.ActivityEventType]mapping{
	auth.ActivityEventSignup:               {"signup", OutcomeSuccess, "password"},
	auth.ActivityEventEmailVerified:        {"verify_email", OutcomeSuccess, "email_token"},
	auth.ActivityEventLoginSuccess:         {"login", OutcomeSuccess, "password"},
	auth.ActivityEventLoginFailure:         {"login", OutcomeFailure, "password"},
	auth.ActivityEventFederatedLogin:       {"login", OutcomeSuccess, "federated"},
	auth.ActivityEventRefreshSuccess:       {"refresh", OutcomeSuccess, "refresh_token"},
	auth.ActivityEventRefreshFailure:       {"refresh", OutcomeFailure, "refresh_token"},
	auth.ActivityEventLogout:               {"logout", OutcomeSuccess, ""},
	auth.ActivityEventPasswordResetRequest: {"request_password_reset", OutcomeSuccess, "email_token"},
	auth.ActivityEventPasswordResetSuccess: {"reset_password", OutcomeSuccess, "email_token"},
	auth.ActivityEventAccessDenied:         {"access", OutcomeDenied, ""},
}

// Map turns an event into its audit record. Unknown types of the form
// auth.<action>[.<qualifier>] still map to an action.
func Map(event auth.ActivityEvent) Record {
	m, ok := known[event.EventType]
	if !ok {
		m = parseType(string(event.EventType))
	}

	rec := Record{
		Actor:      firstNonEmpty(event.PrincipalID, event.Username, anonymousActor),
		Username:   event.Username,
		Action:     m.action,
		Outcome:    m.outcome,
		Method:     m.method,
		Target:     event.PrincipalID,
		OccurredAt: event.OccurredAt,
	}

	if source, ok := event.Metadata["source"].(string); ok && source != "" {
		rec.Method = source
	}
	if resource, ok := event.Metadata["resource_id"].(string); ok && resource != "" {
		rec.Target = resource
	}
	if reason, ok := event.Metadata["error"].(string); ok && reason != "" {
		rec.Reason = reason
		// signup reports rejected attempts under the same event type
		if rec.Outcome == OutcomeSuccess {
			rec.Outcome = OutcomeFailure
		}
	}
	if rec.Username == "" {
		if name, ok := event.Metadata["username"].(string); ok {
			rec.Username = name
		}
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}

	return rec
}

func parseType(eventType string) mapping {
	parts := strings.Split(strings.TrimPrefix(eventType, "auth."), ".")
	m := mapping{action: parts[0], outcome: OutcomeSuccess}
	if len(parts) > 1 {
		switch last := parts[len(parts)-1]; last {
		case OutcomeFailure, OutcomeDenied:
			m.outcome = last
		}
	}
	if m.action == "" {
		m.action = "unknown"
	}
	return m
}

// Level is the log level an audit record is written at
func (r Record) Level() logrus.Level {
	if r.Outcome == OutcomeSuccess {
		return logrus.InfoLevel
	}
	return logrus.WarnLevel
}

// Fields flattens the record for structured logging
func (r Record) Fields() logrus.Fields {
	fields := logrus.Fields{
		"actor":   r.Actor,
		"action":  r.Action,
		"outcome": r.Outcome,
	}
	for key, value := range map[string]string{
		"username": r.Username,
		"method":   r.Method,
		"target":   r.Target,
		"reason":   r.Reason,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

// NewSink returns an ActivitySink that maps events before handing them to emit.
func NewSink(emit func(ctx context.Context, record Record) error) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		if emit == nil {
			return nil
		}
		return emit(ctx, Map(event))
	})
}

// NewLogSink writes one audit line per event to logger
func NewLogSink(logger logrus.FieldLogger) auth.ActivitySink {
	return NewSink(func(_ context.Context, record Record) error {
		entry := logger.WithFields(record.Fields()).WithTime(record.OccurredAt)
		switch record.Level() {
		case logrus.WarnLevel:
			entry.Warn("audit")
		default:
			entry.Info("audit")
		}
		return nil
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
