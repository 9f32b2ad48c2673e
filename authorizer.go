package auth

import (
	"context"
	"time"
)

// Authorizer decides whether a principal may act on a resource.
// Decisions are evaluated on every call and never cached.
type Authorizer struct {
	resources ResourceStore
	logger    Logger
	sink      ActivitySink
	now       func() time.Time
}

// NewAuthorizer creates an Authorizer backed by the resource store
func NewAuthorizer(resources ResourceStore) *Authorizer {
	return &Authorizer{
		resources: resources,
		logger:    defLogger{},
		sink:      noopActivitySink{},
		now:       time.Now,
	}
}

// WithLogger sets the authorizer logger
func (a *Authorizer) WithLogger(logger Logger) *Authorizer {
	a.logger = normalizeLogger(logger)
	return a
}

// WithActivitySink reports denied requests to sink
func (a *Authorizer) WithActivitySink(sink ActivitySink) *Authorizer {
	a.sink = normalizeActivitySink(sink)
	return a
}

// CanAccess grants admins unconditionally, even for resources that do not
// exist. Anyone else must own an existing resource. Store errors are
// returned unchanged.
func (a *Authorizer) CanAccess(ctx context.Context, principal *Principal, resourceID string) (bool, error) {
	if principal == nil {
		return false, nil
	}

	if principal.Role.IsAdmin() {
		return true, nil
	}

	owner, found, err := a.resources.FindOwner(ctx, resourceID)
	if err != nil {
		return false, err
	}

	if !found {
		return false, nil
	}

	return owner == principal.ID, nil
}

// Authorize is CanAccess returning ErrForbidden on denial
func (a *Authorizer) Authorize(ctx context.Context, principal *Principal, resourceID string) error {
	ok, err := a.CanAccess(ctx, principal, resourceID)
	if err != nil {
		return err
	}

	if !ok {
		args := []any{"resource_id", resourceID}
		if principal != nil {
			args = append(args, "principal_id", principal.ID.String())
		}
		a.logger.Debug("access denied", args...)
		a.recordDenied(ctx, principal, resourceID)
		return ErrForbidden
	}

	return nil
}

func (a *Authorizer) recordDenied(ctx context.Context, principal *Principal, resourceID string) {
	event := ActivityEvent{
		EventType:  ActivityEventAccessDenied,
		Metadata:   map[string]any{"resource_id": resourceID},
		OccurredAt: a.now().UTC(),
	}
	if principal != nil {
		event.PrincipalID = principal.ID.String()
		event.Username = principal.Username
		event.Metadata["role"] = string(principal.Role)
	}
	if err := normalizeActivitySink(a.sink).Record(ctx, event); err != nil {
		a.logger.Warn("activity sink record error", "error", err)
	}
}
