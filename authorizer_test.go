package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-session-auth"
)

type MockResourceStore struct {
	mock.Mock
}

func (m *MockResourceStore) FindOwner(ctx context.Context, resourceID string) (uuid.UUID, bool, error) {
	args := m.Called(ctx, resourceID)
	return args.Get(0).(uuid.UUID), args.Bool(1), args.Error(2)
}

func TestAuthorizerCanAccess(t *testing.T) {
	ctx := context.Background()
	alice := newPrincipal("alice", auth.RoleUser)
	bob := newPrincipal("bob", auth.RoleUser)
	admin := newPrincipal("root", auth.RoleAdmin)

	owned := uuid.NewString()
	missing := uuid.NewString()
	storeErr := errors.New("connection reset")

	tests := []struct {
		name      string
		principal *auth.Principal
		resource  string
		setup     func(m *MockResourceStore)
		want      bool
		wantErr   error
	}{
		{
			name:      "admin passes for an existing resource",
			principal: admin,
			resource:  owned,
			want:      true,
		},
		{
			name:      "admin passes for a resource that does not exist",
			principal: admin,
			resource:  missing,
			want:      true,
		},
		{
			name:      "owner passes",
			principal: alice,
			resource:  owned,
			setup: func(m *MockResourceStore) {
				m.On("FindOwner", ctx, owned).Return(alice.ID, true, nil)
			},
			want: true,
		},
		{
			name:      "other user is denied",
			principal: bob,
			resource:  owned,
			setup: func(m *MockResourceStore) {
				m.On("FindOwner", ctx, owned).Return(alice.ID, true, nil)
			},
			want: false,
		},
		{
			name:      "user is denied for a missing resource",
			principal: alice,
			resource:  missing,
			setup: func(m *MockResourceStore) {
				m.On("FindOwner", ctx, missing).Return(uuid.Nil, false, nil)
			},
			want: false,
		},
		{
			name:      "store failure propagates",
			principal: alice,
			resource:  owned,
			setup: func(m *MockResourceStore) {
				m.On("FindOwner", ctx, owned).Return(uuid.Nil, false, storeErr)
			},
			wantErr: storeErr,
		},
		{
			name:     "anonymous is denied",
			resource: owned,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockResourceStore)
			if tt.setup != nil {
				tt.setup(store)
			}

			authorizer := auth.NewAuthorizer(store).WithLogger(nopLogger{})
			got, err := authorizer.CanAccess(ctx, tt.principal, tt.resource)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			// admins and anonymous callers never reach the store
			if tt.setup == nil {
				store.AssertNotCalled(t, "FindOwner", mock.Anything, mock.Anything)
			}
			store.AssertExpectations(t)
		})
	}
}

func TestAuthorizerAuthorize(t *testing.T) {
	ctx := context.Background()
	alice := newPrincipal("alice", auth.RoleUser)
	resource := uuid.NewString()

	store := new(MockResourceStore)
	store.On("FindOwner", ctx, resource).Return(uuid.New(), true, nil)

	sink := &captureSink{}
	authorizer := auth.NewAuthorizer(store).WithLogger(nopLogger{}).WithActivitySink(sink)

	err := authorizer.Authorize(ctx, alice, resource)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	assert.Equal(t, 403, auth.HTTPStatusFor(err))

	assert.ErrorIs(t, authorizer.Authorize(ctx, nil, resource), auth.ErrForbidden)

	sink.mu.Lock()
	events := append([]auth.ActivityEvent(nil), sink.events...)
	sink.mu.Unlock()

	require.Len(t, events, 2)
	assert.Equal(t, auth.ActivityEventAccessDenied, events[0].EventType)
	assert.Equal(t, alice.ID.String(), events[0].PrincipalID)
	assert.Equal(t, "alice", events[0].Username)
	assert.Equal(t, resource, events[0].Metadata["resource_id"])
	assert.False(t, events[0].OccurredAt.IsZero())

	assert.Equal(t, auth.ActivityEventAccessDenied, events[1].EventType)
	assert.Empty(t, events[1].PrincipalID)
}

func TestAuthorizerGrantRecordsNothing(t *testing.T) {
	ctx := context.Background()
	alice := newPrincipal("alice", auth.RoleUser)
	resource := uuid.NewString()

	store := new(MockResourceStore)
	store.On("FindOwner", ctx, resource).Return(alice.ID, true, nil)

	sink := &captureSink{}
	authorizer := auth.NewAuthorizer(store).WithActivitySink(sink)

	require.NoError(t, authorizer.Authorize(ctx, alice, resource))
	assert.Empty(t, sink.types())
}
