package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// RefreshTokenStore persists the single refresh token slot of each principal
type RefreshTokenStore interface {
	// SetRefreshToken overwrites the slot. A nil token clears it.
	SetRefreshToken(ctx context.Context, principalID uuid.UUID, token *string) error
	// SwapRefreshToken replaces expected with next and reports whether the slot held expected.
	SwapRefreshToken(ctx context.Context, principalID uuid.UUID, expected, next string) (bool, error)
	FindByRefreshToken(ctx context.Context, token string) (*Principal, error)
}

// RefreshRegistry maps opaque refresh tokens to principals, one live token per principal
type RefreshRegistry struct {
	store    RefreshTokenStore
	locks    *xsync.MapOf[uuid.UUID, *sync.Mutex]
	generate func() string
	logger   Logger
}

// RegistryOption configures a RefreshRegistry
type RegistryOption func(*RefreshRegistry)

// WithTokenGenerator replaces the random token source
func WithTokenGenerator(fn func() string) RegistryOption {
	return func(r *RefreshRegistry) {
		if fn != nil {
			r.generate = fn
		}
	}
}

// WithRegistryLogger sets the registry logger
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *RefreshRegistry) {
		r.logger = normalizeLogger(logger)
	}
}

// NewRefreshRegistry creates a registry over store
func NewRefreshRegistry(store RefreshTokenStore, opts ...RegistryOption) *RefreshRegistry {
	r := &RefreshRegistry{
		store:    store,
		locks:    xsync.NewMapOf[uuid.UUID, *sync.Mutex](),
		generate: uuid.NewString,
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *RefreshRegistry) lock(principalID uuid.UUID) func() {
	mu, _ := r.locks.LoadOrCompute(principalID, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}

// IssueFor stores a fresh token as the principal's only refresh token,
// invalidating the previous one.
func (r *RefreshRegistry) IssueFor(ctx context.Context, principalID uuid.UUID) (string, error) {
	if principalID == uuid.Nil {
		return "", ErrPrincipalNotFound
	}

	unlock := r.lock(principalID)
	defer unlock()

	token := r.generate()
	if err := r.store.SetRefreshToken(ctx, principalID, &token); err != nil {
		return "", notFoundAs(err, ErrPrincipalNotFound)
	}

	return token, nil
}

// Redeem resolves the principal owning token. It does not rotate.
func (r *RefreshRegistry) Redeem(ctx context.Context, token string) (uuid.UUID, error) {
	p, err := r.find(ctx, token)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// Rotate redeems token and replaces it in one step. When several callers
// rotate the same token concurrently exactly one of them succeeds.
func (r *RefreshRegistry) Rotate(ctx context.Context, token string) (*Principal, string, error) {
	p, err := r.find(ctx, token)
	if err != nil {
		return nil, "", err
	}

	unlock := r.lock(p.ID)
	defer unlock()

	next := r.generate()
	swapped, err := r.store.SwapRefreshToken(ctx, p.ID, token, next)
	if err != nil {
		return nil, "", err
	}

	if !swapped {
		r.logger.Warn("refresh token already rotated", "principal_id", p.ID.String())
		return nil, "", ErrInvalidRefreshToken
	}

	p.RefreshToken = &next
	return p, next, nil
}

// Revoke clears the principal's refresh token
func (r *RefreshRegistry) Revoke(ctx context.Context, principalID uuid.UUID) error {
	unlock := r.lock(principalID)
	defer unlock()

	if err := r.store.SetRefreshToken(ctx, principalID, nil); err != nil {
		return notFoundAs(err, ErrPrincipalNotFound)
	}
	return nil
}

func (r *RefreshRegistry) find(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrInvalidRefreshToken
	}

	p, err := r.store.FindByRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, notFoundAs(err, ErrInvalidRefreshToken)
	}

	if p == nil {
		return nil, ErrInvalidRefreshToken
	}

	return p, nil
}
