package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock returns the current time. Tests inject fixed clocks.
type Clock func() time.Time

// Identity holds the attributes of an authenticated principal
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// PrincipalFinder resolves principals for the session gate
type PrincipalFinder interface {
	FindByUsername(ctx context.Context, username string) (*Principal, error)
}

// PrincipalStore is the durable record of accounts
type PrincipalStore interface {
	PrincipalFinder
	RefreshTokenStore
	FindByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, principal *Principal) (*Principal, error)
	Enable(ctx context.Context, id uuid.UUID) error
	// UpdatePassword writes next only while the stored hash still equals current.
	UpdatePassword(ctx context.Context, id uuid.UUID, current, next string) (bool, error)
}

// ResourceStore resolves the owner of a protected resource
type ResourceStore interface {
	FindOwner(ctx context.Context, resourceID string) (owner uuid.UUID, found bool, err error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(format("[ERR] AUTH ", msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(format("[WRN] AUTH ", msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(format("[INF] AUTH ", msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(format("[DBG] AUTH ", msg, args))
}

func format(prefix, msg string, args []any) string {
	out := prefix + msg
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			out += fmt.Sprintf(" %v=%v", args[i], args[i+1])
		} else {
			out += fmt.Sprintf(" %v", args[i])
		}
	}
	return out
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
