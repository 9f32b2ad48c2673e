package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// PrincipalLocalsKey is the fiber Locals key holding the request principal
const PrincipalLocalsKey = "principal"

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal in the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok && raw != nil
}

// CurrentPrincipal returns the principal attached to the fiber request
func CurrentPrincipal(c *fiber.Ctx) (*Principal, bool) {
	raw, ok := c.Locals(PrincipalLocalsKey).(*Principal)
	if ok && raw != nil {
		return raw, true
	}
	return PrincipalFromContext(c.UserContext())
}

// CurrentIdentity returns the request principal as an Identity
func CurrentIdentity(c *fiber.Ctx) (Identity, bool) {
	p, ok := CurrentPrincipal(c)
	if !ok {
		return nil, false
	}
	return NewIdentityFromPrincipal(p), true
}
