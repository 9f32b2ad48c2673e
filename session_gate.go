package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-session-auth/middleware/jwtware"
)

// SessionGate resolves the bearer credential of a request into a principal.
// It never fails a request: anything short of a valid access token for a
// live principal leaves the request anonymous.
type SessionGate struct {
	validator            TokenValidator
	principals           PrincipalFinder
	requireVerifiedEmail bool
	authScheme           string
	logger               Logger
}

// NewSessionGate creates a gate validating tokens with validator, usually a *TokenCodec
func NewSessionGate(validator TokenValidator, principals PrincipalFinder) *SessionGate {
	return &SessionGate{
		validator:  validator,
		principals: principals,
		authScheme: "Bearer",
		logger:     defLogger{},
	}
}

// WithLogger sets the gate logger
func (g *SessionGate) WithLogger(logger Logger) *SessionGate {
	g.logger = normalizeLogger(logger)
	return g
}

// WithRequireVerifiedEmail treats disabled principals as anonymous
func (g *SessionGate) WithRequireVerifiedEmail(require bool) *SessionGate {
	g.requireVerifiedEmail = require
	return g
}

// Authenticate resolves an Authorization header value
func (g *SessionGate) Authenticate(ctx context.Context, authorization string) (*Principal, bool) {
	raw, err := jwtware.FromAuthorization(authorization, g.authScheme)
	if err != nil {
		return nil, false
	}

	p, err := g.Resolve(ctx, raw)
	if err != nil {
		return nil, false
	}
	return p, true
}

// Resolve validates a raw access token and loads its principal
func (g *SessionGate) Resolve(ctx context.Context, raw string) (*Principal, error) {
	claims, err := g.validator.Validate(raw)
	if err != nil {
		g.logger.Debug("session gate rejected token", "error", err)
		return nil, err
	}

	if claims.Purpose != PurposeAccess {
		g.logger.Debug("session gate rejected non access token", "purpose", string(claims.Purpose))
		return nil, invalidToken(ErrPurposeMismatch)
	}

	p, err := g.principals.FindByUsername(ctx, claims.Subject())
	if err != nil {
		err = notFoundAs(err, ErrPrincipalNotFound)
		if errors.Is(err, ErrPrincipalNotFound) {
			g.logger.Debug("session gate subject no longer exists", "subject", claims.Subject())
		} else {
			g.logger.Error("session gate principal lookup failed", "subject", claims.Subject(), "error", err)
		}
		return nil, err
	}

	if g.requireVerifiedEmail && !p.Enabled {
		g.logger.Debug("session gate rejected disabled principal", "subject", claims.Subject())
		return nil, ErrAccountDisabled
	}

	return p, nil
}

// Middleware attaches the principal to fiber Locals and to the user context,
// at most once per request.
func (g *SessionGate) Middleware() fiber.Handler {
	return jwtware.New(jwtware.Config{
		ContextKey: PrincipalLocalsKey,
		AuthScheme: g.authScheme,
		Resolver: func(ctx context.Context, raw string) (any, error) {
			p, err := g.Resolve(ctx, raw)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		ContextEnricher: func(ctx context.Context, value any) context.Context {
			if p, ok := value.(*Principal); ok {
				return WithPrincipal(ctx, p)
			}
			return ctx
		},
	})
}
