package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose tags what a signed token may be used for
type Purpose string

const (
	// PurposeAccess is carried by access tokens
	PurposeAccess Purpose = "access"
	// PurposeEmailVerify is carried by email verification tokens
	PurposeEmailVerify Purpose = "EMAIL_VERIFY"
	// PurposePasswordReset is carried by password reset tokens
	PurposePasswordReset Purpose = "PASSWORD_RESET"
)

// IsEphemeral reports whether the purpose belongs to a one time flow
func (p Purpose) IsEphemeral() bool {
	return p == PurposeEmailVerify || p == PurposePasswordReset
}

// TokenClaims is the payload of every token minted by the codec
type TokenClaims struct {
	jwt.RegisteredClaims
	UserRole Role    `json:"role,omitempty"`
	Purpose  Purpose `json:"purpose"`
	// PasswordVersion fingerprints the password hash a reset token was minted against
	PasswordVersion string `json:"pwv,omitempty"`
}

// ClaimSet holds the custom claims passed to TokenCodec.Issue
type ClaimSet struct {
	Role            Role
	Purpose         Purpose
	PasswordVersion string
}

// ClaimOption mutates a ClaimSet
type ClaimOption func(*ClaimSet)

// WithRoleClaim sets the role claim
func WithRoleClaim(role Role) ClaimOption {
	return func(c *ClaimSet) {
		c.Role = role
	}
}

// WithPasswordVersion sets the password fingerprint claim
func WithPasswordVersion(version string) ClaimOption {
	return func(c *ClaimSet) {
		c.PasswordVersion = version
	}
}

// Subject returns the subject claim
func (c *TokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Role returns the role claim
func (c *TokenClaims) Role() Role {
	return c.UserRole
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAtTime returns the issue time
func (c *TokenClaims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
