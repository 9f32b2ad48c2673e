package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// EphemeralIssuer mints short lived single purpose tokens on top of a TokenCodec
type EphemeralIssuer struct {
	codec *TokenCodec
	ttl   time.Duration
}

// NewEphemeralIssuer creates an issuer. A non positive ttl uses DefaultEphemeralTokenTTL.
func NewEphemeralIssuer(codec *TokenCodec, ttl time.Duration) *EphemeralIssuer {
	if ttl <= 0 {
		ttl = DefaultEphemeralTokenTTL
	}
	return &EphemeralIssuer{codec: codec, ttl: ttl}
}

// TTL returns the lifetime of minted tokens
func (e *EphemeralIssuer) TTL() time.Duration {
	return e.ttl
}

// Issue mints a token for subject tagged with purpose
func (e *EphemeralIssuer) Issue(subject string, purpose Purpose, opts ...ClaimOption) (string, error) {
	if !purpose.IsEphemeral() {
		return "", fmt.Errorf("ephemeral issuer: unsupported purpose %q", purpose)
	}

	set := ClaimSet{}
	for _, opt := range opts {
		if opt != nil {
			opt(&set)
		}
	}
	set.Purpose = purpose
	// ephemeral tokens never carry a role
	set.Role = ""

	return e.codec.Issue(subject, set, e.ttl)
}

// Redeem validates the token and checks that it was minted for expected
func (e *EphemeralIssuer) Redeem(raw string, expected Purpose) (*TokenClaims, error) {
	if !expected.IsEphemeral() {
		return nil, fmt.Errorf("ephemeral issuer: unsupported purpose %q", expected)
	}

	claims, err := e.codec.Validate(raw)
	if err != nil {
		return nil, err
	}

	if claims.Purpose != expected {
		return nil, invalidToken(ErrPurposeMismatch)
	}

	return claims, nil
}

// PasswordVersion fingerprints a password hash. A reset token minted against
// one hash cannot be redeemed after the hash changes.
func PasswordVersion(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

func checkPasswordVersion(claims *TokenClaims, passwordHash string) error {
	if claims.PasswordVersion == "" {
		return invalidToken(ErrTokenMalformed)
	}
	if claims.PasswordVersion != PasswordVersion(passwordHash) {
		return invalidToken(ErrTokenConsumed)
	}
	return nil
}
