package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig is the codec configuration. The signing key is never rotated at runtime.
type TokenConfig struct {
	SigningKey    []byte
	SigningMethod string
	Issuer        string
	Audience      []string
}

// TokenCodec signs and verifies compact tokens. It holds no mutable state.
type TokenCodec struct {
	signingKey []byte
	method     *jwt.SigningMethodHMAC
	issuer     string
	audience   jwt.ClaimStrings
	now        Clock
	logger     Logger
}

// CodecOption configures a TokenCodec
type CodecOption func(*TokenCodec)

// WithClock sets the time source used to stamp and check tokens
func WithClock(now Clock) CodecOption {
	return func(tc *TokenCodec) {
		if now != nil {
			tc.now = now
		}
	}
}

// WithCodecLogger sets the codec logger
func WithCodecLogger(logger Logger) CodecOption {
	return func(tc *TokenCodec) {
		tc.logger = normalizeLogger(logger)
	}
}

// NewTokenCodec creates a new TokenCodec instance
func NewTokenCodec(cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("token codec: signing key is required")
	}

	name := cfg.SigningMethod
	if name == "" {
		name = DefaultSigningMethod
	}

	method, ok := jwt.GetSigningMethod(name).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("token codec: unsupported signing method %q", name)
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	tc := &TokenCodec{
		signingKey: key,
		method:     method,
		issuer:     cfg.Issuer,
		now:        time.Now,
		logger:     defLogger{},
	}

	if len(cfg.Audience) > 0 {
		tc.audience = append(jwt.ClaimStrings(nil), cfg.Audience...)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(tc)
		}
	}

	return tc, nil
}

// Issue mints a token for subject that expires ttl after now
func (tc *TokenCodec) Issue(subject string, set ClaimSet, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token codec: subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("token codec: ttl must be positive")
	}

	purpose := set.Purpose
	if purpose == "" {
		purpose = PurposeAccess
	}

	now := tc.now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tc.issuer,
			Subject:   subject,
			Audience:  tc.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserRole:        set.Role,
		Purpose:         purpose,
		PasswordVersion: set.PasswordVersion,
	}

	ensureTokenID(&claims.RegisteredClaims)

	signed, err := jwt.NewWithClaims(tc.method, claims).SignedString(tc.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token. Failures always wrap ErrInvalidToken
// together with the reason: ErrTokenExpired, ErrTokenSignature or ErrTokenMalformed.
func (tc *TokenCodec) Validate(raw string) (*TokenClaims, error) {
	if raw == "" {
		return nil, invalidToken(ErrTokenMalformed)
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(tc.now),
		jwt.WithLeeway(0),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{tc.method.Alg()}),
	}
	if tc.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(tc.issuer))
	}
	if len(tc.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(tc.audience[0]))
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tc.signingKey, nil
	}, parserOptions...)

	if err != nil {
		reason := classifyTokenError(err)
		tc.logger.Debug("token rejected", "reason", reason, "error", err)
		return nil, invalidToken(reason)
	}

	if !token.Valid {
		return nil, invalidToken(ErrTokenMalformed)
	}

	if claims.Purpose == "" {
		return nil, invalidToken(ErrTokenMalformed)
	}

	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignature
	default:
		return ErrTokenMalformed
	}
}

// Now returns the codec clock reading
func (tc *TokenCodec) Now() time.Time {
	return tc.now()
}
