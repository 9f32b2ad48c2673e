package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const operationTimeout = 10 * time.Second

// TokenPair is returned by every operation that opens a session
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SignupResult reports the created principal and whether the verification
// mail went out. The account exists even when it did not.
type SignupResult struct {
	Principal        *Principal `json:"user"`
	VerificationSent bool       `json:"verificationSent"`
	MailError        string     `json:"mailError,omitempty"`
}

type principalCreator interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *Principal) (*Principal, error)
}

// Service drives the credential and session lifecycle
type Service struct {
	cfg          Config
	principals   PrincipalStore
	txManager    TransactionManager
	codec        *TokenCodec
	ephemeral    *EphemeralIssuer
	registry     *RefreshRegistry
	gate         *SessionGate
	hasher       PasswordAuthenticator
	mailer       Mailer
	activitySink ActivitySink
	logger       Logger
}

// NewService wires the token components over the principal store
func NewService(cfg Config, principals PrincipalStore, opts ...CodecOption) (*Service, error) {
	if principals == nil {
		return nil, errors.New("auth service: principal store is required")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auth service: invalid config: %w", err)
	}

	codec, err := NewTokenCodec(cfg.TokenConfig(), opts...)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:          cfg,
		principals:   principals,
		codec:        codec,
		ephemeral:    NewEphemeralIssuer(codec, cfg.EphemeralTokenTTL),
		registry:     NewRefreshRegistry(principals),
		gate:         NewSessionGate(codec, principals).WithRequireVerifiedEmail(cfg.RequireVerifiedEmail),
		hasher:       NewBcryptHasher(cfg.PasswordCost),
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
	s.mailer = logMailer{logger: s.logger}

	return s, nil
}

func (s *Service) WithLogger(logger Logger) *Service {
	s.logger = normalizeLogger(logger)
	s.codec.logger = s.logger
	s.registry.logger = s.logger
	s.gate.WithLogger(s.logger)
	if _, ok := s.mailer.(logMailer); ok {
		s.mailer = logMailer{logger: s.logger}
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Service) WithActivitySink(sink ActivitySink) *Service {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// ActivitySink returns the sink auth events are reported to
func (s *Service) ActivitySink() ActivitySink {
	return normalizeActivitySink(s.activitySink)
}

// WithMailer sets the dispatcher used for verification and reset links
func (s *Service) WithMailer(mailer Mailer) *Service {
	if mailer != nil {
		s.mailer = mailer
	}
	return s
}

// WithHasher replaces the bcrypt hasher
func (s *Service) WithHasher(hasher PasswordAuthenticator) *Service {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithTransactionManager makes signup insert the principal inside a
// transaction. The principal store must expose CreateTx.
func (s *Service) WithTransactionManager(tm TransactionManager) *Service {
	s.txManager = tm
	return s
}

// WithRefreshRegistry replaces the default registry
func (s *Service) WithRefreshRegistry(registry *RefreshRegistry) *Service {
	if registry != nil {
		s.registry = registry
	}
	return s
}

func (s *Service) Codec() *TokenCodec {
	return s.codec
}

func (s *Service) Ephemeral() *EphemeralIssuer {
	return s.ephemeral
}

func (s *Service) Registry() *RefreshRegistry {
	return s.registry
}

// Gate returns the session gate used by the HTTP middleware
func (s *Service) Gate() *SessionGate {
	return s.gate
}

func (s *Service) Config() Config {
	return s.cfg
}

// Signup creates a disabled principal and mails the verification link
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	if err := s.ensureIdentityAvailable(ctx, req.Username, req.Email); err != nil {
		s.emitAuthEvent(ctx, ActivityEventSignup, nil, map[string]any{
			"username": req.Username,
			"error":    err.Error(),
		})
		return nil, err
	}

	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("signup failed to hash password", "error", err)
		return nil, err
	}

	principal := &Principal{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         RoleUser,
		Enabled:      false,
	}

	if s.cfg.DeterministicIDs {
		if id, err := hashid.NewUUID(normalizeEmail(req.Email)); err == nil {
			principal.ID = id
		} else {
			s.logger.Warn("signup could not derive principal id", "error", err)
		}
	}

	if principal, err = s.createPrincipal(ctx, principal); err != nil {
		s.logger.Error("signup failed to persist principal", "username", req.Username, "error", err)
		return nil, err
	}

	result := &SignupResult{Principal: principal}

	if err := s.sendVerification(ctx, principal); err != nil {
		s.logger.Warn("signup verification mail not delivered", "username", principal.Username, "error", err)
		result.MailError = err.Error()
	} else {
		result.VerificationSent = true
	}

	s.emitAuthEvent(ctx, ActivityEventSignup, principal, map[string]any{
		"verification_sent": result.VerificationSent,
	})

	return result, nil
}

func (s *Service) ensureIdentityAvailable(ctx context.Context, username, email string) error {
	taken, err := s.principals.ExistsByUsername(ctx, username)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: username %q", ErrDuplicateIdentity, username)
	}

	taken, err = s.principals.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: email %q", ErrDuplicateIdentity, email)
	}

	return nil
}

func (s *Service) createPrincipal(ctx context.Context, principal *Principal) (*Principal, error) {
	creator, ok := s.principals.(principalCreator)
	if s.txManager == nil || !ok {
		return s.principals.Save(ctx, principal)
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var created *Principal
	err := s.txManager.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = creator.CreateTx(ctx, tx, principal)
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *Service) sendVerification(ctx context.Context, principal *Principal) error {
	token, err := s.ephemeral.Issue(principal.Username, PurposeEmailVerify)
	if err != nil {
		return err
	}

	subject, body := verificationMessage(s.cfg.FrontendURL, token, s.ephemeral.TTL())
	return s.mailer.Send(ctx, principal.Email, subject, body)
}

// Login checks the password and opens a session. Unknown usernames and wrong
// passwords fail with the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if err := (LoginRequest{Username: username, Password: password}).Validate(); err != nil {
		return nil, validationError(err)
	}

	principal, err := s.principals.FindByUsername(ctx, username)
	if err != nil {
		err = notFoundAs(err, ErrPrincipalNotFound)
		if !errors.Is(err, ErrPrincipalNotFound) {
			s.logger.Error("login principal lookup failed", "error", err)
			return nil, err
		}
		s.emitLoginFailure(ctx, nil, username, ErrPrincipalNotFound)
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.ComparePasswordAndHash(password, principal.PasswordHash); err != nil {
		s.emitLoginFailure(ctx, principal, username, err)
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("login password check failed", "username", username, "error", err)
		return nil, err
	}

	if s.cfg.RequireVerifiedEmail && !principal.Enabled {
		s.logger.Warn("login blocked for unverified principal", "username", username)
		s.emitLoginFailure(ctx, principal, username, ErrAccountDisabled)
		return nil, ErrAccountDisabled
	}

	pair, err := s.openSession(ctx, principal)
	if err != nil {
		s.emitLoginFailure(ctx, principal, username, err)
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, principal, nil)

	return pair, nil
}

// Refresh rotates the refresh token and mints a new access token
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	principal, next, err := s.registry.Rotate(ctx, refreshToken)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, nil, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	pair, err := s.accessPair(principal, next)
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshSuccess, principal, nil)

	return pair, nil
}

// Logout clears the principal's refresh token
func (s *Service) Logout(ctx context.Context, principalID uuid.UUID) error {
	if err := s.registry.Revoke(ctx, principalID); err != nil {
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, &Principal{ID: principalID}, nil)

	return nil
}

// VerifyEmail redeems a verification token and enables the principal.
// A token for an already enabled principal counts as consumed.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.ephemeral.Redeem(token, PurposeEmailVerify)
	if err != nil {
		return err
	}

	principal, err := s.principals.FindByUsername(ctx, claims.Subject())
	if err != nil {
		return notFoundAs(err, ErrPrincipalNotFound)
	}

	if principal.Enabled {
		return invalidToken(ErrTokenConsumed)
	}

	if err := s.principals.Enable(ctx, principal.ID); err != nil {
		return notFoundAs(err, ErrPrincipalNotFound)
	}
	principal.Enabled = true

	s.emitAuthEvent(ctx, ActivityEventEmailVerified, principal, nil)

	return nil
}

// ForgotPassword mails a reset link. Nothing is persisted, so a delivery
// failure leaves no state behind and is returned as ErrMailDelivery.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if err := (ForgotPasswordRequest{Email: email}).Validate(); err != nil {
		return validationError(err)
	}

	principal, err := s.principals.FindByEmail(ctx, email)
	if err != nil {
		return notFoundAs(err, ErrPrincipalNotFound)
	}

	token, err := s.ephemeral.Issue(
		principal.Username,
		PurposePasswordReset,
		WithPasswordVersion(PasswordVersion(principal.PasswordHash)),
	)
	if err != nil {
		return err
	}

	subject, body := passwordResetMessage(s.cfg.FrontendURL, token, s.ephemeral.TTL())
	if err := s.mailer.Send(ctx, principal.Email, subject, body); err != nil {
		s.logger.Error("password reset mail not delivered", "username", principal.Username, "error", err)
		return fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}

	s.emitAuthEvent(ctx, ActivityEventPasswordResetRequest, principal, nil)

	return nil
}

// ResetPassword redeems a reset token and replaces the password. The refresh
// token is revoked so every session has to log in again.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.ephemeral.Redeem(token, PurposePasswordReset)
	if err != nil {
		return err
	}

	principal, err := s.principals.FindByUsername(ctx, claims.Subject())
	if err != nil {
		return notFoundAs(err, ErrPrincipalNotFound)
	}

	if err := checkPasswordVersion(claims, principal.PasswordHash); err != nil {
		return err
	}

	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	updated, err := s.principals.UpdatePassword(ctx, principal.ID, principal.PasswordHash, hash)
	if err != nil {
		return err
	}
	if !updated {
		return invalidToken(ErrTokenConsumed)
	}

	if err := s.registry.Revoke(ctx, principal.ID); err != nil {
		s.logger.Warn("password reset could not revoke refresh token", "username", principal.Username, "error", err)
	}

	s.emitAuthEvent(ctx, ActivityEventPasswordResetSuccess, principal, nil)

	return nil
}

// LoginWithVerifiedEmail opens a session for an email already proven by an
// external identity provider. The first login for an unknown email creates an
// enabled user principal named username.
func (s *Service) LoginWithVerifiedEmail(ctx context.Context, email, username string) (*TokenPair, error) {
	principal, err := s.principals.FindByEmail(ctx, email)
	if err = notFoundAs(err, ErrPrincipalNotFound); err != nil {
		if !errors.Is(err, ErrPrincipalNotFound) {
			return nil, err
		}
		if principal, err = s.enrollFederated(ctx, email, username); err != nil {
			return nil, err
		}
	}

	pair, err := s.openSession(ctx, principal)
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventFederatedLogin, principal, nil)

	return pair, nil
}

func (s *Service) enrollFederated(ctx context.Context, email, username string) (*Principal, error) {
	req := FederatedIdentity{Email: email, Username: username}
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	taken, err := s.principals.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		s.emitAuthEvent(ctx, ActivityEventSignup, nil, map[string]any{
			"username": req.Username,
			"source":   "federated",
			"error":    ErrDuplicateIdentity.Error(),
		})
		return nil, fmt.Errorf("%w: username %q", ErrDuplicateIdentity, req.Username)
	}

	// federated principals never log in with a password
	hash, err := s.hasher.HashPassword(uuid.NewString())
	if err != nil {
		return nil, err
	}

	principal := &Principal{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         RoleUser,
		Enabled:      true,
	}

	if s.cfg.DeterministicIDs {
		if id, err := hashid.NewUUID(normalizeEmail(req.Email)); err == nil {
			principal.ID = id
		}
	}

	if principal, err = s.createPrincipal(ctx, principal); err != nil {
		s.logger.Error("federated signup failed to persist principal", "username", req.Username, "error", err)
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventSignup, principal, map[string]any{
		"source": "federated",
	})

	return principal, nil
}

func (s *Service) openSession(ctx context.Context, principal *Principal) (*TokenPair, error) {
	refresh, err := s.registry.IssueFor(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	return s.accessPair(principal, refresh)
}

func (s *Service) accessPair(principal *Principal, refresh string) (*TokenPair, error) {
	expiresAt := s.codec.Now().Add(s.cfg.AccessTokenTTL)

	access, err := s.codec.Issue(principal.Username, ClaimSet{Role: principal.Role}, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Username:     principal.Username,
		Role:         principal.Role,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) emitLoginFailure(ctx context.Context, principal *Principal, username string, err error) {
	s.emitAuthEvent(ctx, ActivityEventLoginFailure, principal, map[string]any{
		"username": username,
		"error":    err.Error(),
	})
}

func (s *Service) emitAuthEvent(ctx context.Context, eventType ActivityEventType, principal *Principal, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Metadata:  metadata,
	}
	if principal != nil {
		if principal.ID != uuid.Nil {
			event.PrincipalID = principal.ID.String()
		}
		event.Username = principal.Username
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.codec.Now()
	}
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err)
	}
}

type logMailer struct {
	logger Logger
}

func (m logMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("mail message", "to", to, "subject", subject, "body", body)
	return nil
}
