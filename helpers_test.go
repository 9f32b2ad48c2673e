package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-session-auth"
)

const testSigningKey = "test-signing-key-0123456789abcdefghijkl"

var baseTime = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

func testConfig() auth.Config {
	return auth.Config{
		SigningKey:   testSigningKey,
		FrontendURL:  "http://localhost:5173",
		PasswordCost: bcrypt.MinCost,
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCodec(t *testing.T, clock *testClock) *auth.TokenCodec {
	t.Helper()
	codec, err := auth.NewTokenCodec(testConfig().TokenConfig(), auth.WithClock(clock.Now))
	require.NoError(t, err)
	return codec
}

// memStore is an in memory auth.PrincipalStore
type memStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*auth.Principal
	findErr error
}

var _ auth.PrincipalStore = (*memStore)(nil)

func newMemStore(principals ...*auth.Principal) *memStore {
	s := &memStore{records: map[uuid.UUID]*auth.Principal{}}
	for _, p := range principals {
		s.records[p.ID] = clonePrincipal(p)
	}
	return s
}

func clonePrincipal(p *auth.Principal) *auth.Principal {
	out := *p
	if p.RefreshToken != nil {
		token := *p.RefreshToken
		out.RefreshToken = &token
	}
	return &out
}

func (s *memStore) find(match func(*auth.Principal) bool) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, p := range s.records {
		if match(p) {
			return clonePrincipal(p), nil
		}
	}
	return nil, auth.ErrPrincipalNotFound
}

func (s *memStore) FindByUsername(_ context.Context, username string) (*auth.Principal, error) {
	return s.find(func(p *auth.Principal) bool { return p.Username == username })
}

func (s *memStore) FindByID(_ context.Context, id uuid.UUID) (*auth.Principal, error) {
	return s.find(func(p *auth.Principal) bool { return p.ID == id })
}

func (s *memStore) FindByEmail(_ context.Context, email string) (*auth.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.find(func(p *auth.Principal) bool { return p.Email == email })
}

func (s *memStore) FindByRefreshToken(_ context.Context, token string) (*auth.Principal, error) {
	return s.find(func(p *auth.Principal) bool { return p.RefreshToken != nil && *p.RefreshToken == token })
}

func (s *memStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := s.FindByUsername(ctx, username)
	return err == nil, nil
}

func (s *memStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.FindByEmail(ctx, email)
	return err == nil, nil
}

func (s *memStore) Save(_ context.Context, p *auth.Principal) (*auth.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	for id, other := range s.records {
		if id != p.ID && (other.Username == p.Username || other.Email == p.Email) {
			return nil, auth.ErrDuplicateIdentity
		}
	}
	s.records[p.ID] = clonePrincipal(p)
	return clonePrincipal(p), nil
}

func (s *memStore) update(id uuid.UUID, fn func(*auth.Principal)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[id]
	if !ok {
		return auth.ErrPrincipalNotFound
	}
	fn(p)
	return nil
}

func (s *memStore) Enable(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(p *auth.Principal) { p.Enabled = true })
}

func (s *memStore) UpdatePassword(_ context.Context, id uuid.UUID, current, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[id]
	if !ok || p.PasswordHash != current {
		return false, nil
	}
	p.PasswordHash = next
	return true, nil
}

func (s *memStore) SetRefreshToken(_ context.Context, id uuid.UUID, token *string) error {
	return s.update(id, func(p *auth.Principal) {
		if token == nil {
			p.RefreshToken = nil
			return
		}
		value := *token
		p.RefreshToken = &value
	})
}

func (s *memStore) SwapRefreshToken(_ context.Context, id uuid.UUID, expected, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[id]
	if !ok || p.RefreshToken == nil || *p.RefreshToken != expected {
		return false, nil
	}
	p.RefreshToken = &next
	return true, nil
}

func (s *memStore) get(id uuid.UUID) *auth.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.records[id]; ok {
		return clonePrincipal(p)
	}
	return nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

// tokenFromBody pulls the token query value out of the link in a mail body
func tokenFromBody(t *testing.T, body string) string {
	t.Helper()
	for _, field := range strings.Fields(body) {
		if !strings.HasPrefix(field, "http") {
			continue
		}
		u, err := url.Parse(field)
		require.NoError(t, err)
		if token := u.Query().Get("token"); token != "" {
			return token
		}
	}
	t.Fatalf("no token link in body %q", body)
	return ""
}

type captureSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *captureSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	require.NoError(t, auth.Migrate(context.Background(), sqldb, auth.DialectSQLite, nopLogger{}))

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	return db
}

func newPrincipal(username string, role auth.Role) *auth.Principal {
	return &auth.Principal{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "not-a-real-hash",
		Role:         role,
		Enabled:      true,
	}
}

// gatedHasher holds every HashPassword call until the armed number of
// callers have hashed, so their following writes race each other.
type gatedHasher struct {
	auth.BcryptHasher
	mu   sync.Mutex
	gate *sync.WaitGroup
}

func newGatedHasher() *gatedHasher {
	return &gatedHasher{BcryptHasher: auth.NewBcryptHasher(bcrypt.MinCost)}
}

func (h *gatedHasher) arm(callers int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gate = &sync.WaitGroup{}
	h.gate.Add(callers)
}

func (h *gatedHasher) HashPassword(password string) (string, error) {
	hash, err := h.BcryptHasher.HashPassword(password)

	h.mu.Lock()
	gate := h.gate
	h.mu.Unlock()

	if gate != nil {
		gate.Done()
		gate.Wait()
	}
	return hash, err
}
