package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Principals interface {
	repository.Repository[*Principal]
	PrincipalStore

	ListAll(ctx context.Context) ([]*Principal, error)
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type principals struct {
	repository.Repository[*Principal]
	db  *bun.DB
	now Clock
}

var (
	_ Principals                        = (*principals)(nil)
	_ repository.Repository[*Principal] = (*principals)(nil)
)

func NewPrincipalsRepository(db *bun.DB) Principals {
	repo := repository.NewRepository[*Principal](db, repository.ModelHandlers[*Principal]{
		NewRecord: func() *Principal { return &Principal{} },
		GetID: func(p *Principal) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Principal, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &principals{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (a *principals) FindByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	return a.findBy(ctx, "id", id)
}

func (a *principals) FindByUsername(ctx context.Context, username string) (*Principal, error) {
	return a.findBy(ctx, "username", strings.TrimSpace(username))
}

func (a *principals) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	return a.findBy(ctx, "email", normalizeEmail(email))
}

func (a *principals) FindByRefreshToken(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrPrincipalNotFound
	}
	return a.findBy(ctx, "refresh_token", token)
}

func (a *principals) findBy(ctx context.Context, column string, value any) (*Principal, error) {
	record := &Principal{}
	err := a.db.NewSelect().
		Model(record).
		Where("? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, ErrPrincipalNotFound
		}
		return nil, err
	}

	return record, nil
}

func (a *principals) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return a.existsBy(ctx, "username", strings.TrimSpace(username))
}

func (a *principals) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return a.existsBy(ctx, "email", normalizeEmail(email))
}

func (a *principals) existsBy(ctx context.Context, column, value string) (bool, error) {
	return a.db.NewSelect().
		Model((*Principal)(nil)).
		Where("? = ?", bun.Ident(column), value).
		Exists(ctx)
}

// Save inserts new principals and updates existing ones
func (a *principals) Save(ctx context.Context, record *Principal) (*Principal, error) {
	if record == nil {
		return nil, errors.New("principal must not be nil")
	}

	if record.ID == uuid.Nil {
		return a.CreateTx(ctx, a.db, record)
	}

	exists, err := a.db.NewSelect().
		Model((*Principal)(nil)).
		Where("id = ?", record.ID).
		Exists(ctx)
	if err != nil {
		return nil, err
	}

	if !exists {
		return a.CreateTx(ctx, a.db, record)
	}

	now := a.now()
	record.UpdatedAt = &now
	record.Email = normalizeEmail(record.Email)

	_, err = a.db.NewUpdate().
		Model(record).
		Column("username", "email", "password_hash", "role", "enabled", "refresh_token", "updated_at").
		Where("id = ?", record.ID).
		Exec(ctx)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}

	return record, nil
}

func (a *principals) CreateTx(ctx context.Context, tx bun.IDB, record *Principal) (*Principal, error) {
	preparePrincipalDefaults(record, a.now())
	created, err := a.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return created, nil
}

func (a *principals) Enable(ctx context.Context, id uuid.UUID) error {
	res, err := a.db.NewUpdate().
		Model((*Principal)(nil)).
		Set("enabled = ?", true).
		Set("updated_at = ?", a.now()).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, ErrPrincipalNotFound)
}

// UpdatePassword only writes when the stored hash still equals current
func (a *principals) UpdatePassword(ctx context.Context, id uuid.UUID, current, next string) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*Principal)(nil)).
		Set("password_hash = ?", next).
		Set("updated_at = ?", a.now()).
		Where("id = ?", id).
		Where("password_hash = ?", current).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (a *principals) SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	res, err := a.db.NewUpdate().
		Model((*Principal)(nil)).
		Set("refresh_token = ?", token).
		Set("updated_at = ?", a.now()).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, ErrPrincipalNotFound)
}

// SwapRefreshToken only writes when the slot still holds expected
func (a *principals) SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*Principal)(nil)).
		Set("refresh_token = ?", next).
		Set("updated_at = ?", a.now()).
		Where("id = ?", id).
		Where("refresh_token = ?", expected).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (a *principals) ListAll(ctx context.Context) ([]*Principal, error) {
	records := make([]*Principal, 0)
	err := a.db.NewSelect().
		Model(&records).
		Order("username ASC").
		Scan(ctx)
	return records, err
}

// RemoveTx removes the principal and the tasks it owns
func (a *principals) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*Task)(nil)).
		Where("owner_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*Principal)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, ErrPrincipalNotFound)
}

func preparePrincipalDefaults(record *Principal, now time.Time) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Email = normalizeEmail(record.Email)
	record.Username = strings.TrimSpace(record.Username)

	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func affectedOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

const pgUniqueViolation = "23505"

// mapUniqueViolation tags unique index failures from postgres and sqlite
// with ErrDuplicateIdentity.
func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return errors.Join(ErrDuplicateIdentity, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	return false
}
