package moemail

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	SetExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time) (*User, error)
	SetExpiryTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expiresAt *time.Time) (*User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	Stats(ctx context.Context, now time.Time) (*UserStats, error)
}

// UserStats aggregates account counts for the admin dashboard.
type UserStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Expired      int `json:"expired"`
	Disabled     int `json:"disabled"`
	Suspended    int `json:"suspended"`
	ExpiringSoon int `json:"expiringSoon"`
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := resolveUserIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	lastLoginAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"last_login_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, lastLoginAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	record := &User{
		ID:     id,
		Status: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *users) SetExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time) (*User, error) {
	return a.SetExpiryTx(ctx, a.db, id, expiresAt)
}

// SetExpiryTx writes the expiry and reactivates the account in one statement.
// An administrator setting a lifetime is always an (re)activation; clearing
// expires_at makes the account permanent.
func (a *users) SetExpiryTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expiresAt *time.Time) (*User, error) {
	res, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"expires_at" = ?,
			"status" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL
		RETURNING *;
	`, expiresAt, UserStatusActive, id).Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	record := &User{ID: id, Status: UserStatusActive, ExpiresAt: expiresAt}
	return record, nil
}

func (a *users) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET "last_login_at" = ?
		WHERE ("usr".id = ?) AND "usr"."deleted_at" IS NULL;
	`, at, id).Exec(ctx)

	return err
}

func (a *users) Stats(ctx context.Context, now time.Time) (*UserStats, error) {
	type statusCount struct {
		Status UserStatus `bun:"status"`
		Count  int        `bun:"count"`
	}

	var counts []statusCount
	err := a.db.NewSelect().
		Model((*User)(nil)).
		ColumnExpr("?TableAlias.status AS status").
		ColumnExpr("count(*) AS count").
		Group("status").
		Scan(ctx, &counts)
	if err != nil {
		return nil, err
	}

	stats := &UserStats{}
	for _, c := range counts {
		stats.Total += c.Count
		switch c.Status {
		case UserStatusExpired:
			stats.Expired += c.Count
		case UserStatusDisabled:
			stats.Disabled += c.Count
		case UserStatusSuspended:
			stats.Suspended += c.Count
		default:
			// empty status predates the column and counts as active
			stats.Active += c.Count
		}
	}

	soon := now.Add(7 * day)
	expiring, err := a.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.status = ?", UserStatusActive).
		Where("?TableAlias.expires_at > ?", now).
		Where("?TableAlias.expires_at <= ?", soon).
		Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.ExpiringSoon = expiring

	return stats, nil
}

// StatusUpdateOption allows callers to mutate the user record before persisting status changes.
type StatusUpdateOption func(*User)

// WithLastLoginAt stamps last_login_at during a status transition.
func WithLastLoginAt(at *time.Time) StatusUpdateOption {
	return func(u *User) {
		u.LastLoginAt = at
	}
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleCivilian
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
