package moemail

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AccessTokens interface {
	repository.Repository[*TemporaryAccessToken]

	Create(ctx context.Context, record *TemporaryAccessToken, criteria ...repository.InsertCriteria) (*TemporaryAccessToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *TemporaryAccessToken, criteria ...repository.InsertCriteria) (*TemporaryAccessToken, error)

	// GetValid returns the token row when the bearer string matches and the
	// token has not expired at the given instant. With unusedOnly it also
	// requires used_at to be null.
	GetValid(ctx context.Context, token string, now time.Time, unusedOnly bool) (*TemporaryAccessToken, error)

	// Consume stamps used_at. The update is conditional on used_at still
	// being null so only one of two racing consumers wins; the loser gets
	// consumed=false.
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type accessTokens struct {
	repository.Repository[*TemporaryAccessToken]
	db *bun.DB
}

var _ AccessTokens = (*accessTokens)(nil)

func NewAccessTokensRepository(db *bun.DB) AccessTokens {
	repo := repository.NewRepository[*TemporaryAccessToken](db, repository.ModelHandlers[*TemporaryAccessToken]{
		NewRecord: func() *TemporaryAccessToken { return &TemporaryAccessToken{} },
		GetID: func(t *TemporaryAccessToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *TemporaryAccessToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &accessTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *accessTokens) Create(ctx context.Context, record *TemporaryAccessToken, criteria ...repository.InsertCriteria) (*TemporaryAccessToken, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accessTokens) CreateTx(ctx context.Context, tx bun.IDB, record *TemporaryAccessToken, criteria ...repository.InsertCriteria) (*TemporaryAccessToken, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accessTokens) GetValid(ctx context.Context, token string, now time.Time, unusedOnly bool) (*TemporaryAccessToken, error) {
	record := &TemporaryAccessToken{}

	q := a.db.NewSelect().
		Model(record).
		Relation("User").
		Where("?TableAlias.token = ?", token).
		Where("?TableAlias.expires_at > ?", now)

	if unusedOnly {
		q = q.Where("?TableAlias.used_at IS NULL")
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *accessTokens) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*TemporaryAccessToken)(nil)).
		Set("used_at = ?", at).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}
