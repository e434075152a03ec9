package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Candidates stores the recruiting side of an account
type Candidates interface {
	repository.Repository[*Candidate]
	CreateForAccount(ctx context.Context, accountID uuid.UUID) (*Candidate, error)
	CreateForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Candidate, error)
	FindCandidate(ctx context.Context, id uuid.UUID) (*Candidate, error)
	FindByAccountID(ctx context.Context, accountID uuid.UUID) (*Candidate, error)
	ListCandidates(ctx context.Context, limit int) ([]*Candidate, error)
}

// DefaultCandidateListLimit caps candidate listings.
const DefaultCandidateListLimit = 100

type candidates struct {
	repository.Repository[*Candidate]
	db  *bun.DB
	now func() time.Time
}

var _ Candidates = (*candidates)(nil)

func NewCandidatesRepository(db *bun.DB) Candidates {
	repo := repository.NewRepository[*Candidate](db, repository.ModelHandlers[*Candidate]{
		NewRecord: func() *Candidate { return &Candidate{} },
		GetID: func(c *Candidate) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Candidate, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "account_id"
		},
	})
	return &candidates{Repository: repo, db: db, now: time.Now}
}

func (c *candidates) CreateForAccount(ctx context.Context, accountID uuid.UUID) (*Candidate, error) {
	return c.CreateForAccountTx(ctx, c.db, accountID)
}

func (c *candidates) CreateForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Candidate, error) {
	now := c.now()
	record := &Candidate{
		ID:        uuid.New(),
		AccountID: accountID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// FindCandidate loads a candidate with its account and roles.
func (c *candidates) FindCandidate(ctx context.Context, id uuid.UUID) (*Candidate, error) {
	return c.findBy(ctx, "?TableAlias.id = ?", id)
}

func (c *candidates) FindByAccountID(ctx context.Context, accountID uuid.UUID) (*Candidate, error) {
	return c.findBy(ctx, "?TableAlias.account_id = ?", accountID)
}

func (c *candidates) findBy(ctx context.Context, where string, value uuid.UUID) (*Candidate, error) {
	record := &Candidate{}
	err := c.db.NewSelect().
		Model(record).
		Relation("Account").
		Where(where, value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, newError(ErrCandidateNotFound, err, map[string]any{"id": value.String()})
		}
		return nil, err
	}

	if record.Account != nil {
		if err := c.db.NewSelect().
			Model(record.Account).
			Relation("Roles").
			WherePK().
			Scan(ctx); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// ListCandidates returns the oldest candidates first with their accounts.
// A non positive limit falls back to DefaultCandidateListLimit.
func (c *candidates) ListCandidates(ctx context.Context, limit int) ([]*Candidate, error) {
	if limit <= 0 || limit > DefaultCandidateListLimit {
		limit = DefaultCandidateListLimit
	}

	records := []*Candidate{}
	err := c.db.NewSelect().
		Model(&records).
		Relation("Account").
		OrderExpr("?TableAlias.created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
