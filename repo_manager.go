package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	Roles() Roles
	Candidates() Candidates
	Operations() Operations
}

type mngr struct {
	db         *bun.DB
	accounts   Accounts
	roles      Roles
	candidates Candidates
	operations Operations
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	RegisterModels(db)
	roles := NewRolesRepository(db)
	return &mngr{
		db:         db,
		roles:      roles,
		accounts:   NewAccountsRepository(db, roles),
		candidates: NewCandidatesRepository(db),
		operations: NewOperationsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.candidates == nil {
		return errors.New("repository candidates should be initialized")
	}

	if m.operations == nil {
		return errors.New("repository operations should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) Roles() Roles {
	return m.roles
}

func (m mngr) Candidates() Candidates {
	return m.candidates
}

func (m mngr) Operations() Operations {
	return m.operations
}
