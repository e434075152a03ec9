package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles looks up role reference data
type Roles interface {
	repository.Repository[*Role]
	GetByName(ctx context.Context, name RoleName) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error)
	Seed(ctx context.Context) error
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})
	return &roles{Repository: repo, db: db}
}

func (r *roles) GetByName(ctx context.Context, name RoleName) (*Role, error) {
	return r.GetByNameTx(ctx, r.db, name)
}

// GetByNameTx fails with ROLE_NOT_FOUND for names outside the enumeration or
// missing from the table.
func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name RoleName) (*Role, error) {
	if !name.IsValid() {
		return nil, newError(ErrRoleNotFound, nil, map[string]any{"role": string(name)})
	}

	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, newError(ErrRoleNotFound, err, map[string]any{"role": string(name)})
		}
		return nil, err
	}
	return record, nil
}

// Seed inserts every known role that is not stored yet.
func (r *roles) Seed(ctx context.Context) error {
	for _, name := range AllRoles() {
		_, err := r.db.NewInsert().
			Model(&Role{ID: uuid.New(), Name: name, Description: roleDescriptions[name]}).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

var roleDescriptions = map[RoleName]string{
	RoleAdmin:     "platform administrator",
	RoleCandidate: "job candidate",
}
