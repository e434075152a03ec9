package accounts

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// RegisterModels registers the join models bun needs for m2m relations. It
// must run before the first query touching Account.Roles.
func RegisterModels(db *bun.DB) {
	db.RegisterModel((*AccountRole)(nil))
}

// EnsureSchema creates missing tables and seeds the role reference data.
// Intended for tests and local development; it never alters existing tables.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	RegisterModels(db)

	models := []any{
		(*Account)(nil),
		(*Role)(nil),
		(*AccountRole)(nil),
		(*Candidate)(nil),
		(*AccountOperation)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	return NewRolesRepository(db).Seed(ctx)
}
