package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Accounts persists local accounts and their role memberships
type Accounts interface {
	repository.Repository[*Account]
	AccountFinder

	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Account, error)

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	Patch(ctx context.Context, id uuid.UUID, update AccountUpdate) (*Account, error)
	PatchTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update AccountUpdate) (*Account, error)
	Purge(ctx context.Context, id uuid.UUID) error
	PurgeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	AddRole(ctx context.Context, accountID uuid.UUID, role RoleName) (*Account, error)
	AddRoleTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, role RoleName) (*Account, error)
	RemoveRole(ctx context.Context, accountID uuid.UUID, role RoleName) (*Account, error)
	RemoveRoleTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, role RoleName) (*Account, error)
}

type accounts struct {
	repository.Repository[*Account]
	db    *bun.DB
	roles Roles
	now   func() time.Time
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// NewAccountsRepository returns the bun backed account store.
func NewAccountsRepository(db *bun.DB, roles Roles) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	if roles == nil {
		roles = NewRolesRepository(db)
	}

	return &accounts{
		Repository: repo,
		db:         db,
		roles:      roles,
		now:        time.Now,
	}
}

func (a *accounts) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *accounts) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Relation("Roles").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, newError(ErrAccountNotFound, err, map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

// FindByUsername returns nil without error when no account holds username.
func (a *accounts) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return a.FindByUsernameTx(ctx, a.db, username)
}

func (a *accounts) FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Relation("Roles").
		Where("?TableAlias.username = ?", strings.TrimSpace(username)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	var out *Account
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = a.CreateTx(ctx, tx, record, criteria...)
		return err
	})
	return out, err
}

// CreateTx inserts record. The username is checked first so a clash
// surfaces as DUPLICATE_USERNAME instead of a driver error.
func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record, a.now())

	exists, err := tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.username = ?", record.Username).
		Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(ErrDuplicateUsername, nil, map[string]any{"username": record.Username})
	}

	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newError(ErrDuplicateUsername, err, map[string]any{"username": record.Username})
		}
		return nil, err
	}
	return created, nil
}

func (a *accounts) Patch(ctx context.Context, id uuid.UUID, update AccountUpdate) (*Account, error) {
	return a.PatchTx(ctx, a.db, id, update)
}

// PatchTx writes only the non nil fields of update.
func (a *accounts) PatchTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update AccountUpdate) (*Account, error) {
	record, columns := update.apply(&Account{ID: id})
	if len(columns) == 0 {
		return a.FindByIDTx(ctx, tx, id)
	}

	record.UpdatedAt = a.now()
	columns = append(columns, "updated_at")

	res, err := tx.NewUpdate().
		Model(record).
		Column(columns...).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newError(ErrDuplicateUsername, err, map[string]any{"id": id.String()})
		}
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, newError(ErrAccountNotFound, nil, map[string]any{"id": id.String()})
	}

	return a.FindByIDTx(ctx, tx, id)
}

func (a *accounts) Purge(ctx context.Context, id uuid.UUID) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return a.PurgeTx(ctx, tx, id)
	})
}

// PurgeTx removes the account together with its memberships.
func (a *accounts) PurgeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*AccountRole)(nil)).
		Where("account_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	if _, err := tx.NewDelete().
		Model((*Candidate)(nil)).
		Where("account_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*Account)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return newError(ErrAccountNotFound, nil, map[string]any{"id": id.String()})
	}
	return nil
}

func (a *accounts) AddRole(ctx context.Context, accountID uuid.UUID, role RoleName) (*Account, error) {
	var out *Account
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = a.AddRoleTx(ctx, tx, accountID, role)
		return err
	})
	return out, err
}

// AddRoleTx is idempotent, adding a role already held changes nothing.
func (a *accounts) AddRoleTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, role RoleName) (*Account, error) {
	account, rec, err := a.membershipTargets(ctx, tx, accountID, role)
	if err != nil {
		return nil, err
	}

	if account.RoleSet().Has(role) {
		return account, nil
	}

	_, err = tx.NewInsert().
		Model(&AccountRole{AccountID: account.ID, RoleID: rec.ID, CreatedAt: a.now()}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return a.FindByIDTx(ctx, tx, accountID)
}

func (a *accounts) RemoveRole(ctx context.Context, accountID uuid.UUID, role RoleName) (*Account, error) {
	var out *Account
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = a.RemoveRoleTx(ctx, tx, accountID, role)
		return err
	})
	return out, err
}

// RemoveRoleTx is idempotent, removing a role not held changes nothing.
func (a *accounts) RemoveRoleTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, role RoleName) (*Account, error) {
	account, rec, err := a.membershipTargets(ctx, tx, accountID, role)
	if err != nil {
		return nil, err
	}

	if !account.RoleSet().Has(role) {
		return account, nil
	}

	_, err = tx.NewDelete().
		Model((*AccountRole)(nil)).
		Where("account_id = ?", account.ID).
		Where("role_id = ?", rec.ID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return a.FindByIDTx(ctx, tx, accountID)
}

func (a *accounts) membershipTargets(ctx context.Context, tx bun.IDB, accountID uuid.UUID, role RoleName) (*Account, *Role, error) {
	account, err := a.FindByIDTx(ctx, tx, accountID)
	if err != nil {
		return nil, nil, err
	}

	rec, err := a.roles.GetByNameTx(ctx, tx, role)
	if err != nil {
		return nil, nil, err
	}

	return account, rec, nil
}

func (u AccountUpdate) apply(record *Account) (*Account, []string) {
	columns := []string{}
	if u.Username != nil {
		record.Username = *u.Username
		columns = append(columns, "username")
	}
	if u.Email != nil {
		record.Email = *u.Email
		columns = append(columns, "email")
	}
	if u.Phone != nil {
		record.Phone = *u.Phone
		columns = append(columns, "phone")
	}
	if u.ContactChannel != nil {
		record.ContactChannel = *u.ContactChannel
		columns = append(columns, "contact_channel")
	}
	if u.Status != nil {
		record.Status = *u.Status
		columns = append(columns, "status")
	}
	if u.FirstName != nil {
		record.FirstName = *u.FirstName
		columns = append(columns, "first_name")
	}
	if u.LastName != nil {
		record.LastName = *u.LastName
		columns = append(columns, "last_name")
	}
	if u.Gender != nil {
		record.Gender = *u.Gender
		columns = append(columns, "gender")
	}
	if u.DateOfBirth != nil {
		dob := *u.DateOfBirth
		record.DateOfBirth = &dob
		columns = append(columns, "date_of_birth")
	}
	if u.AvatarPath != nil {
		record.AvatarPath = *u.AvatarPath
		columns = append(columns, "avatar_path")
	}
	if u.HasConsented != nil {
		record.HasConsented = *u.HasConsented
		columns = append(columns, "has_consented")
	}
	if u.HasConsentedAt != nil {
		at := *u.HasConsentedAt
		record.HasConsentedAt = &at
		columns = append(columns, "has_consented_at")
	}
	return record, columns
}

func prepareAccountDefaults(record *Account, now time.Time) {
	if record == nil {
		return
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.ContactChannel == "" {
		record.ContactChannel, _ = channelFor(record.Email, record.Phone)
	}
	if record.Username == "" {
		_, record.Username = channelFor(record.Email, record.Phone)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
}

// Unique constraint codes reported by the supported drivers.
const (
	pgUniqueViolation      = "23505"
	sqliteConstraint       = 19
	sqliteConstraintPK     = 1555
	sqliteConstraintUnique = 2067
	sqliteUniqueFailed     = "UNIQUE constraint failed"
)

// sqliteCoder matches the extended result code exposed by the pure Go
// sqlite driver.
type sqliteCoder interface {
	Code() int
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation() && pgErr.Field('C') == pgUniqueViolation
	}

	var coded sqliteCoder
	if errors.As(err, &coded) {
		switch coded.Code() {
		case sqliteConstraintUnique, sqliteConstraintPK:
			return true
		case sqliteConstraint:
			return strings.Contains(err.Error(), sqliteUniqueFailed)
		default:
			return false
		}
	}

	// the cgo sqlite driver only exposes its code through the message
	return strings.Contains(err.Error(), sqliteUniqueFailed)
}
