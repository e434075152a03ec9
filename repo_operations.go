package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OperationKind names a cross system lifecycle operation
type OperationKind string

const (
	OperationSignup             OperationKind = "SIGNUP"
	OperationInvite             OperationKind = "INVITE"
	OperationInvitationReminder OperationKind = "INVITATION_REMINDER"
	OperationResendInvitation   OperationKind = "RESEND_INVITATION"
)

// OperationStatus is the outcome recorded for an operation
type OperationStatus string

const (
	OperationStarted        OperationStatus = "STARTED"
	OperationCompleted      OperationStatus = "COMPLETED"
	OperationFailed         OperationStatus = "FAILED"
	OperationPartialFailure OperationStatus = "PARTIAL_FAILURE"
	OperationCompensated    OperationStatus = "COMPENSATED"
)

// Operation steps, in the order they run.
const (
	StepLocalWrite     = "local_write"
	StepDirectoryWrite = "directory_write"
	StepDirectoryPurge = "directory_delete"
	StepDone           = "done"
)

// AccountOperation is one saga log row. Rows left in STARTED or
// PARTIAL_FAILURE are the input of manual reconciliation.
type AccountOperation struct {
	bun.BaseModel `bun:"table:account_operations,alias:aop"`
	ID            uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	Kind          OperationKind   `bun:"kind,notnull" json:"kind"`
	AccountID     uuid.UUID       `bun:"account_id,type:uuid" json:"account_id"`
	Step          string          `bun:"step,notnull" json:"step"`
	Status        OperationStatus `bun:"status,notnull" json:"status"`
	Error         string          `bun:"error,nullzero" json:"error,omitempty"`
	Metadata      map[string]any  `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Operations writes the saga log
type Operations interface {
	Start(ctx context.Context, kind OperationKind, accountID uuid.UUID, metadata map[string]any) (*AccountOperation, error)
	Advance(ctx context.Context, op *AccountOperation, step string) error
	Complete(ctx context.Context, op *AccountOperation) error
	Fail(ctx context.Context, op *AccountOperation, status OperationStatus, cause error) error
	ListUnfinished(ctx context.Context, olderThan time.Duration) ([]*AccountOperation, error)
}

type operations struct {
	db  bun.IDB
	now func() time.Time
}

var _ Operations = (*operations)(nil)

func NewOperationsRepository(db bun.IDB) Operations {
	return &operations{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (o *operations) Start(ctx context.Context, kind OperationKind, accountID uuid.UUID, metadata map[string]any) (*AccountOperation, error) {
	now := o.now()
	op := &AccountOperation{
		ID:        uuid.New(),
		Kind:      kind,
		AccountID: accountID,
		Step:      StepLocalWrite,
		Status:    OperationStarted,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := o.db.NewInsert().Model(op).Exec(ctx); err != nil {
		return nil, err
	}
	return op, nil
}

func (o *operations) Advance(ctx context.Context, op *AccountOperation, step string) error {
	if op == nil {
		return nil
	}
	op.Step = step
	return o.save(ctx, op, "step")
}

func (o *operations) Complete(ctx context.Context, op *AccountOperation) error {
	if op == nil {
		return nil
	}
	op.Step = StepDone
	op.Status = OperationCompleted
	return o.save(ctx, op, "step", "status")
}

func (o *operations) Fail(ctx context.Context, op *AccountOperation, status OperationStatus, cause error) error {
	if op == nil {
		return nil
	}
	op.Status = status
	if cause != nil {
		op.Error = cause.Error()
	}
	return o.save(ctx, op, "status", "error")
}

// ListUnfinished returns operations that stopped before completing and are
// older than the given age, oldest first.
func (o *operations) ListUnfinished(ctx context.Context, olderThan time.Duration) ([]*AccountOperation, error) {
	var ops []*AccountOperation
	err := o.db.NewSelect().
		Model(&ops).
		Where("?TableAlias.status IN (?)", bun.In([]OperationStatus{OperationStarted, OperationPartialFailure})).
		Where("?TableAlias.updated_at <= ?", o.now().Add(-olderThan)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (o *operations) save(ctx context.Context, op *AccountOperation, columns ...string) error {
	op.UpdatedAt = o.now()
	_, err := o.db.NewUpdate().
		Model(op).
		Column(append(columns, "updated_at")...).
		WherePK().
		Exec(ctx)
	return err
}
