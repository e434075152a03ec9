package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Lifecycle runs the account flows that span the local store and the
// identity directory. Local writes and directory calls never share a
// transaction; every cross system flow is recorded in the operations log.
type Lifecycle struct {
	repo        RepositoryManager
	directory   IdentityDirectory
	policy      CredentialPolicy
	mfaRequired bool
	throttle    ReminderThrottle
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
}

// LifecycleOption configures a Lifecycle
type LifecycleOption func(*Lifecycle)

// WithLifecycleLogger sets the logger
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *Lifecycle) {
		l.logger = normalizeLogger(logger)
	}
}

// WithLifecycleActivitySink sets the sink receiving lifecycle events
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *Lifecycle) {
		l.activity = normalizeActivitySink(sink)
	}
}

// WithReminderThrottle limits how often invitation reminders are sent
func WithReminderThrottle(throttle ReminderThrottle) LifecycleOption {
	return func(l *Lifecycle) {
		if throttle != nil {
			l.throttle = throttle
		}
	}
}

// WithCredentialPolicy overrides the default password and phone policy
func WithCredentialPolicy(policy CredentialPolicy) LifecycleOption {
	return func(l *Lifecycle) {
		l.policy = policy.normalized()
	}
}

// WithMFARequired makes the phone number mandatory on every flow
func WithMFARequired(required bool) LifecycleOption {
	return func(l *Lifecycle) {
		l.mfaRequired = required
	}
}

// WithLifecycleClock sets the time source
func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLifecycle returns a lifecycle manager. Both the repository manager and
// the directory are required.
func NewLifecycle(repo RepositoryManager, directory IdentityDirectory, opts ...LifecycleOption) *Lifecycle {
	if repo == nil {
		panic("Missing RepositoryManager in account lifecycle...")
	}

	if directory == nil {
		panic("Missing IdentityDirectory in account lifecycle...")
	}

	l := &Lifecycle{
		repo:      repo,
		directory: directory,
		policy:    NewCredentialPolicy(DefaultPasswordLength),
		throttle:  noopThrottle{},
		activity:  noopActivitySink{},
		logger:    defLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Policy returns the credential policy in use
func (l *Lifecycle) Policy() CredentialPolicy {
	return l.policy
}

// Signup creates a self signed up account and registers it with the
// directory on the primary channel. A directory failure removes the local
// account again.
func (l *Lifecycle) Signup(ctx context.Context, payload SignupPayload) (*Account, error) {
	if err := validationFromOzzo(payload.Validate()); err != nil {
		return nil, err
	}

	c, err := l.policy.checkContact(payload.Email, payload.Phone, l.mfaRequired)
	if err != nil {
		return nil, err
	}

	if err := l.policy.checkPassword(payload.Password); err != nil {
		return nil, err
	}

	account, err := l.createAccount(ctx, c, StatusSelfSignedUp, payload.FirstName, payload.LastName)
	if err != nil {
		return nil, err
	}

	op := l.startOperation(ctx, OperationSignup, account, nil)
	l.advance(ctx, op, StepDirectoryWrite)

	if _, err := register(ctx, l.directory, account, payload.Password); err != nil {
		return nil, l.compensate(ctx, op, account, directoryError(err))
	}

	l.complete(ctx, op)
	l.record(ctx, ActivityEvent{
		EventType: ActivityAccountSignedUp,
		AccountID: account.ID.String(),
		Channel:   account.ContactChannel,
		ToStatus:  account.Status,
	})

	l.logger.Info("account signed up", "account_id", account.ID, "channel", account.ContactChannel)

	return account, nil
}

// Invite creates an account on behalf of an administrator and asks the
// directory to send a temporary credential.
func (l *Lifecycle) Invite(ctx context.Context, payload InvitationPayload) (*Account, error) {
	if err := validationFromOzzo(payload.Validate()); err != nil {
		return nil, err
	}

	c, err := l.policy.checkContact(payload.Email, payload.Phone, l.mfaRequired)
	if err != nil {
		return nil, err
	}

	account, err := l.createAccount(ctx, c, StatusPendingInvite, payload.FirstName, payload.LastName)
	if err != nil {
		return nil, err
	}

	op := l.startOperation(ctx, OperationInvite, account, nil)
	l.advance(ctx, op, StepDirectoryWrite)

	if _, err := invite(ctx, l.directory, account, false); err != nil {
		return nil, l.compensate(ctx, op, account, directoryError(err))
	}

	l.complete(ctx, op)
	l.record(ctx, ActivityEvent{
		EventType: ActivityAccountInvited,
		AccountID: account.ID.String(),
		Channel:   account.ContactChannel,
		ToStatus:  account.Status,
	})

	l.logger.Info("account invited", "account_id", account.ID, "channel", account.ContactChannel)

	return account, nil
}

// InvitationReminder sends the invitation again on the channel it was first
// sent on. The account is not modified.
func (l *Lifecycle) InvitationReminder(ctx context.Context, account *Account) (*Account, error) {
	if account == nil {
		return nil, newError(ErrAccountNotFound, nil, nil)
	}

	if account.Status != StatusPendingInvite {
		return nil, newError(ErrInvalidStatus, nil, map[string]any{
			"from": string(account.Status),
			"to":   string(StatusPendingInvite),
		})
	}

	allowed, err := l.throttle.Allow(ctx, account.ID)
	if err != nil {
		l.logger.Warn("reminder throttle unavailable, sending anyway", "account_id", account.ID, "error", err)
		allowed = true
	}

	if !allowed {
		return nil, newError(ErrReminderThrottled, nil, map[string]any{"account_id": account.ID.String()})
	}

	op := l.startOperation(ctx, OperationInvitationReminder, account, nil)
	l.advance(ctx, op, StepDirectoryWrite)

	if _, err := invite(ctx, l.directory, account, true); err != nil {
		err = directoryError(err)
		l.fail(ctx, op, OperationFailed, err)
		if relErr := l.throttle.Release(ctx, account.ID); relErr != nil {
			l.logger.Warn("failed to release reminder throttle", "account_id", account.ID, "error", relErr)
		}
		return nil, err
	}

	l.complete(ctx, op)
	l.record(ctx, ActivityEvent{
		EventType:  ActivityInvitationReminded,
		AccountID:  account.ID.String(),
		Channel:    account.ContactChannel,
		FromStatus: account.Status,
		ToStatus:   account.Status,
	})

	return account, nil
}

// ResendInvitation moves an account to a new contact and invites it again.
// The phone becomes the username when both contacts are given. The local
// update commits first, then the identity under the old username is deleted
// if the directory still has it, then the new invitation is issued. A
// failure after the local commit is reported as PARTIAL_FAILURE and left in
// the operations log.
func (l *Lifecycle) ResendInvitation(ctx context.Context, account *Account, payload ContactPayload) (*Account, error) {
	if account == nil {
		return nil, newError(ErrAccountNotFound, nil, nil)
	}

	if err := validationFromOzzo(payload.Validate()); err != nil {
		return nil, err
	}

	c, err := l.policy.checkContact(payload.Email, payload.Phone, l.mfaRequired)
	if err != nil {
		return nil, err
	}

	if err := checkTransition(account, StatusPendingInvite); err != nil {
		return nil, err
	}

	channel, username := c.resendChannel()
	if username != account.Username {
		existing, err := l.repo.Accounts().FindByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != account.ID {
			return nil, newError(ErrContactAlreadyInUse, nil, map[string]any{"username": username})
		}
	}

	oldUsername := account.Username
	fromStatus := account.Status
	op := l.startOperation(ctx, OperationResendInvitation, account, map[string]any{
		"old_username": oldUsername,
		"new_username": username,
	})

	status := StatusPendingInvite
	updated, err := l.repo.Accounts().Patch(ctx, account.ID, AccountUpdate{
		Username:       &username,
		Email:          &c.Email,
		Phone:          &c.Phone,
		ContactChannel: &channel,
		Status:         &status,
	})
	if err != nil {
		l.fail(ctx, op, OperationFailed, err)
		return nil, err
	}

	l.advance(ctx, op, StepDirectoryPurge)
	if err := l.purgeIdentity(ctx, updated, oldUsername); err != nil {
		return nil, l.partialFailure(ctx, op, updated, StepDirectoryPurge, directoryError(err))
	}

	l.advance(ctx, op, StepDirectoryWrite)
	if _, err := invite(ctx, l.directory, updated, false); err != nil {
		return nil, l.partialFailure(ctx, op, updated, StepDirectoryWrite, directoryError(err))
	}

	l.complete(ctx, op)
	l.record(ctx, ActivityEvent{
		EventType:  ActivityInvitationResent,
		AccountID:  updated.ID.String(),
		Channel:    updated.ContactChannel,
		FromStatus: fromStatus,
		ToStatus:   updated.Status,
		Metadata:   map[string]any{"old_username": oldUsername},
	})

	return updated, nil
}

// AddRole grants role to the account. Granting a held role is a no-op.
func (l *Lifecycle) AddRole(ctx context.Context, account *Account, role RoleName) (*Account, error) {
	if account == nil {
		return nil, newError(ErrAccountNotFound, nil, nil)
	}

	updated, err := l.repo.Accounts().AddRole(ctx, account.ID, role)
	if err != nil {
		return nil, err
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityRoleAdded,
		AccountID: updated.ID.String(),
		Role:      role,
	})

	return updated, nil
}

// RemoveRole revokes role from the account. Revoking a role not held is a
// no-op.
func (l *Lifecycle) RemoveRole(ctx context.Context, account *Account, role RoleName) (*Account, error) {
	if account == nil {
		return nil, newError(ErrAccountNotFound, nil, nil)
	}

	updated, err := l.repo.Accounts().RemoveRole(ctx, account.ID, role)
	if err != nil {
		return nil, err
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityRoleRemoved,
		AccountID: updated.ID.String(),
		Role:      role,
	})

	return updated, nil
}

// UpdateProfile applies a partial profile update. The consent timestamp is
// only set when consent goes from false to true.
func (l *Lifecycle) UpdateProfile(ctx context.Context, account *Account, payload ProfilePayload) (*Account, error) {
	if account == nil {
		return nil, newError(ErrAccountNotFound, nil, nil)
	}

	if err := validationFromOzzo(payload.Validate()); err != nil {
		return nil, err
	}

	update := AccountUpdate{
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Gender:       payload.Gender,
		DateOfBirth:  payload.DateOfBirth,
		AvatarPath:   payload.AvatarPath,
		HasConsented: payload.HasConsented,
	}

	if payload.HasConsented != nil && *payload.HasConsented && !account.HasConsented {
		now := l.now().UTC()
		update.HasConsentedAt = &now
	}

	updated, err := l.repo.Accounts().Patch(ctx, account.ID, update)
	if err != nil {
		return nil, err
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityProfileUpdated,
		AccountID: updated.ID.String(),
	})

	return updated, nil
}

// CreateAdmin signs up an account and grants it the ADMIN role.
func (l *Lifecycle) CreateAdmin(ctx context.Context, payload SignupPayload) (*Account, error) {
	account, err := l.Signup(ctx, payload)
	if err != nil {
		return nil, err
	}
	return l.AddRole(ctx, account, RoleAdmin)
}

// SignupCandidate signs up an account, grants it the CANDIDATE role and
// creates its candidate record.
func (l *Lifecycle) SignupCandidate(ctx context.Context, payload SignupPayload) (*Candidate, error) {
	account, err := l.Signup(ctx, payload)
	if err != nil {
		return nil, err
	}
	return l.attachCandidate(ctx, account)
}

// InviteCandidate invites an account, grants it the CANDIDATE role and
// creates its candidate record.
func (l *Lifecycle) InviteCandidate(ctx context.Context, payload InvitationPayload) (*Candidate, error) {
	account, err := l.Invite(ctx, payload)
	if err != nil {
		return nil, err
	}
	return l.attachCandidate(ctx, account)
}

// attachCandidate grants the CANDIDATE role and creates the candidate row
// in one transaction.
func (l *Lifecycle) attachCandidate(ctx context.Context, account *Account) (*Candidate, error) {
	var candidate *Candidate
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		updated, err := l.repo.Accounts().AddRoleTx(ctx, tx, account.ID, RoleCandidate)
		if err != nil {
			return err
		}

		candidate, err = l.repo.Candidates().CreateForAccountTx(ctx, tx, updated.ID)
		if err != nil {
			return err
		}
		candidate.Account = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityRoleAdded,
		AccountID: account.ID.String(),
		Role:      RoleCandidate,
	})

	return candidate, nil
}

// createAccount fails with CONTACT_ALREADY_IN_USE when the username is
// taken. The store still enforces uniqueness for concurrent requests.
func (l *Lifecycle) createAccount(ctx context.Context, c contact, status AccountStatus, firstName, lastName string) (*Account, error) {
	channel, username := c.channel()

	existing, err := l.repo.Accounts().FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, newError(ErrContactAlreadyInUse, nil, map[string]any{"username": username})
	}

	if err := checkTransition(nil, status); err != nil {
		return nil, err
	}

	account := &Account{
		ID:             uuid.New(),
		Username:       username,
		Email:          c.Email,
		Phone:          c.Phone,
		ContactChannel: channel,
		Status:         status,
		FirstName:      firstName,
		LastName:       lastName,
	}

	return l.repo.Accounts().Create(ctx, account)
}

// purgeIdentity deletes the directory identity under username. An identity
// that is already gone, before or during the delete, is not an error.
func (l *Lifecycle) purgeIdentity(ctx context.Context, account *Account, username string) error {
	exists, err := l.directory.Exists(ctx, username)
	if err != nil {
		return err
	}

	if !exists {
		l.logger.Warn("directory identity already absent", "account_id", account.ID, "username", username)
		return nil
	}

	if _, err := l.directory.Delete(ctx, username); err != nil {
		if !HasTextCode(err, TextCodeExternalAccountNotFound) {
			return err
		}
		l.logger.Warn("directory identity removed concurrently", "account_id", account.ID, "username", username)
	}

	return nil
}

// compensate removes the local account after a failed directory write.
func (l *Lifecycle) compensate(ctx context.Context, op *AccountOperation, account *Account, cause error) error {
	if err := l.repo.Accounts().Purge(ctx, account.ID); err != nil {
		l.logger.Error("compensation failed", "account_id", account.ID, "error", err)
		return l.partialFailure(ctx, op, account, StepDirectoryWrite, cause)
	}

	l.fail(ctx, op, OperationCompensated, cause)
	l.record(ctx, ActivityEvent{
		EventType: ActivityOperationCompensated,
		AccountID: account.ID.String(),
		Channel:   account.ContactChannel,
		Metadata:  map[string]any{"error": cause.Error()},
	})

	return cause
}

func (l *Lifecycle) partialFailure(ctx context.Context, op *AccountOperation, account *Account, step string, cause error) error {
	l.fail(ctx, op, OperationPartialFailure, cause)

	metadata := map[string]any{
		"account_id": account.ID.String(),
		"username":   account.Username,
		"step":       step,
	}
	if op != nil {
		metadata["operation_id"] = op.ID.String()
		metadata["operation"] = string(op.Kind)
	}

	l.logger.Error("account operation partially applied", "cause", cause, "metadata", print.MaybePrettyJSON(metadata))
	l.record(ctx, ActivityEvent{
		EventType: ActivityOperationPartial,
		AccountID: account.ID.String(),
		Channel:   account.ContactChannel,
		Metadata:  metadata,
	})

	return newError(ErrPartialFailure, cause, metadata)
}

func (l *Lifecycle) startOperation(ctx context.Context, kind OperationKind, account *Account, metadata map[string]any) *AccountOperation {
	op, err := l.repo.Operations().Start(ctx, kind, account.ID, metadata)
	if err != nil {
		l.logger.Warn("failed to record operation", "kind", kind, "account_id", account.ID, "error", err)
		return nil
	}
	return op
}

func (l *Lifecycle) advance(ctx context.Context, op *AccountOperation, step string) {
	if op == nil {
		return
	}
	if err := l.repo.Operations().Advance(ctx, op, step); err != nil {
		l.logger.Warn("failed to advance operation", "operation_id", op.ID, "step", step, "error", err)
	}
}

func (l *Lifecycle) complete(ctx context.Context, op *AccountOperation) {
	if op == nil {
		return
	}
	if err := l.repo.Operations().Complete(ctx, op); err != nil {
		l.logger.Warn("failed to complete operation", "operation_id", op.ID, "error", err)
	}
}

func (l *Lifecycle) fail(ctx context.Context, op *AccountOperation, status OperationStatus, cause error) {
	if op == nil {
		return
	}
	if err := l.repo.Operations().Fail(ctx, op, status, cause); err != nil {
		l.logger.Warn("failed to record operation failure", "operation_id", op.ID, "error", err)
	}

	if status != OperationFailed {
		return
	}

	l.record(ctx, ActivityEvent{
		EventType: ActivityOperationFailed,
		AccountID: op.AccountID.String(),
		Metadata: map[string]any{
			"operation": string(op.Kind),
			"status":    string(status),
			"step":      op.Step,
		},
	})
}

// record is best effort, sink failures are only logged.
func (l *Lifecycle) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.now().UTC()
	}
	if actor, ok := AccountFromContext(ctx); ok && event.ActorID == "" {
		event.ActorID = actor.ID().String()
	}
	if err := l.activity.Record(ctx, event); err != nil {
		l.logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}

// directoryError keeps directory errors that already carry a text code and
// wraps everything else as EXTERNAL_DIRECTORY_ERROR.
func directoryError(err error) error {
	if err == nil {
		return nil
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		return err
	}

	return newError(ErrExternalDirectory, err, nil)
}
