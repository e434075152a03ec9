package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates lifecycle activity categories.
type ActivityEventType string

const (
	ActivityAccountSignedUp      ActivityEventType = "account.signup"
	ActivityAccountInvited       ActivityEventType = "account.invited"
	ActivityInvitationReminded   ActivityEventType = "account.invitation.reminder"
	ActivityInvitationResent     ActivityEventType = "account.invitation.resent"
	ActivityRoleAdded            ActivityEventType = "account.role.added"
	ActivityRoleRemoved          ActivityEventType = "account.role.removed"
	ActivityProfileUpdated       ActivityEventType = "account.profile.updated"
	ActivityOperationFailed      ActivityEventType = "account.operation.failed"
	ActivityOperationPartial     ActivityEventType = "account.operation.partial_failure"
	ActivityOperationCompensated ActivityEventType = "account.operation.compensated"
	ActivityAccessDenied         ActivityEventType = "access.denied"
)

// ActivityEvent captures audit friendly information about an action.
type ActivityEvent struct {
	EventType ActivityEventType
	// ActorID is the authenticated account that triggered the event, empty
	// for self service and system flows.
	ActorID    string
	AccountID  string
	Channel    ContactChannel
	FromStatus AccountStatus
	ToStatus   AccountStatus
	Role       RoleName
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing or telemetry.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans an event out to every sink, the first error wins.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
