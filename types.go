package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AccountFinder resolves accounts by their identifier.
type AccountFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
}

// ReminderThrottle decides whether an invitation reminder can be sent now.
// Allow claims the cooldown window, Release gives it back when the reminder
// could not be delivered.
type ReminderThrottle interface {
	Allow(ctx context.Context, accountID uuid.UUID) (bool, error)
	Release(ctx context.Context, accountID uuid.UUID) error
}

type noopThrottle struct{}

func (noopThrottle) Allow(context.Context, uuid.UUID) (bool, error) {
	return true, nil
}

func (noopThrottle) Release(context.Context, uuid.UUID) error {
	return nil
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ACCOUNTS " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
