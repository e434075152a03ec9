package accounts

import (
	"context"

	"github.com/google/uuid"
)

// IdentityDirectory is the hosted identity provider holding credentials.
// Implementations must be safe for concurrent use, enforce their own call
// timeout and never retry. Failures are reported as EXTERNAL_DIRECTORY_ERROR,
// a missing identity on Delete as EXTERNAL_ACCOUNT_NOT_FOUND.
type IdentityDirectory interface {
	// RegisterByEmail starts self service signup, the provider sends its own
	// verification challenge. phone is optional metadata.
	RegisterByEmail(ctx context.Context, email, password string, accountID uuid.UUID, phone string) (string, error)
	RegisterByPhone(ctx context.Context, phone, password string, accountID uuid.UUID, email string) (string, error)
	// InviteByEmail creates the identity and sends a temporary credential.
	// With resend set it only sends the credential again.
	InviteByEmail(ctx context.Context, accountID uuid.UUID, email string, resend bool, phone string) (string, error)
	InviteByPhone(ctx context.Context, accountID uuid.UUID, phone string, resend bool, email string) (string, error)
	Delete(ctx context.Context, username string) (string, error)
	Exists(ctx context.Context, username string) (bool, error)
}

// register dispatches to the self service call matching channel.
func register(ctx context.Context, dir IdentityDirectory, account *Account, password string) (string, error) {
	if account.ContactChannel == ChannelPhone {
		return dir.RegisterByPhone(ctx, account.Phone, password, account.ID, account.Email)
	}
	return dir.RegisterByEmail(ctx, account.Email, password, account.ID, account.Phone)
}

// invite dispatches to the invitation call matching channel.
func invite(ctx context.Context, dir IdentityDirectory, account *Account, resend bool) (string, error) {
	if account.ContactChannel == ChannelPhone {
		return dir.InviteByPhone(ctx, account.ID, account.Phone, resend, account.Email)
	}
	return dir.InviteByEmail(ctx, account.ID, account.Email, resend, account.Phone)
}
