package accounts

import (
	"context"
)

var accountCtxKey = &contextKey{"account"}

type contextKey struct {
	name string
}

// WithAccountContext sets the authenticated account in the given context
func WithAccountContext(ctx context.Context, account *AuthenticatedAccount) context.Context {
	return context.WithValue(ctx, accountCtxKey, account)
}

// AccountFromContext finds the authenticated account in the context.
func AccountFromContext(ctx context.Context) (*AuthenticatedAccount, bool) {
	raw, ok := ctx.Value(accountCtxKey).(*AuthenticatedAccount)
	return raw, ok && raw != nil
}

// HasRole checks the role of the account in the context
func HasRole(ctx context.Context, role RoleName) bool {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return false
	}
	return RequireRole(account, role) == nil
}
