package bearer

import (
	"github.com/goliatone/go-router"
	accounts "github.com/nextonlabs/go-accounts"
)

// DefaultContextKey is the Locals key holding the authenticated account.
const DefaultContextKey = "account"

type Config struct {
	// Guard verifies the Authorization header. Required.
	Guard *accounts.AccessGuard
	// Role, when set, must be held by the authenticated account.
	Role accounts.RoleName
	// Filter skips the middleware when it returns true.
	Filter       func(router.Context) bool
	ContextKey   string
	ErrorHandler router.ErrorHandler
}

// New returns a middleware that authenticates the bearer token of every
// request and optionally checks a role.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if cfg.Filter != nil && cfg.Filter(c) {
				return next(c)
			}

			ctx := c.Context()

			account, err := cfg.Guard.AuthenticateRequest(ctx, c.Header(router.HeaderAuthorization))
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}

			if cfg.Role != "" {
				if err := cfg.Guard.Authorize(ctx, account, cfg.Role); err != nil {
					return cfg.ErrorHandler(c, err)
				}
			}

			c.Locals(cfg.ContextKey, account)
			c.SetContext(accounts.WithAccountContext(ctx, account))

			return next(c)
		}
	}
}

// Protect returns a factory usable as the controller route guard.
func Protect(guard *accounts.AccessGuard) func(role accounts.RoleName) router.MiddlewareFunc {
	return func(role accounts.RoleName) router.MiddlewareFunc {
		return New(Config{Guard: guard, Role: role})
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Guard == nil {
		panic("ACCOUNTS: bearer middleware configuration: Guard is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = accounts.WriteError
	}

	return cfg
}

// Account returns the authenticated account stored by the middleware.
func Account(c router.Context, key ...string) (*accounts.AuthenticatedAccount, bool) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	account, ok := c.Locals(k).(*accounts.AuthenticatedAccount)
	return account, ok && account != nil
}
