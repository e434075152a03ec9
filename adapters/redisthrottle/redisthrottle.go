// Package redisthrottle limits invitation reminders with Redis keys that
// expire after a cooldown.
package redisthrottle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	accounts "github.com/nextonlabs/go-accounts"
	"github.com/redis/go-redis/v9"
)

// DefaultCooldown is the minimum time between two reminders of an account.
const DefaultCooldown = time.Hour

const defaultTimeout = 5 * time.Second

// Commands is the subset of the Redis client the throttle needs.
type Commands interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Throttle implements accounts.ReminderThrottle.
// Key format: accounts:reminder:<account_id>
type Throttle struct {
	client   Commands
	cooldown time.Duration
	prefix   string
}

var _ accounts.ReminderThrottle = (*Throttle)(nil)

// New wraps client. A cooldown of zero uses DefaultCooldown.
func New(client Commands, cooldown time.Duration) *Throttle {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Throttle{
		client:   client,
		cooldown: cooldown,
		prefix:   "accounts:reminder",
	}
}

// Allow claims the cooldown window for the account. It returns false when
// a reminder was already sent inside the window.
func (t *Throttle) Allow(ctx context.Context, accountID uuid.UUID) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.key(accountID), time.Now().UTC().Format(time.RFC3339), t.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("reminder throttle: %w", err)
	}
	return ok, nil
}

// Release drops the cooldown window so the next reminder is allowed.
func (t *Throttle) Release(ctx context.Context, accountID uuid.UUID) error {
	if err := t.client.Del(ctx, t.key(accountID)).Err(); err != nil {
		return fmt.Errorf("reminder throttle: %w", err)
	}
	return nil
}

func (t *Throttle) key(accountID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", t.prefix, accountID)
}

// Config captures the settings for establishing a Redis connection.
type Config struct {
	Addr    string
	DB      int
	Timeout time.Duration
}

// Connect initialises a Redis client and validates connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}
