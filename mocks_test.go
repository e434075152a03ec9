package accounts

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// MockDirectory implements IdentityDirectory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) RegisterByEmail(ctx context.Context, email, password string, accountID uuid.UUID, phone string) (string, error) {
	args := m.Called(ctx, email, password, accountID, phone)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) RegisterByPhone(ctx context.Context, phone, password string, accountID uuid.UUID, email string) (string, error) {
	args := m.Called(ctx, phone, password, accountID, email)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) InviteByEmail(ctx context.Context, accountID uuid.UUID, email string, resend bool, phone string) (string, error) {
	args := m.Called(ctx, accountID, email, resend, phone)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) InviteByPhone(ctx context.Context, accountID uuid.UUID, phone string, resend bool, email string) (string, error) {
	args := m.Called(ctx, accountID, phone, resend, email)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) Delete(ctx context.Context, username string) (string, error) {
	args := m.Called(ctx, username)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) Exists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

// recordingSink keeps every event it receives
type recordingSink struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// windowThrottle claims one window per account until it is released, like
// the Redis SetNX throttle.
type windowThrottle struct {
	mu       sync.Mutex
	claimed  map[uuid.UUID]bool
	err      error
	released int
}

func newWindowThrottle() *windowThrottle {
	return &windowThrottle{claimed: map[uuid.UUID]bool{}}
}

func (w *windowThrottle) Allow(_ context.Context, accountID uuid.UUID) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return false, w.err
	}
	if w.claimed[accountID] {
		return false, nil
	}
	w.claimed[accountID] = true
	return true, nil
}

func (w *windowThrottle) Release(_ context.Context, accountID uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.claimed, accountID)
	w.released++
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, EnsureSchema(context.Background(), db))

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func newTestRepository(t *testing.T) (*bun.DB, RepositoryManager) {
	t.Helper()
	db := newTestDB(t)
	return db, NewRepositoryManager(db)
}

func operationsFor(t *testing.T, db *bun.DB, accountID uuid.UUID) []*AccountOperation {
	t.Helper()
	var ops []*AccountOperation
	err := db.NewSelect().
		Model(&ops).
		Where("?TableAlias.account_id = ?", accountID).
		Order("created_at ASC").
		Scan(context.Background())
	require.NoError(t, err)
	return ops
}
