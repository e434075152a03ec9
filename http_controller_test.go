package accounts_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	accounts "github.com/nextonlabs/go-accounts"
	"github.com/nextonlabs/go-accounts/middleware/bearer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// stubDirectory accepts every call and remembers the usernames it saw
type stubDirectory struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubDirectory) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubDirectory) RegisterByEmail(_ context.Context, email, _ string, _ uuid.UUID, _ string) (string, error) {
	s.record("register:" + email)
	return email, nil
}

func (s *stubDirectory) RegisterByPhone(_ context.Context, phone, _ string, _ uuid.UUID, _ string) (string, error) {
	s.record("register:" + phone)
	return phone, nil
}

func (s *stubDirectory) InviteByEmail(_ context.Context, _ uuid.UUID, email string, resend bool, _ string) (string, error) {
	s.record(fmt.Sprintf("invite:%s:%t", email, resend))
	return email, nil
}

func (s *stubDirectory) InviteByPhone(_ context.Context, _ uuid.UUID, phone string, resend bool, _ string) (string, error) {
	s.record(fmt.Sprintf("invite:%s:%t", phone, resend))
	return phone, nil
}

func (s *stubDirectory) Delete(_ context.Context, username string) (string, error) {
	s.record("delete:" + username)
	return username, nil
}

func (s *stubDirectory) Exists(context.Context, string) (bool, error) {
	return true, nil
}

type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}

type apiFixture struct {
	app  *fiber.App
	repo accounts.RepositoryManager
	dir  *stubDirectory
	key  *rsa.PrivateKey
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, accounts.EnsureSchema(ctx, db))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "api-key",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	})
	require.NoError(t, err)

	keys, err := accounts.NewStaticKeySet(jwks)
	require.NoError(t, err)

	repo := accounts.NewRepositoryManager(db)
	dir := &stubDirectory{}

	lifecycle := accounts.NewLifecycle(repo, dir, accounts.WithLifecycleLogger(silentLogger{}))
	guard := accounts.NewAccessGuard(keys, repo.Accounts(), accounts.WithGuardLogger(silentLogger{}))

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New()
	})
	accounts.RegisterAccountRoutes(srv.Router(),
		accounts.WithControllerService(accounts.NewService(repo, lifecycle)),
		accounts.WithControllerLogger(silentLogger{}),
		accounts.WithControllerProtect(bearer.Protect(guard)),
	)

	return &apiFixture{app: srv.WrappedRouter(), repo: repo, dir: dir, key: key}
}

func (f *apiFixture) account(t *testing.T, username string, roles ...accounts.RoleName) *accounts.Account {
	t.Helper()
	ctx := context.Background()

	account, err := f.repo.Accounts().Create(ctx, &accounts.Account{
		Username: username,
		Email:    username,
		Status:   accounts.StatusSelfSignedUp,
	})
	require.NoError(t, err)

	for _, role := range roles {
		account, err = f.repo.Accounts().AddRole(ctx, account.ID, role)
		require.NoError(t, err)
	}
	return account
}

func (f *apiFixture) bearer(t *testing.T, account *accounts.Account) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":       uuid.NewString(),
		"custom:id": account.ID.String(),
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "api-key"
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return "Bearer " + signed
}

func (f *apiFixture) do(t *testing.T, method, path, authorization string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}

	res, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return res.StatusCode, out
}

func TestSignupRoute(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPost, "/v1/signup/signup", "", map[string]string{
		"email":    "a@b.com",
		"password": "Abc12345!!",
	})
	require.Equal(t, http.StatusCreated, status, body)

	assert.Equal(t, "a@b.com", body["username"])
	assert.Equal(t, "SELF_SIGNED_UP", body["status"])
	assert.Equal(t, []any{"CANDIDATE"}, body["roles"])
	assert.Equal(t, []string{"register:a@b.com"}, f.dir.calls)
}

func TestSignupRouteValidation(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodPost, "/v1/signup/signup", "", map[string]string{
		"email":    "a@b.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, accounts.TextCodeValidation, body["code"])

	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok, body)
	assert.Contains(t, fields["password"], "uppercase")
	assert.Empty(t, f.dir.calls)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newAPIFixture(t)
	candidate := f.account(t, "cand@x.com", accounts.RoleCandidate)

	tests := []struct {
		name          string
		authorization string
	}{
		{name: "no token", authorization: ""},
		{name: "wrong scheme", authorization: "Token abc"},
		{name: "garbage token", authorization: "Bearer a.b.c"},
		{name: "candidate token", authorization: f.bearer(t, candidate)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPost, "/v1/admin/candidates/invitation", tt.authorization, map[string]string{
				"email": "new@x.com",
			})
			assert.Equal(t, http.StatusForbidden, status)
			assert.Equal(t, map[string]any{"error": accounts.NotAuthorizedMessage}, body)
		})
	}

	assert.Empty(t, f.dir.calls)
}

func TestAdminInvitesCandidate(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.bearer(t, f.account(t, "root@x.com", accounts.RoleAdmin))

	status, body := f.do(t, http.MethodPost, "/v1/admin/candidates/invitation", admin, map[string]string{
		"email":      "cand@x.com",
		"first_name": "Grace",
	})
	require.Equal(t, http.StatusCreated, status, body)

	candidateID, _ := body["id"].(string)
	require.NotEmpty(t, candidateID)

	status, body = f.do(t, http.MethodGet, "/v1/admin/candidates/"+candidateID, admin, nil)
	require.Equal(t, http.StatusOK, status, body)

	user, ok := body["user"].(map[string]any)
	require.True(t, ok, body)
	assert.Equal(t, "cand@x.com", user["username"])
	assert.Equal(t, "PENDING_INVITE", user["status"])
	assert.Equal(t, "Grace", user["first_name"])

	status, _ = f.do(t, http.MethodPost, "/v1/admin/candidates/"+candidateID+"/invitation_reminder", admin, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = f.do(t, http.MethodPost, "/v1/admin/candidates/"+candidateID+"/invitation", admin, map[string]string{
		"email": "moved@x.com",
	})
	require.Equal(t, http.StatusOK, status, body)
	user, _ = body["user"].(map[string]any)
	assert.Equal(t, "moved@x.com", user["username"])

	assert.Equal(t, []string{
		"invite:cand@x.com:false",
		"invite:cand@x.com:true",
		"delete:cand@x.com",
		"invite:moved@x.com:false",
	}, f.dir.calls)
}

func TestAdminListsCandidates(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.bearer(t, f.account(t, "root@x.com", accounts.RoleAdmin))

	for _, email := range []string{"one@x.com", "two@x.com"} {
		status, body := f.do(t, http.MethodPost, "/v1/admin/candidates/invitation", admin, map[string]string{
			"email": email,
		})
		require.Equal(t, http.StatusCreated, status, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/candidates/", nil)
	req.Header.Set(fiber.HeaderAuthorization, admin)
	res, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var listed []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&listed))
	require.Len(t, listed, 2)

	usernames := []any{listed[0]["username"], listed[1]["username"]}
	assert.ElementsMatch(t, []any{"one@x.com", "two@x.com"}, usernames)
	assert.Equal(t, "PENDING_INVITE", listed[0]["status"])
	assert.NotEmpty(t, listed[0]["user_id"])

	status, _ := f.do(t, http.MethodGet, "/v1/admin/candidates/", "", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAdminCandidateNotFound(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.bearer(t, f.account(t, "root@x.com", accounts.RoleAdmin))

	status, body := f.do(t, http.MethodGet, "/v1/admin/candidates/"+uuid.NewString(), admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, accounts.TextCodeCandidateNotFound, body["code"])

	status, body = f.do(t, http.MethodGet, "/v1/admin/candidates/not-a-uuid", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, accounts.TextCodeValidation, body["code"])
}

func TestAdminRoleRoutes(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.bearer(t, f.account(t, "root@x.com", accounts.RoleAdmin))
	target := f.account(t, "user@x.com")

	path := "/v1/admin/users/" + target.ID.String() + "/roles/"

	status, body := f.do(t, http.MethodPost, path+"admin", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, accounts.TextCodeRoleNotFound, body["code"])

	status, body = f.do(t, http.MethodPost, path+"ADMIN", admin, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{"ADMIN"}, body["roles"])

	status, body = f.do(t, http.MethodPost, path+"ADMIN", admin, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{"ADMIN"}, body["roles"])

	status, body = f.do(t, http.MethodDelete, path+"ADMIN", admin, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{}, body["roles"])
}

func TestCandidateProfileRoutes(t *testing.T) {
	f := newAPIFixture(t)
	candidate := f.account(t, "cand@x.com", accounts.RoleCandidate)
	token := f.bearer(t, candidate)

	status, body := f.do(t, http.MethodGet, "/v1/candidate/users/profile", token, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, candidate.ID.String(), body["id"])

	status, body = f.do(t, http.MethodPatch, "/v1/candidate/users/profile", token, map[string]any{
		"first_name":    "Ada",
		"has_consented": true,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Ada", body["first_name"])
	assert.Equal(t, true, body["has_consented"])
	assert.NotEmpty(t, body["has_consented_date"])

	admin := f.bearer(t, f.account(t, "root@x.com", accounts.RoleAdmin))
	status, _ = f.do(t, http.MethodGet, "/v1/candidate/users/profile", admin, nil)
	assert.Equal(t, http.StatusForbidden, status)
}
