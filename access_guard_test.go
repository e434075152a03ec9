package accounts

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKID = "test-key"

type finderFunc func(ctx context.Context, id uuid.UUID) (*Account, error)

func (f finderFunc) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return f(ctx, id)
}

type guardFixture struct {
	key      *rsa.PrivateKey
	accounts map[uuid.UUID]*Account
	sink     *recordingSink
	guard    *AccessGuard
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys, err := NewStaticKeySet(jwksDocument(t, testKID, &key.PublicKey))
	require.NoError(t, err)

	f := &guardFixture{
		key:      key,
		accounts: map[uuid.UUID]*Account{},
		sink:     &recordingSink{},
	}

	finder := finderFunc(func(_ context.Context, id uuid.UUID) (*Account, error) {
		account, ok := f.accounts[id]
		if !ok {
			return nil, newError(ErrAccountNotFound, nil, nil)
		}
		return account, nil
	})

	f.guard = NewAccessGuard(keys, finder,
		WithGuardLogger(nopLogger{}),
		WithGuardActivitySink(f.sink),
	)
	return f
}

func (f *guardFixture) addAccount(roles ...RoleName) *Account {
	account := &Account{ID: uuid.New(), Username: "a@b.com", Email: "a@b.com"}
	for _, r := range roles {
		account.Roles = append(account.Roles, &Role{Name: r})
	}
	f.accounts[account.ID] = account
	return account
}

func (f *guardFixture) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return signToken(t, f.key, testKID, claims)
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func jwksDocument(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func validClaims(id uuid.UUID) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       uuid.NewString(),
		"custom:id": id.String(),
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	}
}

func TestAuthenticateResolvesAccount(t *testing.T) {
	f := newGuardFixture(t)
	account := f.addAccount(RoleCandidate)

	got, err := f.guard.AuthenticateRequest(context.Background(), "Bearer "+f.token(t, validClaims(account.ID)))
	require.NoError(t, err)

	assert.Equal(t, account.ID, got.ID())
	assert.True(t, got.Roles.Has(RoleCandidate))
	assert.False(t, got.Roles.Has(RoleAdmin))
	assert.Equal(t, account.ID.String(), got.Claims["custom:id"])
	assert.Empty(t, f.sink.types())
}

func TestAuthenticateRequestHeader(t *testing.T) {
	f := newGuardFixture(t)
	account := f.addAccount(RoleCandidate)
	token := f.token(t, validClaims(account.ID))

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "missing header", header: "", code: TextCodeMissingToken},
		{name: "scheme only", header: "Bearer", code: TextCodeMissingToken},
		{name: "scheme and blank", header: "Bearer    ", code: TextCodeMissingToken},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", code: TextCodeUnsupportedScheme},
		{name: "lowercase scheme", header: "bearer " + token, code: TextCodeUnsupportedScheme},
		{name: "no scheme", header: token, code: TextCodeUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.guard.AuthenticateRequest(context.Background(), tt.header)
			require.Error(t, err)
			assert.Equal(t, tt.code, TextCode(err))
			assert.True(t, IsAuthError(err))
		})
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	f := newGuardFixture(t)
	account := f.addAccount(RoleAdmin)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	expired := validClaims(account.ID)
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	missingClaim := validClaims(account.ID)
	delete(missingClaim, "custom:id")

	notUUID := validClaims(account.ID)
	notUUID["custom:id"] = "42"

	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(account.ID))
	hmac.Header["kid"] = testKID
	hmacToken, err := hmac.SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		code  string
		stage GuardStage
	}{
		{name: "two segments", token: "abc.def", code: TextCodeInvalidSignature, stage: StageHeaderParsed},
		{name: "garbage", token: "a.b.c", code: TextCodeInvalidSignature, stage: StageSignatureVerified},
		{name: "unknown kid", token: signToken(t, f.key, "rotated", validClaims(account.ID)), code: TextCodeUnknownSigningKey, stage: StageSignatureVerified},
		{name: "tampered signature", token: signToken(t, otherKey, testKID, validClaims(account.ID)), code: TextCodeInvalidSignature, stage: StageSignatureVerified},
		{name: "wrong algorithm", token: hmacToken, code: TextCodeInvalidSignature, stage: StageSignatureVerified},
		{name: "expired", token: f.token(t, expired), code: TextCodeTokenExpired, stage: StageSignatureVerified},
		{name: "missing identity claim", token: f.token(t, missingClaim), code: TextCodeMissingIdentityClaim, stage: StageClaimsExtracted},
		{name: "identity claim not a uuid", token: f.token(t, notUUID), code: TextCodeMissingIdentityClaim, stage: StageClaimsExtracted},
		{name: "unknown account", token: f.token(t, validClaims(uuid.New())), code: TextCodeUnknownAccount, stage: StageAccountResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.sink.events = nil

			_, err := f.guard.Authenticate(context.Background(), tt.token)
			require.Error(t, err)
			assert.Equal(t, tt.code, TextCode(err))

			require.Len(t, f.sink.events, 1)
			event := f.sink.events[0]
			assert.Equal(t, ActivityAccessDenied, event.EventType)
			assert.Equal(t, string(tt.stage), event.Metadata["stage"])
			assert.Equal(t, tt.code, event.Metadata["code"])
		})
	}
}

func TestAuthenticateCustomIdentityClaim(t *testing.T) {
	f := newGuardFixture(t)
	account := f.addAccount()

	keys, err := NewStaticKeySet(jwksDocument(t, testKID, &f.key.PublicKey))
	require.NoError(t, err)

	guard := NewAccessGuard(keys, finderFunc(func(_ context.Context, id uuid.UUID) (*Account, error) {
		return f.accounts[id], nil
	}), WithIdentityClaim("account_id"), WithGuardLogger(nopLogger{}))

	claims := validClaims(uuid.New())
	claims["account_id"] = account.ID.String()

	got, err := guard.Authenticate(context.Background(), f.token(t, claims))
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID())

	_, err = guard.Authenticate(context.Background(), f.token(t, validClaims(uuid.New())))
	assert.True(t, HasTextCode(err, TextCodeMissingIdentityClaim))
}

func TestAuthenticateNilAccountIsUnknown(t *testing.T) {
	f := newGuardFixture(t)

	keys, err := NewStaticKeySet(jwksDocument(t, testKID, &f.key.PublicKey))
	require.NoError(t, err)

	guard := NewAccessGuard(keys, finderFunc(func(context.Context, uuid.UUID) (*Account, error) {
		return nil, nil
	}), WithGuardLogger(nopLogger{}))

	_, err = guard.Authenticate(context.Background(), f.token(t, validClaims(uuid.New())))
	assert.True(t, HasTextCode(err, TextCodeUnknownAccount))
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		roles   []RoleName
		require RoleName
		allowed bool
	}{
		{name: "admin holds admin", roles: []RoleName{RoleAdmin}, require: RoleAdmin, allowed: true},
		{name: "candidate holds candidate", roles: []RoleName{RoleCandidate}, require: RoleCandidate, allowed: true},
		{name: "both roles", roles: []RoleName{RoleAdmin, RoleCandidate}, require: RoleCandidate, allowed: true},
		{name: "candidate lacks admin", roles: []RoleName{RoleCandidate}, require: RoleAdmin},
		{name: "admin lacks candidate", roles: []RoleName{RoleAdmin}, require: RoleCandidate},
		{name: "no roles", require: RoleAdmin},
		{name: "case mismatch", roles: []RoleName{RoleAdmin}, require: RoleName("admin")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := &AuthenticatedAccount{Roles: NewRoleSet(tt.roles...)}
			err := RequireRole(account, tt.require)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, HasTextCode(err, TextCodeForbidden))
		})
	}

	assert.Error(t, RequireRole(nil, RoleAdmin))
}

func TestAuthorizeRecordsDenial(t *testing.T) {
	f := newGuardFixture(t)
	account := f.addAccount(RoleCandidate)

	authenticated, err := f.guard.Authenticate(context.Background(), f.token(t, validClaims(account.ID)))
	require.NoError(t, err)

	require.NoError(t, f.guard.Authorize(context.Background(), authenticated, RoleCandidate))
	assert.Empty(t, f.sink.events)

	err = f.guard.Authorize(context.Background(), authenticated, RoleAdmin)
	assert.True(t, HasTextCode(err, TextCodeForbidden))
	require.Len(t, f.sink.events, 1)
	assert.Equal(t, string(StageRoleChecked), f.sink.events[0].Metadata["stage"])
}

func TestHasRoleFromContext(t *testing.T) {
	ctx := context.Background()
	assert.False(t, HasRole(ctx, RoleAdmin))

	ctx = WithAccountContext(ctx, &AuthenticatedAccount{Roles: NewRoleSet(RoleAdmin)})
	assert.True(t, HasRole(ctx, RoleAdmin))
	assert.False(t, HasRole(ctx, RoleCandidate))

	got, ok := AccountFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, uuid.Nil, got.ID())
}
