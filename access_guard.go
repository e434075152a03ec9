package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultIdentityClaim carries the local account id in provider tokens.
	DefaultIdentityClaim = "custom:id"
	// BearerScheme is the only accepted authorization scheme.
	BearerScheme = "Bearer"
)

// GuardStage names a verification step. Denials record the step that failed.
type GuardStage string

const (
	StageTokenPresent      GuardStage = "token_present"
	StageHeaderParsed      GuardStage = "header_parsed"
	StageSignatureVerified GuardStage = "signature_verified"
	StageClaimsExtracted   GuardStage = "claims_extracted"
	StageAccountResolved   GuardStage = "account_resolved"
	StageRoleChecked       GuardStage = "role_checked"
)

// AuthenticatedAccount is the outcome of a successful verification.
type AuthenticatedAccount struct {
	Account *Account
	Roles   RoleSet
	Claims  jwt.MapClaims
}

// ID returns the account identifier
func (a *AuthenticatedAccount) ID() uuid.UUID {
	if a == nil || a.Account == nil {
		return uuid.Nil
	}
	return a.Account.ID
}

// AccessGuard verifies bearer tokens issued by the identity directory and
// resolves the local account they belong to.
type AccessGuard struct {
	keys          KeySet
	accounts      AccountFinder
	identityClaim string
	methods       []string
	logger        Logger
	activity      ActivitySink
}

// AccessGuardOption configures an AccessGuard
type AccessGuardOption func(*AccessGuard)

// WithIdentityClaim overrides the claim holding the account id
func WithIdentityClaim(claim string) AccessGuardOption {
	return func(g *AccessGuard) {
		if claim != "" {
			g.identityClaim = claim
		}
	}
}

// WithSigningMethods restricts the accepted "alg" header values
func WithSigningMethods(methods ...string) AccessGuardOption {
	return func(g *AccessGuard) {
		if len(methods) > 0 {
			g.methods = methods
		}
	}
}

// WithGuardLogger sets the logger
func WithGuardLogger(logger Logger) AccessGuardOption {
	return func(g *AccessGuard) {
		g.logger = normalizeLogger(logger)
	}
}

// WithGuardActivitySink receives an event for every denied request
func WithGuardActivitySink(sink ActivitySink) AccessGuardOption {
	return func(g *AccessGuard) {
		g.activity = normalizeActivitySink(sink)
	}
}

// NewAccessGuard returns a guard. The key set is shared across requests
// and must be safe for concurrent reads.
func NewAccessGuard(keys KeySet, accounts AccountFinder, opts ...AccessGuardOption) *AccessGuard {
	if keys == nil {
		panic("Missing KeySet in access guard...")
	}

	if accounts == nil {
		panic("Missing AccountFinder in access guard...")
	}

	g := &AccessGuard{
		keys:          keys,
		accounts:      accounts,
		identityClaim: DefaultIdentityClaim,
		methods:       []string{"RS256"},
		logger:        defLogger{},
		activity:      noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// AuthenticateRequest verifies the value of an Authorization header.
func (g *AccessGuard) AuthenticateRequest(ctx context.Context, authorization string) (*AuthenticatedAccount, error) {
	raw, err := bearerToken(authorization)
	if err != nil {
		return nil, g.deny(ctx, StageTokenPresent, err)
	}
	return g.Authenticate(ctx, raw)
}

// Authenticate verifies a raw token. It stops at the first failing step.
func (g *AccessGuard) Authenticate(ctx context.Context, raw string) (*AuthenticatedAccount, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, g.deny(ctx, StageTokenPresent, newError(ErrMissingToken, nil, nil))
	}

	if strings.Count(raw, ".") != 2 {
		return nil, g.deny(ctx, StageHeaderParsed, newError(ErrInvalidSignature, nil, map[string]any{
			"reason": "token must have three segments",
		}))
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods(g.methods))
	if _, err := parser.ParseWithClaims(raw, claims, g.keys.Keyfunc); err != nil {
		return nil, g.deny(ctx, StageSignatureVerified, verificationError(err))
	}

	id, err := identityFromClaims(claims, g.identityClaim)
	if err != nil {
		return nil, g.deny(ctx, StageClaimsExtracted, err)
	}

	account, err := g.accounts.FindByID(ctx, id)
	if err != nil {
		if HasTextCode(err, TextCodeAccountNotFound) {
			err = newError(ErrUnknownAccount, err, map[string]any{"account_id": id.String()})
		}
		return nil, g.deny(ctx, StageAccountResolved, err)
	}

	if account == nil {
		return nil, g.deny(ctx, StageAccountResolved, newError(ErrUnknownAccount, nil, map[string]any{
			"account_id": id.String(),
		}))
	}

	return &AuthenticatedAccount{
		Account: account,
		Roles:   account.RoleSet(),
		Claims:  claims,
	}, nil
}

// Authorize runs RequireRole and records denials like Authenticate does.
func (g *AccessGuard) Authorize(ctx context.Context, account *AuthenticatedAccount, role RoleName) error {
	if err := RequireRole(account, role); err != nil {
		return g.deny(ctx, StageRoleChecked, err)
	}
	return nil
}

// RequireRole fails with FORBIDDEN unless the account holds role. Matching
// is exact against the enumerated role names.
func RequireRole(account *AuthenticatedAccount, role RoleName) error {
	if account == nil || !account.Roles.Has(role) {
		return newError(ErrForbidden, nil, map[string]any{"role": string(role)})
	}
	return nil
}

func (g *AccessGuard) deny(ctx context.Context, stage GuardStage, err error) error {
	g.logger.Debug("request denied", "stage", stage, "code", TextCode(err), "error", err)

	event := ActivityEvent{
		EventType: ActivityAccessDenied,
		Metadata: map[string]any{
			"stage": string(stage),
			"code":  TextCode(err),
		},
	}
	if recErr := g.activity.Record(ctx, event); recErr != nil {
		g.logger.Warn("activity sink failed", "event", event.EventType, "error", recErr)
	}
	return err
}

// bearerToken splits an Authorization header. The scheme is matched case
// sensitively.
func bearerToken(authorization string) (string, error) {
	header := strings.TrimSpace(authorization)
	if header == "" {
		return "", newError(ErrMissingToken, nil, nil)
	}

	scheme, token, found := strings.Cut(header, " ")
	if scheme != BearerScheme {
		return "", newError(ErrUnsupportedScheme, nil, map[string]any{"scheme": scheme})
	}

	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", newError(ErrMissingToken, nil, nil)
	}

	return token, nil
}

func verificationError(err error) error {
	switch {
	case errors.Is(err, keyfunc.ErrKIDNotFound), errors.Is(err, keyfunc.ErrKID):
		return newError(ErrUnknownSigningKey, err, nil)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(ErrTokenExpired, err, nil)
	default:
		return newError(ErrInvalidSignature, err, nil)
	}
}

func identityFromClaims(claims jwt.MapClaims, name string) (uuid.UUID, error) {
	value, ok := claims[name].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return uuid.Nil, newError(ErrMissingIdentityClaim, nil, map[string]any{"claim": name})
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, newError(ErrMissingIdentityClaim, err, map[string]any{"claim": name})
	}

	return id, nil
}
