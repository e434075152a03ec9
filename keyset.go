package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// CognitoJWKSURL is the key set location of a Cognito user pool.
const CognitoJWKSURL = "https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json"

// KeySet resolves the verification key of a token from its header.
type KeySet interface {
	Keyfunc(token *jwt.Token) (any, error)
}

// KeySetConfig locates the provider key set. URL wins over Region and
// PoolID when both are given.
type KeySetConfig struct {
	URL              string
	Region           string
	PoolID           string
	RefreshInterval  time.Duration
	RefreshRateLimit time.Duration
	RefreshTimeout   time.Duration
	Logger           Logger
}

// JWKSURL returns the resolved key set location.
func (c KeySetConfig) JWKSURL() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	if c.Region == "" || c.PoolID == "" {
		return "", fmt.Errorf("key set: either a URL or a region and pool id are required")
	}
	return fmt.Sprintf(CognitoJWKSURL, c.Region, c.PoolID), nil
}

func (c KeySetConfig) options(ctx context.Context) keyfunc.Options {
	logger := normalizeLogger(c.Logger)

	interval := c.RefreshInterval
	if interval == 0 {
		interval = time.Hour
	}

	rateLimit := c.RefreshRateLimit
	if rateLimit == 0 {
		rateLimit = time.Minute * 5
	}

	timeout := c.RefreshTimeout
	if timeout == 0 {
		timeout = time.Second * 10
	}

	return keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			logger.Error("failed to refresh key set", "error", err)
		},
		RefreshInterval:   interval,
		RefreshRateLimit:  rateLimit,
		RefreshTimeout:    timeout,
		RefreshUnknownKID: true,
	}
}

// LoadKeySet fetches the provider key set once and keeps it refreshed in
// the background until ctx is done. Tokens signed with a kid that is not
// cached trigger a rate limited refresh.
func LoadKeySet(ctx context.Context, cfg KeySetConfig) (*keyfunc.JWKS, error) {
	url, err := cfg.JWKSURL()
	if err != nil {
		return nil, err
	}

	jwks, err := keyfunc.Get(url, cfg.options(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to load key set from %s: %w", url, err)
	}

	return jwks, nil
}

// NewStaticKeySet builds a key set from a JWKS document that never
// refreshes.
func NewStaticKeySet(document []byte) (*keyfunc.JWKS, error) {
	jwks, err := keyfunc.NewJSON(json.RawMessage(document))
	if err != nil {
		return nil, fmt.Errorf("invalid key set document: %w", err)
	}
	return jwks, nil
}
