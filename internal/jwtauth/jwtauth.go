// Package jwtauth validates the bearer tokens protecting the responder/admin
// surface. Keys come from a JWKS endpoint (auto-refreshed), located either
// directly or through OIDC discovery. The USSD callback path never consults
// this package: gateway traffic carries no caller credentials.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation behavior for access tokens.
type Config struct {
	Issuer string
	// ExpectedAudiences lists accepted aud values; a token must carry at
	// least one of them.
	ExpectedAudiences []string
	// RequiredScopes must all be present in the token's scope claim when set.
	RequiredScopes []string
	AllowedAlgs    []string
	Leeway         time.Duration
}

func (c *Config) applyDefaults() {
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.Leeway == 0 {
		c.Leeway = 60 * time.Second
	}
}

var (
	// ErrUnauthorized indicates the token failed validation (signature,
	// issuer, audience, exp/nbf).
	ErrUnauthorized = errors.New("jwtauth: unauthorized")
	// ErrInsufficientScope indicates a valid token missing a required scope.
	ErrInsufficientScope = errors.New("jwtauth: insufficient_scope")
)

// UserInfo exposes the validated principal.
type UserInfo interface {
	UserID() string
	Claims(ref any) error
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }
func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Authenticator validates access tokens.
type Authenticator struct {
	cfg     Config
	keyfunc jwt.Keyfunc
}

// NewStatic constructs an Authenticator against a known JWKS URI.
func NewStatic(ctx context.Context, cfg Config, jwksURI string) (*Authenticator, error) {
	cfg.applyDefaults()
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return newAuthenticator(cfg, kf), nil
}

// NewFromDiscovery locates the issuer's JWKS via OIDC discovery and builds an
// Authenticator from it. Keys are auto-refreshed.
func NewFromDiscovery(ctx context.Context, cfg Config) (*Authenticator, error) {
	cfg.applyDefaults()
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return newAuthenticator(cfg, kf), nil
}

func newAuthenticator(cfg Config, kf keyfunc.Keyfunc) *Authenticator {
	return &Authenticator{
		cfg: cfg,
		keyfunc: func(t *jwt.Token) (any, error) {
			alg := t.Method.Alg()
			for _, a := range cfg.AllowedAlgs {
				if alg == a {
					return kf.Keyfunc(t)
				}
			}
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		},
	}
}

// CheckAuthentication validates tok and returns the principal it asserts.
func (a *Authenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(a.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithLeeway(a.cfg.Leeway),
	}
	if len(a.cfg.ExpectedAudiences) == 1 {
		opts = append(opts, jwt.WithAudience(a.cfg.ExpectedAudiences[0]))
	}
	parser := jwt.NewParser(opts...)

	parsed, err := parser.Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}

	if len(a.cfg.ExpectedAudiences) > 1 && !audIntersects(claims["aud"], a.cfg.ExpectedAudiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}

	if len(a.cfg.RequiredScopes) > 0 {
		scopeStr, _ := claims["scope"].(string)
		have := map[string]bool{}
		for _, s := range strings.Fields(scopeStr) {
			have[s] = true
		}
		for _, want := range a.cfg.RequiredScopes {
			if !have[want] {
				return nil, ErrInsufficientScope
			}
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return &userInfo{sub: sub, claims: claims}, nil
}

func audIntersects(aud any, want []string) bool {
	for _, w := range want {
		if audContains(aud, w) {
			return true
		}
	}
	return false
}

func audContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}
