package auth

import (
	"context"
	"errors"
	"time"

	"github.com/kasalabs/ussd-server-go/internal/jwtauth"
)

// AccessTokenAuthOption configures optional aspects of the JWT access token
// authenticator (scopes, algorithms, leeway). Audience is a required formal
// argument to the constructors instead of an option.
type AccessTokenAuthOption func(*jwtauth.Config)

// WithRequiredScopes requires all of the provided scopes to be present in the
// space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
	}
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
// Defaults to ["RS256"].
func WithAllowedAlgs(algs ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.AllowedAlgs = append([]string(nil), algs...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

// NewFromDiscovery returns an Authenticator that verifies JWT access tokens
// using OpenID Connect discovery to locate the issuer's JWKS.
//
// Required:
//   - issuer:   authorization server issuer URL
//   - audience: expected audience ("aud") claim, typically the public admin endpoint URL
func NewFromDiscovery(ctx context.Context, issuer string, audience string, opts ...AccessTokenAuthOption) (Authenticator, error) {
	cfg := jwtauth.Config{Issuer: issuer}
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	cfg.ExpectedAudiences = []string{audience}
	for _, opt := range opts {
		opt(&cfg)
	}
	internal, err := jwtauth.NewFromDiscovery(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal}, nil
}

// NewStatic returns an Authenticator that verifies JWT access tokens against
// a fixed JWKS URL, skipping OIDC discovery.
func NewStatic(ctx context.Context, issuer string, audience string, jwksURL string, opts ...AccessTokenAuthOption) (Authenticator, error) {
	cfg := jwtauth.Config{Issuer: issuer}
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	cfg.ExpectedAudiences = []string{audience}
	for _, opt := range opts {
		opt(&cfg)
	}
	internal, err := jwtauth.NewStatic(ctx, cfg, jwksURL)
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal}, nil
}

// adapter wraps the internal authenticator to satisfy the public interface.
type adapter struct {
	a *jwtauth.Authenticator
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := ad.a.CheckAuthentication(ctx, tok)
	if err != nil {
		// Map internal sentinel errors to public errors used by the handler.
		if errors.Is(err, jwtauth.ErrInsufficientScope) {
			return nil, errors.Join(ErrInsufficientScope, err)
		}
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return userInfoAdapter{ui: ui}, nil
}

type userInfoAdapter struct{ ui jwtauth.UserInfo }

func (u userInfoAdapter) UserID() string       { return u.ui.UserID() }
func (u userInfoAdapter) Claims(ref any) error { return u.ui.Claims(ref) }
