package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

type mockOIDC struct {
	srv      *httptest.Server
	issuer   string
	jwksPath string
}

func newMockOIDC(t *testing.T, keysJSON []byte) *mockOIDC {
	t.Helper()
	m := &mockOIDC{jwksPath: "/keys"}
	handler := http.NewServeMux()
	handler.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                   m.issuer,
			"jwks_uri":                 m.issuer + m.jwksPath,
			"authorization_endpoint":   m.issuer + "/oauth2/auth",
			"token_endpoint":           m.issuer + "/oauth2/token",
			"response_types_supported": []string{"code"},
		})
	})
	handler.HandleFunc(m.jwksPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	})
	m.srv = httptest.NewServer(handler)
	m.issuer = m.srv.URL
	return m
}

func (m *mockOIDC) Close() { m.srv.Close() }

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signToken(t *testing.T, pk *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func baseClaims(issuer, aud string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   issuer,
		"sub":   "responder-123",
		"aud":   aud,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"scope": "alerts:read alerts:write",
	}
}

func TestAuthenticator_HappyPath(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	srv := newMockOIDC(t, jwks)
	defer srv.Close()

	aud := "https://api.example.com/admin"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := NewFromDiscovery(ctx, Config{
		Issuer:            srv.issuer,
		ExpectedAudiences: []string{aud},
		RequiredScopes:    []string{"alerts:read"},
	})
	if err != nil {
		t.Fatalf("NewFromDiscovery: %v", err)
	}

	tok := signToken(t, pk, kid, baseClaims(srv.issuer, aud))
	ui, err := a.CheckAuthentication(ctx, tok)
	if err != nil {
		t.Fatalf("CheckAuthentication: %v", err)
	}
	if ui.UserID() != "responder-123" {
		t.Fatalf("UserID = %q", ui.UserID())
	}
	var claims struct {
		Scope string `json:"scope"`
	}
	if err := ui.Claims(&claims); err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if claims.Scope != "alerts:read alerts:write" {
		t.Fatalf("scope = %q", claims.Scope)
	}
}

func TestAuthenticator_StaticJWKS(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	srv := newMockOIDC(t, jwks)
	defer srv.Close()

	aud := "https://api.example.com/admin"
	ctx := context.Background()
	a, err := NewStatic(ctx, Config{
		Issuer:            srv.issuer,
		ExpectedAudiences: []string{aud},
	}, srv.issuer+srv.jwksPath)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	tok := signToken(t, pk, kid, baseClaims(srv.issuer, aud))
	if _, err := a.CheckAuthentication(ctx, tok); err != nil {
		t.Fatalf("CheckAuthentication: %v", err)
	}
}

func TestAuthenticator_RejectsBadTokens(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	srv := newMockOIDC(t, jwks)
	defer srv.Close()

	aud := "https://api.example.com/admin"
	ctx := context.Background()
	a, err := NewFromDiscovery(ctx, Config{
		Issuer:            srv.issuer,
		ExpectedAudiences: []string{aud},
		RequiredScopes:    []string{"alerts:read"},
		Leeway:            time.Second,
	})
	if err != nil {
		t.Fatalf("NewFromDiscovery: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(jwt.MapClaims)
		wantErr error
	}{
		{
			name:    "wrong issuer",
			mutate:  func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" },
			wantErr: ErrUnauthorized,
		},
		{
			name:    "wrong audience",
			mutate:  func(c jwt.MapClaims) { c["aud"] = "https://other.example.com" },
			wantErr: ErrUnauthorized,
		},
		{
			name: "expired",
			mutate: func(c jwt.MapClaims) {
				c["exp"] = time.Now().Add(-time.Hour).Unix()
			},
			wantErr: ErrUnauthorized,
		},
		{
			name:    "missing scope",
			mutate:  func(c jwt.MapClaims) { c["scope"] = "alerts:write" },
			wantErr: ErrInsufficientScope,
		},
		{
			name:    "missing sub",
			mutate:  func(c jwt.MapClaims) { delete(c, "sub") },
			wantErr: ErrUnauthorized,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := baseClaims(srv.issuer, aud)
			tc.mutate(claims)
			tok := signToken(t, pk, kid, claims)
			_, err := a.CheckAuthentication(ctx, tok)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	t.Run("empty token", func(t *testing.T) {
		if _, err := a.CheckAuthentication(ctx, ""); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("unknown signing key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("gen key: %v", err)
		}
		tok := signToken(t, other, "other-key", baseClaims(srv.issuer, aud))
		if _, err := a.CheckAuthentication(ctx, tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})
}
