package auth

import (
	"fmt"
	"net/http"
)

// AuthenticationChallenge describes an HTTP challenge (status + WWW-Authenticate header).
type AuthenticationChallenge struct {
	Status          int
	WWWAuthenticate string
}

// NewAuthenticationRequired builds a challenge indicating credentials are required.
func NewAuthenticationRequired(realm string) *AuthenticationChallenge {
	return &AuthenticationChallenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm=%q`, realm),
	}
}

// NewInvalidAuthorizationHeader builds a challenge for a malformed Authorization header.
func NewInvalidAuthorizationHeader(realm string) *AuthenticationChallenge {
	return &AuthenticationChallenge{
		Status:          http.StatusBadRequest,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm=%q error="invalid_request", error_description="Invalid Authorization header"`, realm),
	}
}

// NewInvalidTokenResult builds a challenge indicating the token is invalid.
func NewInvalidTokenResult(realm string, description string) *AuthenticationChallenge {
	return &AuthenticationChallenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm=%q error="invalid_token", error_description=%q`, realm, description),
	}
}

// NewInsufficientScopeResult builds a challenge indicating missing required scope.
func NewInsufficientScopeResult(realm string) *AuthenticationChallenge {
	return &AuthenticationChallenge{
		Status:          http.StatusForbidden,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm=%q error="insufficient_scope"`, realm),
	}
}

// Apply writes the challenge headers and status to the response.
func (c *AuthenticationChallenge) Apply(w http.ResponseWriter) {
	if c.WWWAuthenticate != "" {
		w.Header().Set("WWW-Authenticate", c.WWWAuthenticate)
	}
	w.WriteHeader(c.Status)
}
