// Package auth provides pluggable authentication primitives for the
// operator/admin HTTP surface. It focuses on bearer token (JWT) verification
// for deployments that delegate authorization to an external OAuth 2.0 / OIDC
// authorization server. The USSD gateway callback itself is unauthenticated
// at this layer; gateways are expected to be allow-listed at the network edge.
//
// The public surface intentionally stays small: an Authenticator validates an
// incoming bearer token string and returns a UserInfo (or an error). The HTTP
// handler is responsible for extracting the token from the request and
// mapping sentinel errors into challenges.
//
// NewFromDiscovery constructs an Authenticator that validates JWT access
// tokens using OpenID Connect discovery to obtain the issuer's JWKS.
// NewStatic skips discovery and takes a JWKS URL directly. Validation knobs
// (required scopes, allowed algorithms, leeway) are configured via functional
// options.
//
// ErrUnauthorized signals the token is invalid (signature, expiry, audience).
// ErrInsufficientScope signals successful authentication but missing required
// scope(s).
package auth
