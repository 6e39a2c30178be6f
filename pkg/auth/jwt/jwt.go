// Package jwt provides a JWT authenticator that validates HS256 bearer
// tokens signed with a shared secret.
//
// It supports configurable issuer validation and custom claim extraction
// for subject and scopes.
package jwt

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/parley-llm/parley/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Secret is the HS256 shared signing secret. Required.
	Secret string

	// Issuer is the expected JWT issuer (iss claim). If empty, issuer is
	// not validated.
	Issuer string

	// UserClaim is the JWT claim used as the identity subject. Default: "sub".
	UserClaim string

	// ScopesClaim is the JWT claim used for authorization scopes. Default:
	// "scope". The value can be a space-separated string or a JSON array.
	ScopesClaim string
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
}

// Authenticator validates HS256 JWT bearer tokens.
type Authenticator struct {
	config Config
}

// New creates a JWT authenticator with the given configuration.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	return &Authenticator{config: cfg}
}

// Authenticate extracts a bearer token from the Authorization header,
// validates it as a JWT, and returns an identity on success.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: bearer token present but invalid (expired, wrong issuer, bad signature, etc.)
//   - Yes: valid JWT with populated Identity
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	// Must be Bearer token.
	if !strings.HasPrefix(header, "Bearer ") {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("empty bearer token"),
		}
	}

	// Heuristic: API keys are also sent as bearer tokens. Only claim
	// tokens that look like a JWT (three dot-separated segments) so the
	// chain can fall through to the API key authenticator.
	if strings.Count(tokenStr, ".") != 2 {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(tokenStr, claims, func(token *jwtlib.Token) (interface{}, error) {
		return []byte(a.config.Secret), nil
	}, opts...)
	if err != nil {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("invalid token: %w", err),
		}
	}

	identity, err := a.extractIdentity(claims)
	if err != nil {
		return auth.AuthResult{Decision: auth.No, Err: err}
	}

	return auth.AuthResult{Decision: auth.Yes, Identity: identity}
}

// extractIdentity builds an Identity from validated claims.
func (a *Authenticator) extractIdentity(claims jwtlib.MapClaims) (*auth.Identity, error) {
	subject, ok := claims[a.config.UserClaim].(string)
	if !ok || subject == "" {
		return nil, fmt.Errorf("token missing %q claim", a.config.UserClaim)
	}

	return &auth.Identity{
		Subject: subject,
		Scopes:  extractScopes(claims[a.config.ScopesClaim]),
	}, nil
}

// extractScopes normalizes the scopes claim, which may be a
// space-separated string or a JSON array of strings.
func extractScopes(v any) []string {
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}
		return strings.Fields(s)
	case []any:
		var scopes []string
		for _, item := range s {
			if str, ok := item.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	}
	return nil
}
