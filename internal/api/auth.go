package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AaronLay10/AdventureEngine/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAuthor Role = "author"
	RoleSolver Role = "solver"
)

// SecretEnv names the HS256 signing secret. ADVENTURE_JWT_SECRET_FILE is
// honoured as well.
const SecretEnv = "ADVENTURE_JWT_SECRET"

// devUserHeader names the caller when authentication is disabled.
const devUserHeader = "X-User-ID"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// Claims are the bearer token claims. Subject is the user id.
type Claims struct {
	Roles []Role `json:"roles"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Roles   []Role
}

// Has reports whether the principal holds role.
func (p Principal) Has(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authenticator verifies HS256 bearer tokens. With no secret configured it
// lets every request through with all roles (dev-friendly).
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator returns an authenticator for secret. An empty secret
// disables authentication.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// AuthenticatorFromEnv resolves the signing secret from the environment.
func AuthenticatorFromEnv() (*Authenticator, error) {
	secret, err := config.ResolveSecret(SecretEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", SecretEnv, err)
	}
	return NewAuthenticator(secret), nil
}

// Enabled returns true if a signing secret is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Issue signs a token for subject. Used by adventurectl and tests.
func (a *Authenticator) Issue(subject string, roles []Role, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("authentication is disabled")
	}
	now := a.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate extracts the principal from the Authorization header, or the
// token query parameter for websocket upgrades.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	if !a.Enabled() {
		subject := r.Header.Get(devUserHeader)
		if subject == "" {
			subject = "anonymous"
		}
		return Principal{Subject: subject, Roles: []Role{RoleAuthor, RoleSolver}}, nil
	}

	raw := bearer(r)
	if raw == "" {
		return Principal{}, errMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: no subject", errInvalidToken)
	}
	return Principal{Subject: claims.Subject, Roles: claims.Roles}, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

type principalKey struct{}

// PrincipalFrom returns the principal stored by RequireRole.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// RequireRole returns middleware that admits callers holding one of roles.
func (a *Authenticator) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.Authenticate(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="Adventure Engine"`)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: "unauthorized"})
				return
			}
			for _, role := range roles {
				if p.Has(role) {
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
					return
				}
			}
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Code: "forbidden"})
		})
	}
}
