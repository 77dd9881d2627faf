package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/raysh454/scanhub/internal/logging"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	headerOwner = "X-Owner-ID"
	headerRole  = "X-Role"
)

var errUnauthorized = errors.New("missing or invalid credentials")

// Identity is the authenticated caller.
type Identity struct {
	OwnerID string
	Role    string
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

type identityKey struct{}

// IdentityFrom returns the caller attached by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for ownerID. It is used by the CLI and tests.
func IssueToken(secret, ownerID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, raw string) (Identity, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, errUnauthorized
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{OwnerID: claims.Subject, Role: role}, nil
}

// authenticate resolves the caller from a bearer token, or from trusted
// headers when no secret is configured.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			id  Identity
			err error
		)
		if s.cfg.JWTSecret != "" {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				err = errUnauthorized
			} else {
				id, err = parseToken(s.cfg.JWTSecret, strings.TrimSpace(raw))
			}
		} else {
			id = Identity{OwnerID: strings.TrimSpace(r.Header.Get(headerOwner)), Role: r.Header.Get(headerRole)}
			if id.OwnerID == "" {
				err = errUnauthorized
			}
			if id.Role == "" {
				id.Role = RoleUser
			}
		}
		if err != nil {
			s.logger.Warn("rejecting unauthenticated request", logging.Err(err))
			writeError(w, r, http.StatusUnauthorized, errUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := IdentityFrom(r.Context()); !id.IsAdmin() {
			writeError(w, r, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
