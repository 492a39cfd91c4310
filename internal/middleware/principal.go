package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcggEz/backend-gradalyze-capstone/internal/database"
)

type contextKey string

const (
	ContextRole   contextKey = "role"
	ContextClaims contextKey = "claims"
)

// Principal resolves the caller's role and claims for every request:
//
//   - no or unverifiable Authorization token -> anon with empty claims
//   - valid session JWT                      -> authenticated + its claims
//   - the configured service key             -> service_role
//
// Resolution never rejects the request; the policy layer decides what each
// principal may do.
type Principal struct {
	jwtSecret  []byte
	serviceKey string
}

func NewPrincipal(jwtSecret, serviceKey string) *Principal {
	return &Principal{jwtSecret: []byte(jwtSecret), serviceKey: serviceKey}
}

func (m *Principal) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, claims := m.resolve(r)

		ctx := r.Context()
		ctx = context.WithValue(ctx, ContextRole, role)
		ctx = context.WithValue(ctx, ContextClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Principal) resolve(r *http.Request) (string, database.JWTClaims) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return database.RoleAnon, database.JWTClaims{}
	}

	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth || token == "" {
		return database.RoleAnon, database.JWTClaims{}
	}

	if m.serviceKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(m.serviceKey)) == 1 {
		return database.RoleServiceRole, database.JWTClaims{"role": database.RoleServiceRole}
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return database.RoleAnon, database.JWTClaims{}
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return database.RoleAnon, database.JWTClaims{}
	}

	claims := database.JWTClaims(mapClaims)
	role := database.RoleAuthenticated
	if r, ok := mapClaims["role"].(string); ok && r != "" {
		role = r
	}
	return role, claims
}

// GetRole extracts the resolved principal role from the request context.
func GetRole(r *http.Request) string {
	v, _ := r.Context().Value(ContextRole).(string)
	if v == "" {
		return database.RoleAnon
	}
	return v
}

// GetClaims extracts the resolved claims from the request context.
func GetClaims(r *http.Request) database.JWTClaims {
	c, _ := r.Context().Value(ContextClaims).(database.JWTClaims)
	if c == nil {
		return database.JWTClaims{}
	}
	return c
}

// GetEmail extracts the verified email claim, or "" for anon callers.
func GetEmail(r *http.Request) string {
	email, _ := GetClaims(r)["email"].(string)
	return email
}
