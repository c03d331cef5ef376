// Package auth verifies caller identity on the HTTP surface. Tokens are
// HS256 bearer JWTs minted by the account service; this service only
// validates them and extracts the user id.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"scamshield/pkg/apperr"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingToken = errors.New("missing bearer token")
)

// Claims are the token claims this service consumes.
type Claims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type ctxKeyUser struct{}

// Middleware authenticates requests and injects the caller's user id into
// the request context.
type Middleware struct {
	secret   []byte
	disabled bool
	expose   bool
}

// NewMiddleware builds the auth gate. When disabled (dev only), identity is
// taken from the X-User-ID header, defaulting to "dev".
func NewMiddleware(secret string, disabled, exposeErrors bool) *Middleware {
	return &Middleware{secret: []byte(secret), disabled: disabled, expose: exposeErrors}
}

// Wrap enforces authentication on next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.identify(r)
		if err != nil {
			apperr.WriteJSON(w, apperr.Unauthorized(err.Error()), m.expose)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (m *Middleware) identify(r *http.Request) (string, error) {
	if m.disabled {
		if id := r.Header.Get("X-User-ID"); id != "" {
			return id, nil
		}
		return "dev", nil
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMissingToken
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUser{}, userID)
}

// UserID extracts the authenticated user id, or "" when absent.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUser{}).(string); ok {
		return id
	}
	return ""
}
