package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"eventmaster-auth/internal/model"
	"eventmaster-auth/internal/security"
	"eventmaster-auth/pkg/apierror"
)

const (
	PolicyAdminArea = "AdminArea"
	RoleAdmin       = "Admin"
)

type tokenValidator interface {
	ParseAccessToken(raw string) (security.ClaimSet, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

// AuthMiddleware is the authorization gate. It trusts the signed access
// token alone and never reads the credential store.
type AuthMiddleware struct {
	validator tokenValidator
	policies  map[string][]string
}

func NewAuthMiddleware(validator tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		policies: map[string][]string{
			PolicyAdminArea: {RoleAdmin},
		},
	}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
			writeAPIError(w, apierror.Unauthorized("missing or invalid authorization header"))
			return
		}

		claims, err := m.validator.ParseAccessToken(strings.TrimSpace(header[7:]))
		if err != nil {
			message := "invalid token"
			if errors.Is(err, model.ErrTokenExpired) {
				message = "token expired"
			}
			writeAPIError(w, apierror.Unauthorized(message))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequirePolicy gates on a named policy. Unknown names are a wiring bug and
// panic when the route table is built.
func (m *AuthMiddleware) RequirePolicy(name string) func(http.Handler) http.Handler {
	roles, ok := m.policies[name]
	if !ok {
		panic(fmt.Sprintf("unknown authorization policy %q", name))
	}
	return m.RequireRoles(roles...)
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeAPIError(w, apierror.Unauthorized("authentication required"))
				return
			}

			if !claims.HasAnyRole(allowedRoles...) {
				writeAPIError(w, apierror.Forbidden("insufficient permissions"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelfOrRoles lets the request through when the URL parameter names
// the caller, or the caller holds one of roles.
func (m *AuthMiddleware) RequireSelfOrRoles(param string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeAPIError(w, apierror.Unauthorized("authentication required"))
				return
			}

			target := strings.TrimSpace(chi.URLParam(r, param))
			if !strings.EqualFold(target, claims.Subject) && !claims.HasAnyRole(roles...) {
				writeAPIError(w, apierror.Forbidden("insufficient permissions"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, claims security.ClaimSet) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

func ClaimsFromContext(ctx context.Context) (security.ClaimSet, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(security.ClaimSet)
	return claims, ok
}
