package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey int

const principalContextKey contextKey = iota

// ContextWithPrincipal returns a new context carrying the given principal.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the principal from the context, or nil if not present.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// Middleware authenticates requests carrying a bearer access token. The
// user must still exist; memberships are taken from the token. onFailure,
// if set, is invoked with a short reason for every rejected request.
func Middleware(issuer *TokenIssuer, users IdentityLookup, onFailure func(reason string)) func(http.Handler) http.Handler {
	fail := func(w http.ResponseWriter, reason, message string) {
		if onFailure != nil {
			onFailure(reason)
		}
		writeUnauthorized(w, message)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				fail(w, "missing_token", "No token provided")
				return
			}

			claims, err := issuer.VerifyAccess(token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					fail(w, "expired_token", "Token expired")
					return
				}
				fail(w, "invalid_token", "Invalid token")
				return
			}

			ident, err := users.LookupIdentity(r.Context(), claims.UserID)
			if err != nil || ident == nil {
				fail(w, "unknown_user", "User not found")
				return
			}

			p := &Principal{
				ID:          ident.ID,
				Email:       ident.Email,
				Name:        ident.Name,
				Memberships: append([]Membership(nil), claims.Teams...),
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{Message: message})
}
