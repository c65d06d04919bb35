package access

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/go-chi/chi/v5"
)

// Kind names a resource type that belongs to a team.
type Kind string

const (
	KindTeam      Kind = "team"
	KindObjective Kind = "objective"
	KindKeyResult Kind = "key_result"
	KindUpdate    Kind = "update"
)

// OwnerLookup returns the id of the team that owns a resource. Missing
// resources are reported as an apperr NotFound.
type OwnerLookup interface {
	OwningTeamID(ctx context.Context, kind Kind, id string) (string, error)
}

// TeamResolver derives the owning team id from a request.
type TeamResolver func(r *http.Request) (string, error)

// TeamParam resolves the team id directly from a URL parameter.
func TeamParam(param string) TeamResolver {
	return func(r *http.Request) (string, error) {
		return strings.TrimSpace(chi.URLParam(r, param)), nil
	}
}

// OwnerOf resolves the owning team of the resource named by a URL parameter.
func OwnerOf(owners OwnerLookup, kind Kind, param string) TeamResolver {
	return func(r *http.Request) (string, error) {
		id := strings.TrimSpace(chi.URLParam(r, param))
		if id == "" {
			return "", nil
		}
		return owners.OwningTeamID(r.Context(), kind, id)
	}
}

// WithScope attaches a fresh Scope for the authenticated principal. It must
// run after authentication and before any Require.
func WithScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.PrincipalFromContext(r.Context())
		if p == nil || ScopeFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithScope(r.Context(), NewScope(p))))
	})
}

// Require returns middleware that resolves the owning team with resolve and
// admits members whose role is in allowed. The resolved membership is
// available downstream via MembershipFromContext.
func (r *Resolver) Require(resolve TeamResolver, allowed ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			scope := ScopeFromContext(ctx)
			if scope == nil {
				p := auth.PrincipalFromContext(ctx)
				if p == nil {
					writeError(w, req, apperr.Unauthorized("Authentication required"))
					return
				}
				scope = NewScope(p)
				ctx = ContextWithScope(ctx, scope)
			}

			teamID, err := resolve(req)
			if err != nil {
				writeError(w, req, err)
				return
			}

			m, err := r.Authorize(ctx, scope, teamID, allowed...)
			if err != nil {
				writeError(w, req, err)
				return
			}

			next.ServeHTTP(w, req.WithContext(ContextWithMembership(ctx, m)))
		})
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		status = e.Kind.Status()
		message = e.Message
	} else {
		slog.Error("access resolution failed", "path", r.URL.Path, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Message: message})
}
