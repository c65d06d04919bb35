package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/go-chi/chi/v5"
)

// fakeLookup counts calls so tests can assert cache hits.
type fakeLookup struct {
	rows  map[string]auth.Role // key: userID + "/" + teamID
	err   error
	calls int
}

func (f *fakeLookup) FindMembership(_ context.Context, userID, teamID string) (*auth.Membership, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	role, ok := f.rows[userID+"/"+teamID]
	if !ok {
		return nil, nil
	}
	return &auth.Membership{TeamID: teamID, Role: role}, nil
}

type fakeOwners map[string]string

func (f fakeOwners) OwningTeamID(_ context.Context, kind Kind, id string) (string, error) {
	team, ok := f[string(kind)+"/"+id]
	if !ok {
		return "", apperr.NotFound("Objective not found")
	}
	return team, nil
}

func principal(memberships ...auth.Membership) *auth.Principal {
	return &auth.Principal{ID: "u1", Email: "u1@example.com", Memberships: memberships}
}

func TestAuthorize_EmptyTeamIsBadRequest(t *testing.T) {
	r := NewResolver(&fakeLookup{}, nil)
	_, err := r.Authorize(context.Background(), NewScope(principal()), "")
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestAuthorize_CachedMembershipSkipsLookup(t *testing.T) {
	lookup := &fakeLookup{}
	r := NewResolver(lookup, nil)
	scope := NewScope(principal(auth.Membership{TeamID: "t1", Role: auth.RoleAdmin}))

	m, err := r.Authorize(context.Background(), scope, "t1", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if m.Role != auth.RoleAdmin {
		t.Errorf("role = %s, want ADMIN", m.Role)
	}
	if lookup.calls != 0 {
		t.Errorf("expected no lookups, got %d", lookup.calls)
	}
}

func TestAuthorize_NoMembershipIsForbidden(t *testing.T) {
	lookup := &fakeLookup{rows: map[string]auth.Role{}}
	r := NewResolver(lookup, nil)

	_, err := r.Authorize(context.Background(), NewScope(principal()), "t1")
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAuthorize_LookupResultIsCachedOnScope(t *testing.T) {
	lookup := &fakeLookup{rows: map[string]auth.Role{"u1/t2": auth.RoleMember}}
	r := NewResolver(lookup, nil)
	p := principal(auth.Membership{TeamID: "t1", Role: auth.RoleViewer})
	scope := NewScope(p)

	for i := 0; i < 2; i++ {
		if _, err := r.Authorize(context.Background(), scope, "t2", auth.RoleAdmin, auth.RoleMember); err != nil {
			t.Fatalf("Authorize #%d: %v", i+1, err)
		}
	}

	if lookup.calls != 1 {
		t.Errorf("expected exactly one lookup, got %d", lookup.calls)
	}
	if len(scope.Memberships()) != 2 {
		t.Errorf("expected 2 memberships on scope, got %v", scope.Memberships())
	}
	if len(p.Memberships) != 1 {
		t.Errorf("principal was mutated: %v", p.Memberships)
	}
}

func TestAuthorize_RoleNotAllowed(t *testing.T) {
	lookup := &fakeLookup{}
	var reasons []string
	r := NewResolver(lookup, func(reason string) { reasons = append(reasons, reason) })
	scope := NewScope(principal(auth.Membership{TeamID: "t1", Role: auth.RoleViewer}))

	_, err := r.Authorize(context.Background(), scope, "t1", auth.RoleAdmin, auth.RoleMember)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(reasons) != 1 || reasons[0] != "role" {
		t.Errorf("deny reasons = %v", reasons)
	}
}

func TestAuthorize_LookupFailureIsInternal(t *testing.T) {
	r := NewResolver(&fakeLookup{err: errors.New("connection refused")}, nil)
	_, err := r.Authorize(context.Background(), NewScope(principal()), "t1")
	if err == nil || apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestRequire(t *testing.T) {
	lookup := &fakeLookup{rows: map[string]auth.Role{"u1/t1": auth.RoleMember}}
	owners := fakeOwners{"objective/o1": "t1", "objective/o2": "t2"}
	resolver := NewResolver(lookup, nil)

	var got auth.Membership
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal())))
		})
	})
	router.Use(WithScope)
	router.With(resolver.Require(OwnerOf(owners, KindObjective, "id"), auth.RoleAdmin, auth.RoleMember)).
		Get("/objectives/{id}", func(w http.ResponseWriter, r *http.Request) {
			got, _ = MembershipFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"member of owning team", "/objectives/o1", http.StatusOK},
		{"not a member", "/objectives/o2", http.StatusForbidden},
		{"missing resource", "/objectives/o3", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	if got.TeamID != "t1" || got.Role != auth.RoleMember {
		t.Errorf("downstream membership = %+v", got)
	}
}

func TestRequire_WithoutPrincipal(t *testing.T) {
	resolver := NewResolver(&fakeLookup{}, nil)
	h := resolver.Require(TeamParam("teamId"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
