package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- mock identity lookup ---

type mockIdentities struct {
	users map[string]*Identity
}

func (m *mockIdentities) LookupIdentity(_ context.Context, id string) (*Identity, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func newTestIssuer(now time.Time) *TokenIssuer {
	i := NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)
	i.now = func() time.Time { return now }
	return i
}

// --- Role tests ---

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"ADMIN", RoleAdmin, false},
		{"member", RoleMember, false},
		{" Viewer ", RoleViewer, false},
		{"owner", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoleRankOrdering(t *testing.T) {
	if !(RoleViewer.Rank() < RoleMember.Rank() && RoleMember.Rank() < RoleAdmin.Rank()) {
		t.Fatal("expected VIEWER < MEMBER < ADMIN")
	}
	if Role("OWNER").Rank() != 0 {
		t.Error("unknown role should rank 0")
	}
}

func TestRoleIn(t *testing.T) {
	if !RoleViewer.In() {
		t.Error("empty allow-list should admit every role")
	}
	if RoleViewer.In(RoleAdmin, RoleMember) {
		t.Error("VIEWER should not be in [ADMIN MEMBER]")
	}
	if !RoleMember.In(RoleAdmin, RoleMember) {
		t.Error("MEMBER should be in [ADMIN MEMBER]")
	}
}

// --- Password tests ---

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected wrong password to fail")
	}
}

// --- Token tests ---

func TestIssueAndVerify(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(now)
	teams := []Membership{{TeamID: "team-1", Role: RoleAdmin}}

	pair, err := issuer.Issue("user-1", "a@example.com", teams)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := issuer.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if len(claims.Teams) != 1 || claims.Teams[0] != teams[0] {
		t.Errorf("teams = %+v, want %+v", claims.Teams, teams)
	}

	if _, err := issuer.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
}

func TestVerifyRejectsWrongType(t *testing.T) {
	issuer := newTestIssuer(time.Now())
	pair, _ := issuer.Issue("user-1", "a@example.com", nil)

	if _, err := issuer.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("refresh token accepted as access token: %v", err)
	}
	if _, err := issuer.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("access token accepted as refresh token: %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	issuer := newTestIssuer(issued)
	pair, _ := issuer.Issue("user-1", "a@example.com", nil)

	issuer.now = time.Now
	if _, err := issuer.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	pair, _ := NewTokenIssuer("one", time.Hour, time.Hour).Issue("user-1", "a@example.com", nil)
	if _, err := NewTokenIssuer("two", time.Hour, time.Hour).VerifyAccess(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

// --- Middleware tests ---

func TestMiddleware(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour, time.Hour)
	users := &mockIdentities{users: map[string]*Identity{
		"user-1": {ID: "user-1", Email: "a@example.com", Name: "Ada"},
	}}
	valid, _ := issuer.Issue("user-1", "a@example.com", []Membership{{TeamID: "t1", Role: RoleMember}})
	ghost, _ := issuer.Issue("user-404", "ghost@example.com", nil)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantReason string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing_token"},
		{"malformed header", "Token abc", http.StatusUnauthorized, "missing_token"},
		{"garbage token", "Bearer abc", http.StatusUnauthorized, "invalid_token"},
		{"unknown user", "Bearer " + ghost.AccessToken, http.StatusUnauthorized, "unknown_user"},
		{"valid", "Bearer " + valid.AccessToken, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reason string
			var got *Principal
			h := Middleware(issuer, users, func(r string) { reason = r })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
			if tt.wantStatus != http.StatusOK {
				var body map[string]any
				_ = json.NewDecoder(rec.Body).Decode(&body)
				if body["success"] != false {
					t.Errorf("expected success=false, got %v", body["success"])
				}
				return
			}
			if got == nil || got.ID != "user-1" || got.Name != "Ada" {
				t.Fatalf("unexpected principal %+v", got)
			}
			if len(got.Memberships) != 1 || got.Memberships[0].TeamID != "t1" {
				t.Errorf("unexpected memberships %+v", got.Memberships)
			}
		})
	}
}
