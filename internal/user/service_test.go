package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
)

type fakeRepo struct {
	users       map[string]*User
	memberships map[string][]TeamMembership
	logins      []string
	updates     []Patch
	seq         int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[string]*User{}, memberships: map[string][]TeamMembership{}}
}

func (f *fakeRepo) Create(_ context.Context, email, hash, name string) (*User, error) {
	f.seq++
	u := &User{ID: fmt.Sprintf("user-%d", f.seq), Email: email, PasswordHash: hash, Name: name, Preferences: DefaultPreferences()}
	f.users[u.ID] = u
	c := *u
	return &c, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	c := *u
	return &c, nil
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (f *fakeRepo) Memberships(_ context.Context, userID string) ([]TeamMembership, error) {
	return append([]TeamMembership{}, f.memberships[userID]...), nil
}

func (f *fakeRepo) RecordLogin(_ context.Context, id string, at time.Time, ip string) error {
	u, ok := f.users[id]
	if !ok {
		return apperr.NotFound("User not found")
	}
	u.LastLoginAt = &at
	u.LastLoginIP = &ip
	f.logins = append(f.logins, id+"@"+ip)
	return nil
}

func (f *fakeRepo) Update(_ context.Context, id string, p Patch) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	f.updates = append(f.updates, p)
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Bio != nil {
		u.Bio = p.Bio
	}
	if p.Preferences != nil {
		u.Preferences = *p.Preferences
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	c := *u
	return &c, nil
}

func newTestService() (*Service, *fakeRepo, *auth.TokenIssuer) {
	repo := newFakeRepo()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)
	return NewService(repo, tokens), repo, tokens
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestRegister(t *testing.T) {
	svc, repo, tokens := newTestService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Email: "  Ada@Example.com ", Password: "secret1", Name: "Ada"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Email != "ada@example.com" {
		t.Errorf("email not normalized: %q", res.User.Email)
	}
	if res.User.Teams == nil || len(res.User.Teams) != 0 {
		t.Errorf("expected empty teams, got %v", res.User.Teams)
	}
	if repo.users[res.User.ID].PasswordHash == "secret1" {
		t.Error("password stored in plaintext")
	}
	claims, err := tokens.VerifyAccess(res.Token)
	if err != nil || claims.UserID != res.User.ID {
		t.Fatalf("access token invalid: %v", err)
	}
	if _, err := tokens.VerifyRefresh(res.RefreshToken); err != nil {
		t.Fatalf("refresh token invalid: %v", err)
	}

	_, err = svc.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "another", Name: "Ada 2"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService()
	for name, in := range map[string]RegisterInput{
		"bad email":      {Email: "nope", Password: "secret1", Name: "Ada"},
		"short password": {Email: "a@b.co", Password: "123", Name: "Ada"},
		"blank name":     {Email: "a@b.co", Password: "secret1", Name: "   "},
	} {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, apperr.ErrBadRequest) {
			t.Errorf("%s: expected bad request, got %v", name, err)
		}
	}
}

func TestLogin(t *testing.T) {
	svc, repo, tokens := newTestService()
	ctx := context.Background()
	reg, _ := svc.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "secret1", Name: "Ada"})
	repo.memberships[reg.User.ID] = []TeamMembership{{TeamID: "team-1", Role: auth.RoleAdmin, Team: &TeamRef{ID: "team-1", Name: "Core"}}}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{"valid", "ADA@example.com", "secret1", false},
		{"wrong password", "ada@example.com", "secret2", true},
		{"unknown email", "bob@example.com", "secret1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Login(ctx, LoginInput{Email: tt.email, Password: tt.password}, "10.0.0.1")
			if tt.wantErr {
				var ae *apperr.Error
				if !errors.As(err, &ae) || ae.Kind != apperr.KindUnauthorized || ae.Message != "Invalid email or password" {
					t.Fatalf("expected invalid credentials, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			claims, err := tokens.VerifyAccess(res.Token)
			if err != nil {
				t.Fatalf("VerifyAccess: %v", err)
			}
			if len(claims.Teams) != 1 || claims.Teams[0].Role != auth.RoleAdmin {
				t.Errorf("expected membership in token, got %v", claims.Teams)
			}
		})
	}

	if len(repo.logins) != 1 || repo.logins[0] != reg.User.ID+"@10.0.0.1" {
		t.Errorf("expected one recorded login, got %v", repo.logins)
	}
}

func TestRefresh(t *testing.T) {
	svc, repo, tokens := newTestService()
	ctx := context.Background()
	reg, _ := svc.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "secret1", Name: "Ada"})

	if _, err := svc.Refresh(ctx, RefreshInput{RefreshToken: reg.Token}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("access token must not refresh, got %v", err)
	}

	repo.memberships[reg.User.ID] = []TeamMembership{{TeamID: "team-9", Role: auth.RoleViewer}}
	res, err := svc.Refresh(ctx, RefreshInput{RefreshToken: reg.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, _ := tokens.VerifyAccess(res.Token)
	if claims == nil || len(claims.Teams) != 1 || claims.Teams[0].TeamID != "team-9" {
		t.Fatalf("refreshed token should carry current memberships, got %+v", claims)
	}

	delete(repo.users, reg.User.ID)
	if _, err := svc.Refresh(ctx, RefreshInput{RefreshToken: reg.RefreshToken}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for deleted user, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	reg, _ := svc.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "secret1", Name: "Ada"})
	id := reg.User.ID

	u, err := svc.UpdateProfile(ctx, id, UpdateProfileInput{Name: strPtr(" Ada L. "), Bio: strPtr("Engineer"), Theme: strPtr("dark"), WeeklyDigest: boolPtr(true)})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Name != "Ada L." || u.Bio == nil || *u.Bio != "Engineer" {
		t.Errorf("profile fields not applied: %+v", u)
	}
	if u.Theme != "dark" || !u.WeeklyDigest || u.Timezone != "UTC" {
		t.Errorf("preferences not merged: %+v", u.Preferences)
	}

	// No preference change leaves the JSON document alone.
	if _, err := svc.UpdateProfile(ctx, id, UpdateProfileInput{Theme: strPtr("dark")}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if last := repo.updates[len(repo.updates)-1]; last.Preferences != nil {
		t.Error("unchanged preferences should not be written")
	}

	if _, err := svc.UpdateProfile(ctx, id, UpdateProfileInput{Theme: strPtr("neon")}); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("expected bad request for unknown theme, got %v", err)
	}
}

func TestUpdateProfilePassword(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	reg, _ := svc.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "secret1", Name: "Ada"})
	id := reg.User.ID

	_, err := svc.UpdateProfile(ctx, id, UpdateProfileInput{Password: strPtr("newsecret")})
	if !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("expected bad request without current password, got %v", err)
	}
	_, err = svc.UpdateProfile(ctx, id, UpdateProfileInput{Password: strPtr("newsecret"), CurrentPassword: strPtr("wrong")})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for wrong current password, got %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, id, UpdateProfileInput{Password: strPtr("newsecret"), CurrentPassword: strPtr("secret1")}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	if _, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "secret1"}, ""); err == nil {
		t.Error("old password still accepted")
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "newsecret"}, ""); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestUpdateProfileUnknownUser(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.UpdateProfile(context.Background(), "ghost", UpdateProfileInput{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
