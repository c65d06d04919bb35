package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/validation"
)

// Repository is the persistence used by Service. *Store implements it.
type Repository interface {
	Create(ctx context.Context, email, passwordHash, name string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Memberships(ctx context.Context, userID string) ([]TeamMembership, error)
	RecordLogin(ctx context.Context, id string, at time.Time, ip string) error
	Update(ctx context.Context, id string, p Patch) (*User, error)
}

var errInvalidCredentials = apperr.Unauthorized("Invalid email or password")

// Service implements registration, login, token refresh and profile
// management.
type Service struct {
	repo   Repository
	tokens *auth.TokenIssuer
	now    func() time.Time
}

// NewService creates a user Service.
func NewService(repo Repository, tokens *auth.TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens, now: time.Now}
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, apperr.Conflict("User with this email already exists")
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.Create(ctx, in.Email, hash, strings.TrimSpace(in.Name))
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict("User with this email already exists")
		}
		return nil, err
	}
	return s.Session(ctx, u.ID)
}

// Login verifies credentials, records the login and issues tokens. Unknown
// emails and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, in LoginInput, ip string) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, in.Password) {
		return nil, errInvalidCredentials
	}

	if err := s.repo.RecordLogin(ctx, u.ID, s.now().UTC(), ip); err != nil {
		return nil, err
	}
	return s.Session(ctx, u.ID)
}

// Refresh exchanges a refresh token for a new token pair carrying the
// user's current memberships.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (*AuthResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	claims, err := s.tokens.VerifyRefresh(in.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperr.Unauthorized("Refresh token expired")
		}
		return nil, apperr.Unauthorized("Invalid refresh token")
	}
	res, err := s.Session(ctx, claims.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("User not found")
	}
	return res, err
}

// Session loads the user with memberships and issues a fresh token pair.
func (s *Service) Session(ctx context.Context, userID string) (*AuthResult, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(u.ID, u.Email, u.Memberships())
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Profile returns the user with their team memberships.
func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Teams, err = s.repo.Memberships(ctx, userID); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateProfile applies profile, preference and password changes.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := Patch{
		Bio:        in.Bio,
		Avatar:     in.Avatar,
		JobTitle:   in.JobTitle,
		Department: in.Department,
		Phone:      in.Phone,
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		p.Name = &name
	}
	if prefs, changed := mergePreferences(u.Preferences, in); changed {
		p.Preferences = &prefs
	}

	if in.Password != nil && *in.Password != "" {
		if in.CurrentPassword == nil || *in.CurrentPassword == "" {
			return nil, apperr.BadRequest("Current password is required")
		}
		if !auth.CheckPassword(u.PasswordHash, *in.CurrentPassword) {
			return nil, apperr.Unauthorized("Current password is incorrect")
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		p.PasswordHash = &hash
	}

	if _, err := s.repo.Update(ctx, userID, p); err != nil {
		return nil, err
	}
	return s.Profile(ctx, userID)
}

func mergePreferences(prefs Preferences, in UpdateProfileInput) (Preferences, bool) {
	orig := prefs
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&prefs.Timezone, in.Timezone)
	setString(&prefs.Language, in.Language)
	setString(&prefs.DateFormat, in.DateFormat)
	setString(&prefs.Theme, in.Theme)
	setBool(&prefs.EmailNotifications, in.EmailNotifications)
	setBool(&prefs.ObjectiveUpdates, in.ObjectiveUpdates)
	setBool(&prefs.TeamInvites, in.TeamInvites)
	setBool(&prefs.KRMilestones, in.KRMilestones)
	setBool(&prefs.WeeklyDigest, in.WeeklyDigest)
	return prefs, prefs != orig
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
