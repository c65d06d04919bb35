package user

import (
	"time"

	"github.com/alecgard/okrtracker/internal/auth"
)

// TeamRef names the team behind a membership.
type TeamRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TeamMembership represents a user's membership in a team with a role.
type TeamMembership struct {
	TeamID string    `json:"teamId"`
	Role   auth.Role `json:"role"`
	Team   *TeamRef  `json:"team"`
}

// Preferences are display and notification settings, stored as one JSONB
// document.
type Preferences struct {
	Timezone           string `json:"timezone"`
	Language           string `json:"language"`
	DateFormat         string `json:"dateFormat"`
	Theme              string `json:"theme"`
	EmailNotifications bool   `json:"emailNotifications"`
	ObjectiveUpdates   bool   `json:"objectiveUpdates"`
	TeamInvites        bool   `json:"teamInvites"`
	KRMilestones       bool   `json:"krMilestones"`
	WeeklyDigest       bool   `json:"weeklyDigest"`
}

// DefaultPreferences returns the settings of a newly registered user.
func DefaultPreferences() Preferences {
	return Preferences{
		Timezone:           "UTC",
		Language:           "en",
		DateFormat:         "YYYY-MM-DD",
		Theme:              "system",
		EmailNotifications: true,
		ObjectiveUpdates:   true,
		TeamInvites:        true,
		KRMilestones:       true,
	}
}

// User represents a registered user account. Preferences are flattened into
// the JSON representation.
type User struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	Name         string  `json:"name"`
	Bio          *string `json:"bio"`
	Avatar       *string `json:"avatar"`
	JobTitle     *string `json:"jobTitle"`
	Department   *string `json:"department"`
	Phone        *string `json:"phone"`
	Preferences
	LastLoginAt *time.Time       `json:"lastLoginAt"`
	LastLoginIP *string          `json:"lastLoginIp"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Teams       []TeamMembership `json:"teams"`
}

// Memberships returns the team roles carried in access tokens.
func (u *User) Memberships() []auth.Membership {
	out := make([]auth.Membership, len(u.Teams))
	for i, tm := range u.Teams {
		out[i] = auth.Membership{TeamID: tm.TeamID, Role: tm.Role}
	}
	return out
}

// RegisterInput is the request body for creating an account.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"notblank,min=2,max=100"`
}

// LoginInput is the request body for signing in.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshInput is the request body for exchanging a refresh token.
type RefreshInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// UpdateProfileInput holds optional profile, preference and password
// changes. Changing the password requires CurrentPassword.
type UpdateProfileInput struct {
	Name       *string `json:"name" validate:"omitnil,notblank,min=2,max=100"`
	Bio        *string `json:"bio" validate:"omitempty,max=500"`
	Avatar     *string `json:"avatar" validate:"omitempty,url,max=500"`
	JobTitle   *string `json:"jobTitle" validate:"omitempty,max=100"`
	Department *string `json:"department" validate:"omitempty,max=100"`
	Phone      *string `json:"phone" validate:"omitempty,max=30"`

	Timezone   *string `json:"timezone" validate:"omitempty,max=64"`
	Language   *string `json:"language" validate:"omitempty,max=10"`
	DateFormat *string `json:"dateFormat" validate:"omitempty,max=20"`
	Theme      *string `json:"theme" validate:"omitempty,oneof=light dark system"`

	EmailNotifications *bool `json:"emailNotifications"`
	ObjectiveUpdates   *bool `json:"objectiveUpdates"`
	TeamInvites        *bool `json:"teamInvites"`
	KRMilestones       *bool `json:"krMilestones"`
	WeeklyDigest       *bool `json:"weeklyDigest"`

	Password        *string `json:"password" validate:"omitempty,min=6,max=72"`
	CurrentPassword *string `json:"currentPassword"`
}

// Patch is the storage-level partial update of a user.
type Patch struct {
	Name         *string
	Bio          *string
	Avatar       *string
	JobTitle     *string
	Department   *string
	Phone        *string
	Preferences  *Preferences
	PasswordHash *string
}

// AuthResult is returned by register, login and refresh.
type AuthResult struct {
	User         *User  `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}
