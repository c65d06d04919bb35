package team

import (
	"time"

	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/user"
)

// Team groups users who share objectives.
type Team struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	ObjectiveCount int       `json:"objectiveCount"`
	Members        []*Member `json:"memberships"`
}

// MemberUser is the public projection of a member's account.
type MemberUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Member is a user's role in a team.
type Member struct {
	TeamID    string      `json:"teamId"`
	UserID    string      `json:"userId"`
	Role      auth.Role   `json:"role"`
	User      *MemberUser `json:"user"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Invitation offers membership to an e-mail address without an account.
// Only the hash of the token is persisted.
type Invitation struct {
	ID          string     `json:"id"`
	TeamID      string     `json:"teamId"`
	TeamName    string     `json:"teamName"`
	Email       string     `json:"email"`
	Role        auth.Role  `json:"role"`
	TokenHash   string     `json:"-"`
	InvitedByID string     `json:"invitedById"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	AcceptedAt  *time.Time `json:"acceptedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// CreateTeamInput is the request body for creating a team.
type CreateTeamInput struct {
	Name        string  `json:"name" validate:"notblank,min=2,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// UpdateTeamInput is the request body for editing a team.
type UpdateTeamInput struct {
	Name        *string `json:"name" validate:"omitnil,notblank,min=2,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// AddMemberInput adds an existing user by id or e-mail. An unknown e-mail
// results in an invitation.
type AddMemberInput struct {
	UserID *string `json:"userId" validate:"omitnil,notblank"`
	Email  *string `json:"email" validate:"omitnil,email"`
	Role   string  `json:"role" validate:"required,oneof=ADMIN MEMBER VIEWER"`
}

// ChangeRoleInput is the request body for changing a member's role.
type ChangeRoleInput struct {
	Role string `json:"role" validate:"required,oneof=ADMIN MEMBER VIEWER"`
}

// AcceptInvitationInput is the public request body for accepting an
// invitation. Password is used only when the account does not exist yet.
type AcceptInvitationInput struct {
	Token    string `json:"token" validate:"required"`
	Name     string `json:"name" validate:"notblank,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// AddMemberResult reports whether AddMember created a membership or an
// invitation. Data holds a *Member or an *Invitation accordingly.
type AddMemberResult struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	ResultMembership = "membership"
	ResultInvitation = "invitation"
)

// AcceptResult is returned when an invitation is accepted.
type AcceptResult struct {
	*user.AuthResult
	Membership *Member `json:"membership"`
}

// Patch is the storage-level partial update of a team.
type Patch struct {
	Name        *string
	Description *string
}
