package team

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/crypto"
	"github.com/alecgard/okrtracker/internal/mail"
	"github.com/alecgard/okrtracker/internal/user"
	"github.com/alecgard/okrtracker/internal/validation"
)

// Repository is the persistence used by Service. *Store implements it.
type Repository interface {
	CreateTeam(ctx context.Context, name string, description *string, creatorID string) (*Team, error)
	GetTeam(ctx context.Context, id string) (*Team, error)
	ListTeams(ctx context.Context, userID string) ([]*Team, error)
	UpdateTeam(ctx context.Context, id string, p Patch) (*Team, error)
	DeleteTeam(ctx context.Context, id string) error

	FindMembership(ctx context.Context, userID, teamID string) (*auth.Membership, error)
	GetMember(ctx context.Context, teamID, userID string) (*Member, error)
	AddMember(ctx context.Context, teamID, userID string, role auth.Role) (*Member, error)
	EnsureMember(ctx context.Context, teamID, userID string, role auth.Role) (*Member, error)
	SetMemberRole(ctx context.Context, teamID, userID string, role auth.Role) (*Member, error)
	RemoveMember(ctx context.Context, teamID, userID string) error
	CountAdmins(ctx context.Context, teamID string) (int, error)

	UpsertInvitation(ctx context.Context, inv *Invitation) (*Invitation, error)
	InvitationByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error)
	MarkInvitationAccepted(ctx context.Context, id string, at time.Time) error

	Accounts() Accounts
	InTx(ctx context.Context, fn func(Repository) error) error
}

// Accounts is the subset of the user store needed to add members and accept
// invitations. *user.Store implements it.
type Accounts interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	Create(ctx context.Context, email, passwordHash, name string) (*user.User, error)
	Update(ctx context.Context, id string, p user.Patch) (*user.User, error)
}

// Sessions issues tokens for a user. *user.Service implements it.
type Sessions interface {
	Session(ctx context.Context, userID string) (*user.AuthResult, error)
}

// Options configures invitation handling.
type Options struct {
	InvitationTTL time.Duration
	AcceptURL     string
}

// Service implements team management, membership changes and invitations.
type Service struct {
	repo     Repository
	sessions Sessions
	mailer   mail.Sender
	opts     Options
	now      func() time.Time
}

// NewService creates a team Service.
func NewService(repo Repository, sessions Sessions, mailer mail.Sender, opts Options) *Service {
	if opts.InvitationTTL <= 0 {
		opts.InvitationTTL = 72 * time.Hour
	}
	return &Service{repo: repo, sessions: sessions, mailer: mailer, opts: opts, now: time.Now}
}

// --- Teams ---

// Create creates a team with the caller as its first ADMIN.
func (s *Service) Create(ctx context.Context, creatorID string, in CreateTeamInput) (*Team, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var t *Team
	err := s.repo.InTx(ctx, func(repo Repository) error {
		var err error
		t, err = repo.CreateTeam(ctx, strings.TrimSpace(in.Name), trimmed(in.Description), creatorID)
		return err
	})
	return t, err
}

// List returns the caller's teams, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*Team, error) {
	return s.repo.ListTeams(ctx, userID)
}

// Get returns a team with its members. Callers check membership first.
func (s *Service) Get(ctx context.Context, id string) (*Team, error) {
	return s.repo.GetTeam(ctx, id)
}

// Update edits a team's name or description.
func (s *Service) Update(ctx context.Context, id string, in UpdateTeamInput) (*Team, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	p := Patch{Description: trimmed(in.Description)}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		p.Name = &name
	}
	return s.repo.UpdateTeam(ctx, id, p)
}

// Delete removes a team and everything it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteTeam(ctx, id)
}

// --- Members ---

// AddMember adds an existing user to the team, or invites the e-mail
// address when no account exists.
func (s *Service) AddMember(ctx context.Context, teamID, invitedByID string, in AddMemberInput) (*AddMemberResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	role := auth.Role(in.Role)

	var userID string
	switch {
	case in.UserID != nil:
		u, err := s.repo.Accounts().GetByID(ctx, strings.TrimSpace(*in.UserID))
		if err != nil {
			return nil, err
		}
		userID = u.ID
	case in.Email != nil:
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		u, err := s.repo.Accounts().GetByEmail(ctx, email)
		if errors.Is(err, apperr.ErrNotFound) {
			inv, err := s.invite(ctx, teamID, email, role, invitedByID)
			if err != nil {
				return nil, err
			}
			return &AddMemberResult{Type: ResultInvitation, Data: inv}, nil
		}
		if err != nil {
			return nil, err
		}
		userID = u.ID
	default:
		return nil, apperr.Invalid("Either userId or email is required",
			apperr.FieldError{Field: "userId", Message: "userId or email is required"})
	}

	m, err := s.repo.AddMember(ctx, teamID, userID, role)
	if err != nil {
		return nil, err
	}
	return &AddMemberResult{Type: ResultMembership, Data: m}, nil
}

// ChangeRole sets a member's role. The last ADMIN cannot be demoted.
func (s *Service) ChangeRole(ctx context.Context, teamID, userID string, in ChangeRoleInput) (*Member, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	role := auth.Role(in.Role)

	var m *Member
	err := s.repo.InTx(ctx, func(repo Repository) error {
		current, err := repo.GetMember(ctx, teamID, userID)
		if err != nil {
			return err
		}
		if current.Role == auth.RoleAdmin && role != auth.RoleAdmin {
			if err := guardLastAdmin(ctx, repo, teamID, "The last admin of a team cannot be demoted"); err != nil {
				return err
			}
		}
		m, err = repo.SetMemberRole(ctx, teamID, userID, role)
		return err
	})
	return m, err
}

// RemoveMember removes a member. The last ADMIN cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, teamID, userID string) error {
	return s.repo.InTx(ctx, func(repo Repository) error {
		current, err := repo.GetMember(ctx, teamID, userID)
		if err != nil {
			return err
		}
		if current.Role == auth.RoleAdmin {
			if err := guardLastAdmin(ctx, repo, teamID, "The last admin of a team cannot be removed"); err != nil {
				return err
			}
		}
		return repo.RemoveMember(ctx, teamID, userID)
	})
}

func guardLastAdmin(ctx context.Context, repo Repository, teamID, msg string) error {
	n, err := repo.CountAdmins(ctx, teamID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.Conflict(msg)
	}
	return nil
}

// --- Invitations ---

func (s *Service) invite(ctx context.Context, teamID, email string, role auth.Role, invitedByID string) (*Invitation, error) {
	token, err := crypto.NewToken()
	if err != nil {
		return nil, err
	}
	inv, err := s.repo.UpsertInvitation(ctx, &Invitation{
		TeamID:      teamID,
		Email:       email,
		Role:        role,
		TokenHash:   crypto.HashToken(token),
		InvitedByID: invitedByID,
		ExpiresAt:   s.now().UTC().Add(s.opts.InvitationTTL),
	})
	if err != nil {
		return nil, err
	}

	msg, err := invitationMessage(inv, s.acceptLink(token))
	if err != nil {
		return nil, err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		// The invitation stays valid; it can be re-sent by inviting again.
		slog.Error("sending invitation email failed", "team_id", teamID, "email", email, "error", err)
	}
	return inv, nil
}

func (s *Service) acceptLink(token string) string {
	sep := "?"
	if strings.Contains(s.opts.AcceptURL, "?") {
		sep = "&"
	}
	return s.opts.AcceptURL + sep + "token=" + token
}

// AcceptInvitation consumes an invitation token. The account is created
// when the e-mail is unknown; the membership is added unless it already
// exists. Tokens for the joined account are returned.
func (s *Service) AcceptInvitation(ctx context.Context, in AcceptInvitationInput) (*AcceptResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var userID string
	var member *Member
	err := s.repo.InTx(ctx, func(repo Repository) error {
		inv, err := repo.InvitationByTokenHash(ctx, crypto.HashToken(strings.TrimSpace(in.Token)))
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if inv.AcceptedAt != nil {
			return apperr.Conflict("Invitation already accepted")
		}
		if inv.ExpiresAt.Before(now) {
			return apperr.Gone("Invitation has expired")
		}

		name := strings.TrimSpace(in.Name)
		accounts := repo.Accounts()
		u, err := accounts.GetByEmail(ctx, inv.Email)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			hash, herr := auth.HashPassword(in.Password)
			if herr != nil {
				return herr
			}
			if u, err = accounts.Create(ctx, inv.Email, hash, name); err != nil {
				return err
			}
		case err != nil:
			return err
		case name != "" && name != u.Name:
			if u, err = accounts.Update(ctx, u.ID, user.Patch{Name: &name}); err != nil {
				return err
			}
		}
		userID = u.ID

		if member, err = repo.EnsureMember(ctx, inv.TeamID, u.ID, inv.Role); err != nil {
			return err
		}
		return repo.MarkInvitationAccepted(ctx, inv.ID, now)
	})
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AcceptResult{AuthResult: session, Membership: member}, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
