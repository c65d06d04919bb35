package api

import (
	"context"

	"github.com/alecgard/okrtracker/internal/activity"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/okr"
	"github.com/alecgard/okrtracker/internal/team"
	"github.com/alecgard/okrtracker/internal/user"
)

// AccountService is implemented by *user.Service.
type AccountService interface {
	Register(ctx context.Context, in user.RegisterInput) (*user.AuthResult, error)
	Login(ctx context.Context, in user.LoginInput, ip string) (*user.AuthResult, error)
	Refresh(ctx context.Context, in user.RefreshInput) (*user.AuthResult, error)
	Profile(ctx context.Context, userID string) (*user.User, error)
	UpdateProfile(ctx context.Context, userID string, in user.UpdateProfileInput) (*user.User, error)
}

// TeamService is implemented by *team.Service.
type TeamService interface {
	Create(ctx context.Context, creatorID string, in team.CreateTeamInput) (*team.Team, error)
	List(ctx context.Context, userID string) ([]*team.Team, error)
	Get(ctx context.Context, id string) (*team.Team, error)
	Update(ctx context.Context, id string, in team.UpdateTeamInput) (*team.Team, error)
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, teamID, invitedByID string, in team.AddMemberInput) (*team.AddMemberResult, error)
	ChangeRole(ctx context.Context, teamID, userID string, in team.ChangeRoleInput) (*team.Member, error)
	RemoveMember(ctx context.Context, teamID, userID string) error
	AcceptInvitation(ctx context.Context, in team.AcceptInvitationInput) (*team.AcceptResult, error)
}

// OKRService is implemented by *okr.Service.
type OKRService interface {
	CreateObjective(ctx context.Context, ownerID string, role auth.Role, in okr.CreateObjectiveInput) (*okr.Objective, error)
	ListObjectives(ctx context.Context, f okr.ObjectiveFilter) ([]*okr.Objective, error)
	GetObjective(ctx context.Context, id string) (*okr.Objective, error)
	UpdateObjective(ctx context.Context, id string, in okr.UpdateObjectiveInput) (*okr.Objective, error)
	DeleteObjective(ctx context.Context, id string) error

	CreateKeyResult(ctx context.Context, objectiveID string, in okr.CreateKeyResultInput) (*okr.KeyResult, error)
	ListKeyResults(ctx context.Context, objectiveID string) ([]*okr.KeyResult, error)
	GetKeyResult(ctx context.Context, id string) (*okr.KeyResult, error)
	UpdateKeyResult(ctx context.Context, id, authorID string, in okr.UpdateKeyResultInput) (*okr.KeyResult, error)
	DeleteKeyResult(ctx context.Context, id string) error

	CreateUpdate(ctx context.Context, userID string, in okr.CreateUpdateInput) (*okr.Update, error)
	ListUpdates(ctx context.Context, objectiveID string) ([]*okr.Update, error)
	GetUpdate(ctx context.Context, id string) (*okr.Update, error)
	EditUpdate(ctx context.Context, id string, in okr.EditUpdateInput) (*okr.Update, error)
	DeleteUpdate(ctx context.Context, id string) error
	Digest(ctx context.Context, objectiveID string) (*okr.Objective, []*okr.Update, error)
}

// SummaryService is implemented by *summary.Service.
type SummaryService interface {
	Generate(ctx context.Context, o *okr.Objective, updates []*okr.Update) string
}

// ActivityLog is implemented by *activity.Store.
type ActivityLog interface {
	List(ctx context.Context, q activity.Query) (*activity.Page, error)
}

// ActivityRecorder is implemented by *activity.Collector.
type ActivityRecorder interface {
	Record(e activity.Entry)
}

// Pinger reports database reachability. *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}
