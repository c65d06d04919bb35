package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/database"
	"github.com/alecgard/okrtracker/internal/user"
	"github.com/jackc/pgx/v5"
)

const (
	msgTeamNotFound       = "Team not found"
	msgMemberNotFound     = "Member not found"
	msgInvitationNotFound = "Invitation not found"
)

var (
	_ Repository = (*Store)(nil)
	_ Accounts   = (*user.Store)(nil)
)

// Store provides Postgres persistence for teams, memberships and
// invitations. It implements Repository and access.MembershipLookup.
type Store struct {
	db    database.DBTX
	begin database.TxBeginner
}

// NewStore creates a Store on a connection pool.
func NewStore(db interface {
	database.DBTX
	database.TxBeginner
}) *Store {
	return &Store{db: db, begin: db}
}

// InTx runs fn with a Store bound to one transaction.
func (s *Store) InTx(ctx context.Context, fn func(Repository) error) error {
	if s.begin == nil {
		return fn(s)
	}
	return database.WithTx(ctx, s.begin, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
}

// Accounts returns a user store sharing this Store's connection or
// transaction.
func (s *Store) Accounts() Accounts {
	return user.NewStore(s.db)
}

// --- Teams ---

const teamColumns = `t.id, t.name, t.description, t.created_at, t.updated_at,
	(SELECT count(*) FROM objectives o WHERE o.team_id = t.id)`

func scanTeam(row pgx.Row) (*Team, error) {
	var t Team
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt, &t.ObjectiveCount); err != nil {
		return nil, err
	}
	t.Members = []*Member{}
	return &t, nil
}

// CreateTeam inserts a team and makes creatorID its first ADMIN.
func (s *Store) CreateTeam(ctx context.Context, name string, description *string, creatorID string) (*Team, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO teams (name, description) VALUES ($1, $2) RETURNING id`,
		name, description,
	).Scan(&id)
	if err != nil {
		return nil, database.WrapError(err, msgTeamNotFound)
	}
	if _, err := s.AddMember(ctx, id, creatorID, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return s.GetTeam(ctx, id)
}

// GetTeam retrieves a team with its members.
func (s *Store) GetTeam(ctx context.Context, id string) (*Team, error) {
	t, err := scanTeam(s.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams t WHERE t.id = $1`, id))
	if err != nil {
		return nil, database.WrapError(err, msgTeamNotFound)
	}
	if t.Members, err = s.ListMembers(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTeams returns the teams userID belongs to, newest first.
func (s *Store) ListTeams(ctx context.Context, userID string) ([]*Team, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+teamColumns+` FROM teams t
		 WHERE t.id IN (SELECT team_id FROM team_members WHERE user_id = $1)
		 ORDER BY t.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	teams := []*Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range teams {
		if t.Members, err = s.ListMembers(ctx, t.ID); err != nil {
			return nil, err
		}
	}
	return teams, nil
}

// UpdateTeam performs a partial update on a team.
func (s *Store) UpdateTeam(ctx context.Context, id string, p Patch) (*Team, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if p.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *p.Name)
		argIdx++
	}
	if p.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *p.Description)
		argIdx++
	}
	if len(setClauses) == 0 {
		return s.GetTeam(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE teams SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), argIdx)

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, database.WrapError(err, msgTeamNotFound)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound(msgTeamNotFound)
	}
	return s.GetTeam(ctx, id)
}

// DeleteTeam removes a team. Memberships, invitations and objectives
// cascade.
func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return database.WrapError(err, msgTeamNotFound)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgTeamNotFound)
	}
	return nil
}

// --- Members ---

const memberSelect = `SELECT tm.team_id, tm.user_id, tm.role, tm.created_at, u.email, u.name
	FROM team_members tm JOIN users u ON u.id = tm.user_id`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	mu := &MemberUser{}
	if err := row.Scan(&m.TeamID, &m.UserID, &m.Role, &m.CreatedAt, &mu.Email, &mu.Name); err != nil {
		return nil, err
	}
	mu.ID = m.UserID
	m.User = mu
	return &m, nil
}

// FindMembership implements access.MembershipLookup. It returns nil, nil
// when the user is not a member.
func (s *Store) FindMembership(ctx context.Context, userID, teamID string) (*auth.Membership, error) {
	var role auth.Role
	err := s.db.QueryRow(ctx,
		`SELECT role FROM team_members WHERE user_id = $1 AND team_id = $2`, userID, teamID,
	).Scan(&role)
	if err != nil {
		if errors.Is(database.WrapError(err, msgMemberNotFound), apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding membership: %w", err)
	}
	return &auth.Membership{TeamID: teamID, Role: role}, nil
}

// ListMembers returns a team's members in join order.
func (s *Store) ListMembers(ctx context.Context, teamID string) ([]*Member, error) {
	rows, err := s.db.Query(ctx, memberSelect+` WHERE tm.team_id = $1 ORDER BY tm.created_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMember returns one membership.
func (s *Store) GetMember(ctx context.Context, teamID, userID string) (*Member, error) {
	m, err := scanMember(s.db.QueryRow(ctx, memberSelect+` WHERE tm.team_id = $1 AND tm.user_id = $2`, teamID, userID))
	if err != nil {
		return nil, database.WrapError(err, msgMemberNotFound)
	}
	return m, nil
}

// AddMember inserts a membership. A duplicate yields a Conflict.
func (s *Store) AddMember(ctx context.Context, teamID, userID string, role auth.Role) (*Member, error) {
	_, err := s.db.Exec(ctx,
		`INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3)`, teamID, userID, role)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, "User is already a member of this team", err)
		}
		return nil, database.WrapError(err, msgMemberNotFound)
	}
	return s.GetMember(ctx, teamID, userID)
}

// EnsureMember inserts a membership unless one already exists, in which
// case the existing role is kept.
func (s *Store) EnsureMember(ctx context.Context, teamID, userID string, role auth.Role) (*Member, error) {
	_, err := s.db.Exec(ctx,
		`INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (team_id, user_id) DO NOTHING`, teamID, userID, role)
	if err != nil {
		return nil, database.WrapError(err, msgMemberNotFound)
	}
	return s.GetMember(ctx, teamID, userID)
}

// SetMemberRole changes a member's role.
func (s *Store) SetMemberRole(ctx context.Context, teamID, userID string, role auth.Role) (*Member, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE team_members SET role = $1 WHERE team_id = $2 AND user_id = $3`, role, teamID, userID)
	if err != nil {
		return nil, database.WrapError(err, msgMemberNotFound)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound(msgMemberNotFound)
	}
	return s.GetMember(ctx, teamID, userID)
}

// RemoveMember deletes a membership.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return database.WrapError(err, msgMemberNotFound)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgMemberNotFound)
	}
	return nil
}

// CountAdmins returns the number of ADMIN members, locking them for the
// rest of the transaction.
func (s *Store) CountAdmins(ctx context.Context, teamID string) (int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id FROM team_members WHERE team_id = $1 AND role = $2 FOR UPDATE`,
		teamID, auth.RoleAdmin)
	if err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

// --- Invitations ---

const invitationSelect = `SELECT i.id, i.team_id, t.name, i.email, i.role, i.token_hash, i.invited_by_id,
	i.expires_at, i.accepted_at, i.created_at
	FROM team_invitations i JOIN teams t ON t.id = i.team_id`

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.TeamID, &inv.TeamName, &inv.Email, &inv.Role, &inv.TokenHash,
		&inv.InvitedByID, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// UpsertInvitation creates the invitation for (team, email) or refreshes the
// existing one with a new token, role and expiry, clearing acceptance.
func (s *Store) UpsertInvitation(ctx context.Context, inv *Invitation) (*Invitation, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO team_invitations (team_id, email, role, token_hash, invited_by_id, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (team_id, email) DO UPDATE
		 SET role = EXCLUDED.role, token_hash = EXCLUDED.token_hash,
		     invited_by_id = EXCLUDED.invited_by_id, expires_at = EXCLUDED.expires_at,
		     accepted_at = NULL
		 RETURNING id`,
		inv.TeamID, inv.Email, inv.Role, inv.TokenHash, inv.InvitedByID, inv.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return nil, database.WrapError(err, msgInvitationNotFound)
	}
	return scanOne(s.db.QueryRow(ctx, invitationSelect+` WHERE i.id = $1`, id))
}

// InvitationByTokenHash finds an invitation by the hash of its token and
// locks it for the rest of the transaction.
func (s *Store) InvitationByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error) {
	return scanOne(s.db.QueryRow(ctx, invitationSelect+` WHERE i.token_hash = $1 FOR UPDATE OF i`, tokenHash))
}

// MarkInvitationAccepted records acceptance.
func (s *Store) MarkInvitationAccepted(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE team_invitations SET accepted_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return database.WrapError(err, msgInvitationNotFound)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgInvitationNotFound)
	}
	return nil
}

func scanOne(row pgx.Row) (*Invitation, error) {
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, database.WrapError(err, msgInvitationNotFound)
	}
	return inv, nil
}
