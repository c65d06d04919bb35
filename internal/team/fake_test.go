package team

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/mail"
	"github.com/alecgard/okrtracker/internal/user"
)

type fakeRepo struct {
	seq         int
	teams       map[string]*Team
	members     map[string]map[string]*Member
	invitations map[string]*Invitation
	accounts    *fakeAccounts
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		teams:       map[string]*Team{},
		members:     map[string]map[string]*Member{},
		invitations: map[string]*Invitation{},
		accounts:    &fakeAccounts{users: map[string]*user.User{}},
	}
}

func (f *fakeRepo) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeRepo) InTx(_ context.Context, fn func(Repository) error) error { return fn(f) }
func (f *fakeRepo) Accounts() Accounts                                      { return f.accounts }

func (f *fakeRepo) CreateTeam(ctx context.Context, name string, description *string, creatorID string) (*Team, error) {
	t := &Team{ID: f.nextID("team"), Name: name, Description: description}
	f.teams[t.ID] = t
	f.members[t.ID] = map[string]*Member{}
	if _, err := f.AddMember(ctx, t.ID, creatorID, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return f.GetTeam(ctx, t.ID)
}

func (f *fakeRepo) GetTeam(_ context.Context, id string) (*Team, error) {
	t, ok := f.teams[id]
	if !ok {
		return nil, apperr.NotFound(msgTeamNotFound)
	}
	c := *t
	c.Members = f.memberList(id)
	return &c, nil
}

func (f *fakeRepo) memberList(teamID string) []*Member {
	out := []*Member{}
	for _, m := range f.members[teamID] {
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (f *fakeRepo) ListTeams(ctx context.Context, userID string) ([]*Team, error) {
	out := []*Team{}
	for id := range f.teams {
		if _, ok := f.members[id][userID]; ok {
			t, _ := f.GetTeam(ctx, id)
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateTeam(ctx context.Context, id string, p Patch) (*Team, error) {
	t, ok := f.teams[id]
	if !ok {
		return nil, apperr.NotFound(msgTeamNotFound)
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = p.Description
	}
	return f.GetTeam(ctx, id)
}

func (f *fakeRepo) DeleteTeam(_ context.Context, id string) error {
	if _, ok := f.teams[id]; !ok {
		return apperr.NotFound(msgTeamNotFound)
	}
	delete(f.teams, id)
	delete(f.members, id)
	return nil
}

func (f *fakeRepo) FindMembership(_ context.Context, userID, teamID string) (*auth.Membership, error) {
	m, ok := f.members[teamID][userID]
	if !ok {
		return nil, nil
	}
	return &auth.Membership{TeamID: teamID, Role: m.Role}, nil
}

func (f *fakeRepo) GetMember(_ context.Context, teamID, userID string) (*Member, error) {
	m, ok := f.members[teamID][userID]
	if !ok {
		return nil, apperr.NotFound(msgMemberNotFound)
	}
	c := *m
	return &c, nil
}

func (f *fakeRepo) AddMember(ctx context.Context, teamID, userID string, role auth.Role) (*Member, error) {
	if _, ok := f.members[teamID][userID]; ok {
		return nil, apperr.Conflict("User is already a member of this team")
	}
	return f.EnsureMember(ctx, teamID, userID, role)
}

func (f *fakeRepo) EnsureMember(ctx context.Context, teamID, userID string, role auth.Role) (*Member, error) {
	if f.members[teamID] == nil {
		return nil, apperr.BadRequest("Referenced record does not exist")
	}
	if _, ok := f.members[teamID][userID]; !ok {
		f.members[teamID][userID] = &Member{TeamID: teamID, UserID: userID, Role: role, User: &MemberUser{ID: userID}}
	}
	return f.GetMember(ctx, teamID, userID)
}

func (f *fakeRepo) SetMemberRole(ctx context.Context, teamID, userID string, role auth.Role) (*Member, error) {
	m, ok := f.members[teamID][userID]
	if !ok {
		return nil, apperr.NotFound(msgMemberNotFound)
	}
	m.Role = role
	return f.GetMember(ctx, teamID, userID)
}

func (f *fakeRepo) RemoveMember(_ context.Context, teamID, userID string) error {
	if _, ok := f.members[teamID][userID]; !ok {
		return apperr.NotFound(msgMemberNotFound)
	}
	delete(f.members[teamID], userID)
	return nil
}

func (f *fakeRepo) CountAdmins(_ context.Context, teamID string) (int, error) {
	n := 0
	for _, m := range f.members[teamID] {
		if m.Role == auth.RoleAdmin {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) UpsertInvitation(_ context.Context, inv *Invitation) (*Invitation, error) {
	t, ok := f.teams[inv.TeamID]
	if !ok {
		return nil, apperr.BadRequest("Referenced record does not exist")
	}
	key := inv.TeamID + "|" + inv.Email
	existing, ok := f.invitations[key]
	if !ok {
		existing = &Invitation{ID: f.nextID("inv"), TeamID: inv.TeamID, TeamName: t.Name, Email: inv.Email}
		f.invitations[key] = existing
	}
	existing.Role = inv.Role
	existing.TokenHash = inv.TokenHash
	existing.InvitedByID = inv.InvitedByID
	existing.ExpiresAt = inv.ExpiresAt
	existing.AcceptedAt = nil
	c := *existing
	return &c, nil
}

func (f *fakeRepo) InvitationByTokenHash(_ context.Context, hash string) (*Invitation, error) {
	for _, inv := range f.invitations {
		if inv.TokenHash == hash {
			c := *inv
			return &c, nil
		}
	}
	return nil, apperr.NotFound(msgInvitationNotFound)
}

func (f *fakeRepo) MarkInvitationAccepted(_ context.Context, id string, at time.Time) error {
	for _, inv := range f.invitations {
		if inv.ID == id {
			inv.AcceptedAt = &at
			return nil
		}
	}
	return apperr.NotFound(msgInvitationNotFound)
}

type fakeAccounts struct {
	seq   int
	users map[string]*user.User
}

func (a *fakeAccounts) add(email, name string) *user.User {
	a.seq++
	u := &user.User{ID: fmt.Sprintf("user-%d", a.seq), Email: email, Name: name}
	a.users[u.ID] = u
	return u
}

func (a *fakeAccounts) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := a.users[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	c := *u
	return &c, nil
}

func (a *fakeAccounts) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range a.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (a *fakeAccounts) Create(_ context.Context, email, hash, name string) (*user.User, error) {
	u := a.add(email, name)
	u.PasswordHash = hash
	c := *u
	return &c, nil
}

func (a *fakeAccounts) Update(_ context.Context, id string, p user.Patch) (*user.User, error) {
	u, ok := a.users[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	c := *u
	return &c, nil
}

type fakeSessions struct{}

func (fakeSessions) Session(_ context.Context, userID string) (*user.AuthResult, error) {
	return &user.AuthResult{User: &user.User{ID: userID}, Token: "access-" + userID, RefreshToken: "refresh-" + userID}, nil
}

type fakeMailer struct {
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}
