package api

import (
	"net/http"
	"strconv"

	"github.com/alecgard/okrtracker/internal/activity"
	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/team"
	"github.com/go-chi/chi/v5"
)

const resourceTeam = "team"

// teamsHandler groups team, membership and invitation handlers.
type teamsHandler struct {
	responder
	auditor
	teams    TeamService
	activity ActivityLog
}

func newTeamsHandler(rs responder, a auditor, teams TeamService, log ActivityLog) *teamsHandler {
	return &teamsHandler{responder: rs, auditor: a, teams: teams, activity: log}
}

// CreateTeam handles POST /api/teams. The creator becomes its first admin.
func (h *teamsHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var in team.CreateTeamInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p := auth.PrincipalFromContext(r.Context())
	t, err := h.teams.Create(r.Context(), p.ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, t.ID, activity.ActionCreated, resourceTeam, t.ID, map[string]any{"name": t.Name})
	writeSuccess(w, http.StatusCreated, "Team created successfully", t)
}

// ListTeams handles GET /api/teams: the caller's teams.
func (h *teamsHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	teams, err := h.teams.List(r.Context(), p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Teams retrieved successfully", teams)
}

// GetTeam handles GET /api/teams/{teamId}.
func (h *teamsHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	t, err := h.teams.Get(r.Context(), chi.URLParam(r, "teamId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Team retrieved successfully", t)
}

// UpdateTeam handles PATCH /api/teams/{teamId}.
func (h *teamsHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	var in team.UpdateTeamInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	teamID := chi.URLParam(r, "teamId")
	t, err := h.teams.Update(r.Context(), teamID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, teamID, activity.ActionUpdated, resourceTeam, teamID, nil)
	writeSuccess(w, http.StatusOK, "Team updated successfully", t)
}

// DeleteTeam handles DELETE /api/teams/{teamId}. The team's activity goes
// with it, so only the audit line is written.
func (h *teamsHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamId")
	if err := h.teams.Delete(r.Context(), teamID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, "", activity.ActionDeleted, resourceTeam, teamID, nil)
	writeSuccess(w, http.StatusOK, "Team deleted successfully", nil)
}

// AddMember handles POST /api/teams/{teamId}/members. An unknown e-mail
// produces an invitation instead of a membership.
func (h *teamsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var in team.AddMemberInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	teamID := chi.URLParam(r, "teamId")
	p := auth.PrincipalFromContext(r.Context())
	res, err := h.teams.AddMember(r.Context(), teamID, p.ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	switch d := res.Data.(type) {
	case *team.Invitation:
		h.log(r, teamID, activity.ActionMemberInvited, "invitation", d.ID,
			map[string]any{"email": d.Email, "role": d.Role})
		writeSuccess(w, http.StatusCreated, "Invitation sent successfully", res)
	case *team.Member:
		h.log(r, teamID, activity.ActionMemberAdded, "member", d.UserID,
			map[string]any{"role": d.Role})
		writeSuccess(w, http.StatusCreated, "Member added successfully", res)
	default:
		writeSuccess(w, http.StatusCreated, "Member added successfully", res)
	}
}

// ChangeMemberRole handles PATCH /api/teams/{teamId}/members/{userId}.
func (h *teamsHandler) ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	var in team.ChangeRoleInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	teamID, userID := chi.URLParam(r, "teamId"), chi.URLParam(r, "userId")
	m, err := h.teams.ChangeRole(r.Context(), teamID, userID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, teamID, activity.ActionRoleChanged, "member", userID, map[string]any{"role": m.Role})
	writeSuccess(w, http.StatusOK, "Member role updated successfully", m)
}

// RemoveMember handles DELETE /api/teams/{teamId}/members/{userId}.
func (h *teamsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID, userID := chi.URLParam(r, "teamId"), chi.URLParam(r, "userId")
	if err := h.teams.RemoveMember(r.Context(), teamID, userID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, teamID, activity.ActionMemberRemoved, "member", userID, nil)
	writeSuccess(w, http.StatusOK, "Member removed successfully", nil)
}

// AcceptInvitation handles the public POST /api/teams/invitations/accept.
func (h *teamsHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var in team.AcceptInvitationInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.teams.AcceptInvitation(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx := r.Context()
	if res.AuthResult != nil && res.User != nil {
		ctx = auth.ContextWithPrincipal(ctx, &auth.Principal{ID: res.User.ID, Email: res.User.Email, Name: res.User.Name})
	}
	if res.Membership != nil {
		h.log(r.WithContext(ctx), res.Membership.TeamID, activity.ActionInviteAccepted, "member",
			res.Membership.UserID, map[string]any{"role": res.Membership.Role})
	}
	writeSuccess(w, http.StatusOK, "Invitation accepted successfully", res)
}

// ListActivity handles GET /api/teams/{teamId}/activity?cursor=&limit=.
func (h *teamsHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	q := activity.Query{
		TeamID: chi.URLParam(r, "teamId"),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.fail(w, r, apperr.Invalid("Invalid query",
				apperr.FieldError{Field: "limit", Message: "limit must be a positive integer"}))
			return
		}
		q.Limit = n
	}

	page, err := h.activity.List(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Activity retrieved successfully", page)
}
