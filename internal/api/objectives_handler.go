package api

import (
	"net/http"
	"strings"

	"github.com/alecgard/okrtracker/internal/access"
	"github.com/alecgard/okrtracker/internal/activity"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/okr"
	"github.com/go-chi/chi/v5"
)

const resourceObjective = "objective"

// objectivesHandler serves objectives. Creation authorizes against the
// team named in the body, so it talks to the resolver directly instead of
// going through route middleware.
type objectivesHandler struct {
	responder
	auditor
	okr      OKRService
	resolver *access.Resolver
}

func newObjectivesHandler(rs responder, a auditor, svc OKRService, resolver *access.Resolver) *objectivesHandler {
	return &objectivesHandler{responder: rs, auditor: a, okr: svc, resolver: resolver}
}

// scope returns the request's access scope, creating one if the route did
// not install it.
func scope(r *http.Request) *access.Scope {
	if s := access.ScopeFromContext(r.Context()); s != nil {
		return s
	}
	return access.NewScope(auth.PrincipalFromContext(r.Context()))
}

// CreateObjective handles POST /api/objectives.
func (h *objectivesHandler) CreateObjective(w http.ResponseWriter, r *http.Request) {
	var in okr.CreateObjectiveInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.TeamID = strings.TrimSpace(in.TeamID)

	m, err := h.resolver.Authorize(r.Context(), scope(r), in.TeamID,
		auth.RoleAdmin, auth.RoleMember, auth.RoleViewer)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p := auth.PrincipalFromContext(r.Context())
	o, err := h.okr.CreateObjective(r.Context(), p.ID, m.Role, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, o.TeamID, activity.ActionCreated, resourceObjective, o.ID,
		map[string]any{"title": o.Title, "isPersonal": o.IsPersonal})
	writeSuccess(w, http.StatusCreated, "Objective created successfully", o)
}

// ListObjectives handles GET /api/objectives?teamId=&status=&ownerId=.
// Results are limited to the caller's teams.
func (h *objectivesHandler) ListObjectives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := auth.PrincipalFromContext(r.Context())
	objectives, err := h.okr.ListObjectives(r.Context(), okr.ObjectiveFilter{
		UserID:  p.ID,
		TeamID:  q.Get("teamId"),
		Status:  okr.ObjectiveStatus(q.Get("status")),
		OwnerID: q.Get("ownerId"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Objectives retrieved successfully", objectives)
}

// GetObjective handles GET /api/objectives/{objectiveId}.
func (h *objectivesHandler) GetObjective(w http.ResponseWriter, r *http.Request) {
	o, err := h.okr.GetObjective(r.Context(), chi.URLParam(r, "objectiveId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Objective retrieved successfully", o)
}

// UpdateObjective handles PATCH /api/objectives/{objectiveId}.
func (h *objectivesHandler) UpdateObjective(w http.ResponseWriter, r *http.Request) {
	var in okr.UpdateObjectiveInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.okr.UpdateObjective(r.Context(), chi.URLParam(r, "objectiveId"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, o.TeamID, activity.ActionUpdated, resourceObjective, o.ID, nil)
	writeSuccess(w, http.StatusOK, "Objective updated successfully", o)
}

// DeleteObjective handles DELETE /api/objectives/{objectiveId}.
func (h *objectivesHandler) DeleteObjective(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "objectiveId")
	if err := h.okr.DeleteObjective(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, teamOf(r), activity.ActionDeleted, resourceObjective, id, nil)
	writeSuccess(w, http.StatusOK, "Objective deleted successfully", nil)
}

// teamOf returns the team resolved by the route's access check.
func teamOf(r *http.Request) string {
	m, _ := access.MembershipFromContext(r.Context())
	return m.TeamID
}
