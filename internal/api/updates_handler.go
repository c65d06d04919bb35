package api

import (
	"net/http"
	"strings"

	"github.com/alecgard/okrtracker/internal/access"
	"github.com/alecgard/okrtracker/internal/activity"
	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/okr"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const resourceUpdate = "update"

type updatesHandler struct {
	responder
	auditor
	okr       OKRService
	summaries SummaryService
	resolver  *access.Resolver
	owners    access.OwnerLookup
}

func newUpdatesHandler(rs responder, a auditor, svc OKRService, summaries SummaryService,
	resolver *access.Resolver, owners access.OwnerLookup) *updatesHandler {
	return &updatesHandler{responder: rs, auditor: a, okr: svc, summaries: summaries, resolver: resolver, owners: owners}
}

// CreateUpdate handles POST /api/updates. The objective comes from the body
// so its team is resolved here.
func (h *updatesHandler) CreateUpdate(w http.ResponseWriter, r *http.Request) {
	var in okr.CreateUpdateInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.ObjectiveID = strings.TrimSpace(in.ObjectiveID)
	if in.ObjectiveID == "" {
		h.fail(w, r, apperr.BadRequest("Objective ID is required"))
		return
	}
	if _, err := uuid.Parse(in.ObjectiveID); err != nil {
		h.fail(w, r, apperr.NotFound("Objective not found"))
		return
	}

	teamID, err := h.owners.OwningTeamID(r.Context(), access.KindObjective, in.ObjectiveID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.resolver.Authorize(r.Context(), scope(r), teamID, auth.RoleAdmin, auth.RoleMember); err != nil {
		h.fail(w, r, err)
		return
	}

	p := auth.PrincipalFromContext(r.Context())
	u, err := h.okr.CreateUpdate(r.Context(), p.ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, teamID, activity.ActionCreated, resourceUpdate, u.ID, map[string]any{"objectiveId": u.ObjectiveID})
	writeSuccess(w, http.StatusCreated, "Update created successfully", u)
}

// ListUpdates handles GET /api/updates/objectives/{objectiveId}.
func (h *updatesHandler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.okr.ListUpdates(r.Context(), chi.URLParam(r, "objectiveId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Updates retrieved successfully", updates)
}

// Summary handles GET /api/updates/objectives/{objectiveId}/summary. It
// always succeeds once the objective exists; see summary.Service.
func (h *updatesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	o, updates, err := h.okr.Digest(r.Context(), chi.URLParam(r, "objectiveId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	text := h.summaries.Generate(r.Context(), o, updates)
	writeSuccess(w, http.StatusOK, "Summary generated successfully", map[string]string{"summary": text})
}

// GetUpdate handles GET /api/updates/{id}.
func (h *updatesHandler) GetUpdate(w http.ResponseWriter, r *http.Request) {
	u, err := h.okr.GetUpdate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Update retrieved successfully", u)
}

// EditUpdate handles PATCH /api/updates/{id}.
func (h *updatesHandler) EditUpdate(w http.ResponseWriter, r *http.Request) {
	var in okr.EditUpdateInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.okr.EditUpdate(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, teamOf(r), activity.ActionUpdated, resourceUpdate, u.ID, nil)
	writeSuccess(w, http.StatusOK, "Update updated successfully", u)
}

// DeleteUpdate handles DELETE /api/updates/{id}.
func (h *updatesHandler) DeleteUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.okr.DeleteUpdate(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, teamOf(r), activity.ActionDeleted, resourceUpdate, id, nil)
	writeSuccess(w, http.StatusOK, "Update deleted successfully", nil)
}
