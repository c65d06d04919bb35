package api

import (
	"net/http"

	"github.com/alecgard/okrtracker/internal/activity"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/okr"
	"github.com/go-chi/chi/v5"
)

const resourceKeyResult = "key_result"

type keyResultsHandler struct {
	responder
	auditor
	okr OKRService
}

func newKeyResultsHandler(rs responder, a auditor, svc OKRService) *keyResultsHandler {
	return &keyResultsHandler{responder: rs, auditor: a, okr: svc}
}

// CreateKeyResult handles POST /api/objectives/{objectiveId}/keyresults.
func (h *keyResultsHandler) CreateKeyResult(w http.ResponseWriter, r *http.Request) {
	var in okr.CreateKeyResultInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	kr, err := h.okr.CreateKeyResult(r.Context(), chi.URLParam(r, "objectiveId"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, teamOf(r), activity.ActionCreated, resourceKeyResult, kr.ID,
		map[string]any{"objectiveId": kr.ObjectiveID, "title": kr.Title})
	writeSuccess(w, http.StatusCreated, "Key result created successfully", kr)
}

// ListKeyResults handles GET /api/objectives/{objectiveId}/keyresults.
func (h *keyResultsHandler) ListKeyResults(w http.ResponseWriter, r *http.Request) {
	krs, err := h.okr.ListKeyResults(r.Context(), chi.URLParam(r, "objectiveId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Key results retrieved successfully", krs)
}

// GetKeyResult handles GET /api/keyresults/{id}.
func (h *keyResultsHandler) GetKeyResult(w http.ResponseWriter, r *http.Request) {
	kr, err := h.okr.GetKeyResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Key result retrieved successfully", kr)
}

// UpdateKeyResult handles PATCH /api/keyresults/{id}. Viewers may report
// progress here.
func (h *keyResultsHandler) UpdateKeyResult(w http.ResponseWriter, r *http.Request) {
	var in okr.UpdateKeyResultInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p := auth.PrincipalFromContext(r.Context())
	kr, err := h.okr.UpdateKeyResult(r.Context(), chi.URLParam(r, "id"), p.ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	action := activity.ActionUpdated
	meta := map[string]any{"objectiveId": kr.ObjectiveID}
	if in.Current != nil {
		action = activity.ActionProgressUpdated
		meta["current"] = kr.Current
		meta["target"] = kr.Target
	}
	h.log(r, teamOf(r), action, resourceKeyResult, kr.ID, meta)
	writeSuccess(w, http.StatusOK, "Key result updated successfully", kr)
}

// DeleteKeyResult handles DELETE /api/keyresults/{id}.
func (h *keyResultsHandler) DeleteKeyResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.okr.DeleteKeyResult(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r, teamOf(r), activity.ActionDeleted, resourceKeyResult, id, nil)
	writeSuccess(w, http.StatusOK, "Key result deleted successfully", nil)
}
