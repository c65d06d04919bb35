package api

import (
	"net/http"

	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/user"
)

type authHandler struct {
	responder
	accounts  AccountService
	onSuccess func(method string)
}

func newAuthHandler(rs responder, accounts AccountService, onSuccess func(string)) *authHandler {
	if onSuccess == nil {
		onSuccess = func(string) {}
	}
	return &authHandler{responder: rs, accounts: accounts, onSuccess: onSuccess}
}

// Register handles POST /api/auth/register.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in user.RegisterInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.onSuccess("register")
	writeSuccess(w, http.StatusCreated, "User registered successfully", res)
}

// Login handles POST /api/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in user.LoginInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.accounts.Login(r.Context(), in, clientIP(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.onSuccess("login")
	writeSuccess(w, http.StatusOK, "Login successful", res)
}

// Refresh handles POST /api/auth/refresh.
func (h *authHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var in user.RefreshInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.accounts.Refresh(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.onSuccess("refresh")
	writeSuccess(w, http.StatusOK, "Token refreshed successfully", res)
}

// Profile handles GET /api/auth/profile.
func (h *authHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	u, err := h.accounts.Profile(r.Context(), p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile retrieved successfully", u)
}

// UpdateProfile handles PATCH /api/auth/profile.
func (h *authHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in user.UpdateProfileInput
	if err := readJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p := auth.PrincipalFromContext(r.Context())
	u, err := h.accounts.UpdateProfile(r.Context(), p.ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile updated successfully", u)
}
