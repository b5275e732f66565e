package handlers

import (
	"context"
	"net/http"

	"github.com/diewo77/go-quotations/gate"
	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/services"
)

// PermissionLister reports the caller's granted permissions.
type PermissionLister interface {
	Permissions(ctx context.Context) []gate.Permission
	IsAdmin(ctx context.Context) bool
}

// MeHandler serves the caller's own profile.
type MeHandler struct {
	users *services.UserService
	perms PermissionLister
}

func NewMeHandler(users *services.UserService, perms PermissionLister) *MeHandler {
	return &MeHandler{users: users, perms: perms}
}

type meResponse struct {
	User        *models.User      `json:"user"`
	Admin       bool              `json:"admin"`
	Permissions []gate.Permission `json:"permissions"`
}

func (h *MeHandler) respond(w http.ResponseWriter, r *http.Request, u *models.User) {
	perms := h.perms.Permissions(r.Context())
	if perms == nil {
		perms = []gate.Permission{}
	}
	httpx.JSON(w, http.StatusOK, meResponse{User: u, Admin: h.perms.IsAdmin(r.Context()), Permissions: perms})
}

func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, r, u)
}

func (h *MeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), currentUser(r), services.ProfileUpdate{
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, r, u)
}

func (h *MeHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.users.ChangePassword(r.Context(), currentUser(r), in.Current, in.New); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	f, release, err := readUpload(r, "avatar")
	defer release()
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	u, err := h.users.SetAvatar(r.Context(), currentUser(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, r, u)
}
