package handlers

import (
	"net/http"

	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/services"
)

// RoleCacheInvalidator drops cached authorization profiles.
type RoleCacheInvalidator interface {
	InvalidateUser(userID uint)
	InvalidateAll()
}

// AdminUserHandler lets admins approve users and assign roles.
type AdminUserHandler struct {
	users *services.UserService
	roles RoleCacheInvalidator
}

func NewAdminUserHandler(users *services.UserService, roles RoleCacheInvalidator) *AdminUserHandler {
	return &AdminUserHandler{users: users, roles: roles}
}

func (h *AdminUserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

// Update applies {"approved": bool, "role": string}; either may be omitted.
func (h *AdminUserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badID(w)
		return
	}
	var in struct {
		Approved *bool   `json:"approved"`
		Role     *string `json:"role"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	u, err := h.users.Update(r.Context(), id, services.UserUpdate{Approved: in.Approved, Role: in.Role})
	if err != nil {
		writeError(w, r, err)
		return
	}
	// role or approval changed: the cached profile is stale
	h.roles.InvalidateUser(id)
	httpx.JSON(w, http.StatusOK, u)
}
