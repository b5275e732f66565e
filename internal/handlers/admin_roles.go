package handlers

import (
	"net/http"

	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/services"
)

// AdminRoleHandler lets admins change the permissions each role grants.
type AdminRoleHandler struct {
	roles *services.RoleService
	cache RoleCacheInvalidator
}

func NewAdminRoleHandler(roles *services.RoleService, cache RoleCacheInvalidator) *AdminRoleHandler {
	return &AdminRoleHandler{roles: roles, cache: cache}
}

func (h *AdminRoleHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

// ListPermissions returns all available permissions.
func (h *AdminRoleHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.roles.Permissions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

// SavePermissions replaces a role's permissions with {"permission_ids": [...]}.
func (h *AdminRoleHandler) SavePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badID(w)
		return
	}
	var in struct {
		PermissionIDs []uint `json:"permission_ids"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	role, err := h.roles.SetPermissions(r.Context(), id, in.PermissionIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// a role may affect many users
	h.cache.InvalidateAll()
	httpx.JSON(w, http.StatusOK, role)
}
