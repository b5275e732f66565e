package handlers

import (
	"net/http"

	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/services"
)

// SettingsHandler serves the caller's company settings.
type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	cs, err := h.settings.Get(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cs)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Address string `json:"address"`
	}
	if httpx.IsJSONBody(r) {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	} else {
		in.Address = r.FormValue("address")
	}
	cs, err := h.settings.UpdateAddress(r.Context(), currentUser(r), in.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cs)
}

func (h *SettingsHandler) Logo(w http.ResponseWriter, r *http.Request) {
	f, release, err := readUpload(r, "logo")
	defer release()
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	cs, err := h.settings.SetLogo(r.Context(), currentUser(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cs)
}
