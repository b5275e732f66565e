package handlers

import (
	"net/http"

	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/services"
)

// ReferenceHandler serves the autocomplete sources of the quotation form.
type ReferenceHandler struct {
	vendors   *services.VendorService
	itemTypes *services.ItemTypeService
}

func NewReferenceHandler(vendors *services.VendorService, itemTypes *services.ItemTypeService) *ReferenceHandler {
	return &ReferenceHandler{vendors: vendors, itemTypes: itemTypes}
}

func (h *ReferenceHandler) Vendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.vendors.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendors)
}

func (h *ReferenceHandler) ItemTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.itemTypes.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, types)
}
