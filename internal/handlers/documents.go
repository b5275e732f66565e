package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/go-quotations/gate"
	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/services"
)

// DocumentHandler serves vendor documents. Access follows the owning
// quotation.
type DocumentHandler struct {
	documents  *services.DocumentService
	quotations *services.QuotationService
	authz      Authorizer
}

func NewDocumentHandler(documents *services.DocumentService, quotations *services.QuotationService, authz Authorizer) *DocumentHandler {
	return &DocumentHandler{documents: documents, quotations: quotations, authz: authz}
}

func (h *DocumentHandler) quotation(w http.ResponseWriter, r *http.Request, action gate.Action) (*models.Quotation, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		badID(w)
		return nil, false
	}
	q, err := h.quotations.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if err := h.authz.Authorize(r.Context(), action, "document", q); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return q, true
}

func (h *DocumentHandler) document(w http.ResponseWriter, r *http.Request, action gate.Action) (*models.VendorDocument, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		badID(w)
		return nil, false
	}
	doc, err := h.documents.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if doc.Quotation == nil {
		writeError(w, r, services.ErrNotFound)
		return nil, false
	}
	if err := h.authz.Authorize(r.Context(), action, "document", doc); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return doc, true
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q, ok := h.quotation(w, r, gate.ActionList)
	if !ok {
		return
	}
	docs, err := h.documents.List(r.Context(), q.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

// Upload stores every file posted under "files". When storage fails part
// way, the documents already saved are returned with the error.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	q, ok := h.quotation(w, r, gate.ActionCreate)
	if !ok {
		return
	}
	files, release, err := readUploads(r, "files")
	defer release()
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	if len(files) == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_upload", "no files")
		return
	}
	docs, err := h.documents.Upload(r.Context(), q.ID, currentUser(r), files)
	if errors.Is(err, services.ErrStorage) {
		httpx.JSONError(w, http.StatusBadGateway, "storage_failed", map[string]any{"saved": docs})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, docs)
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r, gate.ActionView)
	if !ok {
		return
	}
	rc, err := h.documents.Open(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()
	ct := doc.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	stream(w, ct, doc.FileName, rc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.document(w, r, gate.ActionDelete)
	if !ok {
		return
	}
	err := h.documents.Delete(r.Context(), doc.ID)
	if errors.Is(err, services.ErrStorage) {
		httpx.JSONError(w, http.StatusBadGateway, "storage_delete_failed", nil)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
