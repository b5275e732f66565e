package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/diewo77/go-quotations/gate"
	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/export"
	"github.com/diewo77/go-quotations/internal/forms"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type QuotationHandler struct {
	quotations *services.QuotationService
	settings   *services.SettingsService
	authz      Authorizer
}

func NewQuotationHandler(quotations *services.QuotationService, settings *services.SettingsService, authz Authorizer) *QuotationHandler {
	return &QuotationHandler{quotations: quotations, settings: settings, authz: authz}
}

// parseFilter reads list filters from the query string. created_by is
// dropped for non-admin viewers.
func parseFilter(r *http.Request, viewer services.Viewer) services.Filter {
	q := r.URL.Query()
	f := services.Filter{
		Search:     q.Get("search"),
		BudgetType: q.Get("budget_type"),
		Status:     q.Get("status"),
		From:       forms.NormalizeDate(q.Get("from")),
		To:         forms.NormalizeDate(q.Get("to")),
	}
	if viewer.Admin {
		if id, err := strconv.ParseUint(q.Get("created_by"), 10, 64); err == nil {
			f.CreatedBy = uint(id)
		}
	}
	return f
}

type savedResponse struct {
	Quotation *models.Quotation `json:"quotation"`
	Redirect  string            `json:"redirect"`
}

func redirectFor(q *models.Quotation) string {
	return fmt.Sprintf("/quotations/%d", q.ID)
}

// load fetches quotation {id} and checks action against it.
func (h *QuotationHandler) load(w http.ResponseWriter, r *http.Request, action gate.Action) (*models.Quotation, bool) {
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
	if err := h.authz.Authorize(r.Context(), action, "quotation", q); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return q, true
}

func (h *QuotationHandler) List(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFor(r, h.authz)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	p, err := h.quotations.List(r.Context(), viewer, parseFilter(r, viewer), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *QuotationHandler) Create(w http.ResponseWriter, r *http.Request) {
	form, err := forms.ParseQuotationForm(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	form.ID = 0
	q, err := h.quotations.Submit(r.Context(), currentUser(r), form)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, savedResponse{Quotation: q, Redirect: redirectFor(q)})
}

// Preview prices a submission without saving it.
func (h *QuotationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	form, err := forms.ParseQuotationForm(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"preview":    form.Preview(),
		"violations": form.Validate(),
	})
}

func (h *QuotationHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r, gate.ActionView)
	if !ok {
		return
	}
	row, err := h.quotations.Detail(r.Context(), viewerFor(r, h.authz), q.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

// Edit returns the saved quotation as an editable form.
func (h *QuotationHandler) Edit(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r, gate.ActionUpdate)
	if !ok {
		return
	}
	form := forms.FormFromQuotation(q)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"quotation": q,
		"version":   form.Version,
		"vendor":    form.VendorName,
		"preview":   form.Preview(),
	})
}

func (h *QuotationHandler) Update(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r, gate.ActionUpdate)
	if !ok {
		return
	}
	form, err := forms.ParseQuotationForm(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	form.ID = q.ID
	saved, err := h.quotations.Submit(r.Context(), currentUser(r), form)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, savedResponse{Quotation: saved, Redirect: redirectFor(saved)})
}

func (h *QuotationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r, gate.ActionDelete)
	if !ok {
		return
	}
	if err := h.quotations.Delete(r.Context(), q.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuotationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r, gate.ActionStatus)
	if !ok {
		return
	}
	var in struct {
		Status models.QuotationStatus `json:"status"`
	}
	if httpx.IsJSONBody(r) {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	} else {
		in.Status = models.QuotationStatus(r.FormValue("status"))
	}
	saved, err := h.quotations.UpdateStatus(r.Context(), q.ID, in.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *QuotationHandler) PDF(w http.ResponseWriter, r *http.Request) {
	q, ok := h.load(w, r, gate.ActionView)
	if !ok {
		return
	}
	doc := export.QuotationDocument{Quotation: q, Now: time.Now()}
	cs, err := h.settings.Get(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc.Address = cs.Address
	if logo, err := h.settings.Logo(r.Context(), cs); err != nil {
		log.Printf("quotation %d pdf: logo unavailable: %v", q.ID, err)
	} else {
		doc.Logo = logo
	}
	b, err := export.QuotationPDF(doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Attachment(w, "application/pdf", doc.Number()+".pdf", b)
}

func (h *QuotationHandler) Export(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFor(r, h.authz)
	rows, err := h.quotations.Export(r.Context(), viewer, parseFilter(r, viewer))
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := time.Now()
	b, err := export.QuotationsXLSX(rows, now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Attachment(w, xlsxContentType, "quotations-"+now.Format("20060102")+".xlsx", b)
}
