package handlers

import (
	"net/http"
	"time"

	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/export"
	"github.com/diewo77/go-quotations/internal/forms"
	"github.com/diewo77/go-quotations/internal/services"
)

type StatsHandler struct {
	stats *services.StatsService
	authz Authorizer
}

func NewStatsHandler(stats *services.StatsService, authz Authorizer) *StatsHandler {
	return &StatsHandler{stats: stats, authz: authz}
}

func parseItemFilter(r *http.Request) services.ItemFilter {
	q := r.URL.Query()
	return services.ItemFilter{
		From:   forms.NormalizeDate(q.Get("from")),
		To:     forms.NormalizeDate(q.Get("to")),
		Search: q.Get("search"),
	}
}

// Summary answers both /api/stats and the dashboard.
func (h *StatsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFor(r, h.authz)
	s, err := h.stats.Summary(r.Context(), viewer, parseFilter(r, viewer))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *StatsHandler) Items(w http.ResponseWriter, r *http.Request) {
	res, err := h.stats.Items(r.Context(), viewerFor(r, h.authz), parseItemFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *StatsHandler) ItemsExport(w http.ResponseWriter, r *http.Request) {
	res, err := h.stats.Items(r.Context(), viewerFor(r, h.authz), parseItemFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := time.Now()
	b, err := export.ItemStatsXLSX(res.Items, now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.Attachment(w, xlsxContentType, "item-stats-"+now.Format("20060102")+".xlsx", b)
}
