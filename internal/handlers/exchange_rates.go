package handlers

import (
	"net/http"

	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/internal/forms"
	"github.com/diewo77/go-quotations/internal/services"
)

// ExchangeRateHandler manages the caller's own USD to IQD rates.
type ExchangeRateHandler struct {
	rates *services.ExchangeRateService
}

func NewExchangeRateHandler(rates *services.ExchangeRateService) *ExchangeRateHandler {
	return &ExchangeRateHandler{rates: rates}
}

func (h *ExchangeRateHandler) List(w http.ResponseWriter, r *http.Request) {
	rates, err := h.rates.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rates)
}

func (h *ExchangeRateHandler) Latest(w http.ResponseWriter, r *http.Request) {
	rate, err := h.rates.Latest(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

// Set records the rate for one date, replacing any earlier value.
func (h *ExchangeRateHandler) Set(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Date string       `json:"date"`
		Rate forms.Number `json:"rate"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	rate, err := h.rates.Set(r.Context(), currentUser(r), forms.NormalizeDate(in.Date), float64(in.Rate))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}
