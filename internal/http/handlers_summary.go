package http

import (
	"net/http"

	"notbroke/internal/auth"
	"notbroke/internal/core"
)

type summaryResponse struct {
	StartDate         string                        `json:"start_date"`
	EndDate           string                        `json:"end_date"`
	CategoryID        *int64                        `json:"category_id,omitempty"`
	Total             float64                       `json:"total"`
	TotalByCurrency   map[string]float64            `json:"total_by_currency"`
	CategoryTotals    map[string]float64            `json:"category_totals"`
	CurrencyBreakdown map[string]map[string]float64 `json:"currency_breakdown"`
}

func toSummaryResponse(summary *core.Summary) summaryResponse {
	resp := summaryResponse{
		StartDate:         summary.StartDate.String(),
		EndDate:           summary.EndDate.String(),
		CategoryID:        summary.CategoryID,
		Total:             summary.Total.Float64(),
		TotalByCurrency:   make(map[string]float64, len(summary.TotalByCurrency)),
		CategoryTotals:    make(map[string]float64, len(summary.CategoryTotals)),
		CurrencyBreakdown: make(map[string]map[string]float64, len(summary.CurrencyBreakdown)),
	}
	for currency, total := range summary.TotalByCurrency {
		resp.TotalByCurrency[string(currency)] = total.Float64()
	}
	for path, total := range summary.CategoryTotals {
		resp.CategoryTotals[path] = total.Float64()
	}
	for currency, byPath := range summary.CurrencyBreakdown {
		m := make(map[string]float64, len(byPath))
		for path, total := range byPath {
			m[path] = total.Float64()
		}
		resp.CurrencyBreakdown[string(currency)] = m
	}
	return resp
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	start, err := queryDate(r, "start_date")
	if err != nil {
		respondError(w, r, err)
		return
	}
	end, err := queryDate(r, "end_date")
	if err != nil {
		respondError(w, r, err)
		return
	}
	categoryID, err := queryID(r, "category_id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	summary, err := s.summaries.Summarize(r.Context(), p.UserID, start, end, categoryID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSummaryResponse(summary))
}
