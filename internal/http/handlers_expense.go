package http

import (
	"fmt"
	"net/http"
	"strconv"

	"notbroke/internal/auth"
	"notbroke/internal/core"
	"notbroke/internal/export"
	"notbroke/internal/services"
)

type expenseRequest struct {
	Amount     string `json:"amount" validate:"required"`
	Currency   string `json:"currency" validate:"required,len=3"`
	CategoryID int64  `json:"category_id" validate:"required,gt=0"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Note       string `json:"note" validate:"max=500"`
}

type expensePatch struct {
	Amount     *string `json:"amount"`
	Currency   *string `json:"currency" validate:"omitempty,len=3"`
	CategoryID *int64  `json:"category_id" validate:"omitempty,gt=0"`
	Date       *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Note       *string `json:"note" validate:"omitempty,max=500"`
}

type expenseResponse struct {
	ID         int64  `json:"id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	CategoryID int64  `json:"category_id"`
	Date       string `json:"date"`
	Note       string `json:"note,omitempty"`
}

type expenseListResponse struct {
	Items []expenseResponse `json:"items"`
	Meta  core.PageMeta     `json:"meta"`
}

func toExpenseResponse(rec core.ExpenseRecord) expenseResponse {
	return expenseResponse{
		ID:         rec.ID,
		Amount:     rec.Amount.String(),
		Currency:   string(rec.Currency),
		CategoryID: rec.CategoryID,
		Date:       rec.Date.String(),
		Note:       rec.Note,
	}
}

func (r expenseRequest) toRecord() (core.ExpenseRecord, error) {
	cents, err := core.ParseDecimalToCents(r.Amount)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	currency, err := core.ParseCurrency(r.Currency)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	return core.ExpenseRecord{
		Amount:     core.Money{Cents: cents},
		Currency:   currency,
		CategoryID: r.CategoryID,
		Date:       date,
		Note:       r.Note,
	}, nil
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	var req expenseRequest
	if err := s.decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	rec, err := req.toRecord()
	if err != nil {
		respondError(w, r, err)
		return
	}

	created, err := s.expenses.Create(r.Context(), p.UserID, rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toExpenseResponse(created))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rec, err := s.expenses.Get(r.Context(), p.UserID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseResponse(rec))
}

// searchFilter builds the expense filter from query parameters. When a
// category scope is requested the user's resolved forest is loaded so
// the whole subtree matches.
func (s *Server) searchFilter(r *http.Request, userID int64) (services.SearchFilter, error) {
	filter := services.SearchFilter{Note: r.URL.Query().Get("note")}

	var err error
	if filter.Start, err = queryDate(r, "start_date"); err != nil {
		return filter, err
	}
	if filter.End, err = queryDate(r, "end_date"); err != nil {
		return filter, err
	}
	if filter.CategoryID, err = queryID(r, "category_id"); err != nil {
		return filter, err
	}

	if filter.CategoryID != nil {
		roots, _, err := s.categories.Forest(r.Context(), userID, "", 1, 1<<30)
		if err != nil {
			return filter, err
		}
		filter.Forest = roots
	}
	return filter, nil
}

func (s *Server) handleSearchExpenses(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	filter, err := s.searchFilter(r, p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	page, perPage := queryPage(r)
	records, meta, err := s.expenses.Search(r.Context(), p.UserID, filter, page, perPage)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := expenseListResponse{Items: make([]expenseResponse, 0, len(records)), Meta: meta}
	for _, rec := range records {
		resp.Items = append(resp.Items, toExpenseResponse(rec))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCategoryExpenses lists expenses scoped to one category's
// subtree, with the same date filters and pagination as /expenses.
func (s *Server) handleCategoryExpenses(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	filter, err := s.searchFilter(r, p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	filter.CategoryID = &id
	if filter.Forest == nil {
		roots, _, err := s.categories.Forest(r.Context(), p.UserID, "", 1, 1<<30)
		if err != nil {
			respondError(w, r, err)
			return
		}
		filter.Forest = roots
	}

	page, perPage := queryPage(r)
	records, meta, err := s.expenses.Search(r.Context(), p.UserID, filter, page, perPage)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := expenseListResponse{Items: make([]expenseResponse, 0, len(records)), Meta: meta}
	for _, rec := range records {
		resp.Items = append(resp.Items, toExpenseResponse(rec))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var patch expensePatch
	if err := s.decodeJSON(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}

	rec, err := s.expenses.Get(r.Context(), p.UserID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if patch.Amount != nil {
		cents, err := core.ParseDecimalToCents(*patch.Amount)
		if err != nil {
			respondError(w, r, err)
			return
		}
		rec.Amount = core.Money{Cents: cents}
	}
	if patch.Currency != nil {
		currency, err := core.ParseCurrency(*patch.Currency)
		if err != nil {
			respondError(w, r, err)
			return
		}
		rec.Currency = currency
	}
	if patch.CategoryID != nil {
		rec.CategoryID = *patch.CategoryID
	}
	if patch.Date != nil {
		date, err := core.ParseDate(*patch.Date)
		if err != nil {
			respondError(w, r, err)
			return
		}
		rec.Date = date
	}
	if patch.Note != nil {
		rec.Note = *patch.Note
	}

	updated, err := s.expenses.Update(r.Context(), p.UserID, rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseResponse(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.expenses.Delete(r.Context(), p.UserID, id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportExpenses(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		respondError(w, r, fmt.Errorf("%w: format must be csv or xlsx", errBadRequest))
		return
	}

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

	roots, _, err := s.categories.Forest(r.Context(), p.UserID, "", 1, 1<<30)
	if err != nil {
		respondError(w, r, err)
		return
	}

	filter := services.SearchFilter{
		Start: &summary.StartDate, End: &summary.EndDate,
		CategoryID: categoryID, Forest: roots,
	}
	records, _, err := s.expenses.Search(r.Context(), p.UserID, filter, 1, 1<<30)
	if err != nil {
		respondError(w, r, err)
		return
	}

	render := export.CSV
	if format == "xlsx" {
		render = export.XLSX
	}
	doc, err := render(summary, roots, records)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}
