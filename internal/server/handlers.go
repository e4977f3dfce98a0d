package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/service"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.Accounts.ListByUser(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// importCSV accepts the raw statement file as the request body. The filename
// travels in a query parameter so no multipart handling is needed.
func (s *Server) importCSV(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "statement.csv"
	}
	meta, records, err := service.ParseCSV(r.Body, filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	res, err := s.Ingestor.Import(r.Context(), userID(r), meta, records)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listImports(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Imports.ListByUser(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := repository.TransactionFilters{
		Status:         q.Get("status"),
		AccountID:      q.Get("accountId"),
		CategoryID:     q.Get("categoryId"),
		CategorySource: q.Get("categorySource"),
	}
	txs, err := s.Transactions.List(r.Context(), userID(r), filters)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) setTransactionCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CategoryID *string `json:"categoryId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	if err := s.Classifier.SetManualCategory(r.Context(), userID(r), mux.Vars(r)["id"], body.CategoryID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ignoreTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.Reconciler.Ignore(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unignoreTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.Reconciler.Unignore(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type expenseBody struct {
	Label      string          `json:"label"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"`
	CategoryID *string         `json:"categoryId"`
}

func (b expenseBody) input() (service.ExpenseInput, error) {
	date, err := parseDate(b.Date)
	if err != nil {
		return service.ExpenseInput{}, fmt.Errorf("date: %w", err)
	}
	return service.ExpenseInput{
		Label:      b.Label,
		Amount:     b.Amount,
		Date:       date,
		CategoryID: b.CategoryID,
	}, nil
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.Expenses.List(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	var body expenseBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	in, err := body.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	expense, run, err := s.Expenses.Create(r.Context(), userID(r), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"expense":        expense,
		"reconciliation": run,
	})
}

func (s *Server) updateExpense(w http.ResponseWriter, r *http.Request) {
	var body expenseBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	in, err := body.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	expense, err := s.Expenses.Update(r.Context(), userID(r), mux.Vars(r)["id"], in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.Expenses.Delete(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.Categories.List(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	category, err := s.Categories.Create(r.Context(), userID(r), body.Name, body.Color)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	category, err := s.Categories.Update(r.Context(), userID(r), mux.Vars(r)["id"], body.Name, body.Color)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.Categories.Delete(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ruleBody struct {
	Keyword    string           `json:"keyword"`
	CategoryID string           `json:"categoryId"`
	Amount     *decimal.Decimal `json:"amount"`
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	ruleset, err := s.Classifier.Rules.ListVisible(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleset)
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var body ruleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	rule, reclassified, err := s.Classifier.CreateRule(r.Context(), userID(r), body.Keyword, body.CategoryID, body.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":         rule,
		"reclassified": reclassified,
	})
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	var body ruleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	rule, reclassified, err := s.Classifier.UpdateRule(r.Context(), userID(r), mux.Vars(r)["id"], body.Keyword, body.CategoryID, body.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rule":         rule,
		"reclassified": reclassified,
	})
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	reclassified, err := s.Classifier.DeleteRule(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reclassified": reclassified})
}

func (s *Server) suggestRules(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.Suggester.Suggest(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) runReconciliation(w http.ResponseWriter, r *http.Request) {
	res, err := s.Reconciler.Run(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) confirmReconciliation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TransactionID string `json:"transactionId"`
		ExpenseID     string `json:"expenseId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	rec, err := s.Reconciler.Confirm(r.Context(), userID(r), body.TransactionID, body.ExpenseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) undoReconciliation(w http.ResponseWriter, r *http.Request) {
	if err := s.Reconciler.Undo(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type patternBody struct {
	Label          string           `json:"label"`
	Keyword        string           `json:"keyword"`
	Amount         *decimal.Decimal `json:"amount"`
	Frequency      string           `json:"frequency"`
	NextOccurrence *string          `json:"nextOccurrence"`
}

func (b patternBody) input() (service.PatternInput, error) {
	in := service.PatternInput{
		Label:     b.Label,
		Keyword:   b.Keyword,
		Amount:    b.Amount,
		Frequency: b.Frequency,
	}
	if b.NextOccurrence != nil {
		next, err := parseDate(*b.NextOccurrence)
		if err != nil {
			return in, fmt.Errorf("nextOccurrence: %w", err)
		}
		in.NextOccurrence = &next
	}
	return in, nil
}

func (s *Server) listPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.Patterns.List(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (s *Server) createPattern(w http.ResponseWriter, r *http.Request) {
	var body patternBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	in, err := body.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	pattern, err := s.Patterns.Create(r.Context(), userID(r), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pattern)
}

func (s *Server) updatePattern(w http.ResponseWriter, r *http.Request) {
	var body patternBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	in, err := body.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	pattern, err := s.Patterns.Update(r.Context(), userID(r), mux.Vars(r)["id"], in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pattern)
}

func (s *Server) deactivatePattern(w http.ResponseWriter, r *http.Request) {
	if err := s.Patterns.Deactivate(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) detectPatterns(w http.ResponseWriter, r *http.Request) {
	if err := s.Recurring.Detect(r.Context(), userID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) detectTransfers(w http.ResponseWriter, r *http.Request) {
	if err := s.Transfers.Detect(r.Context(), userID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTransferRules(w http.ResponseWriter, r *http.Request) {
	ruleset, err := s.Transfers.ListLabelRules(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleset)
}

func (s *Server) createTransferRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keyword string           `json:"keyword"`
		Label   string           `json:"label"`
		Amount  *decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "malformed body")
		return
	}
	rule, err := s.Transfers.CreateLabelRule(r.Context(), userID(r), body.Keyword, body.Label, body.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) deleteTransferRule(w http.ResponseWriter, r *http.Request) {
	if err := s.Transfers.DeleteLabelRule(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dashboardBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.Dashboard.Balances(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) dashboardSpend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "from: "+err.Error())
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "to: "+err.Error())
		return
	}
	spend, err := s.Dashboard.SpendByCategory(r.Context(), userID(r), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spend)
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "limit: not a number")
			return
		}
		limit = n
	}
	page, err := s.Dashboard.Timeline(r.Context(), userID(r), q.Get("cursor"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
