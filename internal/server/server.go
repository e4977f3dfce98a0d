// Package server is the thin JSON layer over the services. Handlers decode,
// delegate and encode; no business rules live here.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/service"
)

const userHeader = "X-User-ID"

// Server wires the HTTP routes to the services.
type Server struct {
	Accounts     *repository.AccountRepo
	Transactions *repository.TransactionRepo
	Imports      *repository.ImportRepo

	Ingestor   *service.Ingestor
	Classifier *service.Classifier
	Reconciler *service.Reconciler
	Recurring  *service.RecurringDetector
	Transfers  *service.TransferDetector
	Suggester  *service.Suggester
	Expenses   *service.Expenses
	Categories *service.Categories
	Patterns   *service.Patterns
	Dashboard  *service.Dashboard
}

// Router builds the full route table. Every route requires a resolved user
// id in the X-User-ID header; authentication itself happens upstream.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(requireUser)

	api.HandleFunc("/accounts", s.listAccounts).Methods(http.MethodGet)

	api.HandleFunc("/imports", s.importCSV).Methods(http.MethodPost)
	api.HandleFunc("/imports", s.listImports).Methods(http.MethodGet)

	api.HandleFunc("/transactions", s.listTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}/category", s.setTransactionCategory).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}/ignore", s.ignoreTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/unignore", s.unignoreTransaction).Methods(http.MethodPost)

	api.HandleFunc("/expenses", s.listExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses", s.createExpense).Methods(http.MethodPost)
	api.HandleFunc("/expenses/{id}", s.updateExpense).Methods(http.MethodPut)
	api.HandleFunc("/expenses/{id}", s.deleteExpense).Methods(http.MethodDelete)

	api.HandleFunc("/categories", s.listCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.createCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", s.updateCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id}", s.deleteCategory).Methods(http.MethodDelete)

	api.HandleFunc("/rules", s.listRules).Methods(http.MethodGet)
	api.HandleFunc("/rules", s.createRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/suggestions", s.suggestRules).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", s.updateRule).Methods(http.MethodPut)
	api.HandleFunc("/rules/{id}", s.deleteRule).Methods(http.MethodDelete)

	api.HandleFunc("/reconciliation/run", s.runReconciliation).Methods(http.MethodPost)
	api.HandleFunc("/reconciliation/confirm", s.confirmReconciliation).Methods(http.MethodPost)
	api.HandleFunc("/reconciliation/{id}", s.undoReconciliation).Methods(http.MethodDelete)

	api.HandleFunc("/patterns", s.listPatterns).Methods(http.MethodGet)
	api.HandleFunc("/patterns", s.createPattern).Methods(http.MethodPost)
	api.HandleFunc("/patterns/detect", s.detectPatterns).Methods(http.MethodPost)
	api.HandleFunc("/patterns/{id}", s.updatePattern).Methods(http.MethodPut)
	api.HandleFunc("/patterns/{id}/deactivate", s.deactivatePattern).Methods(http.MethodPost)

	api.HandleFunc("/transfers/detect", s.detectTransfers).Methods(http.MethodPost)
	api.HandleFunc("/transfers/rules", s.listTransferRules).Methods(http.MethodGet)
	api.HandleFunc("/transfers/rules", s.createTransferRule).Methods(http.MethodPost)
	api.HandleFunc("/transfers/rules/{id}", s.deleteTransferRule).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard/balances", s.dashboardBalances).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/spend", s.dashboardSpend).Methods(http.MethodGet)
	api.HandleFunc("/timeline", s.timeline).Methods(http.MethodGet)

	return r
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(userHeader)) == "" {
			writeError(w, http.StatusBadRequest, "validation", "missing "+userHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

type errorPayload struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	var p errorPayload
	p.Error.Kind = kind
	p.Error.Message = message
	writeJSON(w, status, p)
}

// writeServiceError maps the service sentinels onto response codes. Anything
// unrecognized is an internal error and its detail stays out of the response.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
