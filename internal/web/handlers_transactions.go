package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ledger/internal/core"
)

// maxJSONBody caps JSON request bodies (1MB).
const maxJSONBody = 1 << 20

const (
	defaultPage  = 1
	defaultLimit = 10
)

// addRequest is the body of POST /api/transactions.
// Field names match case-insensitively, so "Currency" is accepted too.
type addRequest struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	Currency    string          `json:"currency"`
	Deleted     json.RawMessage `json:"deleted"`
}

// updateRequest is the body of PUT /api/transactions/{id}.
// Absent fields are left unchanged.
type updateRequest struct {
	Date        *string         `json:"date"`
	Description *string         `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	Currency    *string         `json:"currency"`
}

type updateResponse struct {
	Message     string            `json:"message"`
	Transaction *core.Transaction `json:"transaction"`
}

type deleteManyRequest struct {
	IDs []uint `json:"ids"`
}

type deleteManyResponse struct {
	Message             string             `json:"message"`
	DeletedTransactions []core.Transaction `json:"deletedTransactions"`
}

// handleListTransactions returns one page of active transactions.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := parsePositiveParam(r, "page", defaultPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation.Code(), err.Error())
		return
	}
	limit, err := parsePositiveParam(r, "limit", defaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation.Code(), err.Error())
		return
	}

	result, err := s.service.List(r.Context(), page, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetTransaction returns a single transaction, deleted or not.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	t, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleAddTransaction creates a transaction.
func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, err := rawAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation.Code(), err.Error())
		return
	}

	t, err := s.service.Add(r.Context(), core.NewTransaction{
		Date:            req.Date,
		Description:     req.Description,
		Amount:          amount,
		Currency:        req.Currency,
		DeletedSupplied: len(req.Deleted) > 0,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// handleUpdateTransaction applies a partial update.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	patch := core.TransactionPatch{
		Date:        req.Date,
		Description: req.Description,
		Currency:    req.Currency,
	}
	if len(req.Amount) > 0 {
		amount, err := rawAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, core.KindValidation.Code(), err.Error())
			return
		}
		patch.Amount = &amount
	}

	t, err := s.service.Update(r.Context(), id, patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Message:     "Transaction updated successfully",
		Transaction: t,
	})
}

// handleDeleteTransaction soft deletes one transaction.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if _, err := s.service.SoftDelete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Transaction marked as deleted successfully"})
}

// handleDeleteTransactions soft deletes every active transaction in the
// body's id list.
func (s *Server) handleDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var req deleteManyRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, core.ErrNoIDs)
		return
	}

	deleted, err := s.service.SoftDeleteMany(r.Context(), req.IDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteManyResponse{
		Message:             fmt.Sprintf("%d transactions deleted successfully.", len(deleted)),
		DeletedTransactions: deleted,
	})
}

// parseID reads the {id} URL parameter. On failure it writes a 400 and
// returns false.
func parseID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, core.KindValidation.Code(), "Invalid id")
		return 0, false
	}
	return uint(id), true
}

// parsePositiveParam parses an integer query parameter with a default value.
// Present values must be positive integers.
func parsePositiveParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return 0, fmt.Errorf("Invalid %s: must be a positive integer", name)
	}
	return i, nil
}

// decodeJSON decodes a bounded JSON body into v. On failure it writes a 400
// and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation.Code(), "Invalid request body")
		return false
	}
	return true
}

// rawAmount accepts an amount sent either as a JSON number or as a string.
// Absent or null amounts become "", which the service reports as missing.
func rawAmount(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "" || s == "null":
		return "", nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return "", fmt.Errorf("Invalid amount: %s", s)
		}
		return str, nil
	default:
		return s, nil
	}
}
