package gatewaytest

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/rshade/finsync/internal/auth"
	"github.com/rshade/finsync/internal/model"
	"github.com/rshade/finsync/internal/session"
)

const (
	codeUnauthenticated    = "unauthenticated"
	codeInvalidCredentials = "invalid_credentials"
	codeNotFound           = "not_found"
	codeValidation         = "validation_error"
)

func contextWithUser(r *http.Request, userID string) context.Context {
	return context.WithValue(r.Context(), ctxKey{}, userID)
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// ownerMatches rejects a user_id query naming someone other than the caller.
func ownerMatches(w http.ResponseWriter, r *http.Request) bool {
	if q := r.URL.Query().Get("user_id"); q != "" && q != userFrom(r) {
		writeError(w, http.StatusForbidden, codeUnauthenticated, "user_id does not match token")
		return false
	}
	return true
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.APIKey != "" && r.Header.Get("apikey") != s.APIKey {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid api key")
		return
	}
	switch r.URL.Query().Get("grant_type") {
	case auth.GrantPassword:
		var g auth.PasswordGrant
		if !decode(w, r, &g) {
			return
		}
		s.mu.Lock()
		u, ok := s.users[strings.ToLower(strings.TrimSpace(g.Email))]
		s.mu.Unlock()
		if !ok || u.hash == nil || bcrypt.CompareHashAndPassword(u.hash, []byte(g.Password)) != nil {
			writeError(w, http.StatusBadRequest, codeInvalidCredentials, "invalid email or password")
			return
		}
		s.mu.Lock()
		resp := s.issueLocked(u)
		s.mu.Unlock()
		writeData(w, http.StatusOK, resp)

	case auth.GrantRefreshToken:
		var g auth.RefreshGrant
		if !decode(w, r, &g) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		userID, ok := s.refresh[g.RefreshToken]
		u := s.userByIDLocked(userID)
		if !ok || u == nil {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid refresh token")
			return
		}
		delete(s.refresh, g.RefreshToken)
		writeData(w, http.StatusOK, s.issueLocked(u))

	case auth.GrantIDToken:
		var g auth.IDTokenGrant
		if !decode(w, r, &g) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		email, ok := s.idTokens[g.IDToken]
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidCredentials, "id token rejected")
			return
		}
		writeData(w, http.StatusOK, s.issueLocked(s.users[email]))

	default:
		writeError(w, http.StatusBadRequest, codeValidation, "unsupported grant_type")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.access, bearer(r))
	s.mu.Unlock()
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := s.userByIDLocked(userFrom(r))
	s.mu.Unlock()
	if u == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "user not found")
		return
	}
	writeData(w, http.StatusOK, session.User{ID: u.id, Email: u.email, DisplayName: u.displayName})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	p, ok := s.profiles[id]
	s.mu.Unlock()
	if id != userFrom(r) || !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "profile not found")
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id != userFrom(r) {
		writeError(w, http.StatusNotFound, codeNotFound, "profile not found")
		return
	}
	var upd session.ProfileUpdate
	if !decode(w, r, &upd) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[id]
	if upd.DisplayName != nil {
		p.DisplayName = *upd.DisplayName
	}
	if upd.Currency != nil {
		p.Currency = *upd.Currency
	}
	if upd.Language != nil {
		p.Language = *upd.Language
	}
	if upd.Timezone != nil {
		p.Timezone = *upd.Timezone
	}
	s.profiles[id] = p
	writeData(w, http.StatusOK, p)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if !ownerMatches(w, r) {
		return
	}
	q := r.URL.Query()
	var since civil.Date
	if raw := q.Get("since"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "invalid since date")
			return
		}
		since = d
	}
	txType := model.TransactionType(q.Get("type"))

	s.mu.Lock()
	out := []model.Transaction{}
	for _, tx := range s.transactions {
		if tx.UserID != userFrom(r) {
			continue
		}
		if !since.IsZero() && tx.Date.Before(since) {
			continue
		}
		if txType != "" && tx.Type != txType {
			continue
		}
		out = append(out, tx)
	}
	s.mu.Unlock()

	if q.Get("order") == "date.desc" {
		slices.SortFunc(out, func(a, b model.Transaction) int {
			if c := b.Date.Compare(a.Date); c != 0 {
				return c
			}
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
	writeData(w, http.StatusOK, out)
}

type transactionBody struct {
	UserID string `json:"user_id"`
	model.NewTransaction
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var body transactionBody
	if !decode(w, r, &body) {
		return
	}
	if body.UserID != userFrom(r) {
		writeError(w, http.StatusForbidden, codeUnauthenticated, "user_id does not match token")
		return
	}
	if err := body.Validate(); err != nil || body.Date.IsZero() {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "invalid transaction")
		return
	}
	s.mu.Lock()
	tx := model.Transaction{
		ID:          uuid.NewString(),
		UserID:      body.UserID,
		Amount:      body.Amount,
		Description: body.Description,
		Category:    body.Category,
		Type:        body.Type,
		Merchant:    body.Merchant,
		Date:        body.Date,
		CreatedAt:   s.now(),
	}
	s.transactions[tx.ID] = tx
	s.mu.Unlock()
	writeData(w, http.StatusCreated, tx)
}

// ownedTransaction returns the caller's transaction or writes a 404.
func (s *Server) ownedTransaction(w http.ResponseWriter, r *http.Request) (model.Transaction, bool) {
	s.mu.Lock()
	tx, ok := s.transactions[mux.Vars(r)["id"]]
	s.mu.Unlock()
	if !ok || tx.UserID != userFrom(r) {
		writeError(w, http.StatusNotFound, codeNotFound, "transaction not found")
		return model.Transaction{}, false
	}
	return tx, true
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	if tx, ok := s.ownedTransaction(w, r); ok {
		writeData(w, http.StatusOK, tx)
	}
}

func (s *Server) handlePatchTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.ownedTransaction(w, r)
	if !ok {
		return
	}
	var patch model.TransactionPatch
	if !decode(w, r, &patch) {
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	tx = patch.Apply(tx)
	s.mu.Lock()
	s.transactions[tx.ID] = tx
	s.mu.Unlock()
	writeData(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.ownedTransaction(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.transactions, tx.ID)
	s.mu.Unlock()
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	if !ownerMatches(w, r) {
		return
	}
	q := r.URL.Query()
	includeCompleted, _ := strconv.ParseBool(q.Get("include_completed"))
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, codeValidation, "invalid limit")
			return
		}
		limit = n
	}
	from, okFrom := parseTime(q.Get("due_from"))
	to, okTo := parseTime(q.Get("due_to"))

	s.mu.Lock()
	out := []model.Reminder{}
	for _, rem := range s.reminders {
		if rem.UserID != userFrom(r) || (rem.IsCompleted && !includeCompleted) {
			continue
		}
		if okFrom && (rem.DueAt == nil || rem.DueAt.Before(from)) {
			continue
		}
		if okTo && (rem.DueAt == nil || rem.DueAt.After(to)) {
			continue
		}
		out = append(out, rem)
	}
	s.mu.Unlock()

	model.SortReminders(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	writeData(w, http.StatusOK, out)
}

func parseTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, err == nil
}

type reminderBody struct {
	UserID string `json:"user_id"`
	model.NewReminder
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var body reminderBody
	if !decode(w, r, &body) {
		return
	}
	if body.UserID != userFrom(r) {
		writeError(w, http.StatusForbidden, codeUnauthenticated, "user_id does not match token")
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	s.mu.Lock()
	rem := model.Reminder{
		ID:                uuid.NewString(),
		UserID:            body.UserID,
		Title:             body.Title,
		Description:       body.Description,
		DueAt:             body.DueAt,
		Priority:          body.Priority,
		IsRecurring:       body.IsRecurring,
		RecurrencePattern: body.RecurrencePattern,
		CreatedAt:         s.now(),
	}
	if rem.Priority == "" {
		rem.Priority = model.PriorityMedium
	}
	s.reminders[rem.ID] = rem
	s.mu.Unlock()
	writeData(w, http.StatusCreated, rem)
}

func (s *Server) ownedReminder(w http.ResponseWriter, r *http.Request) (model.Reminder, bool) {
	s.mu.Lock()
	rem, ok := s.reminders[mux.Vars(r)["id"]]
	s.mu.Unlock()
	if !ok || rem.UserID != userFrom(r) {
		writeError(w, http.StatusNotFound, codeNotFound, "reminder not found")
		return model.Reminder{}, false
	}
	return rem, true
}

func (s *Server) handlePatchReminder(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.ownedReminder(w, r)
	if !ok {
		return
	}
	var patch model.ReminderPatch
	if !decode(w, r, &patch) {
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, err.Error())
		return
	}
	s.mu.Lock()
	rem = patch.Apply(rem, s.now())
	s.reminders[rem.ID] = rem
	s.mu.Unlock()
	writeData(w, http.StatusOK, rem)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.ownedReminder(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.reminders, rem.ID)
	s.mu.Unlock()
	writeData(w, http.StatusOK, nil)
}
