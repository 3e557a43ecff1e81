package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/accounts"
	"github.com/harambee-dev/harambee/internal/model"
)

type createAccountRequest struct {
	Code     int    `json:"code" validate:"gt=0"`
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required"`
	ParentID string `json:"parent_id"`
}

func (s *Server) createAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !s.decode(w, r, &req) {
		return
	}

	parentID := uuid.Nil
	if req.ParentID != "" {
		id, err := uuid.Parse(req.ParentID)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		parentID = id
	}

	account, err := s.accounts.Create(accounts.CreateParams{
		Code:     req.Code,
		Name:     req.Name,
		Type:     model.AccountType(req.Type),
		ParentID: parentID,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, account)
}

func (s *Server) listAccountsHandler(w http.ResponseWriter, r *http.Request) {
	tree, err := s.accounts.Tree()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, tree)
}

func (s *Server) deactivateAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	if err := s.accounts.Deactivate(id); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteAccountHandler removes an account outright; accounts with postings
// are refused and can only be deactivated.
func (s *Server) deleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	if err := s.accounts.Delete(id); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type balanceResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	AsOf      time.Time       `json:"as_of"`
	Balance   decimal.Decimal `json:"balance"`
}

func (s *Server) accountBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	asOf, ok := queryTime(w, r, s, "as_of", time.Now().UTC())
	if !ok {
		return
	}

	balance, err := s.accounts.BalanceAsOf(id, asOf)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, balanceResponse{AccountID: id, AsOf: asOf, Balance: balance})
}

func (s *Server) accountStatementHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	now := time.Now().UTC()
	from, ok := queryTime(w, r, s, "from", now.AddDate(0, -1, 0))
	if !ok {
		return
	}
	to, ok := queryTime(w, r, s, "to", now)
	if !ok {
		return
	}

	lines, err := s.journal.AccountStatement(id, from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, lines)
}

// pathID parses the {id} route variable as a UUID.
func pathID(w http.ResponseWriter, r *http.Request, s *Server) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.badRequest(w, err)
		return uuid.Nil, false
	}
	return id, true
}

// queryTime parses an RFC 3339 or date-only query parameter, falling back to
// def when absent.
func queryTime(w http.ResponseWriter, r *http.Request, s *Server, key string, def time.Time) (time.Time, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		s.badRequest(w, err)
		return time.Time{}, false
	}
	return t, true
}
