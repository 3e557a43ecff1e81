package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/journal"
)

type entryLineRequest struct {
	AccountID string          `json:"account_id" validate:"required"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo"`
}

type postEntryRequest struct {
	Date        time.Time          `json:"date"`
	Description string             `json:"description" validate:"required"`
	Lines       []entryLineRequest `json:"lines" validate:"min=2,dive"`
}

func (s *Server) postEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}

	lines := make([]journal.Line, len(req.Lines))
	for i, l := range req.Lines {
		accountID, err := uuid.Parse(l.AccountID)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		lines[i] = journal.Line{
			AccountID: accountID,
			Debit:     l.Debit,
			Credit:    l.Credit,
			Memo:      l.Memo,
		}
	}

	entry, err := s.journal.Post(journal.PostParams{
		Date:        req.Date,
		Description: req.Description,
		Lines:       lines,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, entry)
}

func (s *Server) getEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	entry, err := s.journal.Get(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, entry)
}

func (s *Server) reverseEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, s)
	if !ok {
		return
	}
	reversal, err := s.journal.Reverse(id, time.Now().UTC())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, reversal)
}

type trialBalanceResponse struct {
	AsOf         time.Time                 `json:"as_of"`
	Rows         []journal.TrialBalanceRow `json:"rows"`
	TotalDebits  decimal.Decimal           `json:"total_debits"`
	TotalCredits decimal.Decimal           `json:"total_credits"`
}

func (s *Server) trialBalanceHandler(w http.ResponseWriter, r *http.Request) {
	asOf, ok := queryTime(w, r, s, "as_of", time.Now().UTC())
	if !ok {
		return
	}
	rows, debits, credits, err := s.journal.TrialBalance(asOf)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, trialBalanceResponse{
		AsOf:         asOf,
		Rows:         rows,
		TotalDebits:  debits,
		TotalCredits: credits,
	})
}
