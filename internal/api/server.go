// Package api exposes the ledger and loan engine over HTTP. Handlers stay
// thin: decode, call the service, map faults to status codes.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/harambee-dev/harambee/internal/accounts"
	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/journal"
	"github.com/harambee-dev/harambee/internal/loans"
	"github.com/harambee-dev/harambee/internal/store"
)

// Server wires the services behind the HTTP surface.
type Server struct {
	accounts *accounts.Service
	journal  *journal.Service
	loans    *loans.Service
	log      *zap.Logger
	validate *validator.Validate
}

// NewServer builds a Server over already-constructed services.
func NewServer(acc *accounts.Service, jn *journal.Service, ln *loans.Service, log *zap.Logger) *Server {
	return &Server{
		accounts: acc,
		journal:  jn,
		loans:    ln,
		log:      log,
		validate: validator.New(),
	}
}

// Router returns the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/accounts", s.createAccountHandler).Methods("POST")
	r.HandleFunc("/accounts", s.listAccountsHandler).Methods("GET")
	r.HandleFunc("/accounts/{id}/balance", s.accountBalanceHandler).Methods("GET")
	r.HandleFunc("/accounts/{id}/statement", s.accountStatementHandler).Methods("GET")
	r.HandleFunc("/accounts/{id}/deactivate", s.deactivateAccountHandler).Methods("POST")
	r.HandleFunc("/accounts/{id}", s.deleteAccountHandler).Methods("DELETE")

	r.HandleFunc("/entries", s.postEntryHandler).Methods("POST")
	r.HandleFunc("/entries/{id}", s.getEntryHandler).Methods("GET")
	r.HandleFunc("/entries/{id}/reverse", s.reverseEntryHandler).Methods("POST")
	r.HandleFunc("/trial-balance", s.trialBalanceHandler).Methods("GET")

	r.HandleFunc("/products", s.createProductHandler).Methods("POST")
	r.HandleFunc("/eligibility", s.checkEligibilityHandler).Methods("POST")
	r.HandleFunc("/loans", s.applyHandler).Methods("POST")
	r.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	r.HandleFunc("/loans/{id}/approve", s.approveHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/reject", s.rejectHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/disburse", s.disburseHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/repayments", s.recordRepaymentHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/restructure", s.restructureHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/schedule", s.scheduleHandler).Methods("GET")
	r.HandleFunc("/loans/{id}/restructures", s.restructuresHandler).Methods("GET")
	r.HandleFunc("/guarantors/{id}/consent", s.consentHandler).Methods("POST")
	r.HandleFunc("/arrears/sweep", s.sweepHandler).Methods("POST")

	return r
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.log.Error("encoding response", zap.Error(err))
		}
	}
}

// fail maps service errors onto HTTP statuses. Invariant faults are server
// errors: they mean the ledger itself is suspect, not the request.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindState:
		status = http.StatusConflict
	case fault.KindEligibility:
		status = http.StatusUnprocessableEntity
	case fault.KindInvariant:
		status = http.StatusInternalServerError
	default:
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
	}
	if status >= 500 {
		s.log.Error("request failed", zap.Error(err))
	}
	s.respond(w, status, errorBody{
		Error: err.Error(),
		Code:  fault.CodeOf(err),
		Kind:  string(fault.KindOf(err)),
	})
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.respond(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// decode reads a JSON body and runs struct validation on it. An empty body
// decodes as the zero value so action endpoints can be called bare.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(w, err)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.badRequest(w, err)
		return false
	}
	return true
}
