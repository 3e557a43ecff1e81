package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harambee-dev/harambee/internal/accounts"
	"github.com/harambee-dev/harambee/internal/config"
	"github.com/harambee-dev/harambee/internal/journal"
	"github.com/harambee-dev/harambee/internal/loans"
	"github.com/harambee-dev/harambee/internal/logging"
	"github.com/harambee-dev/harambee/internal/model"
	"github.com/harambee-dev/harambee/internal/store"
)

type testAPI struct {
	server   *Server
	accounts *accounts.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dataDir := t.TempDir()
	st, err := store.NewSQLiteStore(dataDir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	acc := accounts.NewService(st)
	require.NoError(t, acc.SeedDefaultChart())

	log := logging.NewNop()
	jn := journal.NewService(st, log)
	cfg := config.Default("Test Sacco")
	ln := loans.NewService(st, jn, acc, cfg.Ledger, cfg.Arrears, dataDir, log)

	return &testAPI{server: NewServer(acc, jn, ln, log), accounts: acc}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.server.Router().ServeHTTP(rec, req)
	return rec
}

func parse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func (a *testAPI) accountID(t *testing.T, code int) string {
	t.Helper()
	acc, err := a.accounts.GetByCode(code)
	require.NoError(t, err)
	return acc.ID.String()
}

func TestCreateAccount(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, "POST", "/accounts", map[string]any{
		"code": 5010, "name": "Office Rent", "type": "expense",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Account
	parse(t, rec, &created)
	assert.Equal(t, 5010, created.Code)

	// Same code again is a validation failure.
	rec = a.do(t, "POST", "/accounts", map[string]any{
		"code": 5010, "name": "Rent Again", "type": "expense",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	parse(t, rec, &body)
	assert.Equal(t, "DuplicateAccountCode", body.Code)
	assert.Equal(t, "validation", body.Kind)
}

func TestDeleteAccount(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, "POST", "/accounts", map[string]any{
		"code": 5020, "name": "Stationery", "type": "expense",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Account
	parse(t, rec, &created)

	// An unused account can be removed outright.
	rec = a.do(t, "DELETE", "/accounts/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, "DELETE", "/accounts/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A posted-to account is permanent; it can only be deactivated.
	cash := a.accountID(t, 1010)
	income := a.accountID(t, 4010)
	rec = a.do(t, "POST", "/entries", map[string]any{
		"description": "Membership fees",
		"lines": []map[string]any{
			{"account_id": cash, "debit": "100.00"},
			{"account_id": income, "credit": "100.00"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, "DELETE", "/accounts/"+cash, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body errorBody
	parse(t, rec, &body)
	assert.Equal(t, "AccountInUse", body.Code)

	rec = a.do(t, "POST", "/accounts/"+cash+"/deactivate", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPostEntry(t *testing.T) {
	a := newTestAPI(t)
	cash := a.accountID(t, 1010)
	income := a.accountID(t, 4010)

	rec := a.do(t, "POST", "/entries", map[string]any{
		"description": "Membership fees",
		"date":        "2025-03-01T00:00:00Z",
		"lines": []map[string]any{
			{"account_id": cash, "debit": "150.00"},
			{"account_id": income, "credit": "150.00"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry model.JournalEntry
	parse(t, rec, &entry)
	assert.Equal(t, "JE-2025-03-0001", entry.Reference)
	require.Len(t, entry.Lines, 2)
}

func TestPostEntry_UnbalancedIsServerFault(t *testing.T) {
	a := newTestAPI(t)
	cash := a.accountID(t, 1010)
	income := a.accountID(t, 4010)

	rec := a.do(t, "POST", "/entries", map[string]any{
		"description": "Off by a cent",
		"lines": []map[string]any{
			{"account_id": cash, "debit": "100.00"},
			{"account_id": income, "credit": "99.99"},
		},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	parse(t, rec, &body)
	assert.Equal(t, "UnbalancedEntry", body.Code)
	assert.Equal(t, "invariant", body.Kind)
}

func TestPostEntry_SingleLineRejected(t *testing.T) {
	a := newTestAPI(t)
	cash := a.accountID(t, 1010)

	rec := a.do(t, "POST", "/entries", map[string]any{
		"description": "One-legged",
		"lines": []map[string]any{
			{"account_id": cash, "debit": "100.00"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLoan_UnknownID(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, "GET", "/loans/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	parse(t, rec, &body)
	assert.Equal(t, "LoanNotFound", body.Code)
}

func TestLoanFlow(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, "POST", "/products", map[string]any{
		"name":              "Emergency Loan",
		"method":            "flat",
		"annual_rate":       "0.12",
		"frequency":         "monthly",
		"min_amount":        "1000",
		"max_amount":        "1000000",
		"min_term_months":   1,
		"max_term_months":   36,
		"shares_multiplier": "3",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var product model.LoanProduct
	parse(t, rec, &product)

	member := map[string]any{
		"member_id":      uuid.NewString(),
		"active":         true,
		"shares_balance": "1000000",
	}

	rec = a.do(t, "POST", "/loans", map[string]any{
		"member":      member,
		"product_id":  product.ID.String(),
		"amount":      "120000",
		"term_months": 12,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var loan model.Loan
	parse(t, rec, &loan)
	assert.Equal(t, model.LoanStatusPending, loan.Status)

	base := "/loans/" + loan.ID.String()

	rec = a.do(t, "POST", base+"/approve", map[string]any{"actor": "manager"})
	require.Equal(t, http.StatusOK, rec.Code)

	// A second approval hits the lifecycle guard.
	rec = a.do(t, "POST", base+"/approve", map[string]any{"actor": "manager"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, "POST", base+"/disburse", map[string]any{
		"method": "bank",
		"as_of":  "2025-01-01T00:00:00Z",
		"actor":  "manager",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, "GET", base+"/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var schedule []model.Instalment
	parse(t, rec, &schedule)
	assert.Len(t, schedule, 12)

	repayment := map[string]any{
		"amount":    "11200",
		"method":    "mpesa",
		"reference": "TCA1B2C3D4",
		"as_of":     "2025-02-02T00:00:00Z",
		"actor":     "teller",
	}
	rec = a.do(t, "POST", base+"/repayments", repayment)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Replaying the reference is idempotent and reported as such.
	rec = a.do(t, "POST", base+"/repayments", repayment)
	require.Equal(t, http.StatusOK, rec.Code)
	var result loans.RepaymentResult
	parse(t, rec, &result)
	assert.True(t, result.AlreadyApplied)

	rec = a.do(t, "GET", "/trial-balance?as_of=2025-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tb trialBalanceResponse
	parse(t, rec, &tb)
	assert.True(t, tb.TotalDebits.Equal(tb.TotalCredits))
}

func TestEligibilityEndpoint(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, "POST", "/products", map[string]any{
		"name":              "Check Loan",
		"method":            "flat",
		"annual_rate":       "0.10",
		"frequency":         "monthly",
		"min_amount":        "1000",
		"max_amount":        "100000",
		"min_term_months":   1,
		"max_term_months":   24,
		"shares_multiplier": "3",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var product model.LoanProduct
	parse(t, rec, &product)

	rec = a.do(t, "POST", "/eligibility", map[string]any{
		"member": map[string]any{
			"member_id":      uuid.NewString(),
			"active":         false,
			"shares_balance": "50000",
		},
		"product_id":  product.ID.String(),
		"amount":      "50000",
		"term_months": 12,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Eligible bool `json:"eligible"`
		Checks   []struct {
			Name   string `json:"name"`
			Passed bool   `json:"passed"`
		} `json:"checks"`
	}
	parse(t, rec, &report)
	assert.False(t, report.Eligible)
	assert.Len(t, report.Checks, 10)
}

func TestSweepEndpoint(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, "POST", "/arrears/sweep", map[string]any{
		"as_of": time.Now().UTC().Format(time.RFC3339),
		"actor": "cron",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
