package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/model"
)

// MpesaParser parses M-Pesa paybill statement CSV exports. Only completed
// inflows with an account reference are returned; reversals and charges are
// skipped.
type MpesaParser struct{}

const (
	mpesaDateFormat = "02-01-2006 15:04:05"
	mpesaNumFields  = 6
	mpesaColReceipt = 0
	mpesaColDate    = 1
	mpesaColDetails = 2
	mpesaColStatus  = 3
	mpesaColPaidIn  = 4
	mpesaColAccount = 5
)

// Format returns the parser name.
func (p *MpesaParser) Format() string { return "mpesa" }

// Parse reads an M-Pesa statement CSV and returns settlement rows.
func (p *MpesaParser) Parse(r io.Reader) ([]model.SettlementRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = mpesaNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading mpesa CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var rows []model.SettlementRow
	for i, rec := range records[1:] {
		row, ok, err := parseMpesaRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseMpesaRow(rec []string) (model.SettlementRow, bool, error) {
	if !strings.EqualFold(strings.TrimSpace(rec[mpesaColStatus]), "completed") {
		return model.SettlementRow{}, false, nil
	}

	paidIn := strings.TrimSpace(rec[mpesaColPaidIn])
	if paidIn == "" {
		// Outflow or charge row, nothing to settle.
		return model.SettlementRow{}, false, nil
	}

	completedAt, err := time.Parse(mpesaDateFormat, rec[mpesaColDate])
	if err != nil {
		return model.SettlementRow{}, false, fmt.Errorf("parsing completion time %q: %w", rec[mpesaColDate], err)
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(paidIn, ",", ""))
	if err != nil {
		return model.SettlementRow{}, false, fmt.Errorf("parsing paid-in amount %q: %w", paidIn, err)
	}
	if !amount.IsPositive() {
		return model.SettlementRow{}, false, nil
	}

	receipt := strings.TrimSpace(rec[mpesaColReceipt])
	if receipt == "" {
		return model.SettlementRow{}, false, fmt.Errorf("missing receipt number")
	}

	return model.SettlementRow{
		Receipt:     receipt,
		CompletedAt: completedAt,
		Amount:      amount,
		LoanRef:     strings.ToUpper(strings.TrimSpace(rec[mpesaColAccount])),
		Method:      "mpesa",
	}, true, nil
}
