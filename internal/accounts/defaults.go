package accounts

import "github.com/harambee-dev/harambee/internal/model"

// DefaultSpec is one row of the seed chart.
type DefaultSpec struct {
	Code       int
	Name       string
	Type       model.AccountType
	ParentCode int // 0 = top-level
}

// DefaultChart returns the seed chart of accounts for a new society.
// Codes follow the 1000/2000/3000/4000/5000 convention.
func DefaultChart() []DefaultSpec {
	return []DefaultSpec{
		{Code: 1000, Name: "Current Assets", Type: model.AccountTypeAsset},
		{Code: 1010, Name: "Cash", Type: model.AccountTypeAsset, ParentCode: 1000},
		{Code: 1020, Name: "Bank", Type: model.AccountTypeAsset, ParentCode: 1000},
		{Code: 1030, Name: "M-Pesa Clearing", Type: model.AccountTypeAsset, ParentCode: 1000},
		{Code: 1200, Name: "Receivables", Type: model.AccountTypeAsset},
		{Code: 1210, Name: "Loans Receivable", Type: model.AccountTypeAsset, ParentCode: 1200},
		{Code: 2010, Name: "Member Savings", Type: model.AccountTypeLiability},
		{Code: 2020, Name: "Fixed Deposits", Type: model.AccountTypeLiability},
		{Code: 3010, Name: "Member Shares", Type: model.AccountTypeEquity},
		{Code: 3020, Name: "Retained Earnings", Type: model.AccountTypeEquity},
		{Code: 4000, Name: "Operating Income", Type: model.AccountTypeIncome},
		{Code: 4010, Name: "Interest Income", Type: model.AccountTypeIncome, ParentCode: 4000},
		{Code: 4020, Name: "Penalty Income", Type: model.AccountTypeIncome, ParentCode: 4000},
		{Code: 4030, Name: "Insurance Income", Type: model.AccountTypeIncome, ParentCode: 4000},
		{Code: 4040, Name: "Processing Fee Income", Type: model.AccountTypeIncome, ParentCode: 4000},
		{Code: 5010, Name: "Bank Charges", Type: model.AccountTypeExpense},
		{Code: 5020, Name: "Provision for Bad Debts", Type: model.AccountTypeExpense},
	}
}

// SeedDefaultChart creates the default chart, resolving parents by code.
// Rows must be ordered so a parent precedes its children.
func (s *Service) SeedDefaultChart() error {
	for _, spec := range DefaultChart() {
		p := CreateParams{Code: spec.Code, Name: spec.Name, Type: spec.Type}
		if spec.ParentCode != 0 {
			parent, err := s.GetByCode(spec.ParentCode)
			if err != nil {
				return err
			}
			p.ParentID = parent.ID
		}
		if _, err := s.Create(p); err != nil {
			return err
		}
	}
	return nil
}
