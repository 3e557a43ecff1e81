// Package accounts manages the chart of accounts: a strict tree of typed
// accounts whose balances are derived from the posting log.
package accounts

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harambee-dev/harambee/internal/fault"
	"github.com/harambee-dev/harambee/internal/model"
	"github.com/harambee-dev/harambee/internal/store"
)

// Service provides registry operations over the store.
type Service struct {
	store store.Storage
}

// NewService creates an account registry Service.
func NewService(st store.Storage) *Service {
	return &Service{store: st}
}

// CreateParams holds parameters for creating an account.
type CreateParams struct {
	Code     int
	Name     string
	Type     model.AccountType
	ParentID uuid.UUID // uuid.Nil for top-level
}

// Create adds an account to the chart. Codes are unique; a child must share
// its parent's type and the parent link may not form a cycle.
func (s *Service) Create(p CreateParams) (*model.Account, error) {
	if p.Code <= 0 {
		return nil, fault.Validationf(fault.CodeInvalidAmount, "account code must be positive, got %d", p.Code)
	}
	if p.Name == "" {
		return nil, fault.Validationf(fault.CodeInvalidAmount, "account name is required")
	}
	if !p.Type.Valid() {
		return nil, fault.Validationf(fault.CodeInvalidAmount, "unknown account type %q", p.Type)
	}

	if existing, err := s.store.GetAccountByCode(p.Code); err == nil && existing != nil {
		return nil, fault.Validationf(fault.CodeDuplicateAccountCode, "account code %d already exists", p.Code)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if p.ParentID != uuid.Nil {
		parent, err := s.store.GetAccount(p.ParentID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.Validationf(fault.CodeInvalidParent, "parent account %s does not exist", p.ParentID)
		}
		if err != nil {
			return nil, err
		}
		if parent.Type != p.Type {
			return nil, fault.Validationf(fault.CodeInvalidParent,
				"parent %d is %s but child is %s; nesting across types is not allowed", parent.Code, parent.Type, p.Type)
		}
	}

	a := &model.Account{
		ID:        uuid.New(),
		Code:      p.Code,
		Name:      p.Name,
		Type:      p.Type,
		ParentID:  p.ParentID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAccount(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Reparent moves an account under a new parent, rejecting cycles and
// cross-type nesting.
func (s *Service) Reparent(accountID, newParentID uuid.UUID) error {
	a, err := s.Get(accountID)
	if err != nil {
		return err
	}

	if newParentID != uuid.Nil {
		parent, err := s.store.GetAccount(newParentID)
		if errors.Is(err, store.ErrNotFound) {
			return fault.Validationf(fault.CodeInvalidParent, "parent account %s does not exist", newParentID)
		}
		if err != nil {
			return err
		}
		if parent.Type != a.Type {
			return fault.Validationf(fault.CodeInvalidParent,
				"parent %d is %s but account is %s", parent.Code, parent.Type, a.Type)
		}
		if err := s.checkNoCycle(accountID, newParentID); err != nil {
			return err
		}
	}

	a.ParentID = newParentID
	return s.store.UpdateAccount(a)
}

// checkNoCycle walks the ancestry of candidate and fails if it reaches
// account. The walk is bounded so a corrupt parent chain cannot loop forever.
func (s *Service) checkNoCycle(account, candidate uuid.UUID) error {
	const maxDepth = 64
	cur := candidate
	for depth := 0; cur != uuid.Nil; depth++ {
		if depth >= maxDepth {
			return fault.Invariantf(fault.CodeInvalidParent, "parent chain exceeds %d levels", maxDepth)
		}
		if cur == account {
			return fault.Validationf(fault.CodeInvalidParent, "reparenting %s under %s would create a cycle", account, candidate)
		}
		ancestor, err := s.store.GetAccount(cur)
		if err != nil {
			return err
		}
		cur = ancestor.ParentID
	}
	return nil
}

// Get returns an account by ID.
func (s *Service) Get(id uuid.UUID) (*model.Account, error) {
	a, err := s.store.GetAccount(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validationf(fault.CodeAccountNotFound, "account %s does not exist", id)
	}
	return a, err
}

// GetByCode returns an account by its chart code.
func (s *Service) GetByCode(code int) (*model.Account, error) {
	a, err := s.store.GetAccountByCode(code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validationf(fault.CodeAccountNotFound, "account code %d does not exist", code)
	}
	return a, err
}

// Deactivate marks an account inactive; further postings to it are rejected.
func (s *Service) Deactivate(id uuid.UUID) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}
	a.Active = false
	return s.store.UpdateAccount(a)
}

// Delete removes an account with no postings. Accounts that have been posted
// to are permanent and can only be deactivated.
func (s *Service) Delete(id uuid.UUID) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}
	used, err := s.store.AccountHasPostings(id)
	if err != nil {
		return err
	}
	if used {
		return fault.Statef(fault.CodeAccountInUse, "account %d has postings and cannot be deleted", a.Code)
	}
	return s.store.DeleteAccount(id)
}

// BalanceAsOf returns the signed balance of an account up to and including
// asOf. Debits increase asset/expense balances and decrease the rest.
func (s *Service) BalanceAsOf(id uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	a, err := s.Get(id)
	if err != nil {
		return decimal.Zero, err
	}
	debits, credits, err := s.store.SumPostings(id, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	if a.Type.DebitNormal() {
		return debits.Sub(credits), nil
	}
	return credits.Sub(debits), nil
}

// Node is one account with its children, for hierarchy listing.
type Node struct {
	Account  *model.Account `json:"account"`
	Children []*Node        `json:"children,omitempty"`
}

// Tree returns the chart as a forest ordered by code at every level.
func (s *Service) Tree() ([]*Node, error) {
	accounts, err := s.store.ListAccounts()
	if err != nil {
		return nil, err
	}

	nodes := make(map[uuid.UUID]*Node, len(accounts))
	for _, a := range accounts {
		nodes[a.ID] = &Node{Account: a}
	}

	var roots []*Node
	for _, a := range accounts {
		n := nodes[a.ID]
		if a.ParentID == uuid.Nil {
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[a.ParentID]
		if !ok {
			// Orphaned parent reference; surface at the top rather than drop.
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	sortNodes(roots)
	return roots, nil
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Account.Code < nodes[j].Account.Code
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// ResolveCode is a convenience for the posting paths that work in chart
// codes. It fails with AccountNotFound if the code is absent.
func (s *Service) ResolveCode(code int) (uuid.UUID, error) {
	a, err := s.GetByCode(code)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving ledger account %d: %w", code, err)
	}
	return a.ID, nil
}
