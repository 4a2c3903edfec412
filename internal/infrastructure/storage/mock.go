package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/troopledger/reconcile/internal/domain/ledger"
	"github.com/troopledger/reconcile/internal/domain/matcher"
	"github.com/troopledger/reconcile/internal/domain/statement"
)

// MockRepository is an in-memory Repository for testing. All data lives in
// maps, keeping tests fast and isolated.
type MockRepository struct {
	reconciliations map[string]*Reconciliation
	transactions    map[string][]statement.Transaction // keyed by reconciliation id
	expenses        map[string]*ledger.Expense
	expenseOrder    []string
	matches         map[string][]matcher.Result // keyed by reconciliation id

	// Hooks for test assertions
	UploadTransactionsCalled bool
	RecordMatchCalled        bool
	FinalizeCalled           bool
	LastRecordedMatch        *matcher.Result

	// Error injection for testing failure paths
	StartReconciliationErr error
	UploadTransactionsErr  error
	GetMatchableRecordsErr error
	RecordMatchErr         error
	FinalizeErr            error
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates an empty mock repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		reconciliations: make(map[string]*Reconciliation),
		transactions:    make(map[string][]statement.Transaction),
		expenses:        make(map[string]*ledger.Expense),
		matches:         make(map[string][]matcher.Result),
	}
}

// Close does nothing for the mock.
func (m *MockRepository) Close() error { return nil }

func (m *MockRepository) StartReconciliation(_ context.Context, month, year int) (*Reconciliation, error) {
	if m.StartReconciliationErr != nil {
		return nil, m.StartReconciliationErr
	}
	for _, rec := range m.reconciliations {
		if rec.Month == month && rec.Year == year {
			copied := *rec
			return &copied, nil
		}
	}
	rec := &Reconciliation{
		ID:        uuid.NewString(),
		Month:     month,
		Year:      year,
		Status:    StatusNotStarted,
		CreatedAt: time.Now().UTC(),
	}
	m.reconciliations[rec.ID] = rec
	copied := *rec
	return &copied, nil
}

func (m *MockRepository) GetReconciliation(_ context.Context, id string) (*Reconciliation, error) {
	rec, ok := m.reconciliations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (m *MockRepository) UploadTransactions(_ context.Context, reconciliationID string, txns []statement.Transaction) error {
	m.UploadTransactionsCalled = true
	if m.UploadTransactionsErr != nil {
		return m.UploadTransactionsErr
	}
	rec, ok := m.reconciliations[reconciliationID]
	if !ok {
		return ErrNotFound
	}
	// Matches cannot outlive the transactions they bind.
	for _, r := range m.matches[reconciliationID] {
		if exp, ok := m.expenses[r.ExpenseID]; ok {
			exp.IsMatched = false
		}
	}
	delete(m.matches, reconciliationID)
	m.transactions[reconciliationID] = append([]statement.Transaction(nil), txns...)
	rec.Status = StatusInProgress
	return nil
}

func (m *MockRepository) GetMatchableRecords(_ context.Context, reconciliationID string) ([]statement.Transaction, []ledger.Expense, error) {
	if m.GetMatchableRecordsErr != nil {
		return nil, nil, m.GetMatchableRecordsErr
	}
	if _, ok := m.reconciliations[reconciliationID]; !ok {
		return nil, nil, ErrNotFound
	}
	txns := append([]statement.Transaction(nil), m.transactions[reconciliationID]...)
	var expenses []ledger.Expense
	for _, id := range m.expenseOrder {
		if e := m.expenses[id]; !e.IsMatched {
			expenses = append(expenses, *e)
		}
	}
	return txns, expenses, nil
}

func (m *MockRepository) RecordMatch(_ context.Context, reconciliationID string, result matcher.Result) error {
	m.RecordMatchCalled = true
	m.LastRecordedMatch = &result
	if m.RecordMatchErr != nil {
		return m.RecordMatchErr
	}
	exp, ok := m.expenses[result.ExpenseID]
	if !ok {
		return ErrNotFound
	}
	if exp.IsMatched {
		return ErrExpenseMatched
	}
	for _, existing := range m.matches[reconciliationID] {
		if existing.BankTransactionID == result.BankTransactionID {
			return ErrDuplicateMatch
		}
	}
	exp.IsMatched = true
	m.matches[reconciliationID] = append(m.matches[reconciliationID], result)
	return nil
}

func (m *MockRepository) ListMatches(_ context.Context, reconciliationID string) ([]matcher.Result, error) {
	return append([]matcher.Result(nil), m.matches[reconciliationID]...), nil
}

func (m *MockRepository) FinalizeReconciliation(_ context.Context, reconciliationID string) (*Report, error) {
	m.FinalizeCalled = true
	if m.FinalizeErr != nil {
		return nil, m.FinalizeErr
	}
	rec, ok := m.reconciliations[reconciliationID]
	if !ok {
		return nil, ErrNotFound
	}

	txns := m.transactions[reconciliationID]
	matches := m.matches[reconciliationID]
	matchedIDs := make(map[string]bool, len(matches))

	report := &Report{
		ReconciliationID:  reconciliationID,
		Month:             rec.Month,
		Year:              rec.Year,
		TotalTransactions: len(txns),
		Matched:           len(matches),
		FinalizedAt:       time.Now().UTC(),
	}
	for _, match := range matches {
		matchedIDs[match.BankTransactionID] = true
		if match.Origin == matcher.OriginAuto {
			report.AutoMatched++
		} else {
			report.ManualMatched++
		}
	}
	for _, t := range txns {
		if !matchedIDs[t.ID] {
			report.Unmatched++
			report.DiscrepancyTotal += t.Amount
		}
	}
	if len(txns) > 0 {
		report.MatchRate = float64(report.Matched) / float64(len(txns)) * 100
	}

	rec.Status = StatusCompleted
	now := report.FinalizedAt
	rec.CompletedAt = &now
	return report, nil
}

func (m *MockRepository) SeedExpenses(_ context.Context, expenses []ledger.Expense) error {
	for _, e := range expenses {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		copied := e
		m.expenses[e.ID] = &copied
		m.expenseOrder = append(m.expenseOrder, e.ID)
	}
	return nil
}

func (m *MockRepository) ListExpenses(_ context.Context, onlyUnmatched bool) ([]ledger.Expense, error) {
	var expenses []ledger.Expense
	for _, id := range m.expenseOrder {
		e := m.expenses[id]
		if onlyUnmatched && e.IsMatched {
			continue
		}
		expenses = append(expenses, *e)
	}
	return expenses, nil
}
