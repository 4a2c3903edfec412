package storage

import (
	"context"

	"github.com/troopledger/reconcile/internal/domain/ledger"
	"github.com/troopledger/reconcile/internal/domain/matcher"
	"github.com/troopledger/reconcile/internal/domain/statement"
)

// Repository is the persistence boundary the reconciliation workflow talks
// to. Implementations: SQLite for real use, MockRepository for tests.
type Repository interface {
	// StartReconciliation creates a reconciliation record for the period,
	// or resumes the existing one.
	StartReconciliation(ctx context.Context, month, year int) (*Reconciliation, error)

	// GetReconciliation retrieves a reconciliation by id.
	GetReconciliation(ctx context.Context, id string) (*Reconciliation, error)

	// UploadTransactions replaces the confirmed transaction set for a
	// reconciliation and moves it to in_progress. Safe to call again on
	// backward navigation; matches recorded against the replaced set are
	// released and their expenses reopened.
	UploadTransactions(ctx context.Context, reconciliationID string, txns []statement.Transaction) error

	// GetMatchableRecords returns the uploaded bank transactions plus the
	// ledger expenses still open for matching.
	GetMatchableRecords(ctx context.Context, reconciliationID string) ([]statement.Transaction, []ledger.Expense, error)

	// RecordMatch persists a committed match and flags the expense matched.
	// Fails if the expense is already bound.
	RecordMatch(ctx context.Context, reconciliationID string, result matcher.Result) error

	// ListMatches returns the matches recorded for a reconciliation.
	ListMatches(ctx context.Context, reconciliationID string) ([]matcher.Result, error)

	// FinalizeReconciliation marks the reconciliation completed and returns
	// the summary report.
	FinalizeReconciliation(ctx context.Context, reconciliationID string) (*Report, error)

	// SeedExpenses inserts ledger expenses (import path for the CLI and API).
	SeedExpenses(ctx context.Context, expenses []ledger.Expense) error

	// ListExpenses returns ledger expenses, optionally only unmatched ones.
	ListExpenses(ctx context.Context, onlyUnmatched bool) ([]ledger.Expense, error)

	Close() error
}
