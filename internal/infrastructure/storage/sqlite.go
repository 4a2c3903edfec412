// Package storage persists reconciliations, uploaded bank transactions,
// ledger expenses and committed matches in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/troopledger/reconcile/internal/domain/ledger"
	"github.com/troopledger/reconcile/internal/domain/matcher"
	"github.com/troopledger/reconcile/internal/domain/statement"
)

const dateLayout = "2006-01-02"

// Storage provides SQLite database access. It implements Repository.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens (or creates) the database at dbPath and applies pending
// migrations.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// StartReconciliation resumes the record for (month, year) if one exists,
// otherwise creates it in not_started.
func (s *Storage) StartReconciliation(ctx context.Context, month, year int) (*Reconciliation, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}

	rec, err := s.findReconciliation(ctx, `month = ? AND year = ?`, month, year)
	if err == nil {
		return rec, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	rec = &Reconciliation{
		ID:        uuid.NewString(),
		Month:     month,
		Year:      year,
		Status:    StatusNotStarted,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reconciliations (id, month, year, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Month, rec.Year, rec.Status, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciliation: %w", err)
	}
	return rec, nil
}

// GetReconciliation retrieves a reconciliation by id.
func (s *Storage) GetReconciliation(ctx context.Context, id string) (*Reconciliation, error) {
	return s.findReconciliation(ctx, `id = ?`, id)
}

func (s *Storage) findReconciliation(ctx context.Context, where string, args ...any) (*Reconciliation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, month, year, status, created_at, completed_at FROM reconciliations WHERE `+where, args...)

	var rec Reconciliation
	var completedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.Month, &rec.Year, &rec.Status, &rec.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reconciliation: %w", err)
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return &rec, nil
}

// UploadTransactions replaces the transaction set for the reconciliation
// and moves it to in_progress. Re-upload on backward navigation is allowed
// as long as the reconciliation is not completed; matches recorded against
// the discarded set are deleted and their expenses reopened, since a match
// cannot outlive the transaction it binds.
func (s *Storage) UploadTransactions(ctx context.Context, reconciliationID string, txns []statement.Transaction) error {
	rec, err := s.GetReconciliation(ctx, reconciliationID)
	if err != nil {
		return err
	}
	if rec.Status == StatusCompleted {
		return fmt.Errorf("reconciliation %s is already completed", reconciliationID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upload: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_expenses SET is_matched = 0
		 WHERE id IN (SELECT expense_id FROM match_results WHERE reconciliation_id = ?)`,
		reconciliationID); err != nil {
		return fmt.Errorf("failed to reopen matched expenses: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM match_results WHERE reconciliation_id = ?`, reconciliationID); err != nil {
		return fmt.Errorf("failed to clear previous matches: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bank_transactions WHERE reconciliation_id = ?`, reconciliationID); err != nil {
		return fmt.Errorf("failed to clear previous upload: %w", err)
	}

	for _, t := range txns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bank_transactions
			 (id, reconciliation_id, txn_date, description, amount, txn_type, raw_line, confidence)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, reconciliationID, t.DateString(), t.Description, t.Amount, t.Type, t.RawLine, t.Confidence); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE reconciliations SET status = ? WHERE id = ?`, StatusInProgress, reconciliationID); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	return tx.Commit()
}

// GetMatchableRecords returns the uploaded transactions (most recent
// first) and the expenses still open for matching.
func (s *Storage) GetMatchableRecords(ctx context.Context, reconciliationID string) ([]statement.Transaction, []ledger.Expense, error) {
	if _, err := s.GetReconciliation(ctx, reconciliationID); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, txn_date, description, amount, txn_type, raw_line, confidence
		 FROM bank_transactions WHERE reconciliation_id = ? ORDER BY txn_date DESC`, reconciliationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()

	var txns []statement.Transaction
	for rows.Next() {
		var t statement.Transaction
		var date string
		if err := rows.Scan(&t.ID, &date, &t.Description, &t.Amount, &t.Type, &t.RawLine, &t.Confidence); err != nil {
			return nil, nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if t.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, nil, fmt.Errorf("bad stored date %q: %w", date, err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	expenses, err := s.ListExpenses(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	return txns, expenses, nil
}

// RecordMatch persists a committed match inside one transaction: the match
// row and the expense's matched flag move together. An expense bound
// elsewhere fails with ErrExpenseMatched.
func (s *Storage) RecordMatch(ctx context.Context, reconciliationID string, result matcher.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin match: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var matched bool
	err = tx.QueryRowContext(ctx,
		`SELECT is_matched FROM ledger_expenses WHERE id = ?`, result.ExpenseID).Scan(&matched)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load expense: %w", err)
	}
	if matched {
		return ErrExpenseMatched
	}

	var already int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_results WHERE bank_transaction_id = ?`,
		result.BankTransactionID).Scan(&already); err != nil {
		return fmt.Errorf("failed to check existing match: %w", err)
	}
	if already > 0 {
		return ErrDuplicateMatch
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO match_results
		 (reconciliation_id, bank_transaction_id, expense_id, confidence, origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		reconciliationID, result.BankTransactionID, result.ExpenseID,
		result.Confidence, result.Origin, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_expenses SET is_matched = 1 WHERE id = ?`, result.ExpenseID); err != nil {
		return fmt.Errorf("failed to flag expense: %w", err)
	}

	return tx.Commit()
}

// ListMatches returns the matches recorded for a reconciliation.
func (s *Storage) ListMatches(ctx context.Context, reconciliationID string) ([]matcher.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bank_transaction_id, expense_id, confidence, origin
		 FROM match_results WHERE reconciliation_id = ? ORDER BY id`, reconciliationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}
	defer rows.Close()

	var results []matcher.Result
	for rows.Next() {
		var r matcher.Result
		if err := rows.Scan(&r.BankTransactionID, &r.ExpenseID, &r.Confidence, &r.Origin); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// FinalizeReconciliation marks the reconciliation completed and builds the
// summary report. Unmatched transactions count as discrepancies.
func (s *Storage) FinalizeReconciliation(ctx context.Context, reconciliationID string) (*Report, error) {
	rec, err := s.GetReconciliation(ctx, reconciliationID)
	if err != nil {
		return nil, err
	}

	txns, _, err := s.GetMatchableRecords(ctx, reconciliationID)
	if err != nil {
		return nil, err
	}
	matches, err := s.ListMatches(ctx, reconciliationID)
	if err != nil {
		return nil, err
	}

	matchedIDs := make(map[string]bool, len(matches))
	report := &Report{
		ReconciliationID:  reconciliationID,
		Month:             rec.Month,
		Year:              rec.Year,
		TotalTransactions: len(txns),
		Matched:           len(matches),
		FinalizedAt:       time.Now().UTC(),
	}
	for _, m := range matches {
		matchedIDs[m.BankTransactionID] = true
		if m.Origin == matcher.OriginAuto {
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

	now := report.FinalizedAt
	if _, err := s.db.ExecContext(ctx,
		`UPDATE reconciliations SET status = ?, completed_at = ? WHERE id = ?`,
		StatusCompleted, now, reconciliationID); err != nil {
		return nil, fmt.Errorf("failed to complete reconciliation: %w", err)
	}

	return report, nil
}

// SeedExpenses inserts ledger expenses, generating ids where missing.
func (s *Storage) SeedExpenses(ctx context.Context, expenses []ledger.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range expenses {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_expenses (id, expense_date, amount, description, vendor, is_matched)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.DateString(), e.Amount, e.Description, e.Vendor, boolToInt(e.IsMatched)); err != nil {
			return fmt.Errorf("failed to insert expense %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// ListExpenses returns ledger expenses, optionally only unmatched ones.
func (s *Storage) ListExpenses(ctx context.Context, onlyUnmatched bool) ([]ledger.Expense, error) {
	query := `SELECT id, expense_date, amount, description, vendor, is_matched FROM ledger_expenses`
	if onlyUnmatched {
		query += ` WHERE is_matched = 0`
	}
	query += ` ORDER BY expense_date DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	defer rows.Close()

	var expenses []ledger.Expense
	for rows.Next() {
		var e ledger.Expense
		var date string
		var vendor sql.NullString
		var matched int
		if err := rows.Scan(&e.ID, &date, &e.Amount, &e.Description, &vendor, &matched); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		if e.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("bad stored date %q: %w", date, err)
		}
		e.Vendor = vendor.String
		e.IsMatched = matched != 0
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
