package storage

import (
	"database/sql"
	"fmt"
)

// migrations run in order; schema_migrations tracks the applied version.
var migrations = []string{
	// 1: core schema
	`CREATE TABLE IF NOT EXISTS reconciliations (
		id            TEXT PRIMARY KEY,
		month         INTEGER NOT NULL,
		year          INTEGER NOT NULL,
		status        TEXT NOT NULL DEFAULT 'not_started',
		created_at    TIMESTAMP NOT NULL,
		completed_at  TIMESTAMP,
		UNIQUE(month, year)
	);
	CREATE TABLE IF NOT EXISTS bank_transactions (
		id                 TEXT PRIMARY KEY,
		reconciliation_id  TEXT NOT NULL REFERENCES reconciliations(id),
		txn_date           TEXT NOT NULL,
		description        TEXT NOT NULL,
		amount             REAL NOT NULL,
		txn_type           TEXT NOT NULL,
		raw_line           TEXT,
		confidence         REAL NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS ledger_expenses (
		id           TEXT PRIMARY KEY,
		expense_date TEXT NOT NULL,
		amount       REAL NOT NULL,
		description  TEXT NOT NULL,
		vendor       TEXT,
		is_matched   INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS match_results (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		reconciliation_id    TEXT NOT NULL REFERENCES reconciliations(id),
		bank_transaction_id  TEXT NOT NULL UNIQUE,
		expense_id           TEXT NOT NULL UNIQUE,
		confidence           REAL NOT NULL,
		origin               TEXT NOT NULL,
		created_at           TIMESTAMP NOT NULL
	);`,

	// 2: lookup indexes for the matching pass
	`CREATE INDEX IF NOT EXISTS idx_bank_transactions_reconciliation
		ON bank_transactions(reconciliation_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_expenses_unmatched
		ON ledger_expenses(is_matched);
	CREATE INDEX IF NOT EXISTS idx_match_results_reconciliation
		ON match_results(reconciliation_id);`,
}

// runMigrations applies any pending migrations.
func (s *Storage) runMigrations() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: begin: %w", version, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: record version: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", version, err)
		}
	}

	return nil
}
