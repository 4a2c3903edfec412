package storage

import (
	"errors"
	"time"
)

// Sentinel errors surfaced across the persistence boundary.
var (
	ErrNotFound       = errors.New("record not found")
	ErrExpenseMatched = errors.New("expense is already matched")
	ErrDuplicateMatch = errors.New("bank transaction is already matched")
)

// Status is the lifecycle state of a reconciliation.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Reconciliation scopes one reconciliation session to a (month, year)
// period.
type Reconciliation struct {
	ID          string     `json:"id"`
	Month       int        `json:"month"` // 1-12
	Year        int        `json:"year"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Report is the finalization summary. Unmatched transactions stay visible
// as discrepancies rather than blocking completion.
type Report struct {
	ReconciliationID  string    `json:"reconciliation_id"`
	Month             int       `json:"month"`
	Year              int       `json:"year"`
	TotalTransactions int       `json:"total_transactions"`
	Matched           int       `json:"matched"`
	AutoMatched       int       `json:"auto_matched"`
	ManualMatched     int       `json:"manual_matched"`
	Unmatched         int       `json:"unmatched"`
	MatchRate         float64   `json:"match_rate"` // 0-100
	DiscrepancyTotal  float64   `json:"discrepancy_total"`
	FinalizedAt       time.Time `json:"finalized_at"`
}
