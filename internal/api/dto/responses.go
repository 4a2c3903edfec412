package dto

import (
	"github.com/troopledger/reconcile/internal/domain/matcher"
	"github.com/troopledger/reconcile/internal/domain/statement"
	"github.com/troopledger/reconcile/internal/infrastructure/storage"
)

// ReconciliationResponse describes a session's current position.
type ReconciliationResponse struct {
	ID     string `json:"id"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
	Status string `json:"status"`
	Step   string `json:"step"`
}

// ParseResponse returns the candidates extracted from a statement.
type ParseResponse struct {
	Transactions []statement.Transaction `json:"transactions"`
	Count        int                     `json:"count"`
}

// MatchResponse returns a matching pass outcome.
type MatchResponse struct {
	Assessments []matcher.Assessment `json:"assessments"`
	AutoMatched []matcher.Result     `json:"auto_matched"`
}

// ReportResponse wraps the finalization report.
type ReportResponse struct {
	Report *storage.Report `json:"report"`
}
