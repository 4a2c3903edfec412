package matcher

import (
	"github.com/troopledger/reconcile/internal/domain/ledger"
	"github.com/troopledger/reconcile/internal/domain/statement"
)

// Config holds matching engine configuration.
type Config struct {
	// AutoMatchThreshold is the minimum best-match confidence for a
	// transaction to be committed without human review. Inclusive.
	AutoMatchThreshold float64

	// SuggestionFloor is the confidence below which a candidate is not
	// worth surfacing at all.
	SuggestionFloor float64

	// Workers bounds the fan-out of the scoring pass.
	Workers int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AutoMatchThreshold: 0.70,
		SuggestionFloor:    0.30,
		Workers:            4,
	}
}

// Suggestion is a scored candidate pairing, recomputed fresh on every
// matching pass and never persisted on its own.
type Suggestion struct {
	Expense    ledger.Expense `json:"expense"`
	Confidence float64        `json:"confidence"`
	Reasons    []string       `json:"match_reasons"`
}

// Assessment is the engine's verdict for one bank transaction.
type Assessment struct {
	Transaction statement.Transaction `json:"transaction"`
	Suggestions []Suggestion          `json:"suggestions"` // descending by confidence
	BestMatch   *Suggestion           `json:"best_match,omitempty"`
	AutoMatch   bool                  `json:"auto_match"`
}

// Origin records how a match was committed.
type Origin string

const (
	OriginAuto   Origin = "auto"
	OriginManual Origin = "manual"
)

// Result is a committed pairing between a bank transaction and a ledger
// expense. Immutable once created.
type Result struct {
	BankTransactionID string  `json:"bank_transaction_id"`
	ExpenseID         string  `json:"expense_id"`
	Confidence        float64 `json:"confidence"`
	Origin            Origin  `json:"origin"`
}
