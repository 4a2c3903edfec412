// Package ledger holds the internal expense records a statement is
// reconciled against. Expenses are owned by the persistence layer; the
// matching engine treats them read-only apart from the matched flag it
// helps set.
package ledger

import "time"

// Expense is a recorded internal expense awaiting reconciliation.
type Expense struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Vendor      string    `json:"vendor,omitempty"` // optional, distinct from description
	IsMatched   bool      `json:"is_matched"`       // true once bound to exactly one bank transaction
}

// DateString returns the canonical YYYY-MM-DD form of the expense date.
func (e Expense) DateString() string {
	return e.Date.Format("2006-01-02")
}
