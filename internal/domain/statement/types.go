package statement

import (
	"fmt"
	"time"
)

// TransactionType classifies the direction of money movement.
type TransactionType string

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

// Transaction is a candidate bank transaction extracted from statement text.
// It is ephemeral until uploaded through the reconciliation workflow.
type Transaction struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      float64         `json:"amount"` // positive magnitude; direction is Type
	Type        TransactionType `json:"type"`
	RawLine     string          `json:"raw_line"`
	Confidence  float64         `json:"confidence"` // parse reliability, not match reliability
}

// DateString returns the canonical YYYY-MM-DD form of the transaction date.
func (t Transaction) DateString() string {
	return t.Date.Format("2006-01-02")
}

// Validate applies the same checks the parser applies before emitting a
// candidate. The workflow re-runs it on user-edited transactions.
func (t Transaction) Validate() error {
	if t.Amount <= 0 {
		return fmt.Errorf("transaction %s: amount must be positive", t.ID)
	}
	if len(cleanDescription(t.Description)) <= MinDescriptionLen {
		return fmt.Errorf("transaction %s: description too short", t.ID)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction %s: missing date", t.ID)
	}
	return nil
}
