package dto

import "github.com/troopledger/reconcile/internal/domain/statement"

// StartReconciliationRequest selects the reconciliation period.
type StartReconciliationRequest struct {
	Month int `json:"month" binding:"required,min=1,max=12"`
	Year  int `json:"year" binding:"required,min=1900"`
}

// UploadStatementRequest carries the OCR collaborator's output.
type UploadStatementRequest struct {
	Text          string  `json:"text" binding:"required"`
	OCRConfidence float64 `json:"ocr_confidence"`
}

// ConfirmTransactionsRequest carries the user-confirmed (possibly edited)
// transaction set. An empty list confirms the parsed set as-is.
type ConfirmTransactionsRequest struct {
	Transactions []statement.Transaction `json:"transactions"`
}

// ManualMatchRequest binds a transaction to an expense explicitly.
type ManualMatchRequest struct {
	BankTransactionID string `json:"bank_transaction_id" binding:"required"`
	ExpenseID         string `json:"expense_id" binding:"required"`
}
