// Package reconcile sequences the reconciliation workflow: period
// selection, statement upload, transaction matching, report finalization.
//
// Steps advance strictly forward; backward navigation is allowed and
// preserves everything already entered. Persistence failures hold the
// current step so the caller can retry.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/troopledger/reconcile/internal/domain/ledger"
	"github.com/troopledger/reconcile/internal/domain/matcher"
	"github.com/troopledger/reconcile/internal/domain/statement"
	"github.com/troopledger/reconcile/internal/infrastructure/storage"
)

// Step is a workflow position.
type Step int

const (
	StepPeriodSelection Step = iota
	StepStatementUpload
	StepTransactionMatching
	StepReportFinalization
)

// String returns the human-readable step name.
func (s Step) String() string {
	switch s {
	case StepPeriodSelection:
		return "period_selection"
	case StepStatementUpload:
		return "statement_upload"
	case StepTransactionMatching:
		return "transaction_matching"
	case StepReportFinalization:
		return "report_finalization"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

var (
	// ErrWrongStep is returned when an operation runs at the wrong step.
	ErrWrongStep = errors.New("operation not valid at current step")

	// ErrInvalidPeriod is returned for an out-of-range (month, year).
	ErrInvalidPeriod = errors.New("invalid reconciliation period")

	// ErrForwardJump is returned when GoBack targets a later step.
	ErrForwardJump = errors.New("can only navigate to an earlier step")

	// ErrValidation is returned when a confirmed transaction set fails the
	// parser's checks.
	ErrValidation = errors.New("transaction validation failed")
)

// Extractor is the OCR collaborator: a long-running external operation
// that reports fractional progress while recovering text from a statement
// image.
type Extractor interface {
	Extract(ctx context.Context, onProgress func(percent float64)) (text string, confidence float64, err error)
}

// Session drives one reconciliation from the caller's perspective. It is
// cooperative and single-threaded: each step is a sequential
// request/response exchange with the persistence layer.
type Session struct {
	store  storage.Repository
	parser *statement.Parser
	engine *matcher.Engine
	logger *slog.Logger

	step           Step
	reconciliation *storage.Reconciliation
	ocrConfidence  float64
	parsed         []statement.Transaction
	expenses       []ledger.Expense
	assessments    []matcher.Assessment
	results        []matcher.Result
}

// NewSession creates a workflow session at the period-selection step.
func NewSession(store storage.Repository, parser *statement.Parser, engine *matcher.Engine, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:  store,
		parser: parser,
		engine: engine,
		logger: logger,
		step:   StepPeriodSelection,
	}
}

// Step returns the current workflow position.
func (s *Session) Step() Step { return s.step }

// Reconciliation returns the record fixed at period selection, or nil.
func (s *Session) Reconciliation() *storage.Reconciliation { return s.reconciliation }

// ParsedTransactions returns the candidates from the last statement parse.
func (s *Session) ParsedTransactions() []statement.Transaction { return s.parsed }

// Assessments returns the results of the last matching pass.
func (s *Session) Assessments() []matcher.Assessment { return s.assessments }

// Results returns the matches committed so far in this session.
func (s *Session) Results() []matcher.Result { return s.results }

// SelectPeriod fixes the (month, year) scope, creating or resuming the
// reconciliation record, and advances to statement upload.
func (s *Session) SelectPeriod(ctx context.Context, month, year int) (*storage.Reconciliation, error) {
	if month < 1 || month > 12 || year < 1900 {
		return nil, fmt.Errorf("%w: month=%d year=%d", ErrInvalidPeriod, month, year)
	}

	rec, err := s.store.StartReconciliation(ctx, month, year)
	if err != nil {
		return nil, fmt.Errorf("failed to start reconciliation: %w", err)
	}

	s.reconciliation = rec
	if s.step < StepStatementUpload {
		s.step = StepStatementUpload
	}
	s.logger.Info("Period selected", "reconciliation_id", rec.ID, "month", month, "year", year, "status", rec.Status)
	return rec, nil
}

// UploadStatement parses OCR text into candidate transactions. The session
// stays on the upload step until the caller confirms the set; a statement
// with nothing extractable is an extraction failure and does not advance
// anything.
func (s *Session) UploadStatement(ctx context.Context, text string, ocrConfidence float64) ([]statement.Transaction, error) {
	if s.step < StepStatementUpload {
		return nil, fmt.Errorf("%w: select a period first", ErrWrongStep)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txns, err := s.parser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("statement extraction failed: %w", err)
	}

	s.parsed = txns
	s.ocrConfidence = ocrConfidence
	s.logger.Info("Statement parsed", "candidates", len(txns), "ocr_confidence", ocrConfidence)
	return txns, nil
}

// UploadFromExtractor runs the OCR collaborator, forwarding its progress
// to the broadcaster without blocking parsing on individual updates, then
// feeds the recovered text through UploadStatement.
func (s *Session) UploadFromExtractor(ctx context.Context, ex Extractor, progress *Broadcaster) ([]statement.Transaction, error) {
	onProgress := func(float64) {}
	if progress != nil {
		onProgress = progress.Publish
	}
	text, confidence, err := ex.Extract(ctx, onProgress)
	if err != nil {
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}
	return s.UploadStatement(ctx, text, confidence)
}

// ConfirmTransactions accepts the (possibly hand-edited) transaction set,
// re-validates it with the parser's own checks, uploads it, fetches the
// matchable records and advances to the matching step. Nil confirms the
// parsed set as-is.
func (s *Session) ConfirmTransactions(ctx context.Context, txns []statement.Transaction) error {
	if s.step < StepStatementUpload {
		return fmt.Errorf("%w: select a period first", ErrWrongStep)
	}
	if txns == nil {
		txns = s.parsed
	}
	if len(txns) == 0 {
		return fmt.Errorf("%w: no transactions to confirm", ErrValidation)
	}
	for _, t := range txns {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	if err := s.store.UploadTransactions(ctx, s.reconciliation.ID, txns); err != nil {
		return fmt.Errorf("failed to upload transactions: %w", err)
	}

	uploaded, expenses, err := s.store.GetMatchableRecords(ctx, s.reconciliation.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch matchable records: %w", err)
	}

	s.parsed = uploaded
	s.expenses = expenses
	// Uploading replaces the set server-side and releases any matches
	// recorded against the previous one.
	s.results = nil
	s.assessments = nil
	s.reconciliation.Status = storage.StatusInProgress
	if s.step < StepTransactionMatching {
		s.step = StepTransactionMatching
	}
	s.logger.Info("Transactions confirmed", "uploaded", len(uploaded), "open_expenses", len(expenses))
	return nil
}

// RunMatching scores the uploaded transactions against the open expenses,
// commits every auto-matchable best match and returns the assessments for
// review. Persisting claims one at a time keeps the exclusivity rule
// intact even if a later RecordMatch fails.
func (s *Session) RunMatching(ctx context.Context) ([]matcher.Assessment, error) {
	if s.step < StepTransactionMatching {
		return nil, fmt.Errorf("%w: confirm transactions first", ErrWrongStep)
	}

	s.assessments = s.engine.Match(ctx, s.unmatchedTransactions(), s.expenses)

	for _, result := range s.engine.AutoMatch(s.assessments) {
		if err := s.store.RecordMatch(ctx, s.reconciliation.ID, result); err != nil {
			return s.assessments, fmt.Errorf("failed to record auto match: %w", err)
		}
		s.results = append(s.results, result)
		s.markExpenseMatched(result.ExpenseID)
		s.logger.Info("Auto match recorded",
			"bank_transaction_id", result.BankTransactionID,
			"expense_id", result.ExpenseID,
			"confidence", result.Confidence)
	}

	return s.assessments, nil
}

// ManualMatch binds an unmatched transaction to an open expense on
// explicit user action. No confidence floor applies.
func (s *Session) ManualMatch(ctx context.Context, bankTransactionID, expenseID string) (*matcher.Result, error) {
	if s.step < StepTransactionMatching {
		return nil, fmt.Errorf("%w: confirm transactions first", ErrWrongStep)
	}

	txn, ok := s.findTransaction(bankTransactionID)
	if !ok {
		return nil, fmt.Errorf("unknown bank transaction %s", bankTransactionID)
	}
	exp, ok := s.findExpense(expenseID)
	if !ok {
		return nil, fmt.Errorf("expense %s not available for matching", expenseID)
	}

	result := s.engine.ManualMatch(txn, exp)
	if err := s.store.RecordMatch(ctx, s.reconciliation.ID, result); err != nil {
		return nil, fmt.Errorf("failed to record manual match: %w", err)
	}
	s.results = append(s.results, result)
	s.markExpenseMatched(expenseID)
	s.logger.Info("Manual match recorded",
		"bank_transaction_id", bankTransactionID, "expense_id", expenseID)
	return &result, nil
}

// AdvanceToReport moves to the finalization step. Unmatched transactions
// do not block progress; they surface in the report as discrepancies.
func (s *Session) AdvanceToReport() error {
	if s.step < StepTransactionMatching {
		return fmt.Errorf("%w: run matching first", ErrWrongStep)
	}
	s.step = StepReportFinalization
	return nil
}

// Finalize completes the reconciliation and returns the report. This is
// the terminal action of the workflow.
func (s *Session) Finalize(ctx context.Context) (*storage.Report, error) {
	if s.step < StepReportFinalization {
		return nil, fmt.Errorf("%w: advance to the report step first", ErrWrongStep)
	}

	report, err := s.store.FinalizeReconciliation(ctx, s.reconciliation.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize reconciliation: %w", err)
	}
	s.reconciliation.Status = storage.StatusCompleted
	s.logger.Info("Reconciliation completed",
		"reconciliation_id", s.reconciliation.ID,
		"matched", report.Matched, "unmatched", report.Unmatched)
	return report, nil
}

// GoBack navigates to an earlier step. Session data is preserved so
// re-entry is idempotent.
func (s *Session) GoBack(target Step) error {
	if target > s.step {
		return ErrForwardJump
	}
	s.step = target
	return nil
}

func (s *Session) findTransaction(id string) (statement.Transaction, bool) {
	matched := make(map[string]bool, len(s.results))
	for _, r := range s.results {
		matched[r.BankTransactionID] = true
	}
	for _, t := range s.parsed {
		if t.ID == id && !matched[id] {
			return t, true
		}
	}
	return statement.Transaction{}, false
}

func (s *Session) findExpense(id string) (ledger.Expense, bool) {
	for _, e := range s.expenses {
		if e.ID == id && !e.IsMatched {
			return e, true
		}
	}
	return ledger.Expense{}, false
}

func (s *Session) unmatchedTransactions() []statement.Transaction {
	matched := make(map[string]bool, len(s.results))
	for _, r := range s.results {
		matched[r.BankTransactionID] = true
	}
	out := make([]statement.Transaction, 0, len(s.parsed))
	for _, t := range s.parsed {
		if !matched[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func (s *Session) markExpenseMatched(id string) {
	for i := range s.expenses {
		if s.expenses[i].ID == id {
			s.expenses[i].IsMatched = true
			return
		}
	}
}
