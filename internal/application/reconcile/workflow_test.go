package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troopledger/reconcile/internal/domain/ledger"
	"github.com/troopledger/reconcile/internal/domain/matcher"
	"github.com/troopledger/reconcile/internal/domain/scorer"
	"github.com/troopledger/reconcile/internal/domain/statement"
	"github.com/troopledger/reconcile/internal/infrastructure/storage"
)

const statementText = `10/15/2024 PARTY CITY DECOR 450.00 DEBIT
10/18/2024 COFFEE SHOP VOLUNTEERS 23.50 DEBIT
10/20/2024 MYSTERY CHARGE UNKNOWN 777.77 DEBIT`

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestSession(t *testing.T) (*Session, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	require.NoError(t, repo.SeedExpenses(context.Background(), []ledger.Expense{
		{ID: "e1", Amount: 450.00, Date: day("2024-10-15"), Description: "party city decor"},
		{ID: "e2", Amount: 23.50, Date: day("2024-10-18"), Description: "coffee shop volunteers"},
		{ID: "e3", Amount: 88.00, Date: day("2024-10-05"), Description: "printing flyers"},
	}))

	engine := matcher.NewEngine(matcher.DefaultConfig(), scorer.New(scorer.DefaultConfig()))
	return NewSession(repo, statement.NewParser(), engine, nil), repo
}

func TestWorkflowHappyPath(t *testing.T) {
	s, repo := newTestSession(t)
	ctx := context.Background()

	assert.Equal(t, StepPeriodSelection, s.Step())

	rec, err := s.SelectPeriod(ctx, 10, 2024)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusNotStarted, rec.Status)
	assert.Equal(t, StepStatementUpload, s.Step())

	txns, err := s.UploadStatement(ctx, statementText, 0.92)
	require.NoError(t, err)
	assert.Len(t, txns, 3)
	assert.Equal(t, StepStatementUpload, s.Step())

	require.NoError(t, s.ConfirmTransactions(ctx, nil))
	assert.Equal(t, StepTransactionMatching, s.Step())
	assert.True(t, repo.UploadTransactionsCalled)

	assessments, err := s.RunMatching(ctx)
	require.NoError(t, err)
	assert.Len(t, assessments, 3)

	// Two clean pairs auto-match; the mystery charge stays open.
	require.Len(t, s.Results(), 2)
	for _, r := range s.Results() {
		assert.Equal(t, matcher.OriginAuto, r.Origin)
	}

	require.NoError(t, s.AdvanceToReport())
	report, err := s.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalTransactions)
	assert.Equal(t, 2, report.AutoMatched)
	assert.Equal(t, 1, report.Unmatched)
	assert.InDelta(t, 777.77, report.DiscrepancyTotal, 1e-9)
	assert.Equal(t, storage.StatusCompleted, s.Reconciliation().Status)
}

func TestWorkflowStepGating(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.UploadStatement(ctx, statementText, 1.0)
	assert.ErrorIs(t, err, ErrWrongStep)

	err = s.ConfirmTransactions(ctx, nil)
	assert.ErrorIs(t, err, ErrWrongStep)

	_, err = s.RunMatching(ctx)
	assert.ErrorIs(t, err, ErrWrongStep)

	_, err = s.Finalize(ctx)
	assert.ErrorIs(t, err, ErrWrongStep)
}

func TestWorkflowInvalidPeriod(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := s.SelectPeriod(context.Background(), 13, 2024)
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = s.SelectPeriod(context.Background(), 0, 2024)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestWorkflowExtractionFailure(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.SelectPeriod(ctx, 10, 2024)
	require.NoError(t, err)

	_, err = s.UploadStatement(ctx, "   ", 1.0)
	assert.ErrorIs(t, err, statement.ErrNoText)
	// The workflow holds position for a retry.
	assert.Equal(t, StepStatementUpload, s.Step())
}

func TestWorkflowPersistenceFailureHoldsStep(t *testing.T) {
	s, repo := newTestSession(t)
	ctx := context.Background()

	_, err := s.SelectPeriod(ctx, 10, 2024)
	require.NoError(t, err)
	_, err = s.UploadStatement(ctx, statementText, 1.0)
	require.NoError(t, err)

	repo.UploadTransactionsErr = errors.New("network unreachable")
	err = s.ConfirmTransactions(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network unreachable")
	assert.Equal(t, StepStatementUpload, s.Step())

	// User-initiated retry succeeds once the failure clears.
	repo.UploadTransactionsErr = nil
	require.NoError(t, s.ConfirmTransactions(ctx, nil))
	assert.Equal(t, StepTransactionMatching, s.Step())
}

func TestWorkflowValidationOnEditedTransactions(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.SelectPeriod(ctx, 10, 2024)
	require.NoError(t, err)
	_, err = s.UploadStatement(ctx, statementText, 1.0)
	require.NoError(t, err)

	edited := []statement.Transaction{
		{ID: "t1", Amount: -5, Date: day("2024-10-15"), Description: "negative amount", Type: statement.Debit},
	}
	err = s.ConfirmTransactions(ctx, edited)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWorkflowManualMatch(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.SelectPeriod(ctx, 10, 2024)
	require.NoError(t, err)
	_, err = s.UploadStatement(ctx, statementText, 1.0)
	require.NoError(t, err)
	require.NoError(t, s.ConfirmTransactions(ctx, nil))

	assessments, err := s.RunMatching(ctx)
	require.NoError(t, err)

	// Find the unmatched mystery charge and bind it to the leftover
	// expense the scorer would never pick.
	var unmatchedID string
	for _, a := range assessments {
		if !a.AutoMatch {
			unmatchedID = a.Transaction.ID
		}
	}
	require.NotEmpty(t, unmatchedID)

	result, err := s.ManualMatch(ctx, unmatchedID, "e3")
	require.NoError(t, err)
	assert.Equal(t, matcher.OriginManual, result.Origin)

	// The expense is no longer available for a second manual bind.
	_, err = s.ManualMatch(ctx, unmatchedID, "e3")
	assert.Error(t, err)
}

func TestWorkflowBackwardNavigationPreservesData(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.SelectPeriod(ctx, 10, 2024)
	require.NoError(t, err)
	_, err = s.UploadStatement(ctx, statementText, 1.0)
	require.NoError(t, err)
	require.NoError(t, s.ConfirmTransactions(ctx, nil))

	parsed := s.ParsedTransactions()
	require.NoError(t, s.GoBack(StepStatementUpload))
	assert.Equal(t, StepStatementUpload, s.Step())
	assert.Equal(t, parsed, s.ParsedTransactions())

	// Forward jumps are rejected.
	require.NoError(t, s.GoBack(StepPeriodSelection))
	assert.ErrorIs(t, s.GoBack(StepTransactionMatching), ErrForwardJump)

	// Re-entering the same period resumes the same record.
	rec := s.Reconciliation()
	again, err := s.SelectPeriod(ctx, 10, 2024)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
}

func TestWorkflowReconfirmReleasesMatches(t *testing.T) {
	s, repo := newTestSession(t)
	ctx := context.Background()

	_, err := s.SelectPeriod(ctx, 10, 2024)
	require.NoError(t, err)
	_, err = s.UploadStatement(ctx, statementText, 1.0)
	require.NoError(t, err)
	require.NoError(t, s.ConfirmTransactions(ctx, nil))

	_, err = s.RunMatching(ctx)
	require.NoError(t, err)
	require.Len(t, s.Results(), 2)

	// Going back and re-confirming discards the committed matches so the
	// corrected set starts clean.
	require.NoError(t, s.GoBack(StepStatementUpload))
	require.NoError(t, s.ConfirmTransactions(ctx, nil))
	assert.Empty(t, s.Results())
	assert.Empty(t, s.Assessments())

	open, err := repo.ListExpenses(ctx, true)
	require.NoError(t, err)
	assert.Len(t, open, 3)

	// The released expenses are claimable again on the next pass.
	_, err = s.RunMatching(ctx)
	require.NoError(t, err)
	assert.Len(t, s.Results(), 2)
}

type fakeExtractor struct {
	text       string
	confidence float64
	steps      []float64
}

func (f *fakeExtractor) Extract(_ context.Context, onProgress func(float64)) (string, float64, error) {
	for _, pct := range f.steps {
		onProgress(pct)
	}
	return f.text, f.confidence, nil
}

func TestWorkflowUploadFromExtractor(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.SelectPeriod(ctx, 10, 2024)
	require.NoError(t, err)

	progress := NewBroadcaster()
	sub := progress.Subscribe(ctx)

	ex := &fakeExtractor{text: statementText, confidence: 0.87, steps: []float64{25, 50, 100}}
	txns, err := s.UploadFromExtractor(ctx, ex, progress)
	require.NoError(t, err)
	assert.Len(t, txns, 3)

	// The subscriber saw at least the final update.
	progress.Close()
	var last float64
	for pct := range sub {
		last = pct
	}
	assert.Equal(t, 100.0, last)
}
