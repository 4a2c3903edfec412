// Package matcher reconciles parsed bank transactions against ledger
// expenses.
//
// The engine scores the full cross product, keeps suggestions above a
// floor, and classifies each transaction as auto-matchable, suggestion-only
// or unmatched:
//
//	engine := matcher.NewEngine(matcher.DefaultConfig(), scorer.New(scorer.DefaultConfig()))
//	assessments := engine.Match(ctx, txns, expenses)
//	results := engine.AutoMatch(assessments)
package matcher

import (
	"context"
	"sort"
	"sync"

	"github.com/troopledger/reconcile/internal/domain/ledger"
	"github.com/troopledger/reconcile/internal/domain/scorer"
	"github.com/troopledger/reconcile/internal/domain/statement"
)

// Engine runs the matching pass. It is stateless between calls and safe
// for concurrent use.
type Engine struct {
	config Config
	scorer *scorer.Scorer
}

// NewEngine creates a matching engine with the given config and scorer.
func NewEngine(config Config, s *scorer.Scorer) *Engine {
	if config.AutoMatchThreshold <= 0 {
		config.AutoMatchThreshold = 0.70
	}
	if config.SuggestionFloor <= 0 {
		config.SuggestionFloor = 0.30
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	return &Engine{config: config, scorer: s}
}

// Match produces one assessment per bank transaction, order-preserving.
// Expenses already flagged matched are never offered. Scoring fans out
// across a bounded worker pool; each transaction's candidate scan is
// independent of every other's.
func (e *Engine) Match(ctx context.Context, txns []statement.Transaction, expenses []ledger.Expense) []Assessment {
	candidates := make([]ledger.Expense, 0, len(expenses))
	for _, exp := range expenses {
		if !exp.IsMatched {
			candidates = append(candidates, exp)
		}
	}

	assessments := make([]Assessment, len(txns))

	workers := e.config.Workers
	if workers > len(txns) {
		workers = len(txns)
	}
	if workers < 1 {
		workers = 1
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				assessments[i] = e.assess(txns[i], candidates)
			}
		}()
	}

	for i := range txns {
		select {
		case indexes <- i:
		case <-ctx.Done():
			close(indexes)
			wg.Wait()
			return assessments
		}
	}
	close(indexes)
	wg.Wait()

	return assessments
}

// assess scores one transaction against every candidate expense.
func (e *Engine) assess(txn statement.Transaction, candidates []ledger.Expense) Assessment {
	a := Assessment{Transaction: txn}

	for _, exp := range candidates {
		confidence, reasons := e.scorer.Score(txn, exp)
		if confidence <= e.config.SuggestionFloor {
			continue
		}
		a.Suggestions = append(a.Suggestions, Suggestion{
			Expense:    exp,
			Confidence: confidence,
			Reasons:    reasons,
		})
	}

	sort.SliceStable(a.Suggestions, func(i, j int) bool {
		return a.Suggestions[i].Confidence > a.Suggestions[j].Confidence
	})

	if len(a.Suggestions) > 0 {
		a.BestMatch = &a.Suggestions[0]
		a.AutoMatch = a.BestMatch.Confidence >= e.config.AutoMatchThreshold
	}

	return a
}

// AutoMatch folds over the assessments and commits every auto-matchable
// best match, carrying the set of already-claimed expense ids. Within one
// pass no expense is the auto-match target of more than one transaction,
// even when it appears on several suggestion lists.
func (e *Engine) AutoMatch(assessments []Assessment) []Result {
	var results []Result
	claimed := make(map[string]bool)

	for _, a := range assessments {
		if !a.AutoMatch || a.BestMatch == nil {
			continue
		}
		if claimed[a.BestMatch.Expense.ID] {
			continue
		}
		claimed[a.BestMatch.Expense.ID] = true
		results = append(results, Result{
			BankTransactionID: a.Transaction.ID,
			ExpenseID:         a.BestMatch.Expense.ID,
			Confidence:        a.BestMatch.Confidence,
			Origin:            OriginAuto,
		})
	}

	return results
}

// ManualMatch binds a transaction to an expense on explicit user action,
// bypassing the scorer. Always accepted; it is the override path for
// suggestions the algorithm missed or ranked wrong.
func (e *Engine) ManualMatch(txn statement.Transaction, exp ledger.Expense) Result {
	confidence, _ := e.scorer.Score(txn, exp)
	return Result{
		BankTransactionID: txn.ID,
		ExpenseID:         exp.ID,
		Confidence:        confidence,
		Origin:            OriginManual,
	}
}
