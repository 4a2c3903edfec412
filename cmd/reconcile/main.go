// Command reconcile runs one reconciliation from the terminal: it parses a
// statement text file, matches the candidates against the ledger expenses
// in the database and prints the assessment and final report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/troopledger/reconcile/internal/application/reconcile"
	"github.com/troopledger/reconcile/internal/domain/matcher"
	"github.com/troopledger/reconcile/internal/domain/scorer"
	"github.com/troopledger/reconcile/internal/domain/statement"
	"github.com/troopledger/reconcile/internal/infrastructure/config"
	"github.com/troopledger/reconcile/internal/infrastructure/logging"
	"github.com/troopledger/reconcile/internal/infrastructure/storage"
)

func main() {
	var (
		configPath    = flag.String("config", "config.yaml", "path to config file")
		statementPath = flag.String("statement", "", "path to extracted statement text (required)")
		month         = flag.Int("month", 0, "reconciliation month 1-12 (required)")
		year          = flag.Int("year", 0, "reconciliation year (required)")
		finalize      = flag.Bool("finalize", false, "complete the reconciliation after matching")
	)
	flag.Parse()

	_ = godotenv.Load()

	if *statementPath == "" || *month == 0 || *year == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadOrEnvWithPath(*configPath)
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "reconcile")

	text, err := os.ReadFile(*statementPath)
	if err != nil {
		logger.Error("Failed to read statement", "path", *statementPath, "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	engine := matcher.NewEngine(matcher.Config{
		AutoMatchThreshold: cfg.Matching.AutoMatchThreshold,
		SuggestionFloor:    cfg.Matching.SuggestionFloor,
		Workers:            cfg.Matching.Workers,
	}, scorer.New(scorer.Config{AmountTolerance: cfg.Matching.AmountTolerance}))

	session := reconcile.NewSession(repo, statement.NewParser(), engine, logger)
	ctx := context.Background()

	if _, err := session.SelectPeriod(ctx, *month, *year); err != nil {
		logger.Error("Failed to select period", "error", err)
		os.Exit(1)
	}

	txns, err := session.UploadStatement(ctx, string(text), 1.0)
	if err != nil {
		logger.Error("Statement parsing failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Statement parsed", "candidates", len(txns))

	if err := session.ConfirmTransactions(ctx, nil); err != nil {
		logger.Error("Failed to confirm transactions", "error", err)
		os.Exit(1)
	}

	assessments, err := session.RunMatching(ctx)
	if err != nil {
		logger.Error("Matching failed", "error", err)
		os.Exit(1)
	}

	printAssessments(assessments)

	if !*finalize {
		return
	}
	if err := session.AdvanceToReport(); err != nil {
		logger.Error("Failed to advance", "error", err)
		os.Exit(1)
	}
	report, err := session.Finalize(ctx)
	if err != nil {
		logger.Error("Finalization failed", "error", err)
		os.Exit(1)
	}
	printReport(report)
}

func printAssessments(assessments []matcher.Assessment) {
	for _, a := range assessments {
		status := "unmatched"
		if a.AutoMatch {
			status = "auto"
		} else if a.BestMatch != nil {
			status = "review"
		}
		fmt.Printf("%-10s %s  $%.2f  %-30s", status, a.Transaction.DateString(), a.Transaction.Amount, a.Transaction.Description)
		if a.BestMatch != nil {
			fmt.Printf("  -> %s (%.2f)", a.BestMatch.Expense.Description, a.BestMatch.Confidence)
		}
		fmt.Println()
	}
}

func printReport(r *storage.Report) {
	fmt.Printf("\nReconciliation %d/%d\n", r.Month, r.Year)
	fmt.Printf("  transactions: %d\n", r.TotalTransactions)
	fmt.Printf("  matched:      %d (auto %d, manual %d)\n", r.Matched, r.AutoMatched, r.ManualMatched)
	fmt.Printf("  unmatched:    %d\n", r.Unmatched)
	fmt.Printf("  match rate:   %.1f%%\n", r.MatchRate)
	fmt.Printf("  discrepancy:  $%.2f\n", r.DiscrepancyTotal)
}
