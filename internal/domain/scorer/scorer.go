// Package scorer computes pairwise confidence between a bank transaction
// and a ledger expense.
//
// The score is a weighted combination of amount, description, date and
// vendor sub-scores. Bands are deliberate step functions rather than
// continuous decay so a human reviewer can read them back.
package scorer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/troopledger/reconcile/internal/domain/ledger"
	"github.com/troopledger/reconcile/internal/domain/statement"
)

// Weights control the contribution of each sub-score. The vendor weight is
// only added when the expense carries a distinct vendor field, so a
// vendor-less expense tops out at 1 - Vendor. That reflects reduced
// evidence, not a bug.
type Weights struct {
	Amount      float64
	Description float64
	Date        float64
	Vendor      float64
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Amount: 0.40, Description: 0.30, Date: 0.20, Vendor: 0.10}
}

// Config holds scorer configuration.
type Config struct {
	Weights         Weights
	AmountTolerance float64 // absolute difference treated as exact (default 0.01)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		AmountTolerance: 0.01,
	}
}

// Breakdown carries the individual sub-scores that fed a confidence value.
type Breakdown struct {
	Amount      float64
	Description float64
	Date        float64
	Vendor      float64
	HasVendor   bool
}

// knownMerchants is a fixed list of common merchant tokens. When both raw
// descriptions mention the same one, the description sub-score gets a 0.2
// boost: OCR rarely garbles a brand name completely.
var knownMerchants = []string{
	"walmart", "target", "costco", "amazon", "kroger", "safeway",
	"home depot", "lowes", "starbucks", "dunkin", "mcdonald",
	"shell", "chevron", "exxon", "party city", "dollar tree",
}

// Scorer scores bank transaction / ledger expense pairs.
// A Scorer is immutable and safe for concurrent use.
type Scorer struct {
	config Config
}

// New creates a scorer with the given config.
func New(config Config) *Scorer {
	if config.Weights == (Weights{}) {
		config.Weights = DefaultWeights()
	}
	if config.AmountTolerance <= 0 {
		config.AmountTolerance = 0.01
	}
	return &Scorer{config: config}
}

// Score returns a confidence in [0,1] plus human-readable match reasons.
// Reasons use slightly looser thresholds than the scoring bands: they
// explain, they do not gate.
func (s *Scorer) Score(txn statement.Transaction, exp ledger.Expense) (float64, []string) {
	b := s.Breakdown(txn, exp)

	w := s.config.Weights
	confidence := b.Amount*w.Amount + b.Description*w.Description + b.Date*w.Date
	if b.HasVendor {
		confidence += b.Vendor * w.Vendor
	}
	confidence = math.Min(confidence, 1.0)

	return confidence, s.reasons(txn, exp, b)
}

// Breakdown computes the individual sub-scores for a pair.
func (s *Scorer) Breakdown(txn statement.Transaction, exp ledger.Expense) Breakdown {
	b := Breakdown{
		Amount:      s.amountScore(txn.Amount, exp.Amount),
		Description: s.descriptionScore(txn.Description, exp.Description),
		Date:        dateScore(txn.Date, exp.Date),
	}
	if exp.Vendor != "" {
		b.HasVendor = true
		b.Vendor = s.descriptionScore(txn.Description, exp.Vendor)
	}
	return b
}

// amountScore treats differences within the tolerance as exact (covers
// floating-point noise), then bands on relative difference.
func (s *Scorer) amountScore(a, b float64) float64 {
	d := math.Abs(a - b)
	if d <= s.config.AmountTolerance {
		return 1.0
	}
	pct := d / math.Max(a, b)
	switch {
	case pct <= 0.01:
		return 0.9
	case pct <= 0.05:
		return 0.7
	case pct <= 0.10:
		return 0.5
	case pct <= 0.20:
		return 0.3
	default:
		return 0
	}
}

// descriptionScore compares normalized text: exact match 1.0, substring
// containment 0.8, otherwise edit-distance similarity with a merchant
// boost on the raw strings. The boost belongs to the edit-distance branch
// only; containment is already strong evidence on its own.
func (s *Scorer) descriptionScore(a, b string) float64 {
	na, nb := statement.Normalize(a), statement.Normalize(b)
	if na == nb && na != "" {
		return 1.0
	}
	if na != "" && nb != "" && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		return 0.8
	}

	score := editSimilarity(na, nb)
	if sharedMerchant(a, b) != "" {
		score += 0.2
	}
	return math.Min(score, 1.0)
}

func dateScore(a, b time.Time) float64 {
	switch delta := dayDiff(a, b); {
	case delta == 0:
		return 1.0
	case delta <= 1:
		return 0.9
	case delta <= 3:
		return 0.7
	case delta <= 7:
		return 0.5
	case delta <= 14:
		return 0.3
	default:
		return 0
	}
}

// editSimilarity is 1 - levenshtein/maxlen, the standard DP algorithm. At
// description lengths of tens of characters no banding or early exit is
// needed.
func editSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	dist := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	maxLen := math.Max(float64(len([]rune(a))), float64(len([]rune(b))))
	return 1 - float64(dist)/maxLen
}

// sharedMerchant returns the first known merchant token present in both
// raw strings, or "".
func sharedMerchant(a, b string) string {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, m := range knownMerchants {
		if strings.Contains(la, m) && strings.Contains(lb, m) {
			return m
		}
	}
	return ""
}

func dayDiff(a, b time.Time) int {
	return int(math.Abs(a.Sub(b).Hours()) / 24)
}

// reasons assembles the human-readable justification list. Thresholds here
// are looser than the scoring bands on purpose.
func (s *Scorer) reasons(txn statement.Transaction, exp ledger.Expense, b Breakdown) []string {
	var reasons []string

	d := math.Abs(txn.Amount - exp.Amount)
	switch {
	case d <= s.config.AmountTolerance:
		reasons = append(reasons, "exact amount match")
	case d/math.Max(txn.Amount, exp.Amount) <= 0.05:
		reasons = append(reasons, "close amount match")
	}

	switch delta := dayDiff(txn.Date, exp.Date); {
	case delta == 0:
		reasons = append(reasons, "same date")
	case delta <= 7:
		reasons = append(reasons, fmt.Sprintf("%d days apart", delta))
	}

	switch {
	case b.Description >= 0.8:
		reasons = append(reasons, "strong description match")
	case b.Description >= 0.5:
		reasons = append(reasons, "partial description match")
	}

	if sharedMerchant(txn.Description, exp.Description) != "" ||
		(exp.Vendor != "" && sharedMerchant(txn.Description, exp.Vendor) != "") {
		reasons = append(reasons, "vendor name match")
	}

	return reasons
}
