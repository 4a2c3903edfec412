// Package statement extracts candidate bank transactions from the raw text
// an OCR engine recovers from a scanned statement.
//
// The parser is line oriented: every physical line is either a header, noise,
// or one transaction. Malformed lines are dropped silently; the only fatal
// condition is input with no usable text at all.
//
// Example usage:
//
//	p := statement.NewParser()
//	txns, err := p.Parse(ocrText)
//	if err != nil {
//		// nothing extractable
//	}
package statement

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoText is returned when the input contains no parseable text.
var ErrNoText = errors.New("statement text is empty or unreadable")

// MinDescriptionLen is the minimum cleaned description length for a
// candidate to survive parsing. Shared with workflow re-validation.
const MinDescriptionLen = 3

var (
	dateRe   = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	amountRe = regexp.MustCompile(`[$-]?\d{1,3}(?:,\d{3})*\.?\d{0,2}`)
	centsRe  = regexp.MustCompile(`^\d+\.\d{2}$`)

	// Bank operation codes stripped from descriptions; long digit runs are
	// treated as reference numbers.
	bankCodeRe = regexp.MustCompile(`(?i)\b(POS|ATM|ACH|CHK|DEP|WD|TFR|FEE)\b`)
	refNumRe   = regexp.MustCompile(`\d{4,}`)
	spaceRe    = regexp.MustCompile(`\s+`)

	creditRe = regexp.MustCompile(`(?i)\b(CREDIT|DEPOSIT|CR|DEP)\b`)
	debitRe  = regexp.MustCompile(`(?i)\b(DEBIT|WITHDRAWAL|DR|WD)\b`)
)

// headerKeywords mark statement headers, footers and summary rows. A line
// containing one of these is only a header when it carries no date token:
// a real transaction mentioning "balance" in its description still passes.
var headerKeywords = []string{
	"statement", "account", "balance", "date", "description", "amount",
	"transaction", "beginning", "ending", "total", "page", "bank",
	"credit union",
}

// Parser converts raw recognized text into candidate transactions.
// A Parser is stateless and safe for concurrent use.
type Parser struct{}

// NewParser returns a ready-to-use statement parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse splits text into lines and extracts one candidate transaction per
// recognizable line. Re-parsing the same text yields a structurally
// identical list (fresh ids). Returns ErrNoText when nothing is parseable.
func (p *Parser) Parse(text string) ([]Transaction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}

	var txns []Transaction
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isHeaderLine(line) {
			continue
		}
		txn, ok := parseLine(line)
		if !ok {
			continue
		}
		txns = append(txns, txn)
	}

	// Most recent first.
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.After(txns[j].Date)
	})

	return txns, nil
}

// isHeaderLine reports whether line is statement chrome rather than a
// transaction. The date check runs second on purpose (see headerKeywords).
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range headerKeywords {
		if strings.Contains(lower, kw) {
			return !dateRe.MatchString(line)
		}
	}
	return false
}

func parseLine(line string) (Transaction, bool) {
	dateToken := dateRe.FindString(line)
	if dateToken == "" {
		return Transaction{}, false
	}
	date, ok := normalizeDate(dateToken)
	if !ok {
		return Transaction{}, false
	}

	// Strip the date before scanning for amounts so its digit groups are
	// not mistaken for money.
	rest := strings.Replace(line, dateToken, " ", 1)

	amountTokens := amountRe.FindAllString(rest, -1)
	amount, amountToken, ok := pickAmount(amountTokens)
	if !ok {
		return Transaction{}, false
	}

	desc := rest
	for _, tok := range amountTokens {
		desc = strings.Replace(desc, tok, " ", 1)
	}
	desc = cleanDescription(desc)
	if len(desc) <= MinDescriptionLen {
		return Transaction{}, false
	}

	return Transaction{
		ID:          uuid.NewString(),
		Date:        date,
		Description: desc,
		Amount:      amount,
		Type:        classifyType(line),
		RawLine:     line,
		Confidence:  lineConfidence(line, amountToken),
	}, true
}

// pickAmount parses every amount-like token and keeps the maximum positive
// value. The sign survives cleaning so negative tokens (refund
// adjustments, reversal annotations) are discarded rather than flipped.
// Running balances and fee annotations are usually smaller than the
// primary amount, so the maximum wins. Known limitation: a line whose
// running balance exceeds the transaction amount picks the wrong token.
func pickAmount(tokens []string) (float64, string, bool) {
	best := 0.0
	bestToken := ""
	for _, tok := range tokens {
		cleaned := strings.NewReplacer("$", "", ",", "").Replace(tok)
		v, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(v) || v <= 0 {
			continue
		}
		if v > best {
			best = v
			bestToken = cleaned
		}
	}
	return best, bestToken, best > 0
}

// cleanDescription removes debit/credit keywords, bank operation codes,
// reference-number digit runs and decorations, then collapses whitespace.
func cleanDescription(s string) string {
	s = creditRe.ReplaceAllString(s, " ")
	s = debitRe.ReplaceAllString(s, " ")
	s = bankCodeRe.ReplaceAllString(s, " ")
	s = refNumRe.ReplaceAllString(s, " ")
	s = strings.NewReplacer("#", " ", "*", " ").Replace(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func classifyType(line string) TransactionType {
	if creditRe.MatchString(line) {
		return Credit
	}
	return Debit
}

// normalizeDate accepts M/D/Y or M-D-Y tokens. Two-digit years above 50
// map to 19xx, the rest to 20xx.
func normalizeDate(token string) (time.Time, bool) {
	sep := "/"
	if !strings.Contains(token, sep) {
		sep = "-"
	}
	parts := strings.Split(token, sep)
	if len(parts) != 3 {
		return time.Time{}, false
	}
	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if year < 100 {
		if year > 50 {
			year += 1900
		} else {
			year += 2000
		}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", fmt.Sprintf("%04d-%02d-%02d", year, month, day))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// lineConfidence estimates parse reliability: base 0.5, +0.2 for a date
// token, +0.2 for a strict decimal-cents amount, +0.1 for a plausible
// line length, clamped to 1.0.
func lineConfidence(line, amountToken string) float64 {
	conf := 0.5
	if dateRe.MatchString(line) {
		conf += 0.2
	}
	if centsRe.MatchString(amountToken) {
		conf += 0.2
	}
	if n := len(line); n >= 20 && n < 100 {
		conf += 0.1
	}
	return math.Min(conf, 1.0)
}
