package statement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransactionLine(t *testing.T) {
	p := NewParser()

	txns, err := p.Parse("10/15/2024 PARTY CITY DECOR 450.00 DEBIT")
	require.NoError(t, err)
	require.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, "2024-10-15", txn.DateString())
	assert.Contains(t, txn.Description, "PARTY CITY DECOR")
	assert.Equal(t, 450.00, txn.Amount)
	assert.Equal(t, Debit, txn.Type)
	assert.Equal(t, "10/15/2024 PARTY CITY DECOR 450.00 DEBIT", txn.RawLine)
	assert.NotEmpty(t, txn.ID)
}

func TestParseSkipsHeaderLines(t *testing.T) {
	p := NewParser()

	text := `FIRST COMMUNITY BANK
STATEMENT PERIOD OCTOBER 2024
BEGINNING BALANCE 1200.00
10/15/2024 PARTY CITY DECOR 450.00 DEBIT
ENDING BALANCE 750.00
Page 1 of 2`

	txns, err := p.Parse(text)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Contains(t, txns[0].Description, "PARTY CITY DECOR")
}

func TestParseHeaderKeywordWithDateStillPasses(t *testing.T) {
	p := NewParser()

	// "balance" in a real transaction description must not hide the line.
	txns, err := p.Parse("10/16/2024 BALANCE TRANSFER PAYMENT 320.00 DEBIT")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, 320.00, txns[0].Amount)
}

func TestParseEmptyInput(t *testing.T) {
	p := NewParser()

	_, err := p.Parse("")
	assert.ErrorIs(t, err, ErrNoText)

	_, err = p.Parse("   \n\t\n")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestParseDropsMalformedLines(t *testing.T) {
	p := NewParser()

	text := `10/15/2024 PARTY CITY DECOR 450.00 DEBIT
no date on this line 45.00
10/16/2024 XY 12.00
10/17/2024 COFFEE SHOP 8.50`

	txns, err := p.Parse(text)
	require.NoError(t, err)
	// Line without date and line with a too-short description are dropped.
	require.Len(t, txns, 2)
	assert.Equal(t, "2024-10-17", txns[0].DateString())
	assert.Equal(t, "2024-10-15", txns[1].DateString())
}

func TestParseSortsMostRecentFirst(t *testing.T) {
	p := NewParser()

	text := `10/01/2024 GROCERY STORE PURCHASE 54.12
10/20/2024 HARDWARE SUPPLIES 12.99
10/10/2024 OFFICE DEPOT PAPER 31.40`

	txns, err := p.Parse(text)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, "2024-10-20", txns[0].DateString())
	assert.Equal(t, "2024-10-10", txns[1].DateString())
	assert.Equal(t, "2024-10-01", txns[2].DateString())
}

func TestParsePicksLargestAmount(t *testing.T) {
	p := NewParser()

	// Fee annotation is smaller than the primary amount.
	txns, err := p.Parse("10/15/2024 WIRE TRANSFER OUTGOING 850.00 25.00")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, 850.00, txns[0].Amount)
}

func TestParseDiscardsNegativeAmounts(t *testing.T) {
	p := NewParser()

	// A line whose only amount token is negative has no usable amount.
	txns, err := p.Parse("10/15/2024 REFUND ADJUSTMENT -450.00")
	require.NoError(t, err)
	assert.Empty(t, txns)

	// A negative annotation must not outrank the real amount.
	txns, err = p.Parse("10/15/2024 COFFEE SHOP PURCHASE 25.00 -999.99")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, 25.00, txns[0].Amount)
}

func TestParseCommaGroupedAmount(t *testing.T) {
	p := NewParser()

	txns, err := p.Parse("10/15/2024 VENUE RENTAL DEPOSIT $1,250.00 DEBIT")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, 1250.00, txns[0].Amount)
}

func TestClassifyType(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		line string
		want TransactionType
	}{
		{"explicit credit", "10/15/2024 MEMBERSHIP DUES RECEIVED 85.00 CREDIT", Credit},
		{"deposit keyword", "10/15/2024 FUNDRAISER PROCEEDS DEPOSIT 410.00", Credit},
		{"explicit debit", "10/15/2024 PARTY CITY DECOR 450.00 DEBIT", Debit},
		{"withdrawal keyword", "10/15/2024 CASH WITHDRAWAL EVENT FLOAT 60.00", Debit},
		{"ambiguous defaults to debit", "10/15/2024 PARTY CITY DECOR 450.00", Debit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns, err := p.Parse(tt.line)
			require.NoError(t, err)
			require.Len(t, txns, 1)
			assert.Equal(t, tt.want, txns[0].Type)
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		token string
		want  string
		ok    bool
	}{
		{"10/15/2024", "2024-10-15", true},
		{"1/5/2024", "2024-01-05", true},
		{"10-15-2024", "2024-10-15", true},
		{"1/5/25", "2025-01-05", true},
		{"1/5/99", "1999-01-05", true},
		{"12/31/50", "2050-12-31", true},
		{"12/31/51", "1951-12-31", true},
		{"13/1/2024", "", false},
		{"1/32/2024", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := normalizeDate(tt.token)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestParseIdempotent(t *testing.T) {
	p := NewParser()
	text := `10/15/2024 PARTY CITY DECOR 450.00 DEBIT
10/16/2024 MEMBERSHIP DUES DEPOSIT 85.00 CREDIT`

	first, err := p.Parse(text)
	require.NoError(t, err)
	second, err := p.Parse(text)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		// Fresh ids each pass; everything else structurally identical.
		assert.NotEqual(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Date, second[i].Date)
		assert.Equal(t, first[i].Description, second[i].Description)
		assert.Equal(t, first[i].Amount, second[i].Amount)
		assert.Equal(t, first[i].Type, second[i].Type)
		assert.Equal(t, first[i].Confidence, second[i].Confidence)
	}
}

func TestLineConfidence(t *testing.T) {
	p := NewParser()

	// Date + decimal-cents amount + plausible length: fully confident.
	txns, err := p.Parse("10/15/2024 PARTY CITY DECOR 450.00 DEBIT")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.InDelta(t, 1.0, txns[0].Confidence, 1e-9)

	// Integer amount misses the strict cents bonus.
	txns, err = p.Parse("10/15/2024 VENUE RENTAL CHARGE 450 DEBIT")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.InDelta(t, 0.8, txns[0].Confidence, 1e-9)
}

func TestDescriptionCleanup(t *testing.T) {
	p := NewParser()

	txns, err := p.Parse("10/15/2024 POS PARTY CITY #0042 STORE 450.00 DEBIT")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	desc := txns[0].Description
	assert.NotContains(t, desc, "POS")
	assert.NotContains(t, desc, "#")
	assert.NotContains(t, desc, "0042")
	assert.Contains(t, desc, "PARTY CITY")
}

func TestValidate(t *testing.T) {
	p := NewParser()
	txns, err := p.Parse("10/15/2024 PARTY CITY DECOR 450.00 DEBIT")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.NoError(t, txns[0].Validate())

	bad := txns[0]
	bad.Amount = 0
	assert.Error(t, bad.Validate())

	bad = txns[0]
	bad.Description = "ab"
	assert.Error(t, bad.Validate())
}
