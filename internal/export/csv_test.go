package export

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdesk/backend/internal/domain"
)

func TestSalesCSVEmpty(t *testing.T) {
	out, err := SalesCSV(nil, Formatters{})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestSalesCSVQuotesAndRoundTrips(t *testing.T) {
	sales := []domain.EnrichedSale{
		{
			Sale: domain.Sale{
				ID:        "sale-1",
				ClientID:  domain.StringPtr("c1"),
				SalePrice: decimal.RequireFromString("1499.5"),
				SaleDate:  "2024-01-15",
				Notes:     domain.StringPtr(`Case, strings and "extra" picks`),
			},
			Client:     &domain.Client{ID: "c1", FirstName: domain.StringPtr("Ada"), LastName: domain.StringPtr("Lovelace")},
			Instrument: &domain.Instrument{ID: "i1", Maker: domain.StringPtr("Gibson"), Type: domain.StringPtr("Guitar"), Subtype: domain.StringPtr("Les Paul")},
		},
		{
			Sale: domain.Sale{ID: "sale-2", SalePrice: decimal.NewFromInt(-80), SaleDate: "2024-01-16"},
		},
	}

	out, err := SalesCSV(sales, Formatters{})
	require.NoError(t, err)
	assert.Contains(t, out, `"Case, strings and ""extra"" picks"`)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, salesHeader, records[0])
	assert.Equal(t, []string{"sale-1", "2024-01-15", "Ada Lovelace", "Gibson Guitar Les Paul", "Gibson", "Guitar", "1499.50", "paid", `Case, strings and "extra" picks`}, records[1])
	assert.Equal(t, []string{"sale-2", "2024-01-16", "", "", "", "", "-80.00", "refunded", ""}, records[2])
}

func TestSalesCSVUsesFormatters(t *testing.T) {
	sales := []domain.EnrichedSale{{Sale: domain.Sale{ID: "s", SalePrice: decimal.NewFromInt(12), SaleDate: "2024-01-15"}}}
	out, err := SalesCSV(sales, Formatters{
		Date:     func(raw string) string { return strings.ReplaceAll(raw, "-", "/") },
		Currency: func(d decimal.Decimal) string { return "$" + d.StringFixed(0) },
	})
	require.NoError(t, err)
	assert.Contains(t, out, "s,2024/01/15,,,,,$12,paid,")
}
