package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"salesdesk/backend/internal/domain"
)

func TestEnrichResolvesAndToleratesMissingKeys(t *testing.T) {
	sales := []domain.Sale{
		{ID: "s1", ClientID: domain.StringPtr("c1"), InstrumentID: domain.StringPtr("i1"), SalePrice: decimal.NewFromInt(100), SaleDate: "2024-01-02"},
		{ID: "s2", ClientID: domain.StringPtr("ghost"), SalePrice: decimal.NewFromInt(50), SaleDate: "2024-01-03"},
		{ID: "s3", SalePrice: decimal.NewFromInt(-20), SaleDate: "2024-01-04"},
	}
	clients := []domain.Client{{ID: "c1", FirstName: domain.StringPtr("Ada"), LastName: domain.StringPtr("Lovelace")}}
	instruments := []domain.Instrument{{ID: "i1", Maker: domain.StringPtr("Yamaha"), Type: domain.StringPtr("Piano")}}

	got := Enrich(sales, clients, instruments)
	require.Len(t, got, 3)

	require.NotNil(t, got[0].Client)
	assert.Equal(t, "Ada Lovelace", ClientDisplayName(got[0]))
	require.NotNil(t, got[0].Instrument)
	assert.Equal(t, "Yamaha", InstrumentMaker(got[0]))

	assert.Nil(t, got[1].Client)
	assert.Equal(t, "ghost", ClientDisplayName(got[1]))

	assert.Nil(t, got[2].Client)
	assert.Nil(t, got[2].Instrument)
	assert.Equal(t, "", ClientDisplayName(got[2]))
}

func TestClientDisplayNameFallsBackToEmail(t *testing.T) {
	s := sale("s1", "2024-01-01", "10")
	s.ClientID = domain.StringPtr("c9")
	s.Client = &domain.Client{ID: "c9", FirstName: domain.StringPtr("  "), Email: domain.StringPtr("nina@example.com")}
	assert.Equal(t, "nina@example.com", ClientDisplayName(s))
}

func TestSortByClientNamePutsClientlessLastBothWays(t *testing.T) {
	sales := []domain.EnrichedSale{
		sale("none1", "2024-01-01", "10"),
		sale("zoe", "2024-01-01", "10", withClient("c1", "Zoe", "")),
		sale("emile", "2024-01-01", "10", withClient("c2", "émile", "")),
		sale("none2", "2024-01-01", "10"),
		sale("adam", "2024-01-01", "10", withClient("c3", "adam", "")),
	}

	asc := SortByClientName(sales, Ascending, language.English)
	assert.Equal(t, []string{"adam", "emile", "zoe", "none1", "none2"}, ids(asc))

	desc := SortByClientName(sales, Descending, language.English)
	assert.Equal(t, []string{"zoe", "emile", "adam", "none1", "none2"}, ids(desc))

	assert.Equal(t, "none1", sales[0].ID, "input must not be reordered")
}

func TestSortByAmountIsStable(t *testing.T) {
	sales := []domain.EnrichedSale{
		sale("a", "2024-01-01", "50"),
		sale("b", "2024-01-01", "10"),
		sale("c", "2024-01-01", "50"),
		sale("d", "2024-01-01", "-5"),
	}
	assert.Equal(t, []string{"d", "b", "a", "c"}, ids(SortByAmount(sales, Ascending)))
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids(SortByAmount(sales, Descending)))
}

func TestSortByDateKeepsBadDatesLast(t *testing.T) {
	sales := []domain.EnrichedSale{
		sale("bad", "2024-02-30", "10"),
		sale("feb", "2024-02-01", "10"),
		sale("jan", "2024-01-15", "10"),
	}
	assert.Equal(t, []string{"jan", "feb", "bad"}, ids(SortByDate(sales, Ascending)))
	assert.Equal(t, []string{"feb", "jan", "bad"}, ids(SortByDate(sales, Descending)))
	assert.Equal(t, []string{"feb", "jan", "bad"}, ids(Sort(sales, "date", ParseSortDirection("desc"), language.English)))
}

func TestRefundPriceTransforms(t *testing.T) {
	got, err := RefundPrice(decimal.RequireFromString("1250.50"))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("-1250.50")))

	_, err = RefundPrice(got)
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
	_, err = RefundPrice(decimal.Zero)
	assert.ErrorIs(t, err, ErrZeroPrice)

	back, err := UndoRefundPrice(got)
	require.NoError(t, err)
	assert.True(t, back.Equal(decimal.RequireFromString("1250.50")))

	_, err = UndoRefundPrice(back)
	assert.ErrorIs(t, err, ErrNotRefunded)
}
