package analytics

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
)

type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

func ParseSortDirection(raw string) SortDirection {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "desc", "descending":
		return Descending
	default:
		return Ascending
	}
}

const (
	SortFieldDate   = "date"
	SortFieldAmount = "amount"
	SortFieldClient = "client"
)

// Sort dispatches on a field name. Unknown fields fall back to date order.
func Sort(sales []domain.EnrichedSale, field string, dir SortDirection, tag language.Tag) []domain.EnrichedSale {
	switch field {
	case SortFieldAmount:
		return SortByAmount(sales, dir)
	case SortFieldClient:
		return SortByClientName(sales, dir, tag)
	default:
		return SortByDate(sales, dir)
	}
}

// SortByDate orders by UTC sale day. Rows with unparseable dates go last in
// either direction. The input slice is not modified.
func SortByDate(sales []domain.EnrichedSale, dir SortDirection) []domain.EnrichedSale {
	type keyed struct {
		key  string
		sale domain.EnrichedSale
	}
	rows := make([]keyed, len(sales))
	for i, s := range sales {
		day, err := calendar.ParseUTC(s.SaleDate)
		if err == nil {
			rows[i] = keyed{key: day.String(), sale: s}
		} else {
			rows[i] = keyed{sale: s}
		}
	}
	slices.SortStableFunc(rows, func(a, b keyed) int {
		return compareWithMissingLast(a.key == "", b.key == "", dir, func() int {
			return strings.Compare(a.key, b.key)
		})
	})
	out := make([]domain.EnrichedSale, len(rows))
	for i, r := range rows {
		out[i] = r.sale
	}
	return out
}

func SortByAmount(sales []domain.EnrichedSale, dir SortDirection) []domain.EnrichedSale {
	out := slices.Clone(sales)
	slices.SortStableFunc(out, func(a, b domain.EnrichedSale) int {
		c := a.SalePrice.Cmp(b.SalePrice)
		if dir == Descending {
			return -c
		}
		return c
	})
	return out
}

// SortByClientName orders by ClientDisplayName using locale-aware collation.
// Sales without any client always follow sales with one.
func SortByClientName(sales []domain.EnrichedSale, dir SortDirection, tag language.Tag) []domain.EnrichedSale {
	collator := collate.New(tag)
	type keyed struct {
		name string
		sale domain.EnrichedSale
	}
	rows := make([]keyed, len(sales))
	for i, s := range sales {
		rows[i] = keyed{name: ClientDisplayName(s), sale: s}
	}
	slices.SortStableFunc(rows, func(a, b keyed) int {
		return compareWithMissingLast(a.name == "", b.name == "", dir, func() int {
			return collator.CompareString(a.name, b.name)
		})
	})
	out := make([]domain.EnrichedSale, len(rows))
	for i, r := range rows {
		out[i] = r.sale
	}
	return out
}

func compareWithMissingLast(aMissing, bMissing bool, dir SortDirection, cmp func() int) int {
	switch {
	case aMissing && bMissing:
		return 0
	case aMissing:
		return 1
	case bMissing:
		return -1
	}
	c := cmp()
	if dir == Descending {
		return -c
	}
	return c
}
