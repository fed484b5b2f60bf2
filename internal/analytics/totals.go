package analytics

import (
	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
)

// ComputeTotals sums a slice in one pass. Count covers revenue-positive sales
// only, so AvgTicket is revenue per paid sale.
func ComputeTotals(sales []domain.EnrichedSale) domain.Totals {
	revenue, refund := decimal.Zero, decimal.Zero
	count := 0
	for _, s := range sales {
		switch s.SalePrice.Sign() {
		case 1:
			revenue = revenue.Add(s.SalePrice)
			count++
		case -1:
			refund = refund.Add(s.SalePrice.Abs())
		}
	}
	return TotalsFrom(revenue, refund, count)
}

// TotalsFrom derives the KPI fields from already-summed revenue, refunds and
// paid-sale count, for backends that aggregate in the database.
func TotalsFrom(revenue, refund decimal.Decimal, count int) domain.Totals {
	totals := domain.Totals{
		Revenue:    revenue,
		Refund:     refund,
		Net:        revenue.Sub(refund),
		Count:      count,
		AvgTicket:  decimal.Zero,
		RefundRate: percentOf(refund, revenue),
	}
	if count > 0 {
		totals.AvgTicket = revenue.Div(decimal.NewFromInt(int64(count)))
	}
	return totals
}

// FilterPeriod keeps sales whose UTC sale day lies in the period. Sales with
// unparseable dates never match.
func FilterPeriod(sales []domain.EnrichedSale, period calendar.Period) []domain.EnrichedSale {
	out := make([]domain.EnrichedSale, 0, len(sales))
	for _, s := range sales {
		day, err := calendar.ParseUTC(s.SaleDate)
		if err != nil {
			continue
		}
		if period.Contains(day) {
			out = append(out, s)
		}
	}
	return out
}

// percentOf is part/whole*100, 0 when whole is not positive.
func percentOf(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.InexactFloat64() / whole.InexactFloat64() * 100
}

// growthPct is (current-previous)/previous*100. It returns nil when previous
// is 0 so callers can show "not applicable" instead of Inf.
func growthPct(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	g := (current - previous) / previous * 100
	return &g
}
