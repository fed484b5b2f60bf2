package analytics

import (
	"slices"

	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
)

type TrendStatus string

const (
	TrendOK               TrendStatus = "ok"
	TrendInsufficientData TrendStatus = "insufficient_data"
	TrendNoSignal         TrendStatus = "no_signal"
)

const (
	// TrendWindow is the number of sales in each half of the comparison.
	TrendWindow = 7
	// MinTrendSample is the smallest scope that yields a trend.
	MinTrendSample = 2 * TrendWindow
)

type Trend struct {
	Status          TrendStatus     `json:"status"`
	SampleSize      int             `json:"sample_size"`
	RecentRevenue   decimal.Decimal `json:"recent_revenue"`
	PreviousRevenue decimal.Decimal `json:"previous_revenue"`
	ChangePct       *float64        `json:"change_pct,omitempty"`
}

// ShortWindowTrend compares the revenue of the last seven sales against the
// seven before them, in UTC day order. Sales sharing a day keep input order.
func ShortWindowTrend(sales []domain.EnrichedSale) Trend {
	type dated struct {
		day   calendar.UTCDay
		price decimal.Decimal
	}
	rows := make([]dated, 0, len(sales))
	for _, s := range sales {
		day, err := calendar.ParseUTC(s.SaleDate)
		if err != nil {
			continue
		}
		rows = append(rows, dated{day: day, price: s.SalePrice})
	}

	trend := Trend{
		Status:          TrendInsufficientData,
		SampleSize:      len(rows),
		RecentRevenue:   decimal.Zero,
		PreviousRevenue: decimal.Zero,
	}
	if len(rows) < MinTrendSample {
		return trend
	}

	slices.SortStableFunc(rows, func(a, b dated) int { return a.day.Compare(b.day) })
	n := len(rows)
	for _, r := range rows[n-TrendWindow:] {
		if r.price.IsPositive() {
			trend.RecentRevenue = trend.RecentRevenue.Add(r.price)
		}
	}
	for _, r := range rows[n-2*TrendWindow : n-TrendWindow] {
		if r.price.IsPositive() {
			trend.PreviousRevenue = trend.PreviousRevenue.Add(r.price)
		}
	}

	trend.ChangePct = growthPct(trend.RecentRevenue.InexactFloat64(), trend.PreviousRevenue.InexactFloat64())
	if trend.ChangePct == nil {
		trend.Status = TrendNoSignal
		return trend
	}
	trend.Status = TrendOK
	return trend
}
