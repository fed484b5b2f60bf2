package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salesdesk/backend/internal/analytics"
	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

type Summary struct {
	Period      calendar.Period      `json:"period"`
	Totals      domain.Totals        `json:"totals"`
	Comparison  analytics.Comparison `json:"comparison"`
	GeneratedAt string               `json:"generated_at"`
}

type ChartResponse struct {
	Period calendar.Period `json:"period"`
	analytics.AggregateResult
}

type Insights struct {
	Period          calendar.Period `json:"period"`
	Trend           analytics.Trend `json:"trend"`
	Alerts          []domain.Alert  `json:"alerts"`
	AlertCounts     map[string]int  `json:"alert_counts"`
	HighestSeverity string          `json:"highest_severity,omitempty"`
	Timezone        string          `json:"timezone"`
	GeneratedAt     string          `json:"generated_at"`
}

// Summary reports the period totals and, for a closed period, the comparison
// against the preceding range of equal length.
func (s *Service) Summary(ctx context.Context, from string, to string) (Summary, error) {
	period, err := parsePeriod(from, to)
	if err != nil {
		return Summary{}, err
	}

	fetch := period
	if f, t, ok := period.Bounds(); ok {
		if previous, err := calendar.PrecedingRangeOfEqualLength(f, t); err == nil {
			fetch = calendar.Closed(*previous.From, t)
		}
	}
	universe, err := s.salesIn(ctx, fetch)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Period:      period,
		Totals:      analytics.ComputeTotals(analytics.FilterPeriod(universe, period)),
		Comparison:  analytics.ComparePeriods(universe, period),
		GeneratedAt: s.now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) Charts(ctx context.Context, from string, to string, bucket string, topN int) (ChartResponse, error) {
	by, err := analytics.ParseBucketBy(strings.ToLower(strings.TrimSpace(bucket)))
	if err != nil {
		return ChartResponse{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if topN < 0 {
		return ChartResponse{}, fmt.Errorf("%w: top must not be negative", ErrInvalidQuery)
	}
	period, err := parsePeriod(from, to)
	if err != nil {
		return ChartResponse{}, err
	}
	sales, err := s.salesIn(ctx, period)
	if err != nil {
		return ChartResponse{}, err
	}

	return ChartResponse{
		Period: period,
		AggregateResult: analytics.Aggregate(sales, by, analytics.AggregateOptions{
			Location: s.location,
			TopN:     topN,
		}),
	}, nil
}

// Insights pairs the short-window trend over the period with anomaly alerts.
// Alerts look at the fourteen local days ending today, restricted to the
// period, so a past period reports none.
func (s *Service) Insights(ctx context.Context, from string, to string) (Insights, error) {
	period, err := parsePeriod(from, to)
	if err != nil {
		return Insights{}, err
	}
	scoped, err := s.salesIn(ctx, period)
	if err != nil {
		return Insights{}, err
	}

	now := s.now()
	// One extra day on each side covers zones ahead of or behind UTC.
	today := calendar.UTCDayOf(now)
	recent, err := s.salesIn(ctx, calendar.Closed(today.AddDays(-14), today.AddDays(1)))
	if err != nil {
		return Insights{}, err
	}
	alerts := analytics.DetectAnomalies(analytics.FilterPeriod(recent, period), now, s.location, s.thresholds)

	counts := map[string]int{domain.SeverityHigh: 0, domain.SeverityMedium: 0, domain.SeverityLow: 0}
	highest := ""
	for _, alert := range alerts {
		counts[alert.Severity]++
		if highest == "" || severityRank(alert.Severity) < severityRank(highest) {
			highest = alert.Severity
		}
	}

	return Insights{
		Period:          period,
		Trend:           analytics.ShortWindowTrend(scoped),
		Alerts:          alerts,
		AlertCounts:     counts,
		HighestSeverity: highest,
		Timezone:        s.location.String(),
		GeneratedAt:     now.UTC().Format(time.RFC3339),
	}, nil
}

// salesIn loads and enriches every sale in the period.
func (s *Service) salesIn(ctx context.Context, period calendar.Period) ([]domain.EnrichedSale, error) {
	q := store.SaleQuery{Page: 1}
	if period.From != nil {
		q.From = period.From.String()
	}
	if period.To != nil {
		q.To = period.To.String()
	}
	page, err := s.repo.ListSales(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, page.Sales)
}

func parsePeriod(from string, to string) (calendar.Period, error) {
	period, err := calendar.NewPeriod(strings.TrimSpace(from), strings.TrimSpace(to))
	if err != nil {
		return calendar.Period{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return period, nil
}

func severityRank(severity string) int {
	switch severity {
	case domain.SeverityHigh:
		return 1
	case domain.SeverityMedium:
		return 2
	default:
		return 3
	}
}
