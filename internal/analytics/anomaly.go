package analytics

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
)

const (
	AlertRevenueDrop      = "revenue_drop"
	AlertRefundSpike      = "refund_spike"
	AlertMakerRefundSpike = "maker_refund_spike"
	AlertWeekdayOrderDrop = "weekday_order_drop"
)

// Thresholds tunes DetectAnomalies. Percentages are in percent units.
type Thresholds struct {
	RevenueDropLowPct    float64
	RevenueDropMediumPct float64
	RevenueDropHighPct   float64
	RefundSpikePct       float64
	// MakerMinBaseline is the refund amount a maker must reach in the previous
	// week, and the minimum absolute increase, before a spike counts. It also
	// promotes first-time refunds to medium severity.
	MakerMinBaseline float64
	MakerSpikePct    float64
	WeekdayMinCount  int
	WeekdayDropPct   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		RevenueDropLowPct:    15,
		RevenueDropMediumPct: 30,
		RevenueDropHighPct:   50,
		RefundSpikePct:       50,
		MakerMinBaseline:     200,
		MakerSpikePct:        100,
		WeekdayMinCount:      3,
		WeekdayDropPct:       50,
	}
}

type windowPair struct {
	previous decimal.Decimal
	recent   decimal.Decimal
}

// DetectAnomalies compares the seven local days ending today against the
// seven days before them. Each rule fires independently.
func DetectAnomalies(sales []domain.EnrichedSale, now time.Time, loc *time.Location, th Thresholds) []domain.Alert {
	today := calendar.LocalToday(now, loc)
	recentFrom := today.AddDays(-(TrendWindow - 1))
	previousTo := today.AddDays(-TrendWindow)
	previousFrom := today.AddDays(-(2*TrendWindow - 1))

	revenue := windowPair{decimal.Zero, decimal.Zero}
	refunds := windowPair{decimal.Zero, decimal.Zero}
	makerRefunds := map[string]*windowPair{}
	var makerOrder []string
	var weekdayOrders [7][2]int

	for _, s := range sales {
		day, err := calendar.ParseLocal(s.SaleDate, loc)
		if err != nil {
			continue
		}
		var recent bool
		switch {
		case day.Within(recentFrom, today):
			recent = true
		case day.Within(previousFrom, previousTo):
		default:
			continue
		}

		slot := 0
		if recent {
			slot = 1
		}
		if s.SalePrice.IsPositive() {
			addTo(&revenue, recent, s.SalePrice)
			weekdayOrders[day.Weekday()][slot]++
			continue
		}
		if !s.SalePrice.IsNegative() {
			continue
		}
		amount := s.SalePrice.Abs()
		addTo(&refunds, recent, amount)
		if maker := InstrumentMaker(s); maker != "" {
			pair, ok := makerRefunds[maker]
			if !ok {
				pair = &windowPair{decimal.Zero, decimal.Zero}
				makerRefunds[maker] = pair
				makerOrder = append(makerOrder, maker)
			}
			addTo(pair, recent, amount)
		}
	}

	alerts := make([]domain.Alert, 0, 8)
	if a, ok := revenueDropAlert(revenue, th); ok {
		alerts = append(alerts, a)
	}
	if a, ok := refundSpikeAlert(refunds, th); ok {
		alerts = append(alerts, a)
	}
	for _, maker := range makerOrder {
		if a, ok := makerSpikeAlert(maker, *makerRefunds[maker], th); ok {
			alerts = append(alerts, a)
		}
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if a, ok := weekdayDropAlert(wd, weekdayOrders[wd][0], weekdayOrders[wd][1], th); ok {
			alerts = append(alerts, a)
		}
	}

	slices.SortStableFunc(alerts, func(a, b domain.Alert) int {
		if c := alertCodeRank(a.Code) - alertCodeRank(b.Code); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return alerts
}

func addTo(p *windowPair, recent bool, amount decimal.Decimal) {
	if recent {
		p.recent = p.recent.Add(amount)
		return
	}
	p.previous = p.previous.Add(amount)
}

func revenueDropAlert(w windowPair, th Thresholds) (domain.Alert, bool) {
	if !w.previous.IsPositive() {
		return domain.Alert{}, false
	}
	prev, recent := w.previous.InexactFloat64(), w.recent.InexactFloat64()
	drop := (prev - recent) / prev * 100

	var severity string
	var threshold float64
	switch {
	case drop > th.RevenueDropHighPct:
		severity, threshold = domain.SeverityHigh, th.RevenueDropHighPct
	case drop > th.RevenueDropMediumPct:
		severity, threshold = domain.SeverityMedium, th.RevenueDropMediumPct
	case drop > th.RevenueDropLowPct:
		severity, threshold = domain.SeverityLow, th.RevenueDropLowPct
	default:
		return domain.Alert{}, false
	}
	return domain.Alert{
		Code:        AlertRevenueDrop,
		Severity:    severity,
		Title:       "Revenue dropped",
		Description: fmt.Sprintf("Revenue over the last 7 days is %.1f%% below the previous 7 days (%s vs %s).", drop, w.recent.StringFixed(2), w.previous.StringFixed(2)),
		MetricValue: drop,
		Threshold:   threshold,
	}, true
}

func refundSpikeAlert(w windowPair, th Thresholds) (domain.Alert, bool) {
	recent := w.recent.InexactFloat64()
	if !w.previous.IsPositive() {
		if !w.recent.IsPositive() {
			return domain.Alert{}, false
		}
		severity := domain.SeverityLow
		if recent >= th.MakerMinBaseline {
			severity = domain.SeverityMedium
		}
		return domain.Alert{
			Code:        AlertRefundSpike,
			Severity:    severity,
			Key:         "first_time",
			Title:       "Refunds appeared",
			Description: fmt.Sprintf("Refunds of %s in the last 7 days after none in the previous 7 days.", w.recent.StringFixed(2)),
			MetricValue: recent,
			Threshold:   th.MakerMinBaseline,
		}, true
	}

	prev := w.previous.InexactFloat64()
	increase := (recent - prev) / prev * 100
	if increase <= th.RefundSpikePct {
		return domain.Alert{}, false
	}
	severity := domain.SeverityMedium
	if increase > 2*th.RefundSpikePct {
		severity = domain.SeverityHigh
	}
	return domain.Alert{
		Code:        AlertRefundSpike,
		Severity:    severity,
		Title:       "Refunds increased",
		Description: fmt.Sprintf("Refunds over the last 7 days are %.1f%% above the previous 7 days (%s vs %s).", increase, w.recent.StringFixed(2), w.previous.StringFixed(2)),
		MetricValue: increase,
		Threshold:   th.RefundSpikePct,
	}, true
}

func makerSpikeAlert(maker string, w windowPair, th Thresholds) (domain.Alert, bool) {
	prev, recent := w.previous.InexactFloat64(), w.recent.InexactFloat64()
	if prev <= 0 || prev < th.MakerMinBaseline {
		return domain.Alert{}, false
	}
	increase := (recent - prev) / prev * 100
	if increase <= th.MakerSpikePct || recent-prev < th.MakerMinBaseline {
		return domain.Alert{}, false
	}
	severity := domain.SeverityMedium
	if increase > 2*th.MakerSpikePct {
		severity = domain.SeverityHigh
	}
	return domain.Alert{
		Code:        AlertMakerRefundSpike,
		Severity:    severity,
		Key:         maker,
		Title:       "Maker refunds increased",
		Description: fmt.Sprintf("Refunds for %s rose %.1f%% week over week (%s vs %s).", maker, increase, w.recent.StringFixed(2), w.previous.StringFixed(2)),
		MetricValue: increase,
		Threshold:   th.MakerSpikePct,
	}, true
}

func weekdayDropAlert(wd time.Weekday, previous, recent int, th Thresholds) (domain.Alert, bool) {
	if previous < th.WeekdayMinCount || previous == 0 {
		return domain.Alert{}, false
	}
	drop := float64(previous-recent) / float64(previous) * 100
	if drop <= th.WeekdayDropPct {
		return domain.Alert{}, false
	}
	return domain.Alert{
		Code:        AlertWeekdayOrderDrop,
		Severity:    domain.SeverityLow,
		Key:         strconv.Itoa(int(wd)),
		Title:       "Fewer orders on " + wd.String(),
		Description: fmt.Sprintf("%d orders on the latest %s against %d the week before.", recent, wd, previous),
		MetricValue: drop,
		Threshold:   th.WeekdayDropPct,
	}, true
}

func alertCodeRank(code string) int {
	switch code {
	case AlertRevenueDrop:
		return 1
	case AlertRefundSpike:
		return 2
	case AlertMakerRefundSpike:
		return 3
	default:
		return 4
	}
}
