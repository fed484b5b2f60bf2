package analytics

import (
	"math"

	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
)

const (
	DriverClients = "clients"
	DriverTicket  = "ticket"
)

// Growth holds period-over-period percentages. A nil field means the previous
// value was zero and growth is not applicable.
type Growth struct {
	Revenue    *float64 `json:"revenue"`
	Refund     *float64 `json:"refund"`
	Net        *float64 `json:"net"`
	Count      *float64 `json:"count"`
	AvgTicket  *float64 `json:"avg_ticket"`
	RefundRate *float64 `json:"refund_rate"`
}

// Decomposition splits the revenue delta into a client-count effect, a
// per-client ticket effect and their interaction. The three contributions
// always sum to RevenueDelta.
//
// Ticket here is revenue per unique client, not Totals.AvgTicket. The effects
// use the previous period as base: ClientContribution = Δclients × PreviousTicket,
// TicketContribution = Δticket × PreviousClients, Interaction = Δclients × Δticket.
type Decomposition struct {
	CurrentClients     int     `json:"current_clients"`
	PreviousClients    int     `json:"previous_clients"`
	CurrentTicket      float64 `json:"current_ticket"`
	PreviousTicket     float64 `json:"previous_ticket"`
	ClientContribution float64 `json:"client_contribution"`
	TicketContribution float64 `json:"ticket_contribution"`
	Interaction        float64 `json:"interaction"`
	RevenueDelta       float64 `json:"revenue_delta"`
	PrimaryDriver      string  `json:"primary_driver"`
}

type Comparison struct {
	// Available is false when the period is missing a bound.
	Available      bool            `json:"available"`
	Current        calendar.Period `json:"current"`
	Previous       calendar.Period `json:"previous"`
	CurrentTotals  domain.Totals   `json:"current_totals"`
	PreviousTotals domain.Totals   `json:"previous_totals"`
	Growth         Growth          `json:"growth"`
	Decomposition  *Decomposition  `json:"decomposition,omitempty"`
}

// ComparePeriods compares the period against the preceding range of equal
// length, both taken from the same universe of sales.
func ComparePeriods(universe []domain.EnrichedSale, period calendar.Period) Comparison {
	from, to, ok := period.Bounds()
	if !ok {
		return Comparison{Current: period}
	}
	previous, err := calendar.PrecedingRangeOfEqualLength(from, to)
	if err != nil {
		return Comparison{Current: period}
	}

	currentSales := FilterPeriod(universe, period)
	previousSales := FilterPeriod(universe, previous)
	cur := ComputeTotals(currentSales)
	prev := ComputeTotals(previousSales)

	return Comparison{
		Available:      true,
		Current:        period,
		Previous:       previous,
		CurrentTotals:  cur,
		PreviousTotals: prev,
		Growth: Growth{
			Revenue:    growthPct(cur.Revenue.InexactFloat64(), prev.Revenue.InexactFloat64()),
			Refund:     growthPct(cur.Refund.InexactFloat64(), prev.Refund.InexactFloat64()),
			Net:        growthPct(cur.Net.InexactFloat64(), prev.Net.InexactFloat64()),
			Count:      growthPct(float64(cur.Count), float64(prev.Count)),
			AvgTicket:  growthPct(cur.AvgTicket.InexactFloat64(), prev.AvgTicket.InexactFloat64()),
			RefundRate: growthPct(cur.RefundRate, prev.RefundRate),
		},
		Decomposition: decompose(currentSales, previousSales, cur, prev),
	}
}

func decompose(currentSales, previousSales []domain.EnrichedSale, cur, prev domain.Totals) *Decomposition {
	c1 := uniqueClients(currentSales)
	c0 := uniqueClients(previousSales)
	if c1 == 0 || c0 == 0 {
		return nil
	}
	r1 := cur.Revenue.InexactFloat64()
	r0 := prev.Revenue.InexactFloat64()
	t1 := r1 / float64(c1)
	t0 := r0 / float64(c0)
	dc := float64(c1 - c0)
	dt := t1 - t0

	d := &Decomposition{
		CurrentClients:     c1,
		PreviousClients:    c0,
		CurrentTicket:      t1,
		PreviousTicket:     t0,
		ClientContribution: dc * t0,
		TicketContribution: dt * float64(c0),
		Interaction:        dc * dt,
		RevenueDelta:       cur.Revenue.Sub(prev.Revenue).InexactFloat64(),
		PrimaryDriver:      DriverClients,
	}
	if math.Abs(d.TicketContribution) > math.Abs(d.ClientContribution) {
		d.PrimaryDriver = DriverTicket
	}
	return d
}

// uniqueClients counts distinct client ids among revenue-positive sales. A
// client seen only on refunds is not counted.
func uniqueClients(sales []domain.EnrichedSale) int {
	seen := make(map[string]struct{})
	for _, s := range sales {
		if !s.SalePrice.IsPositive() {
			continue
		}
		if id := domain.Deref(s.ClientID); id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
