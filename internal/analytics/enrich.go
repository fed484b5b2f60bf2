// Package analytics is the pure computation layer behind the sales dashboard.
//
// Every function here takes plain records and returns plain values. Nothing
// reads the clock, the network, or shared state; "now" is always a parameter.
// Records whose dates cannot be parsed are left out of a computation rather
// than failing it.
package analytics

import (
	"strings"

	"salesdesk/backend/internal/domain"
)

// Enrich attaches clients and instruments to sales by foreign key. Unknown or
// null keys leave the corresponding pointer nil.
func Enrich(sales []domain.Sale, clients []domain.Client, instruments []domain.Instrument) []domain.EnrichedSale {
	clientByID := make(map[string]*domain.Client, len(clients))
	for i := range clients {
		c := clients[i]
		clientByID[c.ID] = &c
	}
	instrumentByID := make(map[string]*domain.Instrument, len(instruments))
	for i := range instruments {
		inst := instruments[i]
		instrumentByID[inst.ID] = &inst
	}

	enriched := make([]domain.EnrichedSale, 0, len(sales))
	for _, sale := range sales {
		row := domain.EnrichedSale{Sale: sale}
		if id := domain.Deref(sale.ClientID); id != "" {
			row.Client = clientByID[id]
		}
		if id := domain.Deref(sale.InstrumentID); id != "" {
			row.Instrument = instrumentByID[id]
		}
		enriched = append(enriched, row)
	}
	return enriched
}

type nameResolver func(domain.EnrichedSale) string

// clientNameResolvers run in order; the first non-empty result wins.
var clientNameResolvers = []nameResolver{
	func(s domain.EnrichedSale) string {
		if s.Client == nil {
			return ""
		}
		return strings.TrimSpace(domain.Deref(s.Client.FirstName) + " " + domain.Deref(s.Client.LastName))
	},
	func(s domain.EnrichedSale) string {
		if s.Client == nil {
			return ""
		}
		return strings.TrimSpace(domain.Deref(s.Client.Email))
	},
	func(s domain.EnrichedSale) string {
		return strings.TrimSpace(domain.Deref(s.ClientID))
	},
}

// ClientDisplayName resolves "first last", then email, then the raw client id.
// It returns "" only for a sale with no client at all.
func ClientDisplayName(sale domain.EnrichedSale) string {
	for _, resolve := range clientNameResolvers {
		if name := resolve(sale); name != "" {
			return name
		}
	}
	return ""
}

// InstrumentMaker and InstrumentType return "" when the sale has no resolved
// instrument or the attribute is blank.
func InstrumentMaker(sale domain.EnrichedSale) string {
	if sale.Instrument == nil {
		return ""
	}
	return strings.TrimSpace(domain.Deref(sale.Instrument.Maker))
}

func InstrumentType(sale domain.EnrichedSale) string {
	if sale.Instrument == nil {
		return ""
	}
	return strings.TrimSpace(domain.Deref(sale.Instrument.Type))
}
