package analytics

import (
	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/domain"
)

type saleOption func(*domain.EnrichedSale)

func sale(id, date, price string, opts ...saleOption) domain.EnrichedSale {
	s := domain.EnrichedSale{Sale: domain.Sale{
		ID:        id,
		SaleDate:  date,
		SalePrice: decimal.RequireFromString(price),
	}}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func withClient(id, first, last string) saleOption {
	return func(s *domain.EnrichedSale) {
		s.ClientID = domain.StringPtr(id)
		c := domain.Client{ID: id}
		if first != "" {
			c.FirstName = domain.StringPtr(first)
		}
		if last != "" {
			c.LastName = domain.StringPtr(last)
		}
		s.Client = &c
	}
}

func withClientID(id string) saleOption {
	return func(s *domain.EnrichedSale) {
		s.ClientID = domain.StringPtr(id)
	}
}

func withInstrument(maker, kind string) saleOption {
	return func(s *domain.EnrichedSale) {
		inst := domain.Instrument{ID: "inst-" + maker + "-" + kind}
		if maker != "" {
			inst.Maker = domain.StringPtr(maker)
		}
		if kind != "" {
			inst.Type = domain.StringPtr(kind)
		}
		s.InstrumentID = domain.StringPtr(inst.ID)
		s.Instrument = &inst
	}
}

func ids(sales []domain.EnrichedSale) []string {
	out := make([]string, len(sales))
	for i, s := range sales {
		out[i] = s.ID
	}
	return out
}
