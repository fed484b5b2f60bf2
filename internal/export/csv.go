// Package export renders sale listings for download.
package export

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/analytics"
	"salesdesk/backend/internal/domain"
)

var salesHeader = []string{"id", "date", "client", "instrument", "maker", "type", "amount", "status", "notes"}

// Formatters control how dates and amounts appear in the file. Nil fields use
// the raw date and a two-decimal amount.
type Formatters struct {
	Date     func(string) string
	Currency func(decimal.Decimal) string
}

func (f Formatters) date(raw string) string {
	if f.Date == nil {
		return raw
	}
	return f.Date(raw)
}

func (f Formatters) currency(d decimal.Decimal) string {
	if f.Currency == nil {
		return d.StringFixed(2)
	}
	return f.Currency(d)
}

// WriteSalesCSV writes a header and one row per sale, in input order.
func WriteSalesCSV(w io.Writer, sales []domain.EnrichedSale, f Formatters) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(salesHeader); err != nil {
		return err
	}
	for _, s := range sales {
		instrument := ""
		if s.Instrument != nil {
			instrument = s.Instrument.Label()
		}
		if err := writer.Write([]string{
			s.ID,
			f.date(s.SaleDate),
			analytics.ClientDisplayName(s),
			instrument,
			analytics.InstrumentMaker(s),
			analytics.InstrumentType(s),
			f.currency(s.SalePrice),
			s.Status(),
			domain.Deref(s.Notes),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SalesCSV returns the file as a string. An empty listing yields "".
func SalesCSV(sales []domain.EnrichedSale, f Formatters) (string, error) {
	if len(sales) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := WriteSalesCSV(&buf, sales, f); err != nil {
		return "", err
	}
	return buf.String(), nil
}
