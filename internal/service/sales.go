package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/analytics"
	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/export"
	"salesdesk/backend/internal/store"
	"salesdesk/backend/internal/xid"
)

type priceTransform func(price decimal.Decimal) (decimal.Decimal, error)

const (
	defaultPageSize = 50
	maxPageSize     = 500

	TotalsSourceServer = "server"
	TotalsSourcePage   = "page"

	priceScale = 2
)

var maxSalePrice = decimal.RequireFromString("999999999999.99")

func (s *Service) ListSales(ctx context.Context, req domain.SaleListRequest) (domain.SaleListResponse, error) {
	q, err := saleQuery(req)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	page, err := s.repo.ListSales(ctx, q)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	enriched, err := s.enrich(ctx, page.Sales)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	enriched = s.sortSales(enriched, req)

	resp := domain.SaleListResponse{
		Sales:    enriched,
		Page:     q.Page,
		PageSize: q.PageSize,
		Total:    page.Total,
	}
	if page.Totals != nil {
		resp.Totals = *page.Totals
		resp.TotalsSource = TotalsSourceServer
	} else {
		resp.Totals = analytics.ComputeTotals(enriched)
		resp.TotalsSource = TotalsSourcePage
	}
	return resp, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.EnrichedSale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.EnrichedSale{}, store.ErrNotFound
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.EnrichedSale{}, err
	}
	return s.enrichOne(ctx, *sale)
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.EnrichedSale, error) {
	if req.SalePrice.IsZero() {
		return domain.EnrichedSale{}, fmt.Errorf("%w: %v", store.ErrInvalidSale, analytics.ErrZeroPrice)
	}
	// Both stores must agree with the NUMERIC(14, 2) column.
	if !req.SalePrice.Equal(req.SalePrice.Round(priceScale)) {
		return domain.EnrichedSale{}, fmt.Errorf("%w: sale_price has more than %d decimal places", store.ErrInvalidSale, priceScale)
	}
	if req.SalePrice.Abs().GreaterThan(maxSalePrice) {
		return domain.EnrichedSale{}, fmt.Errorf("%w: sale_price exceeds %s", store.ErrInvalidSale, maxSalePrice.StringFixed(priceScale))
	}
	day, err := calendar.ParseUTC(strings.TrimSpace(req.SaleDate))
	if err != nil {
		return domain.EnrichedSale{}, fmt.Errorf("%w: %v", store.ErrInvalidSale, err)
	}

	ref, err := s.referenceData(ctx)
	if err != nil {
		return domain.EnrichedSale{}, err
	}
	clientID := trimmedOrNil(req.ClientID)
	if clientID != nil && !hasClient(ref.Clients, *clientID) {
		return domain.EnrichedSale{}, fmt.Errorf("%w: unknown client %s", store.ErrInvalidSale, *clientID)
	}
	instrumentID := trimmedOrNil(req.InstrumentID)
	if instrumentID != nil && !hasInstrument(ref.Instruments, *instrumentID) {
		return domain.EnrichedSale{}, fmt.Errorf("%w: unknown instrument %s", store.ErrInvalidSale, *instrumentID)
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ID:           xid.New("sale"),
		InstrumentID: instrumentID,
		ClientID:     clientID,
		SalePrice:    req.SalePrice,
		SaleDate:     day.String(),
		Notes:        trimmedOrNil(req.Notes),
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.EnrichedSale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("date=%s,price=%s", created.SaleDate, created.SalePrice.StringFixed(2)))
	return analytics.Enrich([]domain.Sale{*created}, ref.Clients, ref.Instruments)[0], nil
}

// RefundSale flips a paid sale to a refund of the same amount. Manager PIN
// checks happen at the transport layer.
func (s *Service) RefundSale(ctx context.Context, id string, reason string) (domain.EnrichedSale, error) {
	return s.updatePrice(ctx, id, "sale_refund", reason, analytics.RefundPrice)
}

// UndoRefund restores a refunded sale to paid.
func (s *Service) UndoRefund(ctx context.Context, id string, reason string) (domain.EnrichedSale, error) {
	return s.updatePrice(ctx, id, "sale_refund_undo", reason, analytics.UndoRefundPrice)
}

func (s *Service) updatePrice(ctx context.Context, id string, action string, reason string, transform priceTransform) (domain.EnrichedSale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.EnrichedSale{}, store.ErrNotFound
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.EnrichedSale{}, err
	}
	price, err := transform(sale.SalePrice)
	if err != nil {
		return domain.EnrichedSale{}, err
	}
	updated, err := s.repo.UpdateSalePrice(ctx, id, price)
	if err != nil {
		return domain.EnrichedSale{}, err
	}

	detail := fmt.Sprintf("from=%s,to=%s", sale.SalePrice.StringFixed(2), updated.SalePrice.StringFixed(2))
	if reason = strings.TrimSpace(reason); reason != "" {
		detail += ",reason=" + reason
	}
	s.logAudit(ctx, action, "sale", updated.ID, detail)
	return s.enrichOne(ctx, *updated)
}

// ExportCSV renders every sale matching the filters, sorted as requested.
func (s *Service) ExportCSV(ctx context.Context, req domain.SaleListRequest) (string, error) {
	q, err := saleQuery(req)
	if err != nil {
		return "", err
	}
	q.Page, q.PageSize = 1, 0

	page, err := s.repo.ListSales(ctx, q)
	if err != nil {
		return "", err
	}
	enriched, err := s.enrich(ctx, page.Sales)
	if err != nil {
		return "", err
	}
	return export.SalesCSV(s.sortSales(enriched, req), export.Formatters{})
}

func (s *Service) enrichOne(ctx context.Context, sale domain.Sale) (domain.EnrichedSale, error) {
	enriched, err := s.enrich(ctx, []domain.Sale{sale})
	if err != nil {
		return domain.EnrichedSale{}, err
	}
	return enriched[0], nil
}

// sortSales keeps repository order unless a sort field is requested.
func (s *Service) sortSales(sales []domain.EnrichedSale, req domain.SaleListRequest) []domain.EnrichedSale {
	field := strings.ToLower(strings.TrimSpace(req.SortBy))
	if field == "" {
		return sales
	}
	return analytics.Sort(sales, field, analytics.ParseSortDirection(req.SortDir), s.collation)
}

func saleQuery(req domain.SaleListRequest) (store.SaleQuery, error) {
	from, to := strings.TrimSpace(req.From), strings.TrimSpace(req.To)
	period, err := calendar.NewPeriod(from, to)
	if err != nil {
		return store.SaleQuery{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	switch strings.ToLower(strings.TrimSpace(req.SortBy)) {
	case "", analytics.SortFieldDate, analytics.SortFieldAmount, analytics.SortFieldClient:
	default:
		return store.SaleQuery{}, fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, req.SortBy)
	}

	q := store.SaleQuery{
		Search:    strings.TrimSpace(req.Search),
		HasClient: req.HasClient,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if period.From != nil {
		q.From = period.From.String()
	}
	if period.To != nil {
		q.To = period.To.String()
	}
	return q, nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func hasClient(clients []domain.Client, id string) bool {
	for _, c := range clients {
		if c.ID == id {
			return true
		}
	}
	return false
}

func hasInstrument(instruments []domain.Instrument, id string) bool {
	for _, i := range instruments {
		if i.ID == id {
			return true
		}
	}
	return false
}
