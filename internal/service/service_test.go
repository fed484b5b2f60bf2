package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/analytics"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
	"salesdesk/backend/internal/store/memory"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	p := domain.StringPtr
	repo := memory.New(
		[]domain.Client{
			{ID: "client-a", FirstName: p("Ada"), LastName: p("Lovelace")},
			{ID: "client-b", FirstName: p("Bela"), LastName: p("Bartok")},
		},
		[]domain.Instrument{
			{ID: "inst-fender", Maker: p("Fender"), Type: p("Guitar")},
			{ID: "inst-gibson", Maker: p("Gibson"), Type: p("Guitar")},
		},
	)
	for _, s := range []domain.Sale{
		{ID: "s1", ClientID: p("client-a"), InstrumentID: p("inst-fender"), SalePrice: decimal.NewFromInt(1000), SaleDate: "2024-03-10"},
		{ID: "s2", ClientID: p("client-b"), InstrumentID: p("inst-gibson"), SalePrice: decimal.NewFromInt(1500), SaleDate: "2024-03-12"},
		{ID: "s3", ClientID: p("client-a"), InstrumentID: p("inst-fender"), SalePrice: decimal.NewFromInt(-200), SaleDate: "2024-03-13", Notes: p("strap, \"broken\"")},
		{ID: "s4", ClientID: p("client-a"), InstrumentID: p("inst-gibson"), SalePrice: decimal.NewFromInt(800), SaleDate: "2024-03-03"},
		{ID: "s5", InstrumentID: p("inst-fender"), SalePrice: decimal.NewFromInt(400), SaleDate: "2024-03-05"},
	} {
		s.CreatedAt = testNow.Add(-time.Hour)
		if _, err := repo.CreateSale(context.Background(), s); err != nil {
			t.Fatalf("seed sale %s: %v", s.ID, err)
		}
	}

	svc := New(repo, nil, Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
	return svc, repo
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func TestListSalesFallsBackToPageTotalsAndSorts(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.ListSales(context.Background(), domain.SaleListRequest{SortBy: "amount", SortDir: "desc"})
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if resp.Total != 5 || len(resp.Sales) != 5 {
		t.Fatalf("expected 5 sales, got total=%d len=%d", resp.Total, len(resp.Sales))
	}
	if resp.TotalsSource != TotalsSourcePage {
		t.Fatalf("expected page totals from memory store, got %q", resp.TotalsSource)
	}
	if resp.PageSize != defaultPageSize || resp.Page != 1 {
		t.Fatalf("expected default paging, got page=%d size=%d", resp.Page, resp.PageSize)
	}
	if resp.Sales[0].ID != "s2" || resp.Sales[4].ID != "s3" {
		t.Fatalf("expected amount desc order s2..s3, got %s..%s", resp.Sales[0].ID, resp.Sales[4].ID)
	}
	if !resp.Totals.Revenue.Equal(decimal.NewFromInt(3700)) || !resp.Totals.Refund.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected totals: %+v", resp.Totals)
	}
	if resp.Sales[0].Client == nil || resp.Sales[0].Instrument == nil {
		t.Fatalf("expected enriched client and instrument")
	}
}

func TestListSalesFiltersByPeriodAndClient(t *testing.T) {
	svc, _ := newTestService(t)
	withoutClient := false

	resp, err := svc.ListSales(context.Background(), domain.SaleListRequest{From: "2024-03-01", To: "2024-03-07", HasClient: &withoutClient})
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(resp.Sales) != 1 || resp.Sales[0].ID != "s5" {
		t.Fatalf("expected only s5, got %+v", resp.Sales)
	}
}

func TestListSalesRejectsBadQueries(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []domain.SaleListRequest{
		{From: "2024-03-10", To: "2024-03-01"},
		{From: "yesterday"},
		{SortBy: "maker"},
	}
	for _, req := range cases {
		if _, err := svc.ListSales(context.Background(), req); !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("expected ErrInvalidQuery for %+v, got %v", req, err)
		}
	}
}

func TestCreateSaleValidatesAndAudits(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := adminContext()

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{SalePrice: decimal.Zero, SaleDate: "2024-03-14"}); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected zero price rejection, got %v", err)
	}
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{SalePrice: decimal.NewFromInt(10), SaleDate: "14/03/2024"}); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected bad date rejection, got %v", err)
	}
	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{SalePrice: decimal.NewFromInt(10), SaleDate: "2024-03-14", ClientID: domain.StringPtr("client-zz")}); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected unknown client rejection, got %v", err)
	}

	created, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		SalePrice:    decimal.RequireFromString("249.90"),
		SaleDate:     "2024-03-14T18:30:00Z",
		ClientID:     domain.StringPtr(" client-b "),
		InstrumentID: domain.StringPtr("inst-fender"),
		Notes:        domain.StringPtr("   "),
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if created.SaleDate != "2024-03-14" {
		t.Fatalf("expected normalized sale date, got %s", created.SaleDate)
	}
	if created.Notes != nil {
		t.Fatalf("expected blank notes to be dropped")
	}
	if created.Client == nil || created.Client.ID != "client-b" {
		t.Fatalf("expected enriched client-b, got %+v", created.Client)
	}
	if !strings.HasPrefix(created.ID, "sale-") {
		t.Fatalf("expected prefixed id, got %s", created.ID)
	}

	logs, err := repo.ListAuditLogs(context.Background(), testNow.Add(-time.Minute), testNow.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "sale_create" || logs[0].ActorUsername != "admin" {
		t.Fatalf("expected one sale_create audit by admin, got %+v", logs)
	}
}

func TestCreateSaleRejectsSubCentAndOversizedPrices(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminContext()

	for _, raw := range []string{"10.005", "-0.001", "1000000000000.00"} {
		_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{SalePrice: decimal.RequireFromString(raw), SaleDate: "2024-03-14"})
		if !errors.Is(err, store.ErrInvalidSale) {
			t.Fatalf("expected %s to be rejected, got %v", raw, err)
		}
	}

	created, err := svc.CreateSale(ctx, domain.SaleCreateRequest{SalePrice: decimal.RequireFromString("10.500"), SaleDate: "2024-03-14"})
	if err != nil {
		t.Fatalf("expected trailing zeros to be accepted, got %v", err)
	}
	if created.SalePrice.StringFixed(2) != "10.50" {
		t.Fatalf("unexpected stored price %s", created.SalePrice)
	}
}

func TestRefundAndUndoRefund(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminContext()

	refunded, err := svc.RefundSale(ctx, "s1", "wrong finish")
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !refunded.SalePrice.Equal(decimal.NewFromInt(-1000)) || refunded.Status() != domain.SaleStatusRefunded {
		t.Fatalf("expected -1000 refunded, got %s %s", refunded.SalePrice, refunded.Status())
	}

	if _, err := svc.RefundSale(ctx, "s1", ""); !errors.Is(err, analytics.ErrAlreadyRefunded) {
		t.Fatalf("expected ErrAlreadyRefunded, got %v", err)
	}
	if _, err := svc.UndoRefund(ctx, "s2", ""); !errors.Is(err, analytics.ErrNotRefunded) {
		t.Fatalf("expected ErrNotRefunded, got %v", err)
	}
	if _, err := svc.RefundSale(ctx, "missing", ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	restored, err := svc.UndoRefund(ctx, "s1", "")
	if err != nil {
		t.Fatalf("undo refund failed: %v", err)
	}
	if !restored.SalePrice.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected 1000 after undo, got %s", restored.SalePrice)
	}

	logs, err := svc.ListAuditLogs(ctx, "", 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected refund and undo audit entries, got %d", len(logs))
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "sale_refund" && strings.Contains(entry.Detail, "reason=wrong finish") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected refund audit with reason, got %+v", logs)
	}
}

func TestSummaryComparesPrecedingPeriod(t *testing.T) {
	svc, _ := newTestService(t)

	summary, err := svc.Summary(context.Background(), "2024-03-08", "2024-03-14")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !summary.Totals.Revenue.Equal(decimal.NewFromInt(2500)) || summary.Totals.Count != 2 {
		t.Fatalf("unexpected current totals: %+v", summary.Totals)
	}
	cmp := summary.Comparison
	if !cmp.Available {
		t.Fatalf("expected comparison to be available")
	}
	if cmp.Previous.From.String() != "2024-03-01" || cmp.Previous.To.String() != "2024-03-07" {
		t.Fatalf("unexpected previous period %s", cmp.Previous)
	}
	if !cmp.PreviousTotals.Revenue.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("expected previous revenue 1200, got %s", cmp.PreviousTotals.Revenue)
	}
	if cmp.Growth.Revenue == nil || math.Abs(*cmp.Growth.Revenue-108.3333) > 0.001 {
		t.Fatalf("expected revenue growth ~108.33, got %v", cmp.Growth.Revenue)
	}
	if cmp.Growth.Refund != nil {
		t.Fatalf("expected refund growth to be not applicable")
	}
}

func TestSummaryOpenPeriodHasNoComparison(t *testing.T) {
	svc, _ := newTestService(t)

	summary, err := svc.Summary(context.Background(), "2024-03-08", "")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.Comparison.Available {
		t.Fatalf("expected no comparison for an open period")
	}
	if !summary.Totals.Net.Equal(decimal.NewFromInt(2300)) {
		t.Fatalf("expected net 2300, got %s", summary.Totals.Net)
	}
}

func TestChartsByWeekdayAndMaker(t *testing.T) {
	svc, _ := newTestService(t)

	weekday, err := svc.Charts(context.Background(), "", "", "weekday", 0)
	if err != nil {
		t.Fatalf("weekday chart failed: %v", err)
	}
	if len(weekday.Buckets) != 7 {
		t.Fatalf("expected 7 weekday buckets, got %d", len(weekday.Buckets))
	}

	maker, err := svc.Charts(context.Background(), "2024-03-08", "2024-03-14", "maker", 1)
	if err != nil {
		t.Fatalf("maker chart failed: %v", err)
	}
	if len(maker.Buckets) != 1 || maker.Buckets[0].Key != "Gibson" {
		t.Fatalf("expected top maker Gibson, got %+v", maker.Buckets)
	}

	if _, err := svc.Charts(context.Background(), "", "", "hourly", 0); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for unknown bucket, got %v", err)
	}
}

func TestInsightsReportsFirstTimeRefund(t *testing.T) {
	svc, _ := newTestService(t)

	insights, err := svc.Insights(context.Background(), "", "")
	if err != nil {
		t.Fatalf("insights failed: %v", err)
	}
	if insights.Trend.Status != analytics.TrendInsufficientData {
		t.Fatalf("expected insufficient data trend, got %s", insights.Trend.Status)
	}
	if len(insights.Alerts) != 1 {
		t.Fatalf("expected a single alert, got %+v", insights.Alerts)
	}
	alert := insights.Alerts[0]
	if alert.Code != analytics.AlertRefundSpike || alert.Key != "first_time" || alert.Severity != domain.SeverityMedium {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if insights.HighestSeverity != domain.SeverityMedium || insights.AlertCounts[domain.SeverityMedium] != 1 {
		t.Fatalf("unexpected alert summary %s %+v", insights.HighestSeverity, insights.AlertCounts)
	}
}

func TestInsightsAlertsFollowThePeriod(t *testing.T) {
	svc, _ := newTestService(t)

	past, err := svc.Insights(context.Background(), "2023-01-01", "2023-01-31")
	if err != nil {
		t.Fatalf("insights failed: %v", err)
	}
	if len(past.Alerts) != 0 || past.HighestSeverity != "" {
		t.Fatalf("expected no alerts for a past period, got %+v", past.Alerts)
	}

	current, err := svc.Insights(context.Background(), "2024-03-13", "2024-03-15")
	if err != nil {
		t.Fatalf("insights failed: %v", err)
	}
	if len(current.Alerts) != 1 || current.Alerts[0].Key != "first_time" {
		t.Fatalf("expected the first-time refund alert, got %+v", current.Alerts)
	}

	beforeRefund, err := svc.Insights(context.Background(), "2024-03-01", "2024-03-12")
	if err != nil {
		t.Fatalf("insights failed: %v", err)
	}
	for _, alert := range beforeRefund.Alerts {
		if alert.Code == analytics.AlertRefundSpike {
			t.Fatalf("expected refund on 2024-03-13 to be outside the period, got %+v", alert)
		}
	}
}

func TestExportCSVIncludesEveryMatch(t *testing.T) {
	svc, _ := newTestService(t)

	csv, err := svc.ExportCSV(context.Background(), domain.SaleListRequest{SortBy: "date", PageSize: 1})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected header and 5 rows, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,date,client") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "s4,2024-03-03") {
		t.Fatalf("expected oldest sale first, got %q", lines[1])
	}
	if !strings.Contains(csv, `"strap, ""broken"""`) {
		t.Fatalf("expected quoted notes in %q", csv)
	}
}

type countingRepo struct {
	store.Repository
	clientReads int
}

func (r *countingRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	r.clientReads++
	return r.Repository.ListClients(ctx)
}

type mapCache struct {
	entries map[string]*domain.ReferenceData
	sets    int
	deletes int
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	c.deletes++
	return nil
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.ReferenceData, bool, error) {
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.ReferenceData, _ time.Duration) error {
	c.entries[key] = value
	c.sets++
	return nil
}

func TestReferenceDataIsServedFromCache(t *testing.T) {
	_, repo := newTestService(t)
	counting := &countingRepo{Repository: repo}
	refCache := &mapCache{entries: map[string]*domain.ReferenceData{}}
	svc := New(counting, refCache, Options{Now: func() time.Time { return testNow }})

	for i := 0; i < 3; i++ {
		clients, err := svc.ListClients(context.Background())
		if err != nil {
			t.Fatalf("list clients failed: %v", err)
		}
		if len(clients) != 2 {
			t.Fatalf("expected 2 clients, got %d", len(clients))
		}
	}
	if counting.clientReads != 1 || refCache.sets != 1 {
		t.Fatalf("expected one repository read and one cache fill, got reads=%d sets=%d", counting.clientReads, refCache.sets)
	}
}

func TestRefreshReferenceDataInvalidatesCache(t *testing.T) {
	_, repo := newTestService(t)
	counting := &countingRepo{Repository: repo}
	refCache := &mapCache{entries: map[string]*domain.ReferenceData{}}
	svc := New(counting, refCache, Options{Now: func() time.Time { return testNow }})

	if _, err := svc.ListClients(context.Background()); err != nil {
		t.Fatalf("list clients failed: %v", err)
	}
	ref, err := svc.RefreshReferenceData(adminContext())
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if len(ref.Clients) != 2 || len(ref.Instruments) != 2 {
		t.Fatalf("unexpected reference data %+v", ref)
	}
	if refCache.deletes != 1 || refCache.sets != 2 || counting.clientReads != 2 {
		t.Fatalf("expected one invalidation and a reload, got deletes=%d sets=%d reads=%d", refCache.deletes, refCache.sets, counting.clientReads)
	}

	logs, err := repo.ListAuditLogs(context.Background(), testNow.Add(-time.Minute), testNow.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "reference_refresh" {
		t.Fatalf("expected a reference_refresh audit entry, got %+v", logs)
	}
}
