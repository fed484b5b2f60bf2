package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidSale = errors.New("invalid sale")
	ErrInvalidUser = errors.New("invalid user")
	ErrConflict    = errors.New("already exists")
)

// SaleQuery filters a sale listing. Dates are inclusive YYYY-MM-DD bounds;
// an empty bound is open. PageSize 0 returns every match.
type SaleQuery struct {
	From      string
	To        string
	Search    string
	HasClient *bool
	Page      int
	PageSize  int
}

// Offset is the zero-based row offset of the requested page.
func (q SaleQuery) Offset() int {
	if q.PageSize <= 0 || q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// SalePage is one page of a listing. Total counts every match. Totals covers
// every match too, and is nil when the backend does not aggregate.
type SalePage struct {
	Sales  []domain.Sale
	Total  int
	Totals *domain.Totals
}

type Repository interface {
	ListSales(ctx context.Context, q SaleQuery) (SalePage, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSalePrice(ctx context.Context, id string, price decimal.Decimal) (*domain.Sale, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
