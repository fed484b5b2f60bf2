package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID           string          `json:"id"`
	InstrumentID *string         `json:"instrument_id,omitempty"`
	ClientID     *string         `json:"client_id,omitempty"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	SaleDate     string          `json:"sale_date"`
	Notes        *string         `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Status is derived from the sign of the price; a refund flips the same record.
func (s Sale) Status() string {
	if s.SalePrice.IsNegative() {
		return SaleStatusRefunded
	}
	return SaleStatusPaid
}

func (s Sale) IsRefund() bool {
	return s.SalePrice.IsNegative()
}

type Client struct {
	ID        string  `json:"id"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

type Instrument struct {
	ID      string  `json:"id"`
	Maker   *string `json:"maker,omitempty"`
	Type    *string `json:"type,omitempty"`
	Subtype *string `json:"subtype,omitempty"`
}

// Label is the short display text for an instrument row.
func (i Instrument) Label() string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{i.Maker, i.Type, i.Subtype} {
		if v := Deref(p); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return i.ID
	}
	return strings.Join(parts, " ")
}

// EnrichedSale is a Sale with its foreign keys resolved. A nil Client or
// Instrument means the key was null or did not match.
type EnrichedSale struct {
	Sale
	Client     *Client     `json:"client,omitempty"`
	Instrument *Instrument `json:"instrument,omitempty"`
}

type Totals struct {
	Revenue    decimal.Decimal `json:"revenue"`
	Refund     decimal.Decimal `json:"refund"`
	Net        decimal.Decimal `json:"net"`
	Count      int             `json:"count"`
	AvgTicket  decimal.Decimal `json:"avg_ticket"`
	RefundRate float64         `json:"refund_rate"`
}

type Alert struct {
	Code        string  `json:"code"`
	Severity    string  `json:"severity"`
	Key         string  `json:"key,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	MetricValue float64 `json:"metric_value"`
	Threshold   float64 `json:"threshold"`
}

type ReferenceData struct {
	Clients     []Client     `json:"clients"`
	Instruments []Instrument `json:"instruments"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type SaleCreateRequest struct {
	InstrumentID *string         `json:"instrument_id,omitempty"`
	ClientID     *string         `json:"client_id,omitempty"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	SaleDate     string          `json:"sale_date"`
	Notes        *string         `json:"notes,omitempty"`
}

type SaleListRequest struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Search    string `json:"search,omitempty"`
	HasClient *bool  `json:"has_client,omitempty"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
	SortBy    string `json:"sort_by,omitempty"`
	SortDir   string `json:"sort_dir,omitempty"`
}

type SaleListResponse struct {
	Sales        []EnrichedSale `json:"sales"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
	Total        int            `json:"total"`
	Totals       Totals         `json:"totals"`
	TotalsSource string         `json:"totals_source"`
}

type SaleResponse struct {
	Sale EnrichedSale `json:"sale"`
}

type RefundActionRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	SaleStatusPaid     = "paid"
	SaleStatusRefunded = "refunded"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func StringPtr(v string) *string {
	return &v
}
