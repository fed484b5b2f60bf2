package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
	"salesdesk/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	sales           map[string]domain.Sale
	clients         map[string]domain.Client
	instruments     map[string]domain.Instrument
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD, falling back to fixed dev
// defaults with a warning.
func seedUsers(log *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with the given reference data and no users.
func New(clients []domain.Client, instruments []domain.Instrument) *Store {
	s := &Store{
		sales:           make(map[string]domain.Sale),
		clients:         make(map[string]domain.Client, len(clients)),
		instruments:     make(map[string]domain.Instrument, len(instruments)),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
	for _, c := range clients {
		s.clients[c.ID] = c
	}
	for _, i := range instruments {
		s.instruments[i.ID] = i
	}
	return s
}

// NewSeeded returns a demo store with reference data, two users, and sixty
// days of sales ending today.
func NewSeeded(log *zap.Logger) *Store {
	p := domain.StringPtr
	instruments := []domain.Instrument{
		{ID: "inst-strat", Maker: p("Fender"), Type: p("Guitar"), Subtype: p("Stratocaster")},
		{ID: "inst-lespaul", Maker: p("Gibson"), Type: p("Guitar"), Subtype: p("Les Paul")},
		{ID: "inst-u1", Maker: p("Yamaha"), Type: p("Piano"), Subtype: p("Upright")},
		{ID: "inst-td17", Maker: p("Roland"), Type: p("Drums"), Subtype: p("Electronic")},
		{ID: "inst-d28", Maker: p("Martin"), Type: p("Guitar"), Subtype: p("Acoustic")},
		{ID: "inst-violin", Maker: p("Stradivarius"), Type: p("Violin")},
	}
	clients := []domain.Client{
		{ID: "client-ada", FirstName: p("Ada"), LastName: p("Lovelace"), Email: p("ada@example.com")},
		{ID: "client-miles", FirstName: p("Miles"), LastName: p("Davis")},
		{ID: "client-nina", FirstName: p("Nina"), LastName: p("Simone"), Email: p("nina@example.com")},
		{ID: "client-emile", FirstName: p("Émile"), LastName: p("Berliner")},
		{ID: "client-ops", Email: p("purchasing@orchestra.example")},
	}

	s := New(clients, instruments)
	s.usersByUsername = seedUsers(log)

	prices := []int64{1299, 2499, 5800, 899, 3150, 12000}
	today := time.Now().UTC()
	n := 0
	for day := 59; day >= 0; day-- {
		date := today.AddDate(0, 0, -day).Format("2006-01-02")
		perDay := 1 + day%3
		for k := 0; k < perDay; k++ {
			n++
			inst := instruments[n%len(instruments)]
			price := decimal.NewFromInt(prices[n%len(prices)])
			if n%9 == 0 {
				price = price.Neg()
			}
			sale := domain.Sale{
				ID:           fmt.Sprintf("sale-seed-%03d", n),
				InstrumentID: p(inst.ID),
				SalePrice:    price,
				SaleDate:     date,
				CreatedAt:    today.AddDate(0, 0, -day),
			}
			if n%7 != 0 {
				sale.ClientID = p(clients[n%len(clients)].ID)
			}
			s.sales[sale.ID] = sale
		}
	}
	return s
}

func (s *Store) ListSales(_ context.Context, q store.SaleQuery) (store.SalePage, error) {
	period, err := calendar.NewPeriod(q.From, q.To)
	if err != nil {
		return store.SalePage{}, fmt.Errorf("%w: %v", store.ErrInvalidSale, err)
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		day, err := calendar.ParseUTC(sale.SaleDate)
		if err != nil || !period.Contains(day) {
			continue
		}
		if q.HasClient != nil && (domain.Deref(sale.ClientID) != "") != *q.HasClient {
			continue
		}
		if search != "" && !s.matchesSearch(sale, search) {
			continue
		}
		matched = append(matched, sale)
	}

	slices.SortFunc(matched, func(a, b domain.Sale) int {
		if c := strings.Compare(b.SaleDate, a.SaleDate); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	page := store.SalePage{Total: len(matched)}
	start := min(q.Offset(), len(matched))
	end := len(matched)
	if q.PageSize > 0 {
		end = min(start+q.PageSize, len(matched))
	}
	page.Sales = matched[start:end]
	return page, nil
}

// matchesSearch expects search already lower-cased. Caller holds the lock.
func (s *Store) matchesSearch(sale domain.Sale, search string) bool {
	fields := []string{domain.Deref(sale.Notes)}
	if c, ok := s.clients[domain.Deref(sale.ClientID)]; ok {
		fields = append(fields, domain.Deref(c.FirstName), domain.Deref(c.LastName), domain.Deref(c.Email))
	}
	if i, ok := s.instruments[domain.Deref(sale.InstrumentID)]; ok {
		fields = append(fields, domain.Deref(i.Maker), domain.Deref(i.Type), domain.Deref(i.Subtype))
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.SalePrice.IsZero() {
		return nil, fmt.Errorf("%w: sale_price must not be zero", store.ErrInvalidSale)
	}
	if _, err := calendar.ParseUTC(sale.SaleDate); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidSale, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id := domain.Deref(sale.ClientID); id != "" {
		if _, ok := s.clients[id]; !ok {
			return nil, fmt.Errorf("%w: unknown client %s", store.ErrInvalidSale, id)
		}
	}
	if id := domain.Deref(sale.InstrumentID); id != "" {
		if _, ok := s.instruments[id]; !ok {
			return nil, fmt.Errorf("%w: unknown instrument %s", store.ErrInvalidSale, id)
		}
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.sales[sale.ID] = sale
	return &sale, nil
}

func (s *Store) UpdateSalePrice(_ context.Context, id string, price decimal.Decimal) (*domain.Sale, error) {
	if price.IsZero() {
		return nil, fmt.Errorf("%w: sale_price must not be zero", store.ErrInvalidSale)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.SalePrice = price
	s.sales[id] = sale
	return &sale, nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int { return strings.Compare(a.ID, b.ID) })
	return clients, nil
}

func (s *Store) ListInstruments(_ context.Context) ([]domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instruments := make([]domain.Instrument, 0, len(s.instruments))
	for _, i := range s.instruments {
		instruments = append(instruments, i)
	}
	slices.SortFunc(instruments, func(a, b domain.Instrument) int { return strings.Compare(a.ID, b.ID) })
	return instruments, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidUser
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidUser
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
