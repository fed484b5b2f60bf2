package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/analytics"
	"salesdesk/backend/internal/calendar"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
	"salesdesk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

// Open returns a pooled *sql.DB on the pgx driver after a ping.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

const saleColumns = `s.id, s.instrument_id, s.client_id, s.sale_price, to_char(s.sale_date, 'YYYY-MM-DD'), s.notes, s.created_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// saleFilter renders the WHERE clause shared by the count and page queries.
func saleFilter(q store.SaleQuery) (string, []any, error) {
	if _, err := calendar.NewPeriod(q.From, q.To); err != nil {
		return "", nil, fmt.Errorf("%w: %v", store.ErrInvalidSale, err)
	}

	conds := make([]string, 0, 4)
	args := make([]any, 0, 4)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.From != "" {
		conds = append(conds, "s.sale_date >= "+next(q.From)+"::date")
	}
	if q.To != "" {
		conds = append(conds, "s.sale_date <= "+next(q.To)+"::date")
	}
	if q.HasClient != nil {
		if *q.HasClient {
			conds = append(conds, "s.client_id IS NOT NULL")
		} else {
			conds = append(conds, "s.client_id IS NULL")
		}
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		p := next("%" + likeEscaper.Replace(search) + "%")
		cols := []string{"s.notes", "c.first_name", "c.last_name", "c.email", "i.maker", "i.type", "i.subtype"}
		parts := make([]string, len(cols))
		for idx, col := range cols {
			parts[idx] = col + " ILIKE " + p
		}
		conds = append(conds, "("+strings.Join(parts, " OR ")+")")
	}

	if len(conds) == 0 {
		return "", args, nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}

const saleJoins = `
		FROM sales s
		LEFT JOIN clients c ON c.id = s.client_id
		LEFT JOIN instruments i ON i.id = s.instrument_id`

// ListSales returns one page plus totals computed over every match.
func (s *Store) ListSales(ctx context.Context, q store.SaleQuery) (store.SalePage, error) {
	where, args, err := saleFilter(q)
	if err != nil {
		return store.SalePage{}, err
	}

	var (
		total, paidCount int
		revenue, refund  decimal.Decimal
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(s.sale_price) FILTER (WHERE s.sale_price > 0), 0),
			COALESCE(-SUM(s.sale_price) FILTER (WHERE s.sale_price < 0), 0),
			COUNT(*) FILTER (WHERE s.sale_price > 0)`+saleJoins+`
		`+where, args...).Scan(&total, &revenue, &refund, &paidCount)
	if err != nil {
		return store.SalePage{}, err
	}
	totals := analytics.TotalsFrom(revenue, refund, paidCount)
	page := store.SalePage{Total: total, Totals: &totals, Sales: []domain.Sale{}}
	if total == 0 {
		return page, nil
	}

	query := `SELECT ` + saleColumns + saleJoins + `
		` + where + `
		ORDER BY s.sale_date DESC, s.created_at DESC, s.id DESC`
	if q.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.PageSize, q.Offset())
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.SalePage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return store.SalePage{}, err
		}
		page.Sales = append(page.Sales, sale)
	}
	if err := rows.Err(); err != nil {
		return store.SalePage{}, err
	}
	return page, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSale(row scanner) (domain.Sale, error) {
	var (
		sale                   domain.Sale
		instrumentID, clientID sql.NullString
		notes                  sql.NullString
	)
	if err := row.Scan(&sale.ID, &instrumentID, &clientID, &sale.SalePrice, &sale.SaleDate, &notes, &sale.CreatedAt); err != nil {
		return domain.Sale{}, err
	}
	sale.InstrumentID = nullableString(instrumentID)
	sale.ClientID = nullableString(clientID)
	sale.Notes = nullableString(notes)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales s WHERE s.id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.SalePrice.IsZero() {
		return nil, fmt.Errorf("%w: sale_price must not be zero", store.ErrInvalidSale)
	}
	if _, err := calendar.ParseUTC(sale.SaleDate); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidSale, err)
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, instrument_id, client_id, sale_price, sale_date, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::date,$6,$7,now())
	`, sale.ID, nullIfEmpty(domain.Deref(sale.InstrumentID)), nullIfEmpty(domain.Deref(sale.ClientID)),
		sale.SalePrice, sale.SaleDate, nullIfEmpty(domain.Deref(sale.Notes)), sale.CreatedAt)
	if err != nil {
		switch pgCode(err) {
		case "23505":
			return nil, store.ErrConflict
		case "23503", "23514":
			return nil, fmt.Errorf("%w: %s", store.ErrInvalidSale, err.Error())
		}
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) UpdateSalePrice(ctx context.Context, id string, price decimal.Decimal) (*domain.Sale, error) {
	if price.IsZero() {
		return nil, fmt.Errorf("%w: sale_price must not be zero", store.ErrInvalidSale)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE sales s
		SET sale_price = $2, updated_at = now()
		WHERE s.id = $1
		RETURNING `+saleColumns, id, price)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, email
		FROM clients
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 64)
	for rows.Next() {
		var (
			c                  domain.Client
			first, last, email sql.NullString
		)
		if err := rows.Scan(&c.ID, &first, &last, &email); err != nil {
			return nil, err
		}
		c.FirstName, c.LastName, c.Email = nullableString(first), nullableString(last), nullableString(email)
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, maker, type, subtype
		FROM instruments
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	instruments := make([]domain.Instrument, 0, 64)
	for rows.Next() {
		var (
			inst                 domain.Instrument
			maker, kind, subtype sql.NullString
		)
		if err := rows.Scan(&inst.ID, &maker, &kind, &subtype); err != nil {
			return nil, err
		}
		inst.Maker, inst.Type, inst.Subtype = nullableString(maker), nullableString(kind), nullableString(subtype)
		instruments = append(instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return instruments, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidUser
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if pgCode(err) == "23505" {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidUser
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// pgCode returns the SQLSTATE of a postgres error, or "".
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
