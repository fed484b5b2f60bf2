package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	tokenIssuer       = "salesdesk"
	userLoadTimeout   = 3 * time.Second
	minUsernameLength = 4
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes and x/crypto rejects it outright.
	maxPasswordLength = 72
)

// UserStore is the slice of store.Repository the auth manager needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and verifies bearer tokens for dashboard users. Accounts
// live in the UserStore and are mirrored in memory, keyed by lower-case name.
type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	pinHash   string
	userStore UserStore
	accounts  map[string]domain.UserAccount
	now       func() time.Time
	log       *zap.Logger
}

type AuthOption func(*AuthManager)

func WithAuthLogger(log *zap.Logger) AuthOption {
	return func(a *AuthManager) {
		if log != nil {
			a.log = log
		}
	}
}

func WithAuthClock(now func() time.Time) AuthOption {
	return func(a *AuthManager) {
		if now != nil {
			a.now = now
		}
	}
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, userStore UserStore, opts ...AuthOption) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	a := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		accounts:  make(map[string]domain.UserAccount),
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	// An empty PIN leaves pinHash empty, which disables every PIN-gated action.
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		hashed, err := hashPassword(pin)
		if err != nil {
			a.log.Error("manager pin could not be hashed; pin-gated actions disabled", zap.Error(err))
		} else {
			a.pinHash = hashed
		}
	}

	a.refreshAccounts(context.Background())
	return a
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (a *AuthManager) account(username string) (domain.UserAccount, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.accounts[username]
	return acc, ok
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.refreshAccounts(ctx)

	acc, ok := a.account(normalizeUsername(req.Username))
	if !ok || !verifyPassword(acc.Password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !acc.Active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	issuedAt := a.now().UTC()
	expiresAt := issuedAt.Add(a.tokenTTL)
	token, err := a.issue(acc, issuedAt, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign access token: %w", err)
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        acc.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) issue(acc domain.UserAccount, issuedAt, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   acc.Username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: acc.Role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken verifies signature, issuer and expiry, and only accepts the two
// dashboard roles.
func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	claims := &accessClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithTimeFunc(a.now),
	)
	if err != nil {
		return domain.Actor{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	if claims.Role != domain.RoleStaff && claims.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || a.pinHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.pinHash), []byte(input)) == nil
}

// CreateStaff registers a staff account. Policy failures wrap
// store.ErrInvalidUser.
func (a *AuthManager) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.StaffUser, error) {
	a.refreshAccounts(ctx)

	username := normalizeUsername(req.Username)
	if err := checkStaffCredentials(username, req.Password); err != nil {
		return domain.StaffUser{}, err
	}
	if _, exists := a.account(username); exists {
		return domain.StaffUser{}, ErrUsernameTaken
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return domain.StaffUser{}, fmt.Errorf("hash password: %w", err)
	}
	acc := domain.UserAccount{
		Username:  username,
		Password:  hashed,
		Role:      domain.RoleStaff,
		Active:    true,
		CreatedAt: a.now().UTC(),
	}
	if a.userStore != nil {
		if err := a.userStore.CreateUser(ctx, acc); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return domain.StaffUser{}, ErrUsernameTaken
			}
			return domain.StaffUser{}, err
		}
	}

	a.mu.Lock()
	a.accounts[username] = acc
	a.mu.Unlock()

	a.log.Info("staff account created", zap.String("username", username))
	return staffView(acc), nil
}

func checkStaffCredentials(username, password string) error {
	switch {
	case len(username) < minUsernameLength:
		return fmt.Errorf("%w: username must be at least %d characters", store.ErrInvalidUser, minUsernameLength)
	case strings.ContainsAny(username, " \t\r\n"):
		return fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidUser)
	case strings.TrimSpace(password) == "" || len(password) < minPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", store.ErrInvalidUser, minPasswordLength)
	case len(password) > maxPasswordLength:
		return fmt.Errorf("%w: password must be at most %d bytes", store.ErrInvalidUser, maxPasswordLength)
	}
	return nil
}

func (a *AuthManager) ListStaff(ctx context.Context) []domain.StaffUser {
	a.refreshAccounts(ctx)

	a.mu.RLock()
	out := make([]domain.StaffUser, 0, len(a.accounts))
	for _, acc := range a.accounts {
		if acc.Role == domain.RoleStaff {
			out = append(out, staffView(acc))
		}
	}
	a.mu.RUnlock()

	slices.SortFunc(out, func(x, y domain.StaffUser) int {
		return strings.Compare(x.Username, y.Username)
	})
	return out
}

func staffView(acc domain.UserAccount) domain.StaffUser {
	return domain.StaffUser{
		Username:  acc.Username,
		Role:      acc.Role,
		Active:    acc.Active,
		CreatedAt: acc.CreatedAt,
	}
}

// refreshAccounts reloads the in-memory mirror from the user store. Plain-text
// passwords found there are re-hashed and written back. A failing store keeps
// the previous mirror.
func (a *AuthManager) refreshAccounts(ctx context.Context) {
	if a.userStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, userLoadTimeout)
	defer cancel()

	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		a.log.Warn("user store unavailable, using cached accounts", zap.Error(err))
		return
	}

	loaded := make(map[string]domain.UserAccount, len(users))
	for _, user := range users {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		user.Username = username
		if !isPasswordHash(user.Password) {
			user.Password = a.upgradePassword(ctx, username, user.Password)
		}
		loaded[username] = user
	}

	a.mu.Lock()
	for username, acc := range loaded {
		a.accounts[username] = acc
	}
	a.mu.Unlock()
}

// upgradePassword hashes a legacy plain-text password. On failure the account
// keeps the unhashed value, which verifyPassword never accepts.
func (a *AuthManager) upgradePassword(ctx context.Context, username, plain string) string {
	hashed, err := hashPassword(plain)
	if err != nil {
		a.log.Error("hash legacy password", zap.String("username", username), zap.Error(err))
		return plain
	}
	if err := a.userStore.UpdateUserPassword(ctx, username, hashed); err != nil {
		a.log.Warn("persist upgraded password", zap.String("username", username), zap.Error(err))
	}
	return hashed
}

func verifyPassword(stored string, input string) bool {
	if strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
