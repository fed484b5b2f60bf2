package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"salesdesk/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestMutationWithoutCSRFTokenIsRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, authedRequest(http.MethodPost, "/api/v1/sales", token, "", map[string]any{
		"sale_price": "10.00",
		"sale_date":  "2024-03-14",
	}))
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	api.Handler().ServeHTTP(res, authedRequest(http.MethodPost, "/api/v1/sales", token, "forged", map[string]any{
		"sale_price": "10.00",
		"sale_date":  "2024-03-14",
	}))
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with forged csrf token, got %d", res.Code)
	}
}

// lockoutCase replays the same failing request from one address and expects
// the rejection status until the limiter trips.
type lockoutCase struct {
	name     string
	allowed  int
	rejected int
	request  func(token, csrf string) *http.Request
}

func TestRepeatedFailuresLockOut(t *testing.T) {
	cases := []lockoutCase{
		{
			name:     "login",
			allowed:  5,
			rejected: http.StatusUnauthorized,
			request: func(string, string) *http.Request {
				req := authedRequest(http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: "admin", Password: "wrong-pass"})
				req.Header.Del("Authorization")
				return req
			},
		},
		{
			name:     "manager pin",
			allowed:  8,
			rejected: http.StatusForbidden,
			request: func(token, csrf string) *http.Request {
				return authedRequest(http.MethodPost, "/api/v1/sales/sale-seed-001/refund", token, csrf, domain.RefundActionRequest{
					Reason:     "damaged",
					ManagerPIN: "000000",
				})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(t)
			token, csrf := loginAsAdmin(t, api), fetchCSRFToken(t, api)
			for attempt := 1; attempt <= tc.allowed+1; attempt++ {
				req := tc.request(token, csrf)
				req.RemoteAddr = "127.0.0.1:5000"
				res := httptest.NewRecorder()
				api.Handler().ServeHTTP(res, req)

				want := tc.rejected
				if attempt > tc.allowed {
					want = http.StatusTooManyRequests
				}
				if res.Code != want {
					t.Fatalf("attempt %d: expected %d, got %d (body: %s)", attempt, want, res.Code, res.Body.String())
				}
			}
		})
	}
}

func TestCSRFTokenAcceptsPreviousHour(t *testing.T) {
	api := newTestAPI(t)
	current := fetchCSRFToken(t, api)
	if !api.validateCSRFToken(current) {
		t.Fatalf("expected current token to validate")
	}
	if api.validateCSRFToken("") {
		t.Fatalf("expected empty token to fail")
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}
