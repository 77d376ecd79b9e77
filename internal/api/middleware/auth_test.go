package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/pos-ledger/internal/auth"
	"github.com/example/pos-ledger/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing-purposes", 15*time.Minute)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// ============================================
// AuthMiddleware Tests
// ============================================

func TestAuthMiddleware_ValidToken(t *testing.T) {
	jwtService := newTestJWTService()
	middleware := AuthMiddleware(jwtService)

	token, _, err := jwtService.GenerateAccessToken("user-123", "caja@example.com", "seller")
	require.NoError(t, err)

	var capturedUserID string
	var capturedClaims *auth.Claims
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedClaims, _ = GetUserFromContext(r.Context())
		capturedUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, capturedClaims)
	assert.Equal(t, "user-123", capturedUserID)
	assert.Equal(t, "seller", capturedClaims.Role)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	jwtService := newTestJWTService()
	other := auth.NewJWTService("another-secret-another-secret-another", 15*time.Minute)
	foreign, _, err := other.GenerateAccessToken("user-123", "caja@example.com", "seller")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"no header", "", "unauthorized"},
		{"not bearer", "Basic dXNlcjpwYXNz", "unauthorized"},
		{"garbage", "Bearer invalid-token", "invalid token"},
		{"wrong signature", "Bearer " + foreign, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(jwtService)(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-key-for-testing-purposes", -time.Minute)
	token, _, err := jwtService.GenerateAccessToken("user-123", "caja@example.com", "seller")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	AuthMiddleware(jwtService)(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token expired")
}

// ============================================
// RequireRole Tests
// ============================================

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"has role", &auth.Claims{UserID: "u-1", Role: "admin"}, http.StatusOK},
		{"wrong role", &auth.Claims{UserID: "u-1", Role: "seller"}, http.StatusForbidden},
		{"no claims", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()

			RequireRole("admin")(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestGetUserID_NoClaims(t *testing.T) {
	assert.Empty(t, GetUserID(context.Background()))
}

// ============================================
// Instrument Tests
// ============================================

func TestInstrument_RecordsRoutePattern(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(Instrument(m))
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/o-1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/orders/{id}", "404")))
}
