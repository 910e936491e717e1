package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/splitledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/splitledger/internal/adapter/http/middleware"
	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/infrastructure/metrics"
	"github.com/iho/splitledger/internal/usecase"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_CORSAndSecureHeaders(t *testing.T) {
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.AllowedOrigins = []string{"https://books.example.com"}
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://books.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://books.example.com" {
		t.Fatalf("expected CORS origin header, got %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyMiddlewareGuardsSplit(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	body := `{"allocations":[{"area_id":"a","amount_minor":1},{"area_id":"b","amount_minor":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/movements/mv-1/split", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if !store.checkCalled {
		t.Fatalf("expected idempotency store to be used")
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected split to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_CreateBypassesIdempotencyStore(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	body := `{"source_bank_account_id":"bank-1","area_id":"area-a","type":"EXPENSE","amount_minor":100,"currency":"USD"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/movements/", strings.NewReader(body))
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if store.checkCalled {
		t.Fatalf("create relies on the database idempotency key")
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected create to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.Metrics = m
		cfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/movements/mv-1", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /metrics to return 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `path="/api/v1/movements/{id}/"`) &&
		!strings.Contains(rec.Body.String(), `path="/api/v1/movements/{id}"`) {
		t.Fatalf("expected request metric labelled by route pattern, got:\n%s", rec.Body.String())
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+strings.TrimSuffix(route, "/")] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"POST /api/v1/movements",
		"GET /api/v1/movements",
		"GET /api/v1/movements/{id}",
		"DELETE /api/v1/movements/{id}",
		"GET /api/v1/movements/{id}/children",
		"GET /api/v1/movements/{id}/history",
		"POST /api/v1/movements/{id}/split",
		"PUT /api/v1/movements/{id}/split",
		"DELETE /api/v1/movements/{id}/split",
		"POST /api/v1/movements/{id}/distribute",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered, have %v", route, seen)
		}
	}
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	cfg := RouterConfig{
		HealthHandler:   handler.NewHealthHandler(nil, nil),
		MovementHandler: handler.NewMovementHandler(stubMovementService{}, nil),
		Logger:          zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type stubMovementService struct{}

func (stubMovementService) CreateMovement(ctx context.Context, input usecase.CreateMovementInput) (*domain.Movement, error) {
	return &domain.Movement{ID: "mv", Amount: input.Amount, Currency: input.Currency}, nil
}

func (stubMovementService) GetMovement(ctx context.Context, id string) (*domain.Movement, error) {
	return &domain.Movement{ID: id, Currency: "USD"}, nil
}

func (stubMovementService) ListMovements(ctx context.Context, input usecase.ListMovementsInput) (*usecase.ListMovementsResult, error) {
	return &usecase.ListMovementsResult{}, nil
}

func (stubMovementService) ListChildren(ctx context.Context, parentID string) ([]*domain.Movement, error) {
	return []*domain.Movement{}, nil
}

func (stubMovementService) GetHistory(ctx context.Context, movementID string) ([]*domain.MovementHistory, error) {
	return []*domain.MovementHistory{}, nil
}

func (stubMovementService) DeleteMovement(ctx context.Context, input usecase.DeleteMovementInput) error {
	return nil
}

func (stubMovementService) SplitMovement(ctx context.Context, input usecase.SplitMovementInput) (*usecase.SplitResult, error) {
	return &usecase.SplitResult{Parent: &domain.Movement{ID: input.MovementID, Currency: "USD"}}, nil
}

func (stubMovementService) UpdateSplitMovement(ctx context.Context, input usecase.SplitMovementInput) (*usecase.SplitResult, error) {
	return &usecase.SplitResult{Parent: &domain.Movement{ID: input.MovementID, Currency: "USD"}}, nil
}

func (stubMovementService) UnsplitMovement(ctx context.Context, input usecase.UnsplitMovementInput) (*domain.Movement, error) {
	return &domain.Movement{ID: input.MovementID, Currency: "USD"}, nil
}

func (stubMovementService) DistributeExpense(ctx context.Context, input usecase.DistributeExpenseInput) (*usecase.DistributionResult, error) {
	return &usecase.DistributionResult{Source: &domain.Movement{ID: input.MovementID, Currency: "USD"}}, nil
}

type stubIdempotencyStore struct {
	checkCalled bool
}

func (s *stubIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.checkCalled = true
	return false, nil, nil
}

func (s *stubIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return nil
}

func (s *stubIdempotencyStore) Release(ctx context.Context, key string) error {
	return nil
}
