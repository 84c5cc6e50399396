package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fourone/rnc-api/internal/auth"
	"github.com/fourone/rnc-api/internal/lookup"
	"github.com/fourone/rnc-api/internal/ratelimit"
	"github.com/fourone/rnc-api/internal/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stack struct {
	router http.Handler
	store  *storage.SQLiteStorage
	clock  *testClock
}

// newStack wires real storage, lookup and admission behind the router.
func newStack(t *testing.T) *stack {
	t.Helper()

	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.UpsertBatch(context.Background(), []storage.Record{
		{RNC: "101000001", Nombre: "ACME SRL", Estado: "ACTIVO"},
	}, storage.InsertOnly)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	windows, err := ratelimit.NewWindowStore(1000)
	if err != nil {
		t.Fatalf("NewWindowStore: %v", err)
	}
	// Starts more than a second ahead so tokens created below open their
	// window before the gate's first reading.
	clock := &testClock{now: time.Now().UTC().Add(2 * time.Second).Truncate(time.Second)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := ratelimit.NewGate(store, windows, ratelimit.WithClock(clock.Now), ratelimit.WithLogger(logger))

	h := NewHandler(lookup.NewService(store), store, "1.0.0", logger)
	router := NewRouter(h, RouterOptions{
		Admission: auth.Middleware(gate, logger),
		Logger:    logger,
	})
	return &stack{router: router, store: store, clock: clock}
}

func (s *stack) get(target, token, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = ip + ":50000"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestIntegration_TokenQuota(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	plain, err := storage.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	_, err = s.store.CreateToken(context.Background(), &storage.Token{
		TokenHash:       storage.HashToken(plain),
		Name:            "erp",
		RequestsPerHour: 3,
	})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	for i := 1; i <= 3; i++ {
		rec := s.get("/api/validate/101000001", plain, "198.51.100.1")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
		if got := rec.Header().Get(auth.HeaderRemaining); got != strconv.Itoa(3-i) {
			t.Errorf("request %d: remaining = %q, want %d", i, got, 3-i)
		}
	}

	rec := s.get("/api/validate/101000001", plain, "198.51.100.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 without Retry-After")
	}

	s.clock.Advance(time.Hour)
	if rec := s.get("/api/validate/101000001", plain, "198.51.100.1"); rec.Code != http.StatusOK {
		t.Errorf("after window roll: status = %d, want 200", rec.Code)
	}
}

func TestIntegration_InvalidTokenIs401(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	rec := s.get("/api/info/101000001", "not-a-real-token", "198.51.100.2")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestIntegration_AnonymousQuota(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	for i := 0; i < ratelimit.DefaultAnonymousPerMinute; i++ {
		if rec := s.get("/api/validate/101000001", "", "203.0.113.7"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
	if rec := s.get("/api/validate/101000001", "", "203.0.113.7"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("11th request: status = %d, want 429", rec.Code)
	}

	// Another address has its own window.
	if rec := s.get("/api/validate/101000001", "", "203.0.113.8"); rec.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", rec.Code)
	}

	s.clock.Advance(61 * time.Second)
	if rec := s.get("/api/validate/101000001", "", "203.0.113.7"); rec.Code != http.StatusOK {
		t.Errorf("after 61s: status = %d, want 200", rec.Code)
	}
}

func TestIntegration_StatusIsNotGated(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	for i := 0; i < ratelimit.DefaultAnonymousPerMinute+5; i++ {
		if rec := s.get("/api/status", "", "203.0.113.9"); rec.Code != http.StatusOK {
			t.Fatalf("status call %d = %d, want 200", i+1, rec.Code)
		}
	}
}
