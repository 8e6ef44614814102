package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/robloxar/giftcard-bot/internal/activity"
	"github.com/robloxar/giftcard-bot/internal/conversation"
	"github.com/robloxar/giftcard-bot/internal/events"
	"github.com/robloxar/giftcard-bot/internal/http/handlers"
	"github.com/robloxar/giftcard-bot/internal/webhook"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

type stubEngine struct {
	enabled bool
}

func (e *stubEngine) Enabled() bool      { return e.enabled }
func (e *stubEngine) SetEnabled(on bool) { e.enabled = on }
func (e *stubEngine) DeliverManually(context.Context, string) error {
	return nil
}

type stubQueue struct {
	enqueued []webhook.Notification
}

func (s *stubQueue) Enqueue(_ context.Context, n webhook.Notification) error {
	s.enqueued = append(s.enqueued, n)
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	webhookHandler := handlers.NewWebhookHandler(&stubQueue{}, nil, events.NewMemoryDedup(), nil, logger)
	dashboardHandler := handlers.NewDashboardHandler(
		&stubEngine{enabled: true},
		conversation.NewMemoryStore(),
		conversation.NewMemoryJournal(),
		nil,
		activity.NewLog(10),
		nil,
		nil,
		logger,
	)

	cfg := &Config{
		Logger:           logger,
		WebhookHandler:   webhookHandler,
		DashboardHandler: dashboardHandler,
		AdminAuthSecret:  "router-secret",
	}

	return New(cfg)
}

func signedAdminToken(t *testing.T, secret string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterWebhookIsPublic(t *testing.T) {
	router := newTestRouter(t)

	body := `{"_id":"evt-1","topic":"orders_v2","resource":"/orders/2000001","user_id":123456}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterDashboardRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterDashboardWithToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "router-secret"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var stats map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if enabled, ok := stats["bot_enabled"].(bool); !ok || !enabled {
		t.Errorf("expected bot_enabled true, got %v", stats["bot_enabled"])
	}
}
