package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robloxar/giftcard-bot/internal/activity"
	"github.com/robloxar/giftcard-bot/internal/conversation"
	"github.com/robloxar/giftcard-bot/internal/inventory"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/internal/poller"
)

type stubEngine struct {
	enabled   bool
	delivered []string
	err       error
}

func (s *stubEngine) Enabled() bool        { return s.enabled }
func (s *stubEngine) SetEnabled(on bool)   { s.enabled = on }
func (s *stubEngine) DeliverManually(_ context.Context, saleID string) error {
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, saleID)
	return nil
}

type stubSweeper struct {
	res poller.Result
	err error
}

func (s *stubSweeper) Run(context.Context) (poller.Result, error) { return s.res, s.err }

type stubQuestionLister struct {
	list []meli.SellerQuestion
	err  error
}

func (s *stubQuestionLister) GetSellerQuestions(_ context.Context, status string, limit, offset int) ([]meli.SellerQuestion, error) {
	return s.list, s.err
}

func dashboardRouter(h *DashboardHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/stats", h.Stats)
	r.Get("/api/chats", h.Chats)
	r.Get("/api/chats/{saleID}", h.ChatDetail)
	r.Post("/api/chats/{saleID}/deliver", h.Deliver)
	r.Get("/api/inventory", h.Inventory)
	r.Post("/api/inventory/codes", h.Restock)
	r.Get("/api/activity", h.Activity)
	r.Get("/api/questions", h.Questions)
	r.Get("/api/bot", h.BotStatus)
	r.Post("/api/bot", h.SetBot)
	r.Post("/api/check-messages", h.CheckMessages)
	return r
}

func seedStore(t *testing.T) *conversation.MemoryStore {
	t.Helper()
	store := conversation.NewMemoryStore()
	now := time.Now()
	states := []*conversation.SaleState{
		{SaleID: "1", Status: conversation.StatusInstructionsSent, UpdatedAt: now.Add(-time.Hour)},
		{SaleID: "2", Status: conversation.StatusCodeSent, CodeDelivered: "ABCD", UpdatedAt: now},
		{SaleID: "3", Status: conversation.StatusCancelled, UpdatedAt: now.Add(-2 * time.Hour)},
	}
	for _, s := range states {
		require.NoError(t, store.Put(context.Background(), s))
	}
	return store
}

func TestStats(t *testing.T) {
	feed := activity.NewLog(10)
	feed.Record(activity.TypeDelivery, "Codigo enviado", "")
	h := NewDashboardHandler(&stubEngine{enabled: true}, seedStore(t), nil, nil, feed, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		BotEnabled     bool           `json:"bot_enabled"`
		SalesTotal     int            `json:"sales_total"`
		SalesByStatus  map[string]int `json:"sales_by_status"`
		CodesDelivered int            `json:"codes_delivered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.BotEnabled)
	assert.Equal(t, 3, resp.SalesTotal)
	assert.Equal(t, 1, resp.SalesByStatus["code_sent"])
	assert.Equal(t, 1, resp.CodesDelivered)
}

func TestChatsNewestFirst(t *testing.T) {
	h := NewDashboardHandler(&stubEngine{}, seedStore(t), nil, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []conversation.SaleState `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Chats, 3)
	assert.Equal(t, "2", resp.Chats[0].SaleID)
}

func TestChatDetailIncludesJournal(t *testing.T) {
	journal := conversation.NewMemoryJournal()
	require.NoError(t, journal.Append(context.Background(), conversation.Event{
		SaleID: "2", Kind: conversation.EventCodeDelivered, Code: "ABCD",
	}))
	h := NewDashboardHandler(&stubEngine{}, seedStore(t), journal, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chats/2", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "code_delivered")
	assert.Contains(t, rec.Body.String(), "ABCD")
}

func TestChatDetailNotFound(t *testing.T) {
	h := NewDashboardHandler(&stubEngine{}, conversation.NewMemoryStore(), nil, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chats/999", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeliverInvokesEngine(t *testing.T) {
	engine := &stubEngine{}
	h := NewDashboardHandler(engine, seedStore(t), nil, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chats/1/deliver", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"1"}, engine.delivered)
}

func TestDeliverConflictOnEngineError(t *testing.T) {
	engine := &stubEngine{err: errors.New("sale 3 is cancelled")}
	h := NewDashboardHandler(engine, seedStore(t), nil, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chats/3/deliver", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "cancelled")
}

func TestInventoryCounts(t *testing.T) {
	inv := inventory.NewMemorySource()
	inv.Load("roblox-400", "A", "B")
	h := NewDashboardHandler(&stubEngine{}, conversation.NewMemoryStore(), nil, inv, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/inventory", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Available map[string]int `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Available["roblox-400"])
}

func TestRestockSkipsDuplicates(t *testing.T) {
	inv := inventory.NewMemorySource()
	inv.Load("roblox-400", "OLD-1")
	h := NewDashboardHandler(&stubEngine{}, conversation.NewMemoryStore(), nil, inv, nil, nil, nil, nil)

	body := strings.NewReader(`{"product_key":"roblox-400","codes":["OLD-1","NEW-1","NEW-2","NEW-2",""]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/inventory/codes", body)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Inserted int `json:"inserted"`
		Received int `json:"received"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Inserted)
	assert.Equal(t, 5, resp.Received)

	counts, err := inv.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts["roblox-400"])
}

func TestRestockUnknownProduct(t *testing.T) {
	h := NewDashboardHandler(&stubEngine{}, conversation.NewMemoryStore(), nil, inventory.NewMemorySource(), nil, nil, nil, nil)

	body := strings.NewReader(`{"product_key":"fortnite-1000","codes":["A"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/inventory/codes", body)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// drawOnlySource has no AddCodes, like the sheets backend.
type drawOnlySource struct{ inventory.Source }

func TestRestockUnsupportedBackend(t *testing.T) {
	h := NewDashboardHandler(&stubEngine{}, conversation.NewMemoryStore(), nil, drawOnlySource{}, nil, nil, nil, nil)

	body := strings.NewReader(`{"product_key":"roblox-400","codes":["A"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/inventory/codes", body)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestActivityLimit(t *testing.T) {
	feed := activity.NewLog(10)
	for i := 0; i < 5; i++ {
		feed.Record(activity.TypeMessage, "msg", "")
	}
	h := NewDashboardHandler(&stubEngine{}, conversation.NewMemoryStore(), nil, nil, feed, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/activity?limit=2", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries []activity.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 2)
}

func TestBotToggle(t *testing.T) {
	engine := &stubEngine{enabled: true}
	h := NewDashboardHandler(engine, conversation.NewMemoryStore(), nil, nil, nil, nil, nil, nil)
	router := dashboardRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/bot", strings.NewReader(`{"enabled": false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, engine.enabled)

	req = httptest.NewRequest(http.MethodGet, "/api/bot", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)
}

func TestCheckMessagesRunsSweep(t *testing.T) {
	sweeper := &stubSweeper{res: poller.Result{Scanned: 3, Handled: 3}}
	h := NewDashboardHandler(&stubEngine{}, conversation.NewMemoryStore(), nil, nil, nil, sweeper, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/check-messages", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"handled":3`)
}

func TestQuestionsListsUnanswered(t *testing.T) {
	lister := &stubQuestionLister{list: []meli.SellerQuestion{
		{ID: 555, Text: "hacen factura?", ItemID: "MLA1", Status: "UNANSWERED"},
	}}
	h := NewDashboardHandler(&stubEngine{}, conversation.NewMemoryStore(), nil, nil, nil, nil, lister, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/questions", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hacen factura?")
}

func TestQuestionsWithoutMarketplace(t *testing.T) {
	h := NewDashboardHandler(&stubEngine{}, conversation.NewMemoryStore(), nil, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/questions", nil)
	rec := httptest.NewRecorder()
	dashboardRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
