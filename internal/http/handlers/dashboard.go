package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/robloxar/giftcard-bot/internal/activity"
	"github.com/robloxar/giftcard-bot/internal/catalog"
	"github.com/robloxar/giftcard-bot/internal/conversation"
	"github.com/robloxar/giftcard-bot/internal/inventory"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/internal/poller"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// botEngine is the slice of the conversation engine the dashboard drives.
type botEngine interface {
	Enabled() bool
	SetEnabled(on bool)
	DeliverManually(ctx context.Context, saleID string) error
}

// sweepRunner triggers the manual message sweep.
type sweepRunner interface {
	Run(ctx context.Context) (poller.Result, error)
}

// questionLister is the marketplace slice behind the questions view.
type questionLister interface {
	GetSellerQuestions(ctx context.Context, status string, limit, offset int) ([]meli.SellerQuestion, error)
}

var _ questionLister = (*meli.Client)(nil)

// codeRestocker is implemented by inventory backends that accept code
// uploads. The sheets backend does not: restocking there happens in the
// spreadsheet itself.
type codeRestocker interface {
	AddCodes(ctx context.Context, productKey string, codes []string) (int, error)
}

// DashboardHandler serves the operator panel API.
type DashboardHandler struct {
	engine    botEngine
	store     conversation.StateStore
	journal   conversation.Journal
	inv       inventory.Source
	feed      *activity.Log
	sweeper   sweepRunner
	questions questionLister
	logger    *logging.Logger
}

func NewDashboardHandler(
	engine botEngine,
	store conversation.StateStore,
	journal conversation.Journal,
	inv inventory.Source,
	feed *activity.Log,
	sweeper sweepRunner,
	questions questionLister,
	logger *logging.Logger,
) *DashboardHandler {
	if engine == nil || store == nil {
		panic("handlers: engine and state store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{
		engine:    engine,
		store:     store,
		journal:   journal,
		inv:       inv,
		feed:      feed,
		sweeper:   sweeper,
		questions: questions,
		logger:    logger,
	}
}

// Stats returns sale counts by status plus bot and activity summaries.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	states, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sales", "error", err)
		http.Error(w, "failed to list sales", http.StatusInternalServerError)
		return
	}

	byStatus := map[string]int{}
	delivered := 0
	for _, state := range states {
		byStatus[string(state.Status)]++
		if state.CodeDelivered != "" {
			delivered++
		}
	}

	resp := map[string]any{
		"bot_enabled":     h.engine.Enabled(),
		"sales_total":     len(states),
		"sales_by_status": byStatus,
		"codes_delivered": delivered,
	}
	if h.feed != nil {
		resp["activity"] = h.feed.CountByType()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Chats lists every tracked sale, newest first.
func (h *DashboardHandler) Chats(w http.ResponseWriter, r *http.Request) {
	states, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sales", "error", err)
		http.Error(w, "failed to list sales", http.StatusInternalServerError)
		return
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].UpdatedAt.After(states[j].UpdatedAt)
	})
	writeJSON(w, http.StatusOK, map[string]any{"chats": states})
}

// ChatDetail returns one sale's record plus its journal trail.
func (h *DashboardHandler) ChatDetail(w http.ResponseWriter, r *http.Request) {
	saleID := chi.URLParam(r, "saleID")
	state, err := h.store.Get(r.Context(), saleID)
	if err != nil {
		if errors.Is(err, conversation.ErrStateNotFound) {
			http.Error(w, "sale not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load sale", "sale_id", saleID, "error", err)
		http.Error(w, "failed to load sale", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{"sale": state}
	if h.journal != nil {
		if evts, err := h.journal.List(r.Context(), saleID); err == nil {
			resp["events"] = evts
		} else {
			h.logger.Warn("failed to list events", "sale_id", saleID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Deliver forces code delivery for a sale.
func (h *DashboardHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	saleID := chi.URLParam(r, "saleID")
	if err := h.engine.DeliverManually(r.Context(), saleID); err != nil {
		h.logger.Error("manual delivery failed", "sale_id", saleID, "error", err)
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Inventory returns available code counts per product.
func (h *DashboardHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	if h.inv == nil {
		http.Error(w, "inventory not configured", http.StatusServiceUnavailable)
		return
	}
	counts, err := h.inv.Counts(r.Context())
	if err != nil {
		h.logger.Error("inventory count failed", "error", err)
		http.Error(w, "inventory count failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": counts})
}

// Restock uploads a batch of codes for a product. Duplicates are skipped by
// the backend, so re-posting a batch after a timeout is safe.
func (h *DashboardHandler) Restock(w http.ResponseWriter, r *http.Request) {
	restocker, ok := h.inv.(codeRestocker)
	if !ok {
		http.Error(w, "inventory backend does not accept uploads", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		ProductKey string   `json:"product_key"`
		Codes      []string `json:"codes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if _, ok := catalog.ByKey(req.ProductKey); !ok {
		http.Error(w, "unknown product key", http.StatusBadRequest)
		return
	}
	if len(req.Codes) == 0 {
		http.Error(w, "codes required", http.StatusBadRequest)
		return
	}

	inserted, err := restocker.AddCodes(r.Context(), req.ProductKey, req.Codes)
	if err != nil {
		h.logger.Error("restock failed", "product", req.ProductKey, "error", err)
		http.Error(w, "restock failed", http.StatusInternalServerError)
		return
	}
	h.logger.Info("codes restocked", "product", req.ProductKey, "inserted", inserted)
	writeJSON(w, http.StatusOK, map[string]any{"inserted": inserted, "received": len(req.Codes)})
}

// Activity returns the recent activity feed, newest first.
func (h *DashboardHandler) Activity(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []activity.Entry{}})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.feed.Recent(limit)})
}

// Questions lists the seller's marketplace questions, unanswered by default.
func (h *DashboardHandler) Questions(w http.ResponseWriter, r *http.Request) {
	if h.questions == nil {
		http.Error(w, "marketplace not configured", http.StatusServiceUnavailable)
		return
	}
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "UNANSWERED"
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	list, err := h.questions.GetSellerQuestions(r.Context(), status, limit, 0)
	if err != nil {
		h.logger.Error("question search failed", "error", err)
		http.Error(w, "question search failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []meli.SellerQuestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": list})
}

// BotStatus reports whether the bot is answering buyers.
func (h *DashboardHandler) BotStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"enabled": h.engine.Enabled()})
}

// SetBot flips the kill switch.
func (h *DashboardHandler) SetBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	h.engine.SetEnabled(req.Enabled)
	h.logger.Info("bot toggled", "enabled", req.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

// CheckMessages runs the manual sweep over recent paid sales.
func (h *DashboardHandler) CheckMessages(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		http.Error(w, "sweep not configured", http.StatusServiceUnavailable)
		return
	}
	res, err := h.sweeper.Run(r.Context())
	if err != nil {
		h.logger.Error("message sweep failed", "error", err)
		http.Error(w, "message sweep failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
