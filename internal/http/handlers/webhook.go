// Package handlers holds the HTTP surface: the MercadoLibre webhook receiver
// and the operator dashboard API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/robloxar/giftcard-bot/internal/events"
	"github.com/robloxar/giftcard-bot/internal/observability/metrics"
	"github.com/robloxar/giftcard-bot/internal/webhook"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// notificationQueue accepts notifications for asynchronous dispatch.
type notificationQueue interface {
	Enqueue(ctx context.Context, n webhook.Notification) error
}

// syncDispatcher runs a notification synchronously, for the simulate endpoint.
type syncDispatcher interface {
	Dispatch(ctx context.Context, n webhook.Notification) error
}

// WebhookHandler receives MercadoLibre notifications. It ALWAYS answers 200:
// a non-200 makes MercadoLibre redeliver with backoff and eventually disable
// the webhook subscription, which is worse than dropping one event. The
// dedupe table plus the engine's own guards absorb redeliveries.
type WebhookHandler struct {
	queue      notificationQueue
	dispatcher syncDispatcher
	dedup      events.Dedup
	metrics    *metrics.BotMetrics
	logger     *logging.Logger
}

func NewWebhookHandler(
	queue notificationQueue,
	dispatcher syncDispatcher,
	dedup events.Dedup,
	botMetrics *metrics.BotMetrics,
	logger *logging.Logger,
) *WebhookHandler {
	if queue == nil || dedup == nil {
		panic("handlers: queue and dedup store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		queue:      queue,
		dispatcher: dispatcher,
		dedup:      dedup,
		metrics:    botMetrics,
		logger:     logger,
	}
}

// Receive is the public webhook endpoint.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	defer func() {
		// 200 no matter what happened above.
		w.WriteHeader(http.StatusOK)
	}()

	var n webhook.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		h.logger.Warn("malformed webhook payload", "error", err)
		h.metrics.ObserveInbound("unknown", "malformed")
		return
	}
	if n.Topic == "" || n.Resource == "" {
		h.logger.Warn("webhook payload missing topic or resource")
		h.metrics.ObserveInbound(n.Topic, "malformed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	fresh, err := h.dedup.MarkProcessed(ctx, events.ProviderMercadoLibre, n.DedupKey())
	if err != nil {
		// Dedupe store down: process anyway, the engine guards cover it.
		h.logger.Warn("dedup check failed, processing anyway", "error", err)
	} else if !fresh {
		h.logger.Debug("duplicate webhook dropped", "topic", n.Topic, "resource", n.Resource)
		h.metrics.ObserveInbound(n.Topic, "duplicate")
		return
	}

	if err := h.queue.Enqueue(ctx, n); err != nil {
		h.logger.Error("failed to enqueue webhook", "topic", n.Topic, "resource", n.Resource, "error", err)
		h.metrics.ObserveInbound(n.Topic, "enqueue_error")
		return
	}
	h.metrics.ObserveInbound(n.Topic, "accepted")
}

// Simulate dispatches a hand-built notification synchronously and reports the
// outcome. Admin-only; used for testing flows without waiting for the
// marketplace to fire.
func (h *WebhookHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		http.Error(w, "simulation not available", http.StatusServiceUnavailable)
		return
	}

	var n webhook.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if n.Topic == "" || n.Resource == "" {
		http.Error(w, "topic and resource are required", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), n); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
