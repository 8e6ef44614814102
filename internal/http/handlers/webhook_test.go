package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robloxar/giftcard-bot/internal/events"
	"github.com/robloxar/giftcard-bot/internal/webhook"
)

type stubQueue struct {
	enqueued []webhook.Notification
	err      error
}

func (s *stubQueue) Enqueue(_ context.Context, n webhook.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, n)
	return nil
}

type stubDispatch struct {
	dispatched []webhook.Notification
	err        error
}

func (s *stubDispatch) Dispatch(_ context.Context, n webhook.Notification) error {
	s.dispatched = append(s.dispatched, n)
	return s.err
}

func postWebhook(t *testing.T, h *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func TestWebhookAcksAndEnqueues(t *testing.T) {
	queue := &stubQueue{}
	h := NewWebhookHandler(queue, nil, events.NewMemoryDedup(), nil, nil)

	rec := postWebhook(t, h, `{"_id":"n1","topic":"orders_v2","resource":"/orders/2000001","user_id":123456}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "orders_v2", queue.enqueued[0].Topic)
}

func TestWebhookAcksMalformedPayload(t *testing.T) {
	queue := &stubQueue{}
	h := NewWebhookHandler(queue, nil, events.NewMemoryDedup(), nil, nil)

	rec := postWebhook(t, h, `{not json`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, queue.enqueued)
}

func TestWebhookAcksOnEnqueueFailure(t *testing.T) {
	queue := &stubQueue{err: errors.New("queue down")}
	h := NewWebhookHandler(queue, nil, events.NewMemoryDedup(), nil, nil)

	rec := postWebhook(t, h, `{"_id":"n1","topic":"messages","resource":"/messages/m1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookDropsDuplicateDelivery(t *testing.T) {
	queue := &stubQueue{}
	h := NewWebhookHandler(queue, nil, events.NewMemoryDedup(), nil, nil)

	body := `{"_id":"n1","topic":"orders_v2","resource":"/orders/2000001"}`
	postWebhook(t, h, body)
	rec := postWebhook(t, h, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, queue.enqueued, 1)
}

func TestSimulateDispatchesSynchronously(t *testing.T) {
	dispatch := &stubDispatch{}
	h := NewWebhookHandler(&stubQueue{}, dispatch, events.NewMemoryDedup(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/simulate",
		strings.NewReader(`{"topic":"questions","resource":"/questions/555"}`))
	rec := httptest.NewRecorder()
	h.Simulate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, dispatch.dispatched, 1)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestSimulateReportsDispatchError(t *testing.T) {
	dispatch := &stubDispatch{err: errors.New("no such order")}
	h := NewWebhookHandler(&stubQueue{}, dispatch, events.NewMemoryDedup(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/simulate",
		strings.NewReader(`{"topic":"orders","resource":"/orders/1"}`))
	rec := httptest.NewRecorder()
	h.Simulate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such order")
}

func TestSimulateRejectsMissingFields(t *testing.T) {
	h := NewWebhookHandler(&stubQueue{}, &stubDispatch{}, events.NewMemoryDedup(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/simulate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Simulate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
