package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robloxar/giftcard-bot/internal/catalog"
	"github.com/robloxar/giftcard-bot/internal/conversation"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/internal/notify"
)

const (
	sellerID = "123456"
	buyerID  = "987"
	orderID  = "2000001"
)

type stubMarket struct {
	mu       sync.Mutex
	orders   map[string]*meli.Order
	messages map[string][]meli.Message
	sent     []string
}

func newStubMarket() *stubMarket {
	return &stubMarket{
		orders:   make(map[string]*meli.Order),
		messages: make(map[string][]meli.Message),
	}
}

func (s *stubMarket) SellerID(context.Context) (string, error) { return sellerID, nil }

func (s *stubMarket) GetOrder(_ context.Context, id string) (*meli.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	return order, nil
}

func (s *stubMarket) GetSellerOrders(context.Context, int, int) ([]meli.Order, error) {
	return nil, nil
}

func (s *stubMarket) GetPackMessages(_ context.Context, saleID string) ([]meli.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[saleID], nil
}

func (s *stubMarket) SendMessage(_ context.Context, _, text, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubMarket) SendSequence(ctx context.Context, saleID string, texts []string, buyer string) error {
	for _, text := range texts {
		if err := s.SendMessage(ctx, saleID, text, buyer); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubMarket) InitConversation(context.Context, string, string) error { return nil }

func (s *stubMarket) MarkShipmentDelivered(context.Context, int64) error { return nil }

var _ conversation.Marketplace = (*stubMarket)(nil)

type alertRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (a *alertRecorder) Notify(_ context.Context, evt notify.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, evt)
	return nil
}

func orderJSON(t *testing.T, status, title string) *meli.Order {
	t.Helper()
	payload := fmt.Sprintf(`{
		"id": 2000001,
		"status": %q,
		"buyer": {"id": %s},
		"order_items": [{"item": {"id": "MLA1", "title": %q}, "quantity": 1}]
	}`, status, buyerID, title)
	var order meli.Order
	require.NoError(t, json.Unmarshal([]byte(payload), &order))
	return &order
}

type intakeRig struct {
	intake  *Intake
	market  *stubMarket
	store   *conversation.MemoryStore
	journal *conversation.MemoryJournal
	alerts  *alertRecorder
}

func newIntakeRig(t *testing.T) *intakeRig {
	t.Helper()
	market := newStubMarket()
	store := conversation.NewMemoryStore()
	journal := conversation.NewMemoryJournal()
	alerts := &alertRecorder{}
	recon := conversation.NewReconstructor(market, journal, store, nil)
	return &intakeRig{
		intake:  New(market, journal, store, recon, alerts, nil, nil),
		market:  market,
		store:   store,
		journal: journal,
		alerts:  alerts,
	}
}

func TestRegistersPaidOrder(t *testing.T) {
	rig := newIntakeRig(t)
	rig.market.orders[orderID] = orderJSON(t, "paid", "Gift Card Roblox 400 Robux")

	action, err := rig.intake.HandleOrderPaid(context.Background(), orderID, false)
	require.NoError(t, err)
	assert.Equal(t, ActionRegistered, action)

	state, err := rig.store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusNoContact, state.Status)
	assert.Equal(t, "roblox-400", state.ProductKey)
	assert.Equal(t, buyerID, state.BuyerID)

	events, err := rig.journal.List(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, conversation.EventOrderPaid, events[0].Kind)

	// Intake never messages the buyer.
	assert.Empty(t, rig.market.sent)

	require.Len(t, rig.alerts.events, 1)
	assert.Equal(t, notify.CategoryNewOrder, rig.alerts.events[0].Category)
}

func TestSkipsUnpaidOrder(t *testing.T) {
	rig := newIntakeRig(t)
	rig.market.orders[orderID] = orderJSON(t, "payment_required", "Gift Card Roblox 400 Robux")

	action, err := rig.intake.HandleOrderPaid(context.Background(), orderID, false)
	require.NoError(t, err)
	assert.Equal(t, ActionSkippedUnpaid, action)
	assert.Empty(t, rig.alerts.events)
}

func TestSkipsUnknownProductAndAlerts(t *testing.T) {
	rig := newIntakeRig(t)
	rig.market.orders[orderID] = orderJSON(t, "paid", "Zapatillas Runner 42")

	action, err := rig.intake.HandleOrderPaid(context.Background(), orderID, false)
	require.NoError(t, err)
	assert.Equal(t, ActionSkippedUnknownProduct, action)

	require.Len(t, rig.alerts.events, 1)
	assert.Equal(t, notify.CategoryHumanRequested, rig.alerts.events[0].Category)
}

func TestSkipsAlreadyTrackedSale(t *testing.T) {
	rig := newIntakeRig(t)
	rig.market.orders[orderID] = orderJSON(t, "paid", "Gift Card Roblox 400 Robux")
	require.NoError(t, rig.store.Put(context.Background(), &conversation.SaleState{
		SaleID: orderID,
		Status: conversation.StatusInstructionsSent,
	}))

	action, err := rig.intake.HandleOrderPaid(context.Background(), orderID, false)
	require.NoError(t, err)
	assert.Equal(t, ActionSkippedTracked, action)

	// The existing record was not touched.
	state, err := rig.store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusInstructionsSent, state.Status)
}

func TestReconstructsWhenSellerAlreadyMessaged(t *testing.T) {
	rig := newIntakeRig(t)
	rig.market.orders[orderID] = orderJSON(t, "paid", "Gift Card Roblox 400 Robux")
	rig.market.messages[orderID] = []meli.Message{
		{From: meli.User{ID: sellerID}, Text: catalog.WelcomeMessages[0]},
	}

	action, err := rig.intake.HandleOrderPaid(context.Background(), orderID, false)
	require.NoError(t, err)
	assert.Equal(t, ActionSkippedExists, action)

	state, err := rig.store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusInstructionsSent, state.Status)
}

func TestForceBypassesGuards(t *testing.T) {
	rig := newIntakeRig(t)
	rig.market.orders[orderID] = orderJSON(t, "paid", "Gift Card Roblox 400 Robux")
	require.NoError(t, rig.store.Put(context.Background(), &conversation.SaleState{
		SaleID: orderID,
		Status: conversation.StatusCodeSent,
	}))

	action, err := rig.intake.HandleOrderPaid(context.Background(), orderID, true)
	require.NoError(t, err)
	assert.Equal(t, ActionRegistered, action)
}

func TestOrderFetchFailurePropagates(t *testing.T) {
	rig := newIntakeRig(t)
	_, err := rig.intake.HandleOrderPaid(context.Background(), "404", false)
	assert.Error(t, err)
}
