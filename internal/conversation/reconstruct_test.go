package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robloxar/giftcard-bot/internal/catalog"
	"github.com/robloxar/giftcard-bot/internal/meli"
)

func sellerMsg(text string) meli.Message {
	return meli.Message{From: meli.User{ID: testSellerID}, Text: text}
}

func buyerMsg(text string) meli.Message {
	return meli.Message{From: meli.User{ID: testBuyerID}, Text: text}
}

// testOrder builds an order the way the API hands it over: from JSON. The
// nested shapes in meli.Order are anonymous, so a literal cannot express it.
func testOrder(t *testing.T, title string) *meli.Order {
	t.Helper()
	payload := fmt.Sprintf(`{
		"id": 2000001,
		"status": "paid",
		"buyer": {"id": %s, "nickname": "BUYER"},
		"order_items": [{"item": {"id": "MLA1", "title": %q}, "quantity": 1}]
	}`, testBuyerID, title)
	var order meli.Order
	require.NoError(t, json.Unmarshal([]byte(payload), &order))
	return &order
}

func TestClassifyHistory(t *testing.T) {
	product, ok := catalog.ByKey("roblox-400")
	require.True(t, ok)

	cases := []struct {
		name     string
		messages []meli.Message
		want     Status
	}{
		{
			name:     "empty thread",
			messages: nil,
			want:     StatusNoContact,
		},
		{
			name:     "buyer messages only",
			messages: []meli.Message{buyerMsg("hola"), buyerMsg("hay alguien?")},
			want:     StatusNoContact,
		},
		{
			name: "welcome sent",
			messages: []meli.Message{
				buyerMsg("hola"),
				sellerMsg(catalog.WelcomeMessages[0]),
				sellerMsg(product.Instructions[len(product.Instructions)-1]),
			},
			want: StatusInstructionsSent,
		},
		{
			name: "code delivered",
			messages: []meli.Message{
				sellerMsg(catalog.WelcomeMessages[0]),
				buyerMsg("listo"),
				sellerMsg(product.CodeMessage("ABCD-1234", "Gift Card Roblox 400 Robux")),
			},
			want: StatusCodeSent,
		},
		{
			name: "cancelled",
			messages: []meli.Message{
				sellerMsg(catalog.WelcomeMessages[0]),
				buyerMsg("no"),
				sellerMsg(catalog.CancelMessage),
			},
			want: StatusCancelled,
		},
		{
			name: "escalated",
			messages: []meli.Message{
				sellerMsg(catalog.WelcomeMessages[0]),
				buyerMsg("humano"),
				sellerMsg(catalog.HumanMessage),
			},
			want: StatusHumanEscalated,
		},
		{
			name: "reminder alone is not a cancellation",
			messages: []meli.Message{
				sellerMsg(catalog.WelcomeMessages[0]),
				buyerMsg("que?"),
				sellerMsg(catalog.ReminderMessage),
			},
			want: StatusInstructionsSent,
		},
		{
			// A human answered without the bot's templates. Anything but
			// first contact here, or the welcome burst goes out twice.
			name: "manually handled thread is past first contact",
			messages: []meli.Message{
				buyerMsg("hola, como lo activo?"),
				sellerMsg("Hola! Te paso los pasos por aca en un rato."),
			},
			want: StatusInstructionsSent,
		},
		{
			name: "delivery outranks later escalation marker",
			messages: []meli.Message{
				sellerMsg(product.CodeMessage("ABCD-1234", "Gift Card Roblox 400 Robux")),
				buyerMsg("no me llego"),
				sellerMsg(catalog.HumanMessage),
			},
			want: StatusCodeSent,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyHistory(tc.messages, testSellerID))
		})
	}
}

func TestExtractDeliveredCode(t *testing.T) {
	product, ok := catalog.ByKey("roblox-400")
	require.True(t, ok)

	messages := []meli.Message{
		sellerMsg(catalog.WelcomeMessages[0]),
		buyerMsg("listo"),
		sellerMsg(product.CodeMessage("ABCD-1234", "Gift Card Roblox 400 Robux")),
	}
	assert.Equal(t, "ABCD-1234", extractDeliveredCode(messages, testSellerID))

	// Buyer quoting the phrase must not be mistaken for a delivery.
	assert.Empty(t, extractDeliveredCode([]meli.Message{
		buyerMsg("tu codigo: me lo mandas?"),
	}, testSellerID))

	// Newest delivery wins.
	messages = append(messages, sellerMsg(product.CodeMessage("WXYZ-5678", "Gift Card Roblox 400 Robux")))
	assert.Equal(t, "WXYZ-5678", extractDeliveredCode(messages, testSellerID))
}

func TestResolvePrefersCache(t *testing.T) {
	market := newFakeMarket()
	store := NewMemoryStore()
	journal := NewMemoryJournal()
	recon := NewReconstructor(market, journal, store, nil)
	ctx := context.Background()

	cached := &SaleState{SaleID: testSaleID, Status: StatusCodeSent, CodeDelivered: "CACHED"}
	require.NoError(t, store.Put(ctx, cached))

	state, err := recon.Resolve(ctx, testSaleID)
	require.NoError(t, err)
	assert.Equal(t, "CACHED", state.CodeDelivered)
}

func TestResolveFoldsJournalOnCacheMiss(t *testing.T) {
	market := newFakeMarket()
	store := NewMemoryStore()
	journal := NewMemoryJournal()
	recon := NewReconstructor(market, journal, store, nil)
	ctx := context.Background()

	require.NoError(t, journal.Append(ctx, Event{
		SaleID:       testSaleID,
		Kind:         EventOrderPaid,
		OrderID:      testOrderID,
		BuyerID:      testBuyerID,
		ProductKey:   "roblox-400",
		ProductTitle: "Gift Card Roblox 400 Robux",
	}))
	require.NoError(t, journal.Append(ctx, Event{SaleID: testSaleID, Kind: EventInstructionsSent}))

	state, err := recon.Resolve(ctx, testSaleID)
	require.NoError(t, err)
	assert.Equal(t, StatusInstructionsSent, state.Status)
	assert.Equal(t, "roblox-400", state.ProductKey)
	assert.Equal(t, testSellerID, state.SellerID)

	// The fold result was cached.
	cached, err := store.Get(ctx, testSaleID)
	require.NoError(t, err)
	assert.Equal(t, StatusInstructionsSent, cached.Status)
}

func TestResolveFallsBackToHistory(t *testing.T) {
	market := newFakeMarket()
	store := NewMemoryStore()
	journal := NewMemoryJournal()
	recon := NewReconstructor(market, journal, store, nil)
	ctx := context.Background()

	product, ok := catalog.ByKey("roblox-400")
	require.True(t, ok)

	market.orders[testOrderID] = testOrder(t, "Gift Card Roblox 400 Robux")
	market.messages[testSaleID] = []meli.Message{
		sellerMsg(catalog.WelcomeMessages[0]),
		buyerMsg("listo"),
		sellerMsg(product.CodeMessage("HIST-0001", "Gift Card Roblox 400 Robux")),
		buyerMsg("gracias"),
	}

	state, err := recon.Resolve(ctx, testSaleID)
	require.NoError(t, err)
	assert.Equal(t, StatusCodeSent, state.Status)
	assert.Equal(t, "HIST-0001", state.CodeDelivered)
	assert.Equal(t, "roblox-400", state.ProductKey)
	assert.Equal(t, testBuyerID, state.BuyerID)

	// Cached: a second resolve does not refetch history.
	market.messages[testSaleID] = nil
	again, err := recon.Resolve(ctx, testSaleID)
	require.NoError(t, err)
	assert.Equal(t, "HIST-0001", again.CodeDelivered)
}

func TestResolveUnknownProduct(t *testing.T) {
	market := newFakeMarket()
	recon := NewReconstructor(market, NewMemoryJournal(), NewMemoryStore(), nil)

	market.orders[testOrderID] = testOrder(t, "Zapatillas Runner 42")

	_, err := recon.Resolve(context.Background(), testSaleID)
	assert.ErrorIs(t, err, ErrUnknownProduct)
}
