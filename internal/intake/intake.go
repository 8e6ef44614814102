// Package intake registers freshly paid orders. It does not message the
// buyer: the engine opens the conversation on the buyer's first message, so
// intake only has to leave behind a journal row and a cached record.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robloxar/giftcard-bot/internal/activity"
	"github.com/robloxar/giftcard-bot/internal/catalog"
	"github.com/robloxar/giftcard-bot/internal/conversation"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/internal/notify"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// Action describes what intake did with an order.
type Action string

const (
	ActionRegistered            Action = "registered"
	ActionSkippedUnpaid         Action = "skipped_unpaid"
	ActionSkippedUnknownProduct Action = "skipped_unknown_product"
	ActionSkippedTracked        Action = "skipped_tracked"
	ActionSkippedExists         Action = "skipped_exists"
)

// Intake turns paid-order webhooks into sale records.
type Intake struct {
	market   conversation.Marketplace
	journal  conversation.Journal
	store    conversation.StateStore
	recon    *conversation.Reconstructor
	notifier notify.Notifier
	feed     *activity.Log
	logger   *logging.Logger
}

// New wires intake. market, journal, store and recon are required; notifier
// and feed may be nil.
func New(
	market conversation.Marketplace,
	journal conversation.Journal,
	store conversation.StateStore,
	recon *conversation.Reconstructor,
	notifier notify.Notifier,
	feed *activity.Log,
	logger *logging.Logger,
) *Intake {
	if market == nil || journal == nil || store == nil || recon == nil {
		panic("intake: marketplace, journal, store and reconstructor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Intake{
		market:   market,
		journal:  journal,
		store:    store,
		recon:    recon,
		notifier: notifier,
		feed:     feed,
		logger:   logger,
	}
}

// HandleOrderPaid registers the sale behind a paid order. force bypasses the
// already-tracked and seller-messages-exist guards for replay tooling.
func (i *Intake) HandleOrderPaid(ctx context.Context, orderID string, force bool) (Action, error) {
	order, err := i.market.GetOrder(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("intake: fetch order %s: %w", orderID, err)
	}
	if order.Status != "paid" {
		i.logger.Debug("order not paid, skipping", "order_id", orderID, "status", order.Status)
		return ActionSkippedUnpaid, nil
	}

	saleID := order.SaleID()
	title := order.Title()
	product, ok := catalog.Detect(title)
	if !ok {
		i.logger.Warn("unknown product on paid order", "order_id", orderID, "title", title)
		i.alert(ctx, notify.Event{
			Category: notify.CategoryHumanRequested,
			Title:    "Producto no reconocido en orden pagada",
			Body:     title,
			SaleID:   saleID,
		})
		return ActionSkippedUnknownProduct, nil
	}

	if !force {
		if _, err := i.store.Get(ctx, saleID); err == nil {
			return ActionSkippedTracked, nil
		} else if !errors.Is(err, conversation.ErrStateNotFound) {
			i.logger.Warn("state cache read failed during intake", "sale_id", saleID, "error", err)
		}

		// A previous invocation may have messaged the buyer and crashed
		// before caching. Seller messages in the thread mean the sale is
		// live: rebuild instead of re-registering.
		messages, err := i.market.GetPackMessages(ctx, saleID)
		if err != nil {
			return "", fmt.Errorf("intake: check thread for %s: %w", saleID, err)
		}
		if hasSellerMessage(ctx, i.market, messages) {
			if _, err := i.recon.FromHistory(ctx, saleID); err != nil {
				return "", fmt.Errorf("intake: reconstruct live sale %s: %w", saleID, err)
			}
			return ActionSkippedExists, nil
		}
	}

	sellerID, err := i.market.SellerID(ctx)
	if err != nil {
		return "", fmt.Errorf("intake: resolve seller: %w", err)
	}

	now := time.Now()
	state := &conversation.SaleState{
		SaleID:       saleID,
		OrderID:      orderID,
		SellerID:     sellerID,
		BuyerID:      order.BuyerID(),
		ProductKey:   product.Key,
		ProductTitle: title,
		Status:       conversation.StatusNoContact,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := i.journal.Append(ctx, conversation.Event{
		SaleID:       saleID,
		Kind:         conversation.EventOrderPaid,
		OrderID:      orderID,
		BuyerID:      state.BuyerID,
		ProductKey:   product.Key,
		ProductTitle: title,
	}); err != nil {
		return "", fmt.Errorf("intake: journal order %s: %w", orderID, err)
	}
	if err := i.store.Put(ctx, state); err != nil {
		i.logger.Warn("state cache write failed during intake", "sale_id", saleID, "error", err)
	}

	i.logger.Info("sale registered", "sale_id", saleID, "order_id", orderID, "product", product.Key)
	if i.feed != nil {
		i.feed.Record(activity.TypeOrder, "Nueva venta: "+product.Label, "Venta: "+saleID)
	}
	i.alert(ctx, notify.Event{
		Category: notify.CategoryNewOrder,
		Title:    "Nueva venta",
		Body:     product.Label,
		SaleID:   saleID,
	})
	return ActionRegistered, nil
}

func hasSellerMessage(ctx context.Context, market conversation.Marketplace, messages []meli.Message) bool {
	sellerID, err := market.SellerID(ctx)
	if err != nil {
		return false
	}
	for _, msg := range messages {
		if msg.From.ID == sellerID {
			return true
		}
	}
	return false
}

func (i *Intake) alert(ctx context.Context, evt notify.Event) {
	if i.notifier == nil {
		return
	}
	if err := i.notifier.Notify(ctx, evt); err != nil {
		i.logger.Warn("notification failed", "category", string(evt.Category), "error", err)
	}
}
