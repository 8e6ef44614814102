package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/robloxar/giftcard-bot/internal/activity"
	"github.com/robloxar/giftcard-bot/internal/catalog"
	"github.com/robloxar/giftcard-bot/internal/inventory"
	"github.com/robloxar/giftcard-bot/internal/notify"
)

// Deliver runs the code delivery critical section for a sale:
//
//  1. A previously delivered code is re-sent, never re-drawn.
//  2. The inventory draw is atomic against concurrent deliveries.
//  3. The drawn row is marked delivered BEFORE the send. A crash after
//     marking costs at worst a duplicate send of the same code on retry;
//     send-before-mark could leak an unmarked code, which is worse.
//  4. Out of stock keeps the state at InstructionsSent so the next buyer
//     message retries, and pages the operator.
func (e *Engine) Deliver(ctx context.Context, state *SaleState, product catalog.Product) error {
	if state.CodeDelivered != "" {
		// Crash window: code marked and journaled, state or send missing.
		// Finish the job with the same code.
		return e.finishDelivery(ctx, state, product, state.CodeDelivered)
	}

	res, err := e.inv.Draw(ctx, product.Key)
	if err != nil {
		if errors.Is(err, inventory.ErrOutOfStock) {
			if sendErr := e.market.SendMessage(ctx, state.SaleID, catalog.StockDelayMessage, state.BuyerID); sendErr != nil {
				e.logger.Warn("stock delay message failed", "sale_id", state.SaleID, "error", sendErr)
			}
			e.alert(ctx, notify.CategoryStock,
				"SIN STOCK",
				fmt.Sprintf("Producto: %s, Comprador: %s", state.ProductTitle, state.BuyerID),
				state.SaleID)
			e.record(activity.TypeError, "SIN STOCK al entregar: "+product.Label, "Venta: "+state.SaleID)
			return nil
		}
		e.alert(ctx, notify.CategoryStock, "Error obteniendo codigo", err.Error(), state.SaleID)
		return fmt.Errorf("conversation: draw code for %s: %w", state.SaleID, err)
	}

	if err := e.inv.MarkDelivered(ctx, res, state.OrderID); err != nil {
		if relErr := e.inv.Release(ctx, res); relErr != nil {
			e.logger.Error("release after failed mark failed", "sale_id", state.SaleID, "error", relErr)
		}
		e.alert(ctx, notify.CategoryStock, "Error marcando codigo entregado", err.Error(), state.SaleID)
		return fmt.Errorf("conversation: mark code delivered for %s: %w", state.SaleID, err)
	}

	state.CodeDelivered = res.Code
	e.appendEvent(ctx, state, EventCodeDelivered, "")
	return e.finishDelivery(ctx, state, product, res.Code)
}

// finishDelivery records the transition, sends the code plus closing
// messages, and best-effort marks the shipment delivered.
func (e *Engine) finishDelivery(ctx context.Context, state *SaleState, product catalog.Product, code string) error {
	state.Advance(StatusCodeSent)
	if err := e.store.Put(ctx, state); err != nil {
		e.logger.Warn("state cache write failed", "sale_id", state.SaleID, "error", err)
	}

	texts := append([]string{product.CodeMessage(code, state.ProductTitle)}, catalog.FinalMessages...)
	if err := e.market.SendSequence(ctx, state.SaleID, texts, state.BuyerID); err != nil {
		// The code is consumed and the state advanced: the next inbound
		// message lands on the resend path, not a second draw.
		e.logger.Error("code message send failed", "sale_id", state.SaleID, "error", err)
	}

	e.alert(ctx, notify.CategoryCodeDelivered, "Codigo entregado", "Producto: "+state.ProductTitle, state.SaleID)
	e.record(activity.TypeDelivery, "Codigo entregado: "+product.Label, "Venta: "+state.SaleID)
	e.markShipment(ctx, state)
	return nil
}

// markShipment flags the marketplace shipment delivered so the platform
// stops nagging about a digital good. Failures are logged only.
func (e *Engine) markShipment(ctx context.Context, state *SaleState) {
	if state.OrderID == "" {
		return
	}
	order, err := e.market.GetOrder(ctx, state.OrderID)
	if err != nil || order.Shipping.ID == nil {
		return
	}
	if err := e.market.MarkShipmentDelivered(ctx, *order.Shipping.ID); err != nil {
		e.logger.Debug("mark shipment delivered failed",
			"sale_id", state.SaleID,
			"shipment_id", strconv.FormatInt(*order.Shipping.ID, 10),
			"error", err)
	}
}

// DeliverManually forces the delivery critical section for a sale from the
// dashboard, regardless of what the buyer last said. All guards still hold:
// an already delivered sale re-sends its stored code.
func (e *Engine) DeliverManually(ctx context.Context, saleID string) error {
	state, err := e.recon.Resolve(ctx, saleID)
	if err != nil {
		return err
	}
	if state.Status.Terminal() {
		return fmt.Errorf("conversation: sale %s is %s, not deliverable", saleID, state.Status)
	}
	product, ok := catalog.ByKey(state.ProductKey)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProduct, state.ProductTitle)
	}
	return e.Deliver(ctx, state, product)
}
