package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/robloxar/giftcard-bot/internal/activity"
	"github.com/robloxar/giftcard-bot/internal/catalog"
	"github.com/robloxar/giftcard-bot/internal/inventory"
	"github.com/robloxar/giftcard-bot/internal/llm"
	"github.com/robloxar/giftcard-bot/internal/notify"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// defaultResendLimit bounds how many times a delivered code is re-sent
// before the sale escalates to a human.
const defaultResendLimit = 2

// Assistant generates short contextual replies to buyer messages the state
// machine does not classify. *llm.Assistant satisfies it.
type Assistant interface {
	BuyerReply(ctx context.Context, buyerText, productTitle string) (string, error)
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	ResendLimit int
	Enabled     bool
}

// Engine is the message flow state machine. One invocation handles exactly
// one sale's latest inbound buyer message; overlapping invocations for the
// same sale are defused by the last-message and message-hash guards, and the
// inventory source's atomic draw.
type Engine struct {
	market    Marketplace
	inv       inventory.Source
	journal   Journal
	store     StateStore
	recon     *Reconstructor
	notifier  notify.Notifier
	assistant Assistant
	feed      *activity.Log
	logger    *logging.Logger

	resendLimit int
	enabled     atomic.Bool
}

// NewEngine wires the engine. market, inv, journal and store are required;
// notifier, assistant and feed may be nil.
func NewEngine(
	market Marketplace,
	inv inventory.Source,
	journal Journal,
	store StateStore,
	notifier notify.Notifier,
	assistant Assistant,
	feed *activity.Log,
	cfg EngineConfig,
	logger *logging.Logger,
) *Engine {
	if market == nil || inv == nil || journal == nil || store == nil {
		panic("conversation: engine requires marketplace, inventory, journal and store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ResendLimit <= 0 {
		cfg.ResendLimit = defaultResendLimit
	}
	e := &Engine{
		market:      market,
		inv:         inv,
		journal:     journal,
		store:       store,
		recon:       NewReconstructor(market, journal, store, logger),
		notifier:    notifier,
		assistant:   assistant,
		feed:        feed,
		logger:      logger,
		resendLimit: cfg.ResendLimit,
	}
	e.enabled.Store(cfg.Enabled)
	return e
}

// Enabled reports whether the bot answers buyers.
func (e *Engine) Enabled() bool { return e.enabled.Load() }

// SetEnabled flips the dashboard kill switch.
func (e *Engine) SetEnabled(on bool) { e.enabled.Store(on) }

// Reconstructor exposes the resolver for intake and dashboard reads.
func (e *Engine) Reconstructor() *Reconstructor { return e.recon }

// HandleBuyerMessage processes the latest inbound buyer message for a sale.
// It is safe to call for duplicated or replayed webhooks: if the last thread
// message is already the seller's, or the buyer text hash was already
// processed, the call is a no-op.
func (e *Engine) HandleBuyerMessage(ctx context.Context, saleID string) error {
	if !e.Enabled() {
		e.logger.Info("bot disabled, ignoring message", "sale_id", saleID)
		return nil
	}

	sellerID, err := e.market.SellerID(ctx)
	if err != nil {
		e.alert(ctx, notify.CategoryAuthError, "Fallo de autenticacion con MercadoLibre", err.Error(), saleID)
		return fmt.Errorf("conversation: auth check: %w", err)
	}

	messages, err := e.market.GetPackMessages(ctx, saleID)
	if err != nil {
		return fmt.Errorf("conversation: fetch thread %s: %w", saleID, err)
	}
	if len(messages) == 0 {
		return nil
	}

	last := messages[len(messages)-1]
	if last.From.ID == sellerID {
		e.logger.Debug("last message is ours, nothing to answer", "sale_id", saleID)
		return nil
	}
	buyerText := strings.TrimSpace(last.Text)
	if buyerText == "" {
		return nil
	}

	state, err := e.recon.Resolve(ctx, saleID)
	if err != nil {
		if errors.Is(err, ErrUnknownProduct) {
			e.alert(ctx, notify.CategoryHumanRequested, "Producto no reconocido", err.Error(), saleID)
			e.record(activity.TypeError, "Producto no reconocido", "Venta: "+saleID)
			return nil
		}
		return err
	}
	if state.BuyerID == "" {
		state.BuyerID = last.From.ID
	}

	hash := MessageHash(buyerText)
	if state.LastBuyerMessageHash == hash {
		e.logger.Debug("duplicate buyer message, skipping", "sale_id", saleID)
		return nil
	}
	state.LastBuyerMessageHash = hash
	if err := e.store.Put(ctx, state); err != nil {
		e.logger.Warn("state cache write failed", "sale_id", saleID, "error", err)
	}

	product, ok := catalog.ByKey(state.ProductKey)
	if !ok {
		e.alert(ctx, notify.CategoryHumanRequested, "Producto no reconocido", state.ProductTitle, saleID)
		return nil
	}

	switch state.Status {
	case StatusCancelled, StatusHumanEscalated:
		return nil
	case StatusCodeSent:
		return e.handlePostDelivery(ctx, state, product, buyerText)
	case StatusNoContact:
		return e.sendWelcomeBurst(ctx, state, product)
	case StatusInstructionsSent:
		return e.handleAwaitingConfirmation(ctx, state, product, buyerText)
	default:
		return fmt.Errorf("conversation: sale %s in unknown status %q", saleID, state.Status)
	}
}

// sendWelcomeBurst front-loads welcome plus redemption instructions in one
// message sequence and advances to InstructionsSent. Stock is not checked
// here: it is only consumed when the buyer confirms.
func (e *Engine) sendWelcomeBurst(ctx context.Context, state *SaleState, product catalog.Product) error {
	// Some shipment types require the action-guide handshake before free
	// text is allowed. Failure is tolerable: the direct send may still work.
	if err := e.market.InitConversation(ctx, state.SaleID, catalog.WelcomeMessages[0]); err != nil {
		e.logger.Debug("action guide handshake failed", "sale_id", state.SaleID, "error", err)
	}

	burst := append(append([]string{}, catalog.WelcomeMessages...), product.Instructions...)
	if err := e.market.SendSequence(ctx, state.SaleID, burst, state.BuyerID); err != nil {
		return fmt.Errorf("conversation: send welcome burst for %s: %w", state.SaleID, err)
	}

	e.appendEvent(ctx, state, EventInstructionsSent, "")
	state.Advance(StatusInstructionsSent)
	if err := e.store.Put(ctx, state); err != nil {
		e.logger.Warn("state cache write failed", "sale_id", state.SaleID, "error", err)
	}
	e.record(activity.TypeMessage, "Welcome + instrucciones: "+product.Label, "Venta: "+state.SaleID)
	return nil
}

// handleAwaitingConfirmation drives the InstructionsSent stage: cancel,
// human, ready, or a contextual answer that leaves the state unchanged.
func (e *Engine) handleAwaitingConfirmation(ctx context.Context, state *SaleState, product catalog.Product, buyerText string) error {
	switch {
	case IsCancel(buyerText):
		if err := e.market.SendMessage(ctx, state.SaleID, catalog.CancelMessage, state.BuyerID); err != nil {
			return fmt.Errorf("conversation: send cancel message for %s: %w", state.SaleID, err)
		}
		e.appendEvent(ctx, state, EventCancelled, buyerText)
		state.Advance(StatusCancelled)
		if err := e.store.Put(ctx, state); err != nil {
			e.logger.Warn("state cache write failed", "sale_id", state.SaleID, "error", err)
		}
		e.record(activity.TypeMessage, "Compra cancelada por el comprador", "Venta: "+state.SaleID)
		return nil

	case IsHuman(buyerText):
		return e.escalate(ctx, state, buyerText)

	case IsReady(buyerText):
		return e.Deliver(ctx, state, product)

	default:
		return e.answerOrRemind(ctx, state, buyerText)
	}
}

// answerOrRemind tries a contextual AI answer; when the assistant declines
// or is absent, re-prompts with the fixed reminder and pings the operator.
// State does not advance either way.
func (e *Engine) answerOrRemind(ctx context.Context, state *SaleState, buyerText string) error {
	if e.assistant != nil {
		reply, err := e.assistant.BuyerReply(ctx, buyerText, state.ProductTitle)
		if err == nil {
			if sendErr := e.market.SendMessage(ctx, state.SaleID, reply, state.BuyerID); sendErr != nil {
				return fmt.Errorf("conversation: send AI reply for %s: %w", state.SaleID, sendErr)
			}
			e.record(activity.TypeMessage, "AI respondio consulta", "Venta: "+state.SaleID)
			return nil
		}
		if !errors.Is(err, llm.ErrCannotHelp) {
			e.logger.Warn("AI reply failed", "sale_id", state.SaleID, "error", err)
		}
	}

	if err := e.market.SendMessage(ctx, state.SaleID, catalog.ReminderMessage, state.BuyerID); err != nil {
		return fmt.Errorf("conversation: send reminder for %s: %w", state.SaleID, err)
	}
	e.alert(ctx, notify.CategoryHumanRequested, "Consulta no reconocida", fmt.Sprintf("%q", buyerText), state.SaleID)
	e.record(activity.TypeMessage, "Respuesta no reconocida, recordatorio enviado", "Venta: "+state.SaleID)
	return nil
}

// handlePostDelivery covers the CodeSent stage: bounded resend, product
// change refusal, post-delivery help, otherwise silence.
func (e *Engine) handlePostDelivery(ctx context.Context, state *SaleState, product catalog.Product, buyerText string) error {
	switch {
	case IsResend(buyerText):
		return e.resendCode(ctx, state, product, buyerText)

	case IsProductChange(buyerText):
		if err := e.market.SendMessage(ctx, state.SaleID, catalog.ChangeRefusalMessage, state.BuyerID); err != nil {
			return fmt.Errorf("conversation: send change refusal for %s: %w", state.SaleID, err)
		}
		return nil

	case IsHuman(buyerText):
		if err := e.market.SendMessage(ctx, state.SaleID, catalog.HumanMessage, state.BuyerID); err != nil {
			return fmt.Errorf("conversation: send human handoff for %s: %w", state.SaleID, err)
		}
		e.alert(ctx, notify.CategoryHumanRequested, "Ayuda post-entrega", buyerText, state.SaleID)
		e.record(activity.TypeMessage, "Ayuda post-entrega", "Venta: "+state.SaleID)
		return nil

	default:
		// Delivered and nothing actionable: stay silent rather than spam.
		return nil
	}
}

// resendCode re-sends the stored code up to the bound, then escalates. The
// code never changes and the inventory is never touched on this path.
func (e *Engine) resendCode(ctx context.Context, state *SaleState, product catalog.Product, buyerText string) error {
	if state.CodeDelivered == "" {
		// Reconstructed CodeSent without recovering the code text: a human
		// has to look at the sheet, the bot must not draw a second code.
		return e.escalate(ctx, state, "codigo entregado no recuperable: "+buyerText)
	}

	if state.ResendAttempts >= e.resendLimit {
		if err := e.market.SendMessage(ctx, state.SaleID, catalog.ResendRefusalMessage, state.BuyerID); err != nil {
			return fmt.Errorf("conversation: send resend refusal for %s: %w", state.SaleID, err)
		}
		e.alert(ctx, notify.CategoryHumanRequested,
			"Multiples reenvios",
			fmt.Sprintf("%d reenvios agotados, comprador reporta no recibir el codigo", state.ResendAttempts),
			state.SaleID)
		e.appendEvent(ctx, state, EventEscalated, buyerText)
		state.Advance(StatusHumanEscalated)
		if err := e.store.Put(ctx, state); err != nil {
			e.logger.Warn("state cache write failed", "sale_id", state.SaleID, "error", err)
		}
		return nil
	}

	state.ResendAttempts++
	e.appendEvent(ctx, state, EventCodeResent, "")
	if err := e.store.Put(ctx, state); err != nil {
		e.logger.Warn("state cache write failed", "sale_id", state.SaleID, "error", err)
	}
	if err := e.market.SendMessage(ctx, state.SaleID, product.CodeMessage(state.CodeDelivered, state.ProductTitle), state.BuyerID); err != nil {
		return fmt.Errorf("conversation: resend code for %s: %w", state.SaleID, err)
	}
	e.record(activity.TypeDelivery, fmt.Sprintf("Codigo reenviado (intento %d)", state.ResendAttempts), "Venta: "+state.SaleID)
	return nil
}

func (e *Engine) escalate(ctx context.Context, state *SaleState, reason string) error {
	if err := e.market.SendMessage(ctx, state.SaleID, catalog.HumanMessage, state.BuyerID); err != nil {
		return fmt.Errorf("conversation: send human handoff for %s: %w", state.SaleID, err)
	}
	e.alert(ctx, notify.CategoryHumanRequested, "Comprador pide asesor", reason, state.SaleID)
	e.appendEvent(ctx, state, EventEscalated, reason)
	state.Advance(StatusHumanEscalated)
	if err := e.store.Put(ctx, state); err != nil {
		e.logger.Warn("state cache write failed", "sale_id", state.SaleID, "error", err)
	}
	e.record(activity.TypeMessage, "Escalado a humano", "Venta: "+state.SaleID)
	return nil
}

func (e *Engine) appendEvent(ctx context.Context, state *SaleState, kind EventKind, note string) {
	evt := Event{
		SaleID:       state.SaleID,
		Kind:         kind,
		OrderID:      state.OrderID,
		BuyerID:      state.BuyerID,
		ProductKey:   state.ProductKey,
		ProductTitle: state.ProductTitle,
		Note:         note,
	}
	if kind == EventCodeDelivered {
		evt.Code = state.CodeDelivered
	}
	if err := e.journal.Append(ctx, evt); err != nil {
		e.logger.Error("journal append failed", "sale_id", state.SaleID, "kind", string(kind), "error", err)
	}
}

// alert is fire and forget: notification failures never block the flow.
func (e *Engine) alert(ctx context.Context, category notify.Category, title, body, saleID string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, notify.Event{Category: category, Title: title, Body: body, SaleID: saleID}); err != nil {
		e.logger.Warn("operator notification failed", "category", string(category), "error", err)
	}
}

func (e *Engine) record(typ activity.Type, message, details string) {
	if e.feed != nil {
		e.feed.Record(typ, message, details)
	}
}
