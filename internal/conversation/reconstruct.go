package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robloxar/giftcard-bot/internal/catalog"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// Marketplace is the slice of the MercadoLibre client the conversation layer
// needs. *meli.Client satisfies it.
type Marketplace interface {
	SellerID(ctx context.Context) (string, error)
	GetOrder(ctx context.Context, orderID string) (*meli.Order, error)
	GetSellerOrders(ctx context.Context, limit, offset int) ([]meli.Order, error)
	GetPackMessages(ctx context.Context, saleID string) ([]meli.Message, error)
	SendMessage(ctx context.Context, saleID, text, buyerID string) error
	SendSequence(ctx context.Context, saleID string, texts []string, buyerID string) error
	InitConversation(ctx context.Context, saleID, text string) error
	MarkShipmentDelivered(ctx context.Context, shipmentID int64) error
}

var _ Marketplace = (*meli.Client)(nil)

// ErrUnknownProduct is returned when the listing title does not match any
// configured product with enough confidence.
var ErrUnknownProduct = errors.New("conversation: unknown product")

// Reconstructor rebuilds a SaleState with no prior cache. The journal is
// authoritative; classifying marker phrases in the seller's past messages is
// the import path for sales that predate the journal.
type Reconstructor struct {
	market  Marketplace
	journal Journal
	store   StateStore
	logger  *logging.Logger
}

// NewReconstructor wires a reconstructor. All dependencies are required.
func NewReconstructor(market Marketplace, journal Journal, store StateStore, logger *logging.Logger) *Reconstructor {
	if market == nil || journal == nil || store == nil {
		panic("conversation: reconstructor requires marketplace, journal and store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconstructor{market: market, journal: journal, store: store, logger: logger}
}

// Resolve returns the sale's state: cache, then journal fold, then message
// history classification. Whatever it derives is cached before returning so
// the caller acts on the same record a concurrent invocation would see.
func (r *Reconstructor) Resolve(ctx context.Context, saleID string) (*SaleState, error) {
	if state, err := r.store.Get(ctx, saleID); err == nil {
		return state, nil
	} else if !errors.Is(err, ErrStateNotFound) {
		r.logger.Warn("state cache read failed, falling back to journal", "sale_id", saleID, "error", err)
	}

	events, err := r.journal.List(ctx, saleID)
	if err != nil {
		r.logger.Warn("journal read failed, falling back to history", "sale_id", saleID, "error", err)
	} else if state := Fold(saleID, events); state != nil {
		if state.SellerID == "" {
			if sellerID, err := r.market.SellerID(ctx); err == nil {
				state.SellerID = sellerID
			}
		}
		if err := r.store.Put(ctx, state); err != nil {
			r.logger.Warn("state cache write failed", "sale_id", saleID, "error", err)
		}
		return state, nil
	}

	return r.FromHistory(ctx, saleID)
}

// FromHistory rebuilds the record purely from the marketplace: order lookup
// for identity, message history for stage. This is the migration path for
// conversations older than the journal.
func (r *Reconstructor) FromHistory(ctx context.Context, saleID string) (*SaleState, error) {
	sellerID, err := r.market.SellerID(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversation: resolve seller: %w", err)
	}

	order, err := r.findOrder(ctx, saleID)
	if err != nil {
		return nil, err
	}

	title := order.Title()
	product, ok := catalog.Detect(title)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, title)
	}

	messages, err := r.market.GetPackMessages(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("conversation: fetch history for %s: %w", saleID, err)
	}

	now := time.Now()
	state := &SaleState{
		SaleID:       saleID,
		OrderID:      fmt.Sprintf("%d", order.ID),
		SellerID:     sellerID,
		BuyerID:      order.BuyerID(),
		ProductKey:   product.Key,
		ProductTitle: title,
		Status:       ClassifyHistory(messages, sellerID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if state.Status == StatusCodeSent {
		state.CodeDelivered = extractDeliveredCode(messages, sellerID)
	}

	if err := r.store.Put(ctx, state); err != nil {
		r.logger.Warn("state cache write failed", "sale_id", saleID, "error", err)
	}
	r.logger.Info("conversation reconstructed from history",
		"sale_id", saleID,
		"status", string(state.Status),
		"product", product.Key,
	)
	return state, nil
}

// findOrder resolves the order behind a sale id. The id is tried directly
// first (pack endpoints accept bare order ids); otherwise recent seller
// orders are scanned for a matching pack.
func (r *Reconstructor) findOrder(ctx context.Context, saleID string) (*meli.Order, error) {
	if order, err := r.market.GetOrder(ctx, saleID); err == nil {
		return order, nil
	}

	orders, err := r.market.GetSellerOrders(ctx, 20, 0)
	if err != nil {
		return nil, fmt.Errorf("conversation: scan orders for sale %s: %w", saleID, err)
	}
	for i := range orders {
		if orders[i].SaleID() == saleID {
			return &orders[i], nil
		}
	}
	return nil, fmt.Errorf("conversation: no order found for sale %s", saleID)
}

// ClassifyHistory derives the conversation stage from the seller's own past
// messages, in priority order. The marker phrases come from the fixed
// templates the bot sends.
func ClassifyHistory(messages []meli.Message, sellerID string) Status {
	var parts []string
	for _, msg := range messages {
		if msg.From.ID == sellerID {
			parts = append(parts, strings.ToLower(msg.Text))
		}
	}
	if len(parts) == 0 {
		return StatusNoContact
	}
	all := strings.Join(parts, " ")

	switch {
	case strings.Contains(all, "tu codigo:") || strings.Contains(all, "tu código:"):
		return StatusCodeSent
	case strings.Contains(all, "asesor humano") || strings.Contains(all, "vendedor te respondera"):
		return StatusHumanEscalated
	// The colon distinguishes the cancel walkthrough from the reminder
	// template, which lists "cancelar la compra" as an option.
	case strings.Contains(all, "para cancelar la compra:"):
		return StatusCancelled
	case strings.Contains(all, "listo") && strings.Contains(all, "lo enviamos"):
		return StatusInstructionsSent
	case strings.Contains(all, "gracias por tu compra") || strings.Contains(all, "roblox argentina"):
		return StatusInstructionsSent
	default:
		// Seller messages with no marker mean a human already answered this
		// thread. Treating it as first contact would fire the welcome burst
		// into a conversation that is past that point.
		return StatusInstructionsSent
	}
}

// extractDeliveredCode pulls the code back out of the delivery message so a
// resend after reconstruction sends the same value instead of drawing again.
func extractDeliveredCode(messages []meli.Message, sellerID string) string {
	// Walk backwards: the newest delivery message wins.
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.From.ID != sellerID {
			continue
		}
		lower := strings.ToLower(msg.Text)
		marker := "tu codigo:"
		idx := strings.Index(lower, marker)
		if idx < 0 {
			marker = "tu código:"
			idx = strings.Index(lower, marker)
			if idx < 0 {
				continue
			}
		}
		rest := msg.Text[idx+len(marker):]
		if line := strings.SplitN(rest, "\n", 2)[0]; line != "" {
			return strings.Trim(strings.TrimSpace(line), "*")
		}
	}
	return ""
}
