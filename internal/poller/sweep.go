// Package poller implements the manual "check for new messages" sweep. It is
// a safety net for missed webhooks: the engine's idempotence guards make
// overlapping a sweep with live webhook traffic harmless.
package poller

import (
	"context"
	"fmt"

	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// MessageHandler advances a sale conversation.
type MessageHandler interface {
	HandleBuyerMessage(ctx context.Context, saleID string) error
}

type orderLister interface {
	GetSellerOrders(ctx context.Context, limit, offset int) ([]meli.Order, error)
}

var _ orderLister = (*meli.Client)(nil)

const defaultSweepLimit = 20

// Sweeper walks recent paid orders and reruns the engine over each sale.
type Sweeper struct {
	market  orderLister
	handler MessageHandler
	limit   int
	logger  *logging.Logger
}

// New wires a sweeper. A zero limit means the default.
func New(market orderLister, handler MessageHandler, limit int, logger *logging.Logger) *Sweeper {
	if market == nil || handler == nil {
		panic("poller: market and message handler required")
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{market: market, handler: handler, limit: limit, logger: logger}
}

// Result summarizes one sweep.
type Result struct {
	Scanned int `json:"scanned"`
	Handled int `json:"handled"`
	Errors  int `json:"errors"`
}

// Run checks every recent paid sale for unanswered buyer messages. Per-sale
// failures are logged and counted, never fatal: one stuck conversation must
// not starve the rest of the sweep.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	orders, err := s.market.GetSellerOrders(ctx, s.limit, 0)
	if err != nil {
		return Result{}, fmt.Errorf("poller: list recent orders: %w", err)
	}

	var res Result
	seen := make(map[string]bool)
	for i := range orders {
		if orders[i].Status != "paid" {
			continue
		}
		saleID := orders[i].SaleID()
		if seen[saleID] {
			continue
		}
		seen[saleID] = true
		res.Scanned++

		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.handler.HandleBuyerMessage(ctx, saleID); err != nil {
			res.Errors++
			s.logger.Warn("sweep failed for sale", "sale_id", saleID, "error", err)
			continue
		}
		res.Handled++
	}
	s.logger.Info("message sweep finished", "scanned", res.Scanned, "handled", res.Handled, "errors", res.Errors)
	return res, nil
}
