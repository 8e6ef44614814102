// Package inventory manages the pool of gift card codes. A code moves
// through three states: available, reserved, delivered. Draw reserves a code
// atomically so two concurrent deliveries can never hand out the same one;
// MarkDelivered pins it to an order once the send succeeded.
package inventory

import (
	"context"
	"errors"
)

// ErrOutOfStock is returned by Draw when no available code exists for the
// product. Callers keep the conversation open and alert the operator.
var ErrOutOfStock = errors.New("inventory: out of stock")

// Reservation is a code claimed for delivery but not yet confirmed sent.
type Reservation struct {
	ID         string
	ProductKey string
	Code       string
}

// Source is a backing store for gift card codes.
type Source interface {
	// Draw atomically reserves the oldest available code for the product.
	Draw(ctx context.Context, productKey string) (*Reservation, error)
	// MarkDelivered transitions a reserved code to delivered for an order.
	MarkDelivered(ctx context.Context, res *Reservation, orderID string) error
	// Release returns a reserved code to the pool after a failed send.
	Release(ctx context.Context, res *Reservation) error
	// Counts reports available codes per product key.
	Counts(ctx context.Context) (map[string]int, error)
}
