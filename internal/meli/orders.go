package meli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// GetOrder fetches a single order by id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.get(ctx, "/orders/"+orderID, nil, &order); err != nil {
		return nil, fmt.Errorf("meli: get order %s: %w", orderID, err)
	}
	return &order, nil
}

// GetSellerOrders searches the seller's orders, newest first.
func (c *Client) GetSellerOrders(ctx context.Context, limit, offset int) ([]Order, error) {
	sellerID, err := c.SellerID(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("seller", sellerID)
	q.Set("sort", "date_desc")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var payload struct {
		Results []Order `json:"results"`
	}
	if err := c.get(ctx, "/orders/search", q, &payload); err != nil {
		return nil, fmt.Errorf("meli: search seller orders: %w", err)
	}
	return payload.Results, nil
}

// MarkShipmentDelivered flags a virtual shipment as delivered to the buyer.
// Used after code delivery so ML shows the order as fulfilled.
func (c *Client) MarkShipmentDelivered(ctx context.Context, shipmentID int64) error {
	body := map[string]string{
		"status":    "delivered",
		"substatus": "delivered_to_buyer",
	}
	path := fmt.Sprintf("/shipments/%d", shipmentID)
	if _, err := c.invoke(ctx, http.MethodPut, path, nil, body); err != nil {
		return fmt.Errorf("meli: mark shipment %d delivered: %w", shipmentID, err)
	}
	return nil
}
