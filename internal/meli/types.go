package meli

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// flexID decodes marketplace ids that arrive as either a JSON number or a
// string depending on endpoint version.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*f = ""
		return nil
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

// User identifies a marketplace account within a message thread.
type User struct {
	ID   string
	Role string
}

// Message is the normalized post-sale message shape. Both the marketplace and
// the legacy endpoints funnel into this struct.
type Message struct {
	ID        string
	From      User
	To        User
	Text      string
	CreatedAt time.Time
}

// Order is the subset of an order payload the bot cares about.
type Order struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	PackID *int64 `json:"pack_id"`
	Buyer  struct {
		ID       int64  `json:"id"`
		Nickname string `json:"nickname"`
	} `json:"buyer"`
	OrderItems []struct {
		Item struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"item"`
		Quantity int `json:"quantity"`
	} `json:"order_items"`
	Shipping struct {
		ID *int64 `json:"id"`
	} `json:"shipping"`
}

// SaleID is the conversation key: the pack id when the order belongs to a
// pack, otherwise the order id itself (ML's documented fallback).
func (o *Order) SaleID() string {
	if o.PackID != nil && *o.PackID != 0 {
		return strconv.FormatInt(*o.PackID, 10)
	}
	return strconv.FormatInt(o.ID, 10)
}

// Title returns the first line item's listing title.
func (o *Order) Title() string {
	if len(o.OrderItems) == 0 {
		return ""
	}
	return o.OrderItems[0].Item.Title
}

// BuyerID returns the buyer's user id as a string.
func (o *Order) BuyerID() string {
	return strconv.FormatInt(o.Buyer.ID, 10)
}

// Question is a pre-sale listing question.
type Question struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	ItemID   string `json:"item_id"`
	SellerID int64  `json:"seller_id"`
	Status   string `json:"status"`
	From     struct {
		ID int64 `json:"id"`
	} `json:"from"`
}

// Item is a listing summary.
type Item struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	CategoryID string  `json:"category_id"`
}

func parseMessageTime(created, dateCreated string) time.Time {
	for _, raw := range []string{created, dateCreated} {
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-0700"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}
