package notify

import "context"

// Category classifies operator alerts. The service only forwards the
// categories enabled in Settings; noisy informational ones default to off.
type Category string

const (
	CategoryStock             Category = "stock"
	CategoryWebhookError      Category = "webhook_error"
	CategoryAuthError         Category = "auth_error"
	CategoryHumanRequested    Category = "human_requested"
	CategoryUnhandledQuestion Category = "unhandled_question"
	CategoryNewOrder          Category = "new_order"
	CategoryCodeDelivered     Category = "code_delivered"
)

// Event is one operator alert.
type Event struct {
	Category Category
	Title    string
	Body     string
	SaleID   string
}

// Notifier delivers operator alerts. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Settings controls which categories fan out. Critical alerts are always on;
// the informational ones are opt-in because they fire on every sale.
type Settings struct {
	NotifyNewOrder      bool
	NotifyCodeDelivered bool
}

// enabled reports whether a category should be forwarded.
func (s Settings) enabled(c Category) bool {
	switch c {
	case CategoryNewOrder:
		return s.NotifyNewOrder
	case CategoryCodeDelivered:
		return s.NotifyCodeDelivered
	default:
		return true
	}
}
