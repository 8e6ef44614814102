// Package webhook receives MercadoLibre notifications, queues them, and
// dispatches them by topic. The HTTP layer always acks 200; real work happens
// on the queue consumers.
package webhook

import "strings"

// Topics MercadoLibre delivers. orders and orders_v2 are the same event
// family across API generations.
const (
	TopicOrders    = "orders"
	TopicOrdersV2  = "orders_v2"
	TopicMessages  = "messages"
	TopicQuestions = "questions"
)

// Notification is the webhook payload MercadoLibre posts.
type Notification struct {
	ID       string `json:"_id"`
	Topic    string `json:"topic"`
	Resource string `json:"resource"`
	UserID   int64  `json:"user_id"`
	Attempts int    `json:"attempts,omitempty"`
	Sent     string `json:"sent,omitempty"`
	Received string `json:"received,omitempty"`
}

// ResourceID returns the trailing path segment of the resource, which is the
// entity id for every topic ("/orders/2000001" -> "2000001").
func (n Notification) ResourceID() string {
	trimmed := strings.Trim(n.Resource, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}

// DedupKey identifies one delivery. MercadoLibre's _id is unique per
// notification; when absent the topic+resource pair is the best available.
func (n Notification) DedupKey() string {
	if n.ID != "" {
		return n.ID
	}
	return n.Topic + ":" + n.Resource
}
