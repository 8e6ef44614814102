package webhook

import (
	"context"
	"encoding/json"
	"fmt"
)

// queueClient is the transport between the HTTP ack and the dispatcher.
type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

func encodeNotification(n Notification) (string, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("webhook: encode notification: %w", err)
	}
	return string(body), nil
}

func decodeNotification(body string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(body), &n); err != nil {
		return Notification{}, fmt.Errorf("webhook: decode notification: %w", err)
	}
	return n, nil
}
