package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robloxar/giftcard-bot/pkg/logging"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramSender delivers alerts to an operator chat through the Telegram
// Bot API. It is the primary channel: the operator watches it from a phone.
type TelegramSender struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
	logger     *logging.Logger
}

// TelegramConfig holds configuration for the Telegram sender.
type TelegramConfig struct {
	Token   string
	ChatID  string
	BaseURL string
}

// NewTelegramSender creates a Telegram sender. Returns nil when no token is
// configured so callers can treat the channel as absent.
func NewTelegramSender(cfg TelegramConfig, logger *logging.Logger) *TelegramSender {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	return &TelegramSender{
		baseURL:    baseURL,
		token:      cfg.Token,
		chatID:     cfg.ChatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Notify posts the alert as a single chat message.
func (t *TelegramSender) Notify(ctx context.Context, evt Event) error {
	text := evt.Title
	if evt.Body != "" {
		text += "\n\n" + evt.Body
	}
	if evt.SaleID != "" {
		text += fmt.Sprintf("\n\nVenta: %s", evt.SaleID)
	}

	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Error("telegram send failed", "error", err, "category", string(evt.Category))
		return fmt.Errorf("notify: telegram send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		t.logger.Error("telegram returned error status", "status", resp.StatusCode, "body", string(data))
		return fmt.Errorf("notify: telegram returned status %d", resp.StatusCode)
	}

	t.logger.Info("telegram alert sent", "category", string(evt.Category), "sale_id", evt.SaleID)
	return nil
}

var _ Notifier = (*TelegramSender)(nil)
