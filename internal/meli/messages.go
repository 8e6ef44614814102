package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

// MaxMessageLen is ML's hard per-message character cap for post-sale
// messaging. Longer text must be chunked by the caller; SendMessage truncates
// as a last resort.
const MaxMessageLen = 350

// defaultSequencePause spaces out burst sends to stay under the messaging
// rate limit.
const defaultSequencePause = 500 * time.Millisecond

var packResourceRe = regexp.MustCompile(`/packs/(\d+)`)

// truncateMessage enforces the cap in characters, not bytes, so accented
// Spanish text is never cut mid-rune.
func truncateMessage(text string) string {
	if len(text) <= MaxMessageLen {
		return text
	}
	runes := []rune(text)
	if len(runes) <= MaxMessageLen {
		return text
	}
	return string(runes[:MaxMessageLen])
}

// rawMessage covers both message endpoint generations. Field names vary
// (id/message_id, created_at/date_created) and user ids flip between number
// and string, so everything is normalized before leaving this package.
type rawMessage struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	From      struct {
		UserID flexID `json:"user_id"`
		Role   string `json:"role"`
	} `json:"from"`
	To struct {
		UserID flexID `json:"user_id"`
		Role   string `json:"role"`
	} `json:"to"`
	Text        string `json:"text"`
	CreatedAt   string `json:"created_at"`
	DateCreated string `json:"date_created"`
}

func (m rawMessage) normalize() Message {
	id := m.ID
	if id == "" {
		id = m.MessageID
	}
	return Message{
		ID:        id,
		From:      User{ID: m.From.UserID.String(), Role: m.From.Role},
		To:        User{ID: m.To.UserID.String(), Role: m.To.Role},
		Text:      m.Text,
		CreatedAt: parseMessageTime(m.CreatedAt, m.DateCreated),
	}
}

type messagesEnvelope struct {
	Messages []rawMessage `json:"messages"`
}

// GetPackMessages fetches the full post-sale thread for a sale, oldest first.
// The marketplace endpoint is tried first; the legacy seller-scoped endpoint
// is the fallback. ML documents that the pack endpoints accept a bare order id
// when no pack exists, so callers pass the sale id unconditionally.
func (c *Client) GetPackMessages(ctx context.Context, saleID string) ([]Message, error) {
	sellerID, err := c.SellerID(ctx)
	if err != nil {
		return nil, err
	}

	paths := []string{
		fmt.Sprintf("/marketplace/messages/packs/%s?tag=post_sale", saleID),
		fmt.Sprintf("/messages/packs/%s/sellers/%s?tag=post_sale", saleID, sellerID),
	}

	var lastErr error
	for _, path := range paths {
		var envelope messagesEnvelope
		if err := c.get(ctx, path, nil, &envelope); err != nil {
			lastErr = err
			c.logger.Debug("pack messages endpoint failed, trying next", "path", path, "error", err)
			continue
		}
		if len(envelope.Messages) == 0 && path != paths[len(paths)-1] {
			// The new endpoint sometimes returns an empty list for threads the
			// legacy endpoint still serves.
			continue
		}
		msgs := make([]Message, 0, len(envelope.Messages))
		for _, raw := range envelope.Messages {
			msgs = append(msgs, raw.normalize())
		}
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		})
		return msgs, nil
	}
	return nil, fmt.Errorf("meli: get pack messages for %s: %w", saleID, lastErr)
}

// SendMessage posts one message to the buyer on a sale's thread. Text above
// the cap is truncated. The marketplace endpoint is preferred; the legacy
// endpoint with an explicit from/to body is the fallback.
func (c *Client) SendMessage(ctx context.Context, saleID, text, buyerID string) error {
	sellerID, err := c.SellerID(ctx)
	if err != nil {
		return err
	}
	text = truncateMessage(text)

	newPath := fmt.Sprintf("/marketplace/messages/packs/%s", saleID)
	if _, err := c.invoke(ctx, http.MethodPost, newPath, nil, map[string]string{"text": text}); err == nil {
		return nil
	} else {
		c.logger.Debug("marketplace send failed, trying legacy endpoint", "sale_id", saleID, "error", err)
	}

	body := map[string]any{
		"from": map[string]any{"user_id": jsonNumber(sellerID)},
		"text": text,
	}
	if buyerID != "" {
		body["to"] = map[string]any{"user_id": jsonNumber(buyerID)}
	}
	legacyPath := fmt.Sprintf("/messages/packs/%s/sellers/%s?tag=post_sale", saleID, sellerID)
	if _, err := c.invoke(ctx, http.MethodPost, legacyPath, nil, body); err != nil {
		return fmt.Errorf("meli: send message to %s: %w", saleID, err)
	}
	return nil
}

// SendSequence sends chunked text with a pause between chunks. A failed chunk
// is logged and the sequence continues: partial instructions still let the
// buyer answer, and the reconstruction markers live in the first chunk.
func (c *Client) SendSequence(ctx context.Context, saleID string, texts []string, buyerID string) error {
	var firstErr error
	for i, text := range texts {
		if i > 0 {
			select {
			case <-time.After(c.sequencePause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.SendMessage(ctx, saleID, text, buyerID); err != nil {
			c.logger.Warn("sequence chunk failed", "sale_id", saleID, "chunk", i, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ActionGuideOption is one of the reason codes ML requires a seller to pick
// before opening certain post-sale threads.
type ActionGuideOption struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
}

// InitConversation performs the action-guide handshake for a sale, choosing
// the free-form OTHER option when available. Returns nil when no guide is
// required. Failures are reported but callers treat them as non-fatal: the
// direct send may still succeed.
func (c *Client) InitConversation(ctx context.Context, saleID, text string) error {
	var guide struct {
		Options []ActionGuideOption `json:"options"`
	}
	path := fmt.Sprintf("/messages/action_guide/packs/%s?tag=post_sale", saleID)
	if err := c.get(ctx, path, nil, &guide); err != nil {
		return fmt.Errorf("meli: fetch action guide for %s: %w", saleID, err)
	}
	if len(guide.Options) == 0 {
		return nil
	}

	optionID := guide.Options[0].ID
	for _, opt := range guide.Options {
		if opt.ID == "OTHER" {
			optionID = opt.ID
			break
		}
	}

	body := map[string]any{"option_id": optionID}
	if optionID == "OTHER" {
		body["text"] = truncateMessage(text)
	}
	optPath := fmt.Sprintf("/messages/action_guide/packs/%s/option?tag=post_sale", saleID)
	if _, err := c.invoke(ctx, http.MethodPost, optPath, nil, body); err != nil {
		return fmt.Errorf("meli: select action guide option for %s: %w", saleID, err)
	}
	return nil
}

// ResolvedMessage is the outcome of chasing a webhook message resource.
type ResolvedMessage struct {
	MessageID  string
	SaleID     string
	FromUserID string
	ToUserID   string
	Text       string
}

// ResolveMessageResource fetches a single message from a webhook resource
// path, trying the marketplace endpoint, the legacy endpoint, then the raw
// resource path, in that order. Each strategy returns a typed result; the
// first success wins.
func (c *Client) ResolveMessageResource(ctx context.Context, resource string) (*ResolvedMessage, error) {
	messageID := lastPathSegment(resource)

	strategies := []func(context.Context, string) (*ResolvedMessage, error){
		c.resolveMarketplaceMessage,
		c.resolveLegacyMessage,
	}
	if resource != "/marketplace/messages/"+messageID && resource != "/messages/"+messageID {
		strategies = append(strategies, func(ctx context.Context, _ string) (*ResolvedMessage, error) {
			return c.resolveRawResource(ctx, resource)
		})
	}

	var lastErr error
	for _, strategy := range strategies {
		resolved, err := strategy(ctx, messageID)
		if err != nil {
			lastErr = err
			continue
		}
		if resolved != nil {
			return resolved, nil
		}
	}
	return nil, fmt.Errorf("meli: resolve message resource %s: %w", resource, lastErr)
}

func (c *Client) resolveMarketplaceMessage(ctx context.Context, messageID string) (*ResolvedMessage, error) {
	var payload struct {
		Messages []struct {
			rawMessage
			MessageResources []struct {
				Name string `json:"name"`
				ID   string `json:"id"`
			} `json:"message_resources"`
		} `json:"messages"`
	}
	if err := c.get(ctx, "/marketplace/messages/"+messageID, nil, &payload); err != nil {
		return nil, err
	}
	if len(payload.Messages) == 0 {
		return nil, fmt.Errorf("meli: marketplace message %s not found", messageID)
	}
	msg := payload.Messages[0]
	normalized := msg.rawMessage.normalize()
	resolved := &ResolvedMessage{
		MessageID:  normalized.ID,
		FromUserID: normalized.From.ID,
		ToUserID:   normalized.To.ID,
		Text:       normalized.Text,
	}
	if resolved.MessageID == "" {
		resolved.MessageID = messageID
	}
	for _, res := range msg.MessageResources {
		if res.Name == "packs" {
			resolved.SaleID = res.ID
			break
		}
	}
	return resolved, nil
}

func (c *Client) resolveLegacyMessage(ctx context.Context, messageID string) (*ResolvedMessage, error) {
	var payload struct {
		MessageID string `json:"message_id"`
		From      struct {
			UserID flexID `json:"user_id"`
		} `json:"from"`
		To struct {
			UserID flexID `json:"user_id"`
		} `json:"to"`
		Text     string `json:"text"`
		Resource string `json:"resource"`
	}
	if err := c.get(ctx, "/messages/"+messageID, nil, &payload); err != nil {
		return nil, err
	}
	resolved := &ResolvedMessage{
		MessageID:  payload.MessageID,
		FromUserID: payload.From.UserID.String(),
		ToUserID:   payload.To.UserID.String(),
		Text:       payload.Text,
	}
	if resolved.MessageID == "" {
		resolved.MessageID = messageID
	}
	if m := packResourceRe.FindStringSubmatch(payload.Resource); m != nil {
		resolved.SaleID = m[1]
	}
	return resolved, nil
}

func (c *Client) resolveRawResource(ctx context.Context, resource string) (*ResolvedMessage, error) {
	var raw map[string]json.RawMessage
	if err := c.get(ctx, resource, nil, &raw); err != nil {
		return nil, err
	}
	resolved := &ResolvedMessage{MessageID: lastPathSegment(resource)}
	if v, ok := raw["pack_id"]; ok {
		var id flexID
		if err := json.Unmarshal(v, &id); err == nil {
			resolved.SaleID = id.String()
		}
	}
	if v, ok := raw["resource"]; ok && resolved.SaleID == "" {
		var res string
		if err := json.Unmarshal(v, &res); err == nil {
			if m := packResourceRe.FindStringSubmatch(res); m != nil {
				resolved.SaleID = m[1]
			}
		}
	}
	if v, ok := raw["text"]; ok {
		_ = json.Unmarshal(v, &resolved.Text)
	}
	for field, dst := range map[string]*string{"from": &resolved.FromUserID, "to": &resolved.ToUserID} {
		if v, ok := raw[field]; ok {
			var user struct {
				UserID flexID `json:"user_id"`
			}
			if err := json.Unmarshal(v, &user); err == nil {
				*dst = user.UserID.String()
			}
		}
	}
	return resolved, nil
}

func lastPathSegment(resource string) string {
	parts := strings.Split(resource, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return resource
}

// jsonNumber converts a numeric id string back to a JSON number when
// possible; the legacy endpoint rejects string user ids.
func jsonNumber(id string) any {
	var n json.Number = json.Number(id)
	if _, err := n.Int64(); err == nil {
		return n
	}
	return id
}
