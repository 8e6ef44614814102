package meli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// AnswerMaxLen is ML's cap for question answers.
const AnswerMaxLen = 2000

// GetQuestion fetches a pre-sale question by id.
func (c *Client) GetQuestion(ctx context.Context, questionID string) (*Question, error) {
	var q Question
	if err := c.get(ctx, "/questions/"+questionID, nil, &q); err != nil {
		return nil, fmt.Errorf("meli: get question %s: %w", questionID, err)
	}
	return &q, nil
}

// AnswerQuestion publishes an answer to a listing question.
func (c *Client) AnswerQuestion(ctx context.Context, questionID int64, text string) error {
	if len(text) > AnswerMaxLen {
		text = text[:AnswerMaxLen]
	}
	body := map[string]any{
		"question_id": questionID,
		"text":        text,
	}
	if _, err := c.invoke(ctx, http.MethodPost, "/answers", nil, body); err != nil {
		return fmt.Errorf("meli: answer question %d: %w", questionID, err)
	}
	return nil
}

// GetItem fetches listing details.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	if err := c.get(ctx, "/items/"+itemID, nil, &item); err != nil {
		return nil, fmt.Errorf("meli: get item %s: %w", itemID, err)
	}
	return &item, nil
}

// GetItemDescription returns the listing's plain-text description, or an
// empty string when the listing has none. Description fetch failures are not
// worth failing a question flow over.
func (c *Client) GetItemDescription(ctx context.Context, itemID string) string {
	var payload struct {
		PlainText string `json:"plain_text"`
	}
	if err := c.get(ctx, "/items/"+itemID+"/description", nil, &payload); err != nil {
		return ""
	}
	return payload.PlainText
}

// SellerQuestion is a question row from the seller-scoped search, including
// its answer when present.
type SellerQuestion struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	ItemID string `json:"item_id"`
	Status string `json:"status"`
	Answer *struct {
		Text        string `json:"text"`
		DateCreated string `json:"date_created"`
	} `json:"answer"`
}

// GetSellerQuestions searches the seller's questions by status, newest first.
func (c *Client) GetSellerQuestions(ctx context.Context, status string, limit, offset int) ([]SellerQuestion, error) {
	sellerID, err := c.SellerID(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("seller_id", sellerID)
	q.Set("api_version", "4")
	q.Set("status", status)
	q.Set("sort_fields", "date_created")
	q.Set("sort_types", "DESC")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var payload struct {
		Questions []SellerQuestion `json:"questions"`
	}
	if err := c.get(ctx, "/questions/search", q, &payload); err != nil {
		return nil, fmt.Errorf("meli: search seller questions: %w", err)
	}
	return payload.Questions, nil
}
