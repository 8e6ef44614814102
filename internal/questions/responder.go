// Package questions answers public listing questions. Three tiers, first
// match wins: keyword FAQ, LLM with a fixed knowledge prompt, operator
// notification. A question neither tier can answer is left unanswered on the
// marketplace; a wrong answer costs more than a slow one.
package questions

import (
	"context"
	"errors"
	"fmt"

	"github.com/robloxar/giftcard-bot/internal/activity"
	"github.com/robloxar/giftcard-bot/internal/catalog"
	"github.com/robloxar/giftcard-bot/internal/llm"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/internal/notify"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// Outcome describes how a question was handled.
type Outcome string

const (
	OutcomeAnsweredFAQ     Outcome = "answered_faq"
	OutcomeAnsweredLLM     Outcome = "answered_llm"
	OutcomeSkippedAnswered Outcome = "skipped_answered"
	OutcomeEscalated       Outcome = "escalated"
)

// Marketplace is the slice of the MercadoLibre client the responder needs.
type Marketplace interface {
	GetQuestion(ctx context.Context, questionID string) (*meli.Question, error)
	GetItem(ctx context.Context, itemID string) (*meli.Item, error)
	GetItemDescription(ctx context.Context, itemID string) string
	AnswerQuestion(ctx context.Context, questionID int64, text string) error
}

var _ Marketplace = (*meli.Client)(nil)

// Answerer generates an answer or reports it cannot.
type Answerer interface {
	QuestionAnswer(ctx context.Context, question, itemTitle, itemDescription string) (string, error)
}

// Responder handles question webhooks.
type Responder struct {
	market   Marketplace
	answerer Answerer
	notifier notify.Notifier
	feed     *activity.Log
	logger   *logging.Logger
}

// New wires the responder. market is required; answerer, notifier and feed
// may be nil (without an answerer tier 2 is skipped).
func New(market Marketplace, answerer Answerer, notifier notify.Notifier, feed *activity.Log, logger *logging.Logger) *Responder {
	if market == nil {
		panic("questions: marketplace required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{
		market:   market,
		answerer: answerer,
		notifier: notifier,
		feed:     feed,
		logger:   logger,
	}
}

// HandleQuestion answers the question behind a webhook. The marketplace is
// the source of truth for "already answered", which makes redelivered
// webhooks harmless.
func (r *Responder) HandleQuestion(ctx context.Context, questionID string) (Outcome, error) {
	question, err := r.market.GetQuestion(ctx, questionID)
	if err != nil {
		return "", fmt.Errorf("questions: fetch question %s: %w", questionID, err)
	}
	if question.Status == "ANSWERED" {
		r.logger.Debug("question already answered", "question_id", questionID)
		return OutcomeSkippedAnswered, nil
	}

	itemTitle := ""
	itemDescription := ""
	if item, err := r.market.GetItem(ctx, question.ItemID); err == nil {
		itemTitle = item.Title
		itemDescription = r.market.GetItemDescription(ctx, question.ItemID)
	} else {
		r.logger.Warn("item lookup failed, answering without context", "item_id", question.ItemID, "error", err)
	}

	if answer, ok := catalog.FindFAQAnswer(question.Text, itemTitle); ok {
		if err := r.market.AnswerQuestion(ctx, question.ID, answer); err != nil {
			return "", fmt.Errorf("questions: post FAQ answer for %s: %w", questionID, err)
		}
		r.logger.Info("question answered from FAQ", "question_id", questionID)
		r.record("Pregunta respondida (FAQ)", question.Text)
		return OutcomeAnsweredFAQ, nil
	}

	if r.answerer != nil {
		answer, err := r.answerer.QuestionAnswer(ctx, question.Text, itemTitle, itemDescription)
		switch {
		case err == nil:
			if err := r.market.AnswerQuestion(ctx, question.ID, answer); err != nil {
				return "", fmt.Errorf("questions: post generated answer for %s: %w", questionID, err)
			}
			r.logger.Info("question answered by model", "question_id", questionID)
			r.record("Pregunta respondida (AI)", question.Text)
			return OutcomeAnsweredLLM, nil
		case errors.Is(err, llm.ErrCannotHelp):
			// Fall through to escalation.
		default:
			r.logger.Error("answer generation failed", "question_id", questionID, "error", err)
		}
	}

	r.escalate(ctx, question)
	return OutcomeEscalated, nil
}

func (r *Responder) escalate(ctx context.Context, question *meli.Question) {
	r.logger.Info("question left for a human", "question_id", question.ID)
	r.record("Pregunta sin responder", question.Text)
	if r.notifier == nil {
		return
	}
	evt := notify.Event{
		Category: notify.CategoryUnhandledQuestion,
		Title:    "Pregunta sin responder",
		Body:     question.Text,
	}
	if err := r.notifier.Notify(ctx, evt); err != nil {
		r.logger.Warn("notification failed", "question_id", question.ID, "error", err)
	}
}

func (r *Responder) record(title, details string) {
	if r.feed != nil {
		r.feed.Record(activity.TypeQuestion, title, details)
	}
}
