package notify

import (
	"context"
	"fmt"

	"github.com/robloxar/giftcard-bot/pkg/logging"
)

// emailCategories are the alerts worth an email on top of the chat ping.
// Everything else is chat-only noise.
var emailCategories = map[Category]bool{
	CategoryStock:     true,
	CategoryAuthError: true,
}

// Service fans out alerts to the configured channels. A missing channel is
// skipped, and a channel failure never blocks the others. The zero settings
// value means critical-only.
type Service struct {
	telegram Notifier
	email    EmailSender
	emailTo  string
	settings Settings
	logger   *logging.Logger
}

// NewService creates a notification service.
func NewService(telegram Notifier, email EmailSender, emailTo string, settings Settings, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		telegram: telegram,
		email:    email,
		emailTo:  emailTo,
		settings: settings,
		logger:   logger,
	}
}

// Notify forwards the event to every enabled channel.
func (s *Service) Notify(ctx context.Context, evt Event) error {
	if !s.settings.enabled(evt.Category) {
		s.logger.Debug("notification suppressed by settings", "category", string(evt.Category))
		return nil
	}

	var errs []error

	if s.telegram != nil {
		if err := s.telegram.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}

	if s.email != nil && s.emailTo != "" && emailCategories[evt.Category] {
		msg := EmailMessage{
			To:      s.emailTo,
			Subject: evt.Title,
			Body:    evt.Body,
		}
		if evt.SaleID != "" {
			msg.Body += fmt.Sprintf("\n\nVenta: %s", evt.SaleID)
		}
		if err := s.email.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

var _ Notifier = (*Service)(nil)
