// Package email delivers notifications through SendGrid or the log.
package email

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/felixgeelhaar/therapia/internal/notifications/domain"
)

const sendPath = "/v3/mail/send"

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// BaseURL overrides https://api.sendgrid.com.
	BaseURL string
}

// SendGridNotifier sends emails through the SendGrid v3 API. Every send
// builds its own request, so the notifier is safe for concurrent use.
type SendGridNotifier struct {
	apiKey    string
	host      string
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

// NewSendGridNotifier creates a notifier. It returns an error when no API
// key or sender address is configured.
func NewSendGridNotifier(cfg SendGridConfig, logger *slog.Logger) (*SendGridNotifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("email: sendgrid api key is required")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("email: sender address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Therapia"
	}
	return &SendGridNotifier{
		apiKey:    cfg.APIKey,
		host:      strings.TrimRight(cfg.BaseURL, "/"),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}, nil
}

// Send implements domain.Notifier.
func (s *SendGridNotifier) Send(ctx context.Context, msg domain.Message) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.Body)

	request := sendgrid.GetRequest(s.apiKey, sendPath, s.host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "subject", msg.Subject)
		return domain.ErrDeliveryFailed.Wrap(err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
		return domain.ErrDeliveryFailed.WithMessage("sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent", "subject", msg.Subject, "status", response.StatusCode)
	return nil
}
