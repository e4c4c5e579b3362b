package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const defaultFromName = "Leadflow"

// EmailSender delivers one follow-up email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single outbound email. HTML falls back to Body.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

func (m EmailMessage) html() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Body
}

// NewEmailSender returns the provider named by cfg.EmailProvider, or nil
// when that provider is missing credentials. Only "stub" yields the
// logging sender, so a broken deployment never reports mail as delivered.
func NewEmailSender(cfg ProviderConfig, ses sesAPI, logger *logging.Logger) EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "stub":
		return NewStubEmailSender(logger)
	case "sendgrid":
		if s := NewSendGridSender(cfg.SendGrid, logger); s != nil {
			return s
		}
		logger.Error("notify: email disabled, SENDGRID_API_KEY is empty")
	case "ses":
		if ses != nil && cfg.SES.FromEmail != "" {
			return NewSESSender(ses, cfg.SES, logger)
		}
		logger.Error("notify: email disabled, SES client or SES_FROM_EMAIL missing")
	default:
		logger.Error("notify: email disabled, unknown provider", "provider", cfg.EmailProvider)
	}
	return nil
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender sends through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	name := cfg.FromName
	if name == "" {
		name = defaultFromName
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(name, cfg.FromEmail),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid: %w", ErrNotConfigured)
	}
	if msg.To == "" {
		return ErrMissingRecipient
	}

	to := mail.NewEmail(msg.ToName, msg.To)
	resp, err := s.client.SendWithContext(ctx, mail.NewSingleEmail(s.from, msg.Subject, to, msg.Body, msg.html()))
	if err != nil {
		s.logger.Error("sendgrid request failed", "error", err)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("sendgrid refused email", "status", resp.StatusCode, "body", resp.Body)
		return statusError("sendgrid", resp.StatusCode, fmt.Sprintf("status %d", resp.StatusCode))
	}
	s.logger.Debug("email accepted by sendgrid", "status", resp.StatusCode)
	return nil
}

// StubEmailSender logs instead of sending. Dispatchers treat it as no
// email channel at all.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: not sending", "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
