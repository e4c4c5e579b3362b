package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/notify"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Dispatcher performs the outbound side of a send/call action and reports
// the outcome recorded on the resulting activity.
type Dispatcher interface {
	Dispatch(ctx context.Context, lead *leads.Lead, action Action, body string) (leads.Outcome, error)
}

// SimulatedDispatcher reports fixed outcomes without contacting anyone:
// calls go unanswered, everything else is delivered.
type SimulatedDispatcher struct{}

func (SimulatedDispatcher) Dispatch(_ context.Context, _ *leads.Lead, action Action, _ string) (leads.Outcome, error) {
	if action.Type == ActionMakeCall {
		return leads.OutcomeNoAnswer, nil
	}
	return leads.OutcomeDelivered, nil
}

// ProviderDispatcher sends through real providers. A provider accepting the
// message is recorded as delivered; channels with no provider return
// ErrChannelUnavailable.
type ProviderDispatcher struct {
	email   notify.EmailSender
	sms     notify.SMSSender
	subject string
	logger  *logging.Logger
}

// NewProviderDispatcher wires providers; either sender may be nil. The stub
// email sender counts as no sender, so its sends are never recorded as
// delivered.
func NewProviderDispatcher(email notify.EmailSender, sms notify.SMSSender, logger *logging.Logger) *ProviderDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if _, stub := email.(*notify.StubEmailSender); stub {
		email = nil
	}
	return &ProviderDispatcher{email: email, sms: sms, subject: "Following up on your application", logger: logger}
}

// WithSubject overrides the email subject line.
func (d *ProviderDispatcher) WithSubject(subject string) *ProviderDispatcher {
	if subject != "" {
		d.subject = subject
	}
	return d
}

func (d *ProviderDispatcher) Dispatch(ctx context.Context, lead *leads.Lead, action Action, body string) (leads.Outcome, error) {
	switch action.ResolvedChannel() {
	case leads.ChannelEmail:
		if d.email == nil || lead.Email == "" {
			return "", ErrChannelUnavailable
		}
		if err := d.email.Send(ctx, notify.EmailMessage{To: lead.Email, ToName: lead.Name, Subject: d.subject, Body: body}); err != nil {
			return "", fmt.Errorf("automation: send email: %w", err)
		}
	case leads.ChannelSMS:
		if d.sms == nil || lead.Phone == "" {
			return "", ErrChannelUnavailable
		}
		if err := d.sms.SendSMS(ctx, lead.Phone, body); err != nil {
			return "", fmt.Errorf("automation: send sms: %w", err)
		}
	case leads.ChannelWhatsApp:
		if d.sms == nil || lead.Phone == "" {
			return "", ErrChannelUnavailable
		}
		if err := d.sms.SendSMS(ctx, notify.WhatsAppAddress(lead.Phone), body); err != nil {
			return "", fmt.Errorf("automation: send whatsapp: %w", err)
		}
	default:
		return "", ErrChannelUnavailable
	}
	return leads.OutcomeDelivered, nil
}

// isPermanent reports dispatch errors that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, ErrChannelUnavailable) ||
		errors.Is(err, notify.ErrMissingRecipient) ||
		errors.Is(err, notify.ErrNotConfigured) ||
		errors.Is(err, notify.ErrRejected)
}

var (
	_ Dispatcher = SimulatedDispatcher{}
	_ Dispatcher = (*ProviderDispatcher)(nil)
)
