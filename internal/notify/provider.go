package notify

import (
	"github.com/wolfman30/leadflow/pkg/logging"
)

// ProviderConfig selects and configures outbound providers.
type ProviderConfig struct {
	EmailProvider string // sendgrid, ses or stub
	SendGrid      SendGridConfig
	SES           SESConfig
	Twilio        TwilioConfig
}

// NewSMSSender returns the Twilio sender when credentials exist, else nil.
func NewSMSSender(cfg ProviderConfig, logger *logging.Logger) SMSSender {
	if s := NewTwilioSender(cfg.Twilio, logger); s != nil {
		return s
	}
	return nil
}
