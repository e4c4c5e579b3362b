package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/notify"
)

type recordingEmail struct {
	sent []notify.EmailMessage
	err  error
}

func (r *recordingEmail) Send(_ context.Context, msg notify.EmailMessage) error {
	r.sent = append(r.sent, msg)
	return r.err
}

type recordingSMS struct {
	to  []string
	err error
}

func (r *recordingSMS) SendSMS(_ context.Context, to, _ string) error {
	r.to = append(r.to, to)
	return r.err
}

func TestSimulatedDispatcherOutcomes(t *testing.T) {
	d := SimulatedDispatcher{}
	lead := newTestLead(leads.StatusNew)

	out, err := d.Dispatch(context.Background(), lead, Action{Type: ActionMakeCall}, "")
	require.NoError(t, err)
	assert.Equal(t, leads.OutcomeNoAnswer, out)

	for _, typ := range []ActionType{ActionSendEmail, ActionSendSMS, ActionSendWhatsApp, ActionSendTelegram} {
		out, err := d.Dispatch(context.Background(), lead, Action{Type: typ}, "")
		require.NoError(t, err)
		assert.Equal(t, leads.OutcomeDelivered, out, typ)
	}
}

func TestProviderDispatcherRoutesByChannel(t *testing.T) {
	email, sms := &recordingEmail{}, &recordingSMS{}
	d := NewProviderDispatcher(email, sms, nil).WithSubject("Hello")
	lead := newTestLead(leads.StatusNew)

	out, err := d.Dispatch(context.Background(), lead, Action{Type: ActionSendEmail}, "body")
	require.NoError(t, err)
	assert.Equal(t, leads.OutcomeDelivered, out)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "jane@example.com", email.sent[0].To)
	assert.Equal(t, "Hello", email.sent[0].Subject)

	_, err = d.Dispatch(context.Background(), lead, Action{Type: ActionSendSMS}, "body")
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), lead, Action{Type: ActionSendWhatsApp}, "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"+15550001111", "whatsapp:+15550001111"}, sms.to)
}

func TestProviderDispatcherUnavailableChannels(t *testing.T) {
	lead := newTestLead(leads.StatusNew)
	d := NewProviderDispatcher(nil, nil, nil)

	for _, typ := range []ActionType{ActionSendEmail, ActionSendSMS, ActionSendWhatsApp, ActionMakeCall, ActionSendTelegram} {
		_, err := d.Dispatch(context.Background(), lead, Action{Type: typ}, "body")
		assert.ErrorIs(t, err, ErrChannelUnavailable, typ)
	}

	noEmail := newTestLead(leads.StatusNew)
	noEmail.Email = ""
	_, err := NewProviderDispatcher(&recordingEmail{}, nil, nil).Dispatch(context.Background(), noEmail, Action{Type: ActionSendEmail}, "b")
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestProviderDispatcherMisconfiguredEmailIsUnavailable(t *testing.T) {
	lead := newTestLead(leads.StatusNew)
	misconfigured := notify.NewEmailSender(notify.ProviderConfig{EmailProvider: "sendgrid"}, nil, nil)
	require.Nil(t, misconfigured)

	for name, sender := range map[string]notify.EmailSender{
		"missing sendgrid key": misconfigured,
		"stub":                 notify.NewStubEmailSender(nil),
	} {
		outcome, err := NewProviderDispatcher(sender, &recordingSMS{}, nil).Dispatch(context.Background(), lead, Action{Type: ActionSendEmail}, "b")
		assert.ErrorIs(t, err, ErrChannelUnavailable, name)
		assert.Empty(t, outcome, name)
	}
}

func TestProviderDispatcherWrapsProviderErrors(t *testing.T) {
	providerErr := errors.New("503")
	d := NewProviderDispatcher(&recordingEmail{err: providerErr}, nil, nil)
	_, err := d.Dispatch(context.Background(), newTestLead(leads.StatusNew), Action{Type: ActionSendEmail}, "b")
	require.ErrorIs(t, err, providerErr)
	assert.False(t, isPermanent(err))
	assert.True(t, isPermanent(ErrChannelUnavailable))
	assert.True(t, isPermanent(notify.ErrMissingRecipient))
	assert.True(t, isPermanent(fmt.Errorf("%w: twilio: bad number", notify.ErrRejected)))
}
