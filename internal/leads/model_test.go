package leads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLead(email, phone string) *Lead {
	return NewLead(&CreateLeadRequest{OrgID: "org-1", Name: "Jane", Email: email, Phone: phone}, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
}

func channelStatus(t *testing.T, l *Lead, ch Channel) ChannelStatus {
	t.Helper()
	for _, c := range l.Channels {
		if c.Channel == ch {
			return c
		}
	}
	t.Fatalf("channel %s missing", ch)
	return ChannelStatus{}
}

func TestDefaultChannels(t *testing.T) {
	emailOnly := newTestLead("jane@example.com", "")
	assert.Len(t, emailOnly.Channels, len(AllChannels()))
	assert.True(t, channelStatus(t, emailOnly, ChannelEmail).Enabled)
	assert.False(t, channelStatus(t, emailOnly, ChannelSMS).Enabled)

	phoneOnly := newTestLead("", "+15550001111")
	assert.False(t, channelStatus(t, phoneOnly, ChannelEmail).Enabled)
	for _, ch := range []Channel{ChannelSMS, ChannelVoice, ChannelWhatsApp} {
		assert.True(t, channelStatus(t, phoneOnly, ch).Enabled, ch)
	}
	assert.False(t, channelStatus(t, phoneOnly, ChannelTelegram).Enabled)
}

func TestMarkDeadKeepsFlagAndStatusTogether(t *testing.T) {
	lead := newTestLead("jane@example.com", "")
	next := time.Now()
	lead.NextFollowUpAt = &next

	lead.MarkDead("inactive", time.Now())
	assert.True(t, lead.IsDead)
	assert.Equal(t, StatusDead, lead.Status)
	assert.Equal(t, "inactive", lead.DeadReason)
	assert.Nil(t, lead.NextFollowUpAt)

	lead.SetStatus(StatusContacted, time.Now())
	assert.False(t, lead.IsDead)
	assert.Empty(t, lead.DeadReason)
}

func TestRecordActivityUpdatesCounters(t *testing.T) {
	lead := newTestLead("jane@example.com", "+15550001111")
	ts := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	lead.RecordActivity(Activity{Type: ActivityEmail, Channel: ChannelEmail, Description: "intro", Outcome: OutcomeDelivered, Timestamp: ts})
	lead.RecordActivity(Activity{Type: ActivityEmail, Channel: ChannelEmail, Description: "again", Outcome: OutcomeBounced, Timestamp: ts.Add(time.Hour)})
	lead.RecordActivity(Activity{Type: ActivityNote, Description: "left a note", Timestamp: ts.Add(2 * time.Hour)})

	assert.Equal(t, 2, lead.ContactAttempts)
	require.NotNil(t, lead.LastContactedAt)
	assert.Equal(t, ts.Add(time.Hour), *lead.LastContactedAt)
	assert.Len(t, lead.Activities, 3)

	email := channelStatus(t, lead, ChannelEmail)
	assert.Equal(t, 2, email.TotalAttempts)
	assert.InDelta(t, 0.5, email.SuccessRate, 1e-9)
	require.NotNil(t, email.LastUsed)
}

func TestRecordActivityAssignsIDAndTimestamp(t *testing.T) {
	lead := newTestLead("jane@example.com", "")
	a := lead.RecordActivity(Activity{Type: ActivityNote, Description: "n"})
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.Timestamp.IsZero())
	assert.Equal(t, 0, lead.ContactAttempts)
}

func TestCloneIsDeep(t *testing.T) {
	lead := newTestLead("jane@example.com", "")
	lead.UpsertDocument(Document{ID: "d1", Type: DocumentApplication, Status: DocumentReceived})
	lead.RecordActivity(Activity{Type: ActivityEmail, Channel: ChannelEmail, Description: "hi", Outcome: OutcomeDelivered})

	cp := lead.Clone()
	cp.Documents[0].Status = DocumentVerified
	cp.Channels[0].TotalAttempts = 99
	*cp.LastContactedAt = time.Time{}

	assert.Equal(t, DocumentReceived, lead.Documents[0].Status)
	assert.Equal(t, 1, lead.Channels[0].TotalAttempts)
	assert.False(t, lead.LastContactedAt.IsZero())
}

func TestUpsertDocumentReplaces(t *testing.T) {
	lead := newTestLead("jane@example.com", "")
	lead.UpsertDocument(Document{ID: "d1", Type: DocumentID, Status: DocumentReceived})
	lead.UpsertDocument(Document{ID: "d1", Type: DocumentID, Status: DocumentVerified})
	require.Len(t, lead.Documents, 1)
	doc, ok := lead.FindDocument("d1")
	require.True(t, ok)
	assert.Equal(t, DocumentVerified, doc.Status)
}

func TestCreateLeadRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  CreateLeadRequest
		want error
	}{
		{"missing org", CreateLeadRequest{Name: "a", Email: "a@b.c"}, ErrMissingOrgID},
		{"missing name", CreateLeadRequest{OrgID: "o", Email: "a@b.c"}, ErrInvalidName},
		{"missing contact", CreateLeadRequest{OrgID: "o", Name: "a"}, ErrMissingContact},
		{"phone only", CreateLeadRequest{OrgID: "o", Name: "a", Phone: "+1"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.req.Validate(), tt.want)
		})
	}
}
