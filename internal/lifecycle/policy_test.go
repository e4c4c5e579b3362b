package lifecycle

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/leadflow/internal/leads"
)

var baseTime = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func testLead(status leads.Status) *leads.Lead {
	lead := leads.NewLead(&leads.CreateLeadRequest{
		OrgID: "org-1",
		Name:  "Jane",
		Email: "jane@example.com",
		Phone: "+15550001111",
	}, baseTime)
	lead.Status = status
	return lead
}

func ptr(t time.Time) *time.Time { return &t }

func TestShouldMarkDead(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name          string
		status        leads.Status
		lastContacted *time.Time
		now           time.Time
		want          bool
	}{
		{"young lead", leads.StatusNew, nil, baseTime.Add(100 * day), false},
		{"old and never contacted", leads.StatusNew, nil, baseTime.Add(181 * day), true},
		{"old but recently contacted", leads.StatusContacted, ptr(baseTime.Add(170 * day)), baseTime.Add(181 * day), false},
		{"old and quiet", leads.StatusProspect, ptr(baseTime.Add(140 * day)), baseTime.Add(181 * day), true},
		{"exact thresholds", leads.StatusHot, ptr(baseTime.Add(150 * day)), baseTime.Add(180 * day), true},
		{"doc never dies", leads.StatusDoc, nil, baseTime.Add(400 * day), false},
		{"dead stays dead", leads.StatusDead, nil, baseTime.Add(400 * day), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead := testLead(tt.status)
			lead.LastContactedAt = tt.lastContacted
			assert.Equal(t, tt.want, p.ShouldMarkDead(lead, tt.now))
		})
	}
}

func TestNextFollowUp(t *testing.T) {
	now := baseTime.Add(10 * day)
	want := map[leads.Status]int{
		leads.StatusNew:         0,
		leads.StatusContacted:   2,
		leads.StatusProspect:    3,
		leads.StatusHot:         1,
		leads.StatusApplication: 1,
	}
	for status, days := range want {
		next, ok := NextFollowUp(testLead(status), now)
		require.True(t, ok, status)
		assert.Equal(t, now.Add(time.Duration(days)*day), next, status)
	}
	for _, status := range []leads.Status{leads.StatusDoc, leads.StatusDead} {
		_, ok := NextFollowUp(testLead(status), now)
		assert.False(t, ok, status)
	}
}

func TestRecommendedChannels(t *testing.T) {
	p := DefaultPolicy()

	lead := testLead(leads.StatusContacted)
	got := p.RecommendedChannels(lead)
	// All rates tie, so the lead's own channel order wins.
	if diff := cmp.Diff([]leads.Channel{leads.ChannelEmail, leads.ChannelSMS, leads.ChannelVoice}, got); diff != "" {
		t.Fatalf("unexpected channels (-want +got):\n%s", diff)
	}

	for i := range lead.Channels {
		switch lead.Channels[i].Channel {
		case leads.ChannelVoice:
			lead.Channels[i].SuccessRate = 0.9
		case leads.ChannelSMS:
			lead.Channels[i].SuccessRate = 0.4
		}
	}
	got = p.RecommendedChannels(lead)
	if diff := cmp.Diff([]leads.Channel{leads.ChannelVoice, leads.ChannelSMS, leads.ChannelEmail}, got); diff != "" {
		t.Fatalf("unexpected ranking (-want +got):\n%s", diff)
	}

	p.MaxRecommendedChannels = 1
	assert.Equal(t, []leads.Channel{leads.ChannelVoice}, p.RecommendedChannels(lead))
}

func TestRecommendedChannelsSkipsDisabled(t *testing.T) {
	lead := leads.NewLead(&leads.CreateLeadRequest{OrgID: "o", Name: "A", Email: "a@example.com"}, baseTime)
	lead.Status = leads.StatusHot
	assert.Equal(t, []leads.Channel{leads.ChannelEmail}, DefaultPolicy().RecommendedChannels(lead))

	lead.Status = leads.StatusDoc
	assert.Empty(t, DefaultPolicy().RecommendedChannels(lead))
}

func TestHasAllDocuments(t *testing.T) {
	lead := testLead(leads.StatusApplication)
	assert.False(t, HasAllDocuments(lead))

	lead.UpsertDocument(leads.Document{ID: "a", Type: leads.DocumentApplication, Status: leads.DocumentVerified})
	lead.UpsertDocument(leads.Document{ID: "b", Type: leads.DocumentBankStatement, Status: leads.DocumentReceived})
	assert.False(t, HasAllDocuments(lead))

	lead.UpsertDocument(leads.Document{ID: "b", Type: leads.DocumentBankStatement, Status: leads.DocumentVerified})
	assert.True(t, HasAllDocuments(lead))
}

func TestProgressStatus(t *testing.T) {
	p := DefaultPolicy()

	lead := testLead(leads.StatusNew)
	assert.Equal(t, leads.StatusNew, p.ProgressStatus(lead))
	lead.ContactAttempts = 1
	assert.Equal(t, leads.StatusContacted, p.ProgressStatus(lead))

	lead = testLead(leads.StatusContacted)
	lead.Activities = []leads.Activity{{Type: leads.ActivitySMS, Outcome: leads.OutcomeDelivered}}
	assert.Equal(t, leads.StatusContacted, p.ProgressStatus(lead))
	lead.Activities = append(lead.Activities, leads.Activity{Type: leads.ActivitySMS, Outcome: leads.OutcomeReplied})
	assert.Equal(t, leads.StatusProspect, p.ProgressStatus(lead))

	lead.Status = leads.StatusProspect
	assert.Equal(t, leads.StatusProspect, p.ProgressStatus(lead))
	lead.Activities = append(lead.Activities, leads.Activity{Type: leads.ActivityCall, Outcome: leads.OutcomeSuccess})
	assert.Equal(t, leads.StatusHot, p.ProgressStatus(lead))

	lead.Status = leads.StatusHot
	assert.Equal(t, leads.StatusHot, p.ProgressStatus(lead))
	lead.UpsertDocument(leads.Document{ID: "a", Type: leads.DocumentApplication, Status: leads.DocumentPending})
	assert.Equal(t, leads.StatusApplication, p.ProgressStatus(lead))

	lead.Status = leads.StatusApplication
	assert.Equal(t, leads.StatusApplication, p.ProgressStatus(lead))
	lead.UpsertDocument(leads.Document{ID: "a", Type: leads.DocumentApplication, Status: leads.DocumentVerified})
	lead.UpsertDocument(leads.Document{ID: "b", Type: leads.DocumentBankStatement, Status: leads.DocumentVerified})
	assert.Equal(t, leads.StatusDoc, p.ProgressStatus(lead))

	lead.Status = leads.StatusDoc
	assert.Equal(t, leads.StatusDoc, p.ProgressStatus(lead))
	lead.MarkDead("x", baseTime)
	assert.Equal(t, leads.StatusDead, p.ProgressStatus(lead))
}

func TestProgressStatusAdvancesOneStepOnly(t *testing.T) {
	lead := testLead(leads.StatusNew)
	lead.ContactAttempts = 3
	lead.Activities = []leads.Activity{{Outcome: leads.OutcomeReplied}, {Outcome: leads.OutcomeSuccess}}
	assert.Equal(t, leads.StatusContacted, DefaultPolicy().ProgressStatus(lead))
}

func TestEvaluate(t *testing.T) {
	p := DefaultPolicy()
	now := baseTime.Add(5 * day)

	lead := testLead(leads.StatusNew)
	lead.ContactAttempts = 1
	eval := p.Evaluate(lead, now)
	assert.False(t, eval.ShouldMarkDead)
	assert.Equal(t, leads.StatusContacted, eval.NextStatus)
	require.NotNil(t, eval.NextFollowUpAt)
	assert.Equal(t, now.Add(2*day), *eval.NextFollowUpAt)
	assert.Equal(t, []leads.Channel{leads.ChannelEmail, leads.ChannelSMS, leads.ChannelVoice}, eval.RecommendedChannels)

	old := testLead(leads.StatusProspect)
	eval = p.Evaluate(old, baseTime.Add(200*day))
	assert.True(t, eval.ShouldMarkDead)
	assert.Equal(t, leads.StatusDead, eval.NextStatus)
	assert.Nil(t, eval.NextFollowUpAt)
}

func TestEvaluateNilLead(t *testing.T) {
	eval := DefaultPolicy().Evaluate(nil, baseTime)
	assert.False(t, eval.ShouldMarkDead)
	assert.False(t, eval.HasAllDocuments)
	assert.Nil(t, eval.NextFollowUpAt)
	assert.Empty(t, eval.RecommendedChannels)
	assert.Equal(t, baseTime, eval.EvaluatedAt)
}

func TestPolicyZeroValueUsesDefaults(t *testing.T) {
	var p Policy
	lead := testLead(leads.StatusNew)
	assert.False(t, p.ShouldMarkDead(lead, baseTime.Add(10*day)))
	lead.ContactAttempts = 1
	assert.Equal(t, leads.StatusContacted, p.ProgressStatus(lead))
}
