package lifecycle

import (
	"strings"
	"testing"

	"github.com/wolfman30/leadflow/internal/leads"
)

func TestFollowUpMessage(t *testing.T) {
	lead := testLead(leads.StatusHot)
	got := FollowUpMessage(lead, leads.ChannelSMS)
	want := "Hi Jane, you're almost there! Complete your application today and we'll review it right away."
	if got != want {
		t.Fatalf("unexpected hot/sms message:\n got %q\nwant %q", got, want)
	}
}

func TestFollowUpMessageEmptyNameUsesThere(t *testing.T) {
	lead := testLead(leads.StatusNew)
	lead.Name = ""
	got := FollowUpMessage(lead, leads.ChannelEmail)
	if !strings.HasPrefix(got, "Hi there,") {
		t.Fatalf("expected greeting fallback, got %q", got)
	}
}

func TestFollowUpMessageFallsBackToEmail(t *testing.T) {
	lead := testLead(leads.StatusProspect)
	if got, want := FollowUpMessage(lead, leads.ChannelTelegram), FollowUpMessage(lead, leads.ChannelEmail); got != want {
		t.Fatalf("expected email fallback %q, got %q", want, got)
	}
}

func TestFollowUpMessageGenericForTerminalStatuses(t *testing.T) {
	for _, status := range []leads.Status{leads.StatusDoc, leads.StatusDead} {
		lead := testLead(status)
		got := FollowUpMessage(lead, leads.ChannelSMS)
		if got != "Hi Jane, thanks for your interest. Let us know if there is anything we can help with." {
			t.Fatalf("unexpected generic message for %s: %q", status, got)
		}
	}
}

func TestFollowUpMessageCoversEveryCadenceStatus(t *testing.T) {
	for status := range followUpRules {
		if _, ok := followUpTemplates[status][leads.ChannelEmail]; !ok {
			t.Fatalf("status %s has no email template", status)
		}
	}
}

func TestRenderForLead(t *testing.T) {
	lead := testLead(leads.StatusHot)
	out, err := RenderForLead("custom", "{{.Name}} via {{.Source}} ({{.Status}})", lead)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Jane via  (hot)" {
		t.Fatalf("unexpected render %q", out)
	}
	if _, err := RenderForLead("bad", "{{.Nope}}", lead); err == nil {
		t.Fatal("expected unknown field error")
	}
}
