package automation

import (
	"time"

	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/lifecycle"
)

const defaultNoResponseHours = 24

// ShouldTrigger reports whether wf should start for lead given the event
// that caused the evaluation.
func ShouldTrigger(wf Workflow, lead *leads.Lead, event Event, now time.Time) bool {
	if !wf.Enabled || lead == nil || lead.IsDead {
		return false
	}
	t := wf.Trigger
	switch t.Type {
	case TriggerLeadCreated:
		return event == EventLeadCreated

	case TriggerNoResponse:
		attempts := t.Attempts
		if attempts < 1 {
			attempts = 1
		}
		if lead.ContactAttempts < attempts || lead.LastContactedAt == nil {
			return false
		}
		if repliedSince(lead, *lead.LastContactedAt) {
			return false
		}
		hours := t.Hours
		if hours <= 0 {
			hours = defaultNoResponseHours
		}
		return now.Sub(*lead.LastContactedAt) >= time.Duration(hours)*time.Hour

	case TriggerStatusChange:
		return event == EventStatusChange && (t.Status == "" || t.Status == lead.Status)

	case TriggerMissingDocs:
		switch lead.Status {
		case leads.StatusApplication:
		case leads.StatusHot:
			if !lifecycle.HasDocument(lead, leads.DocumentApplication) {
				return false
			}
		default:
			return false
		}
		return !lifecycle.HasAllDocuments(lead)

	case TriggerTimeBased:
		if lead.Status.IsTerminal() {
			return false
		}
		return now.Sub(lead.CreatedAt) >= time.Duration(t.Days)*24*time.Hour
	}
	return false
}

// repliedSince reports a replied activity at or after the last contact; a
// reply logged on an outreach activity shares its timestamp.
func repliedSince(lead *leads.Lead, since time.Time) bool {
	for _, a := range lead.Activities {
		if a.Outcome == leads.OutcomeReplied && !a.Timestamp.Before(since) {
			return true
		}
	}
	return false
}
