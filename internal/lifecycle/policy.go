// Package lifecycle holds the pure pipeline rules for leads: when a lead is
// dead, when to follow up and over which channels, and when its status moves
// forward. Service applies those rules to stored leads.
package lifecycle

import (
	"sort"
	"time"

	"github.com/wolfman30/leadflow/internal/leads"
)

const day = 24 * time.Hour

// Policy configures the lifecycle thresholds.
type Policy struct {
	// DeadAfter is the minimum lead age before it can be marked dead.
	DeadAfter time.Duration
	// InactiveAfter is the minimum time since last contact before it can be marked dead.
	InactiveAfter          time.Duration
	MaxRecommendedChannels int
	ContactedAfterAttempts int
}

// DefaultPolicy returns the standard thresholds: 180 days old, 30 days quiet.
func DefaultPolicy() Policy {
	return Policy{
		DeadAfter:              180 * day,
		InactiveAfter:          30 * day,
		MaxRecommendedChannels: 3,
		ContactedAfterAttempts: 1,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.DeadAfter <= 0 {
		p.DeadAfter = def.DeadAfter
	}
	if p.InactiveAfter <= 0 {
		p.InactiveAfter = def.InactiveAfter
	}
	if p.MaxRecommendedChannels <= 0 {
		p.MaxRecommendedChannels = def.MaxRecommendedChannels
	}
	if p.ContactedAfterAttempts <= 0 {
		p.ContactedAfterAttempts = def.ContactedAfterAttempts
	}
	return p
}

// FollowUpRule is the cadence for a status.
type FollowUpRule struct {
	Days     int
	Channels []leads.Channel
}

var followUpRules = map[leads.Status]FollowUpRule{
	leads.StatusNew:         {Days: 0, Channels: []leads.Channel{leads.ChannelEmail, leads.ChannelSMS}},
	leads.StatusContacted:   {Days: 2, Channels: []leads.Channel{leads.ChannelSMS, leads.ChannelEmail, leads.ChannelVoice}},
	leads.StatusProspect:    {Days: 3, Channels: []leads.Channel{leads.ChannelEmail, leads.ChannelSMS, leads.ChannelWhatsApp}},
	leads.StatusHot:         {Days: 1, Channels: []leads.Channel{leads.ChannelVoice, leads.ChannelSMS, leads.ChannelEmail}},
	leads.StatusApplication: {Days: 1, Channels: []leads.Channel{leads.ChannelEmail, leads.ChannelSMS, leads.ChannelWhatsApp}},
}

// RuleFor returns the follow-up cadence for a status. doc and dead have none.
func RuleFor(status leads.Status) (FollowUpRule, bool) {
	rule, ok := followUpRules[status]
	if !ok {
		return FollowUpRule{}, false
	}
	rule.Channels = append([]leads.Channel(nil), rule.Channels...)
	return rule, true
}

// ShouldMarkDead reports whether the lead is old enough and quiet long enough
// to be considered dead.
func (p Policy) ShouldMarkDead(lead *leads.Lead, now time.Time) bool {
	if lead == nil || lead.Status.IsTerminal() || lead.IsDead {
		return false
	}
	p = p.normalized()
	if now.Sub(lead.CreatedAt) < p.DeadAfter {
		return false
	}
	lastTouch := lead.CreatedAt
	if lead.LastContactedAt != nil {
		lastTouch = *lead.LastContactedAt
	}
	return now.Sub(lastTouch) >= p.InactiveAfter
}

// NextFollowUp returns now plus the status cadence. The bool is false for
// statuses without a cadence.
func NextFollowUp(lead *leads.Lead, now time.Time) (time.Time, bool) {
	if lead == nil {
		return time.Time{}, false
	}
	rule, ok := followUpRules[lead.Status]
	if !ok {
		return time.Time{}, false
	}
	return now.Add(time.Duration(rule.Days) * day), true
}

// RecommendedChannels returns the lead's enabled channels that suit its
// status, best success rate first.
func (p Policy) RecommendedChannels(lead *leads.Lead) []leads.Channel {
	if lead == nil {
		return nil
	}
	rule, ok := followUpRules[lead.Status]
	if !ok {
		return []leads.Channel{}
	}
	p = p.normalized()
	allowed := make(map[leads.Channel]bool, len(rule.Channels))
	for _, ch := range rule.Channels {
		allowed[ch] = true
	}

	candidates := make([]leads.ChannelStatus, 0, len(lead.Channels))
	for _, cs := range lead.Channels {
		if cs.Enabled && allowed[cs.Channel] {
			candidates = append(candidates, cs)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SuccessRate > candidates[j].SuccessRate
	})
	if len(candidates) > p.MaxRecommendedChannels {
		candidates = candidates[:p.MaxRecommendedChannels]
	}
	out := make([]leads.Channel, 0, len(candidates))
	for _, cs := range candidates {
		out = append(out, cs.Channel)
	}
	return out
}

// HasAllDocuments reports whether both the application and a bank statement
// are verified.
func HasAllDocuments(lead *leads.Lead) bool {
	if lead == nil {
		return false
	}
	var application, statement bool
	for _, d := range lead.Documents {
		if d.Status != leads.DocumentVerified {
			continue
		}
		switch d.Type {
		case leads.DocumentApplication:
			application = true
		case leads.DocumentBankStatement:
			statement = true
		}
	}
	return application && statement
}

// HasDocument reports whether a document of the type exists in any state.
func HasDocument(lead *leads.Lead, typ leads.DocumentType) bool {
	if lead == nil {
		return false
	}
	for _, d := range lead.Documents {
		if d.Type == typ {
			return true
		}
	}
	return false
}

func hasOutcome(lead *leads.Lead, outcome leads.Outcome) bool {
	for _, a := range lead.Activities {
		if a.Outcome == outcome {
			return true
		}
	}
	return false
}

// ProgressStatus returns the status the lead should move to next, advancing
// at most one step. It returns the current status when nothing qualifies.
func (p Policy) ProgressStatus(lead *leads.Lead) leads.Status {
	if lead == nil {
		return ""
	}
	p = p.normalized()
	switch lead.Status {
	case leads.StatusNew:
		if lead.ContactAttempts >= p.ContactedAfterAttempts {
			return leads.StatusContacted
		}
	case leads.StatusContacted:
		if hasOutcome(lead, leads.OutcomeReplied) {
			return leads.StatusProspect
		}
	case leads.StatusProspect:
		if hasOutcome(lead, leads.OutcomeSuccess) {
			return leads.StatusHot
		}
	case leads.StatusHot:
		if HasDocument(lead, leads.DocumentApplication) {
			return leads.StatusApplication
		}
	case leads.StatusApplication:
		if HasAllDocuments(lead) {
			return leads.StatusDoc
		}
	}
	return lead.Status
}

// Evaluation is the full lifecycle verdict for a lead at a point in time.
type Evaluation struct {
	LeadID              string          `json:"lead_id"`
	Status              leads.Status    `json:"status"`
	ShouldMarkDead      bool            `json:"should_mark_dead"`
	NextStatus          leads.Status    `json:"next_status"`
	NextFollowUpAt      *time.Time      `json:"next_follow_up_at,omitempty"`
	RecommendedChannels []leads.Channel `json:"recommended_channels"`
	HasAllDocuments     bool            `json:"has_all_documents"`
	EvaluatedAt         time.Time       `json:"evaluated_at"`
}

// Evaluate bundles every rule. A lead that should die gets no next status or
// follow-up date.
func (p Policy) Evaluate(lead *leads.Lead, now time.Time) Evaluation {
	if lead == nil {
		return Evaluation{RecommendedChannels: []leads.Channel{}, EvaluatedAt: now}
	}
	eval := Evaluation{
		LeadID:              lead.ID,
		Status:              lead.Status,
		ShouldMarkDead:      p.ShouldMarkDead(lead, now),
		NextStatus:          lead.Status,
		RecommendedChannels: []leads.Channel{},
		HasAllDocuments:     HasAllDocuments(lead),
		EvaluatedAt:         now,
	}
	if eval.ShouldMarkDead {
		eval.NextStatus = leads.StatusDead
		return eval
	}
	eval.NextStatus = p.ProgressStatus(lead)

	// Cadence and channels follow the status the lead is about to hold.
	target := lead
	if eval.NextStatus != lead.Status {
		target = lead.Clone()
		target.Status = eval.NextStatus
	}
	if next, ok := NextFollowUp(target, now); ok {
		eval.NextFollowUpAt = &next
	}
	eval.RecommendedChannels = p.RecommendedChannels(target)
	return eval
}
