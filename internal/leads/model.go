package leads

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a lead's position in the sales pipeline.
type Status string

const (
	StatusNew         Status = "new"
	StatusContacted   Status = "contacted"
	StatusProspect    Status = "prospect"
	StatusHot         Status = "hot"
	StatusApplication Status = "application"
	StatusDoc         Status = "doc"
	StatusDead        Status = "dead"
)

// IsTerminal reports whether the status ends the pipeline.
func (s Status) IsTerminal() bool {
	return s == StatusDoc || s == StatusDead
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusProspect, StatusHot, StatusApplication, StatusDoc, StatusDead:
		return true
	}
	return false
}

// Channel is a communication medium.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
	ChannelVoice     Channel = "voice"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelTelegram  Channel = "telegram"
	ChannelSignal    Channel = "signal"
	ChannelFacebook  Channel = "facebook"
	ChannelInstagram Channel = "instagram"
	ChannelSnapchat  Channel = "snapchat"
)

// AllChannels lists every channel in display order.
func AllChannels() []Channel {
	return []Channel{
		ChannelEmail, ChannelSMS, ChannelVoice, ChannelWhatsApp, ChannelTelegram,
		ChannelSignal, ChannelFacebook, ChannelInstagram, ChannelSnapchat,
	}
}

// DocumentType identifies a loan-file document.
type DocumentType string

const (
	DocumentApplication   DocumentType = "application"
	DocumentBankStatement DocumentType = "bank_statement"
	DocumentID            DocumentType = "id"
	DocumentOther         DocumentType = "other"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentApplication, DocumentBankStatement, DocumentID, DocumentOther:
		return true
	}
	return false
}

// DocumentStatus tracks review progress of a document.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentReceived DocumentStatus = "received"
	DocumentVerified DocumentStatus = "verified"
)

// ActivityType classifies an activity log entry.
type ActivityType string

const (
	ActivityCall         ActivityType = "call"
	ActivityEmail        ActivityType = "email"
	ActivitySMS          ActivityType = "sms"
	ActivityWhatsApp     ActivityType = "whatsapp"
	ActivityTelegram     ActivityType = "telegram"
	ActivityMessage      ActivityType = "message"
	ActivityNote         ActivityType = "note"
	ActivityStatusChange ActivityType = "status_change"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	return t.IsOutreach() || t == ActivityNote || t == ActivityStatusChange
}

// IsOutreach reports whether the activity counts as a contact attempt.
func (t ActivityType) IsOutreach() bool {
	switch t {
	case ActivityCall, ActivityEmail, ActivitySMS, ActivityWhatsApp, ActivityTelegram, ActivityMessage:
		return true
	}
	return false
}

// Outcome is the observed result of an outreach attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeNoAnswer  Outcome = "no_answer"
	OutcomeVoicemail Outcome = "voicemail"
	OutcomeBounced   Outcome = "bounced"
	OutcomeDelivered Outcome = "delivered"
	OutcomeRead      Outcome = "read"
	OutcomeReplied   Outcome = "replied"
)

// Valid reports whether o is empty or a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case "", OutcomeSuccess, OutcomeNoAnswer, OutcomeVoicemail, OutcomeBounced, OutcomeDelivered, OutcomeRead, OutcomeReplied:
		return true
	}
	return false
}

// Succeeded reports whether the outcome counts toward a channel's success rate.
func (o Outcome) Succeeded() bool {
	switch o {
	case OutcomeSuccess, OutcomeDelivered, OutcomeRead, OutcomeReplied:
		return true
	}
	return false
}

// Document is a file attached to a lead's application.
type Document struct {
	ID         string         `json:"id"`
	Type       DocumentType   `json:"type"`
	Status     DocumentStatus `json:"status"`
	FileName   string         `json:"file_name,omitempty"`
	StorageKey string         `json:"storage_key,omitempty"`
	UploadedAt time.Time      `json:"uploaded_at"`
	VerifiedAt *time.Time     `json:"verified_at,omitempty"`
}

// Activity is an immutable log entry of a contact attempt or pipeline event.
type Activity struct {
	ID            string       `json:"id"`
	Type          ActivityType `json:"type"`
	Channel       Channel      `json:"channel,omitempty"`
	Description   string       `json:"description"`
	Timestamp     time.Time    `json:"timestamp"`
	Outcome       Outcome      `json:"outcome,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	WorkflowRunID string       `json:"workflow_run_id,omitempty"`
}

// ChannelStatus holds per-channel engagement stats for a lead.
type ChannelStatus struct {
	Channel       Channel    `json:"channel"`
	Enabled       bool       `json:"enabled"`
	LastUsed      *time.Time `json:"last_used,omitempty"`
	SuccessRate   float64    `json:"success_rate"`
	TotalAttempts int        `json:"total_attempts"`
}

// Lead is a sales prospect tracked through the status pipeline.
type Lead struct {
	ID              string          `json:"id"`
	OrgID           string          `json:"org_id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Status          Status          `json:"status"`
	Source          string          `json:"source"`
	Value           float64         `json:"value"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastContactedAt *time.Time      `json:"last_contacted_at,omitempty"`
	NextFollowUpAt  *time.Time      `json:"next_follow_up_at,omitempty"`
	ContactAttempts int             `json:"contact_attempts"`
	Documents       []Document      `json:"documents"`
	Activities      []Activity      `json:"activities"`
	Channels        []ChannelStatus `json:"channels"`
	IsDead          bool            `json:"is_dead"`
	DeadReason      string          `json:"dead_reason,omitempty"`
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	OrgID  string  `json:"-"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Phone  string  `json:"phone"`
	Source string  `json:"source"`
	Value  float64 `json:"value"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return ErrMissingOrgID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Email) == "" && strings.TrimSpace(r.Phone) == "" {
		return ErrMissingContact
	}
	return nil
}

// NewLead builds a fresh lead from a validated request.
func NewLead(req *CreateLeadRequest, now time.Time) *Lead {
	now = now.UTC()
	return &Lead{
		ID:         uuid.NewString(),
		OrgID:      req.OrgID,
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		Status:     StatusNew,
		Source:     req.Source,
		Value:      req.Value,
		CreatedAt:  now,
		UpdatedAt:  now,
		Documents:  []Document{},
		Activities: []Activity{},
		Channels:   DefaultChannels(req.Email, req.Phone),
	}
}

// DefaultChannels enables the channels reachable with the given contact details.
func DefaultChannels(email, phone string) []ChannelStatus {
	hasEmail := strings.TrimSpace(email) != ""
	hasPhone := strings.TrimSpace(phone) != ""
	out := make([]ChannelStatus, 0, len(AllChannels()))
	for _, ch := range AllChannels() {
		enabled := false
		switch ch {
		case ChannelEmail:
			enabled = hasEmail
		case ChannelSMS, ChannelVoice, ChannelWhatsApp:
			enabled = hasPhone
		}
		out = append(out, ChannelStatus{Channel: ch, Enabled: enabled})
	}
	return out
}

// MarkDead moves the lead to the dead terminal state. IsDead and Status are
// only ever set together.
func (l *Lead) MarkDead(reason string, now time.Time) {
	l.IsDead = true
	l.Status = StatusDead
	l.DeadReason = reason
	l.NextFollowUpAt = nil
	l.UpdatedAt = now.UTC()
}

// SetStatus changes the status, keeping the dead invariant intact.
func (l *Lead) SetStatus(status Status, now time.Time) {
	if status == StatusDead {
		l.MarkDead(l.DeadReason, now)
		return
	}
	l.Status = status
	l.IsDead = false
	l.DeadReason = ""
	l.UpdatedAt = now.UTC()
}

// RecordActivity appends a to the log. Outreach activities bump the contact
// counters and the matching channel's stats.
func (l *Lead) RecordActivity(a Activity) Activity {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	l.Activities = append(l.Activities, a)
	l.UpdatedAt = a.Timestamp

	if !a.Type.IsOutreach() {
		return a
	}
	l.ContactAttempts++
	ts := a.Timestamp
	l.LastContactedAt = &ts

	if a.Channel == "" {
		return a
	}
	for i := range l.Channels {
		ch := &l.Channels[i]
		if ch.Channel != a.Channel {
			continue
		}
		successes := ch.SuccessRate * float64(ch.TotalAttempts)
		if a.Outcome.Succeeded() {
			successes++
		}
		ch.TotalAttempts++
		ch.SuccessRate = successes / float64(ch.TotalAttempts)
		ch.LastUsed = &ts
		break
	}
	return a
}

// UpsertDocument replaces the document with the same ID or appends it.
func (l *Lead) UpsertDocument(doc Document) {
	for i := range l.Documents {
		if l.Documents[i].ID == doc.ID {
			l.Documents[i] = doc
			return
		}
	}
	l.Documents = append(l.Documents, doc)
}

// FindDocument returns the document with id.
func (l *Lead) FindDocument(id string) (Document, bool) {
	for _, d := range l.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}

// Clone returns a deep copy so callers never share slices with a store.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	cp := *l
	cp.LastContactedAt = cloneTime(l.LastContactedAt)
	cp.NextFollowUpAt = cloneTime(l.NextFollowUpAt)
	cp.Documents = make([]Document, len(l.Documents))
	for i, d := range l.Documents {
		d.VerifiedAt = cloneTime(d.VerifiedAt)
		cp.Documents[i] = d
	}
	cp.Activities = append([]Activity{}, l.Activities...)
	cp.Channels = make([]ChannelStatus, len(l.Channels))
	for i, c := range l.Channels {
		c.LastUsed = cloneTime(c.LastUsed)
		cp.Channels[i] = c
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
