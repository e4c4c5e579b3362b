package events

import "time"

// Event type names published on the lead events queue.
const (
	TypeLeadCreated        = "lead.created.v1"
	TypeLeadStatusChanged  = "lead.status_changed.v1"
	TypeActivityRecorded   = "lead.activity_recorded.v1"
	TypeLeadMarkedDead     = "lead.marked_dead.v1"
	TypeDocumentUpdated    = "lead.document_updated.v1"
	TypeAutomationRunEnded = "automation.run_finished.v1"
)

// LeadEvent is a canonical event about a single lead.
type LeadEvent interface {
	CanonicalEvent
	Lead() (orgID, leadID string)
}

// LeadAggregate is the envelope aggregate for a lead.
func LeadAggregate(leadID string) string {
	return "lead:" + leadID
}

type LeadCreatedV1 struct {
	OrgID     string    `json:"org_id"`
	LeadID    string    `json:"lead_id"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (LeadCreatedV1) EventType() string        { return TypeLeadCreated }
func (e LeadCreatedV1) Lead() (string, string) { return e.OrgID, e.LeadID }

type LeadStatusChangedV1 struct {
	OrgID     string    `json:"org_id"`
	LeadID    string    `json:"lead_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

func (LeadStatusChangedV1) EventType() string        { return TypeLeadStatusChanged }
func (e LeadStatusChangedV1) Lead() (string, string) { return e.OrgID, e.LeadID }

type ActivityRecordedV1 struct {
	OrgID         string    `json:"org_id"`
	LeadID        string    `json:"lead_id"`
	ActivityID    string    `json:"activity_id"`
	Type          string    `json:"type"`
	Channel       string    `json:"channel,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	WorkflowRunID string    `json:"workflow_run_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (ActivityRecordedV1) EventType() string        { return TypeActivityRecorded }
func (e ActivityRecordedV1) Lead() (string, string) { return e.OrgID, e.LeadID }

type LeadMarkedDeadV1 struct {
	OrgID    string    `json:"org_id"`
	LeadID   string    `json:"lead_id"`
	Reason   string    `json:"reason"`
	MarkedAt time.Time `json:"marked_at"`
}

func (LeadMarkedDeadV1) EventType() string        { return TypeLeadMarkedDead }
func (e LeadMarkedDeadV1) Lead() (string, string) { return e.OrgID, e.LeadID }

type DocumentUpdatedV1 struct {
	OrgID      string    `json:"org_id"`
	LeadID     string    `json:"lead_id"`
	DocumentID string    `json:"document_id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (DocumentUpdatedV1) EventType() string        { return TypeDocumentUpdated }
func (e DocumentUpdatedV1) Lead() (string, string) { return e.OrgID, e.LeadID }

// AutomationRunFinishedV1 is emitted when a workflow run completes, fails or is cancelled.
type AutomationRunFinishedV1 struct {
	OrgID      string    `json:"org_id"`
	LeadID     string    `json:"lead_id"`
	RunID      string    `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finished_at"`
}

func (AutomationRunFinishedV1) EventType() string        { return TypeAutomationRunEnded }
func (e AutomationRunFinishedV1) Lead() (string, string) { return e.OrgID, e.LeadID }
