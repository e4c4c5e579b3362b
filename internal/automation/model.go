package automation

import (
	"time"

	"github.com/wolfman30/leadflow/internal/leads"
)

// TriggerType selects the predicate that starts a workflow.
type TriggerType string

const (
	TriggerLeadCreated  TriggerType = "lead_created"
	TriggerNoResponse   TriggerType = "no_response"
	TriggerStatusChange TriggerType = "status_change"
	TriggerMissingDocs  TriggerType = "missing_docs"
	TriggerTimeBased    TriggerType = "time_based"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerLeadCreated, TriggerNoResponse, TriggerStatusChange, TriggerMissingDocs, TriggerTimeBased:
		return true
	}
	return false
}

// ActionType is one workflow step.
type ActionType string

const (
	ActionSendEmail    ActionType = "send_email"
	ActionSendSMS      ActionType = "send_sms"
	ActionMakeCall     ActionType = "make_call"
	ActionSendWhatsApp ActionType = "send_whatsapp"
	ActionSendTelegram ActionType = "send_telegram"
	ActionUpdateStatus ActionType = "update_status"
)

// Event tags the lead change a trigger is evaluated against.
type Event string

const (
	EventLeadCreated      Event = "lead_created"
	EventStatusChange     Event = "status_change"
	EventActivityRecorded Event = "activity_recorded"
	EventDocumentUpdated  Event = "document_updated"
	EventTick             Event = "tick"
	// EventManual marks runs started through the API.
	EventManual Event = "manual"
)

// Trigger describes when a workflow fires. Hours, Days and Attempts only
// apply to the trigger types that read them.
type Trigger struct {
	Type     TriggerType  `json:"type" yaml:"type"`
	Status   leads.Status `json:"status,omitempty" yaml:"status,omitempty"`
	Hours    int          `json:"hours,omitempty" yaml:"hours,omitempty"`
	Days     int          `json:"days,omitempty" yaml:"days,omitempty"`
	Attempts int          `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// Action is one step of a workflow. Delay is in minutes. For update_status,
// Template holds the target status.
type Action struct {
	Type     ActionType    `json:"type" yaml:"type"`
	Channel  leads.Channel `json:"channel,omitempty" yaml:"channel,omitempty"`
	Delay    int           `json:"delay,omitempty" yaml:"delay,omitempty"`
	Template string        `json:"template,omitempty" yaml:"template,omitempty"`
}

// DelayDuration converts Delay to a duration.
func (a Action) DelayDuration() time.Duration {
	if a.Delay <= 0 {
		return 0
	}
	return time.Duration(a.Delay) * time.Minute
}

// ResolvedChannel is the explicit channel or the one implied by the type.
func (a Action) ResolvedChannel() leads.Channel {
	if a.Channel != "" {
		return a.Channel
	}
	switch a.Type {
	case ActionSendEmail:
		return leads.ChannelEmail
	case ActionSendSMS:
		return leads.ChannelSMS
	case ActionMakeCall:
		return leads.ChannelVoice
	case ActionSendWhatsApp:
		return leads.ChannelWhatsApp
	case ActionSendTelegram:
		return leads.ChannelTelegram
	}
	return ""
}

// Workflow is a trigger plus an ordered action list.
type Workflow struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Trigger Trigger  `json:"trigger" yaml:"trigger"`
	Actions []Action `json:"actions" yaml:"actions"`
}

// RunStatus tracks a workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunWaiting   RunStatus = "waiting"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsFinal reports whether the run can no longer make progress.
func (s RunStatus) IsFinal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Run is one execution of a workflow for one lead.
type Run struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflow_id"`
	OrgID         string     `json:"org_id"`
	LeadID        string     `json:"lead_id"`
	Event         Event      `json:"event"`
	Status        RunStatus  `json:"status"`
	NextAction    int        `json:"next_action"`
	PendingStepID string     `json:"pending_step_id,omitempty"`
	ActivityIDs   []string   `json:"activity_ids,omitempty"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// StepStatus tracks a scheduled step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepDone      StepStatus = "done"
	StepCancelled StepStatus = "cancelled"
	StepFailed    StepStatus = "failed"
)

// Step is a durable continuation of a run: execute ActionIndex at RunAt,
// then carry on with the actions after it. Attempts counts failed
// dispatches of that action and failed executions of the step.
type Step struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	WorkflowID  string     `json:"workflow_id"`
	OrgID       string     `json:"org_id"`
	LeadID      string     `json:"lead_id"`
	ActionIndex int        `json:"action_index"`
	RunAt       time.Time  `json:"run_at"`
	Attempts    int        `json:"attempts"`
	Status      StepStatus `json:"status"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
