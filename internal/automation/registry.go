package automation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/leadflow/internal/leads"
)

// WorkflowSource looks up workflow definitions.
type WorkflowSource interface {
	Get(id string) (Workflow, error)
	List() []Workflow
}

// Registry is an immutable, ordered set of workflows.
type Registry struct {
	order []string
	byID  map[string]Workflow
}

// NewRegistry validates and indexes workflows. Duplicate IDs are rejected.
func NewRegistry(workflows ...Workflow) (*Registry, error) {
	r := &Registry{byID: make(map[string]Workflow, len(workflows))}
	for _, wf := range workflows {
		if err := wf.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[wf.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidWorkflow, wf.ID)
		}
		r.order = append(r.order, wf.ID)
		r.byID[wf.ID] = wf
	}
	return r, nil
}

// LoadRegistry reads workflows from a YAML file, or returns the defaults
// when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return NewRegistry(DefaultWorkflows()...)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("automation: read workflows: %w", err)
	}
	workflows, err := ParseWorkflows(data)
	if err != nil {
		return nil, err
	}
	return NewRegistry(workflows...)
}

type workflowFile struct {
	Workflows []Workflow `yaml:"workflows"`
}

// ParseWorkflows decodes a YAML document with a top-level workflows list.
func ParseWorkflows(data []byte) ([]Workflow, error) {
	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("automation: parse workflows: %w", err)
	}
	return file.Workflows, nil
}

func (r *Registry) Get(id string) (Workflow, error) {
	wf, ok := r.byID[id]
	if !ok {
		return Workflow{}, ErrWorkflowNotFound
	}
	return wf, nil
}

func (r *Registry) List() []Workflow {
	out := make([]Workflow, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Validate checks a definition. Unknown action types are allowed and
// execute as no-ops.
func (w Workflow) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidWorkflow)
	}
	if !w.Trigger.Type.Valid() {
		return fmt.Errorf("%w: %s: unknown trigger %q", ErrInvalidWorkflow, w.ID, w.Trigger.Type)
	}
	if w.Trigger.Status != "" && !w.Trigger.Status.Valid() {
		return fmt.Errorf("%w: %s: unknown trigger status %q", ErrInvalidWorkflow, w.ID, w.Trigger.Status)
	}
	if w.Trigger.Hours < 0 || w.Trigger.Days < 0 || w.Trigger.Attempts < 0 {
		return fmt.Errorf("%w: %s: negative trigger threshold", ErrInvalidWorkflow, w.ID)
	}
	for i, a := range w.Actions {
		if a.Delay < 0 {
			return fmt.Errorf("%w: %s: action %d has negative delay", ErrInvalidWorkflow, w.ID, i)
		}
		if a.Type == ActionUpdateStatus && !leads.Status(a.Template).Valid() {
			return fmt.Errorf("%w: %s: action %d targets unknown status %q", ErrInvalidWorkflow, w.ID, i, a.Template)
		}
	}
	return nil
}

// DefaultWorkflows is the built-in follow-up playbook.
func DefaultWorkflows() []Workflow {
	return []Workflow{
		{
			ID:      "welcome",
			Name:    "New lead welcome",
			Enabled: true,
			Trigger: Trigger{Type: TriggerLeadCreated},
			Actions: []Action{
				{Type: ActionSendEmail},
				{Type: ActionSendSMS, Delay: 60},
			},
		},
		{
			ID:      "no-response-nudge",
			Name:    "No response nudge",
			Enabled: true,
			Trigger: Trigger{Type: TriggerNoResponse, Hours: 48, Attempts: 2},
			Actions: []Action{
				{Type: ActionSendSMS, Template: "Hi {{.Name}}, just checking in. Reply here whenever it suits you."},
				{Type: ActionMakeCall, Delay: 120},
			},
		},
		{
			ID:      "hot-lead-call",
			Name:    "Call hot leads",
			Enabled: true,
			Trigger: Trigger{Type: TriggerStatusChange, Status: leads.StatusHot},
			Actions: []Action{
				{Type: ActionMakeCall},
				{Type: ActionSendEmail, Delay: 30},
			},
		},
		{
			ID:      "missing-docs",
			Name:    "Missing documents reminder",
			Enabled: true,
			Trigger: Trigger{Type: TriggerMissingDocs},
			Actions: []Action{
				{Type: ActionSendEmail, Template: "Hi {{.Name}}, we still need your bank statement to finish reviewing your application."},
				{Type: ActionSendSMS, Delay: 24 * 60, Template: "Hi {{.Name}}, a quick reminder to upload your remaining documents."},
			},
		},
		{
			ID:      "stale-lead",
			Name:    "Stale lead re-engagement",
			Enabled: false,
			Trigger: Trigger{Type: TriggerTimeBased, Days: 90},
			Actions: []Action{
				{Type: ActionSendEmail, Template: "Hi {{.Name}}, it's been a while. Are you still interested?"},
			},
		},
	}
}

var _ WorkflowSource = (*Registry)(nil)
