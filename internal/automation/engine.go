package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Ledger remembers which (scope, key) pairs were already handled.
// events.ProcessedStore and events.MemoryProcessedStore implement it.
type Ledger interface {
	MarkProcessed(ctx context.Context, scope, key string) (bool, error)
}

// forgetter is implemented by ledgers that can release a mark, letting a
// trigger whose run never started fire again on the next event.
type forgetter interface {
	Forget(ctx context.Context, scope, key string) error
}

// Starter begins a workflow run.
type Starter interface {
	Start(ctx context.Context, wf Workflow, lead *leads.Lead, event Event) (*Run, error)
}

// Engine evaluates every workflow against a lead event and starts those
// whose trigger matches, at most once per lead (per status for
// status_change triggers).
type Engine struct {
	workflows WorkflowSource
	starter   Starter
	ledger    Ledger
	metrics   *metrics.AutomationMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewEngine(workflows WorkflowSource, starter Starter, ledger Ledger, m *metrics.AutomationMetrics, logger *logging.Logger) *Engine {
	if workflows == nil || starter == nil || ledger == nil {
		panic("automation: engine requires workflows, starter and ledger")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{workflows: workflows, starter: starter, ledger: ledger, metrics: m, logger: logger, now: time.Now}
}

// HandleEvent starts the workflows triggered by event and returns the new
// runs. Errors from individual workflows are joined; the others still run.
func (e *Engine) HandleEvent(ctx context.Context, lead *leads.Lead, event Event) ([]*Run, error) {
	if lead == nil || lead.IsDead {
		return nil, nil
	}
	now := e.now().UTC()
	log := e.logger.WithLead(lead.OrgID, lead.ID)

	var (
		started []*Run
		errs    []error
	)
	for _, wf := range e.workflows.List() {
		if !ShouldTrigger(wf, lead, event, now) {
			continue
		}
		scope, key := triggerScope(wf), triggerKey(wf, lead)
		fresh, err := e.ledger.MarkProcessed(ctx, scope, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("automation: mark trigger %s: %w", wf.ID, err))
			continue
		}
		if !fresh {
			e.metrics.ObserveTrigger(wf.ID, "duplicate")
			continue
		}
		e.metrics.ObserveTrigger(wf.ID, "fired")

		run, err := e.starter.Start(ctx, wf, lead, event)
		if run != nil {
			started = append(started, run)
		}
		if err != nil {
			log.Error("failed to start workflow", "workflow_id", wf.ID, "event", event, "error", err)
			errs = append(errs, fmt.Errorf("automation: start %s: %w", wf.ID, err))
			if run == nil {
				e.release(ctx, scope, key)
			}
			continue
		}
	}
	return started, errors.Join(errs...)
}

func (e *Engine) release(ctx context.Context, scope, key string) {
	f, ok := e.ledger.(forgetter)
	if !ok {
		return
	}
	if err := f.Forget(ctx, scope, key); err != nil {
		e.logger.Warn("failed to release trigger mark", "scope", scope, "key", key, "error", err)
	}
}

func triggerScope(wf Workflow) string {
	return "workflow:" + wf.ID
}

func triggerKey(wf Workflow, lead *leads.Lead) string {
	key := lead.OrgID + ":" + lead.ID
	if wf.Trigger.Type == TriggerStatusChange {
		key += ":" + string(lead.Status)
	}
	return key
}
