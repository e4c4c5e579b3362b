package temporalrunner

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/wolfman30/leadflow/internal/automation"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// workflowClient is the slice of client.Client the scheduler needs.
type workflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
}

// Scheduler implements automation.Scheduler by starting one Temporal
// workflow per step.
type Scheduler struct {
	client    workflowClient
	taskQueue string
	logger    *logging.Logger
}

func NewScheduler(c workflowClient, taskQueue string, logger *logging.Logger) *Scheduler {
	if c == nil {
		panic("temporalrunner: temporal client required")
	}
	if taskQueue == "" {
		panic("temporalrunner: task queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{client: c, taskQueue: taskQueue, logger: logger}
}

// WorkflowID is the Temporal workflow id for a step.
func WorkflowID(stepID string) string {
	return "automation-step-" + stepID
}

func (s *Scheduler) Schedule(ctx context.Context, step automation.Step) error {
	_, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(step.ID),
		TaskQueue: s.taskQueue,
	}, WorkflowName, step)
	if err != nil {
		return fmt.Errorf("temporalrunner: start step workflow: %w", err)
	}
	s.logger.WithLead(step.OrgID, step.LeadID).Debug("automation step scheduled on temporal",
		"step_id", step.ID, "run_id", step.RunID, "run_at", step.RunAt)
	return nil
}

// Cancel stops the step's timer. Steps that already ran are ignored.
func (s *Scheduler) Cancel(ctx context.Context, stepID string) error {
	err := s.client.CancelWorkflow(ctx, WorkflowID(stepID), "")
	var notFound *serviceerror.NotFound
	if err == nil || errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("temporalrunner: cancel step workflow: %w", err)
}

var _ automation.Scheduler = (*Scheduler)(nil)
