// Package temporalrunner runs delayed automation steps as Temporal workflows:
// one workflow per step sleeps until the step is due, then executes it as an
// activity with Temporal's retry policy.
package temporalrunner

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/wolfman30/leadflow/internal/automation"
)

const (
	WorkflowName = "automationStepWorkflow"
	ActivityName = "RunAutomationStep"
)

var stepActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 2 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    5 * time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    5 * time.Minute,
		MaximumAttempts:    10,
	},
}

// StepWorkflow waits for step.RunAt on a durable timer and runs the step.
func StepWorkflow(ctx workflow.Context, step automation.Step) error {
	logger := workflow.GetLogger(ctx)
	if wait := step.RunAt.Sub(workflow.Now(ctx)); wait > 0 {
		if err := workflow.Sleep(ctx, wait); err != nil {
			logger.Info("automation step timer cancelled", "step_id", step.ID)
			return err
		}
	}
	ctx = workflow.WithActivityOptions(ctx, stepActivityOptions)
	return workflow.ExecuteActivity(ctx, ActivityName, step).Get(ctx, nil)
}

// Activities adapts an automation.StepExecutor to a Temporal activity.
type Activities struct {
	executor automation.StepExecutor
}

func NewActivities(executor automation.StepExecutor) *Activities {
	if executor == nil {
		panic("temporalrunner: step executor required")
	}
	return &Activities{executor: executor}
}

// RunAutomationStep executes one due step. Errors are retried by Temporal.
func (a *Activities) RunAutomationStep(ctx context.Context, step automation.Step) error {
	return a.executor.RunStep(ctx, step)
}

// Register adds the step workflow and activity to a worker.
func Register(r worker.Registry, executor automation.StepExecutor) {
	r.RegisterWorkflowWithOptions(StepWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(NewActivities(executor).RunAutomationStep, activity.RegisterOptions{Name: ActivityName})
}
