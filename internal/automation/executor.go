package automation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/leadflow/internal/events"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/lifecycle"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const (
	defaultMaxAttempts = 5
	defaultRetryBase   = time.Minute
	maxRetryDelay      = 24 * time.Hour
	defaultLockTTL     = 30 * time.Second
	lockRetryDelay     = 5 * time.Second

	// DeadReasonAutomation is recorded when a workflow sets a lead dead.
	DeadReasonAutomation = "automation"
)

var executorTracer = otel.Tracer("leadflow.internal.automation.executor")

// Executor runs workflow actions for leads. Delayed actions are persisted as
// steps through the Scheduler instead of blocking the caller.
type Executor struct {
	repo        leads.Repository
	workflows   WorkflowSource
	runs        RunStore
	scheduler   Scheduler
	locker      Locker
	dispatcher  Dispatcher
	observer    leads.Observer
	recorder    events.Recorder
	metrics     *metrics.AutomationMetrics
	logger      *logging.Logger
	now         func() time.Time
	maxAttempts int
	retryBase   time.Duration
	lockTTL     time.Duration
}

// ExecutorOption configures optional collaborators.
type ExecutorOption func(*Executor)

func WithScheduler(s Scheduler) ExecutorOption {
	return func(e *Executor) {
		if s != nil {
			e.scheduler = s
		}
	}
}

func WithLocker(l Locker) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.locker = l
		}
	}
}

func WithDispatcher(d Dispatcher) ExecutorOption {
	return func(e *Executor) {
		if d != nil {
			e.dispatcher = d
		}
	}
}

// WithObserver receives every activity the executor appends.
func WithObserver(o leads.Observer) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

func WithEventRecorder(r events.Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

func WithAutomationMetrics(m *metrics.AutomationMetrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRetryPolicy sets how many times a failing action is attempted and the
// base of its exponential backoff.
func WithRetryPolicy(maxAttempts int, base time.Duration) ExecutorOption {
	return func(e *Executor) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		if base > 0 {
			e.retryBase = base
		}
	}
}

func WithLockTTL(ttl time.Duration) ExecutorOption {
	return func(e *Executor) {
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// NewExecutor builds an executor. Without options it schedules into an
// in-memory step store, locks in process and simulates outcomes.
func NewExecutor(repo leads.Repository, workflows WorkflowSource, runs RunStore, logger *logging.Logger, opts ...ExecutorOption) *Executor {
	if repo == nil || workflows == nil || runs == nil {
		panic("automation: executor requires lead repository, workflows and run store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Executor{
		repo:        repo,
		workflows:   workflows,
		runs:        runs,
		scheduler:   NewStoreScheduler(NewMemoryStepStore()),
		locker:      NewLocalLocker(),
		dispatcher:  SimulatedDispatcher{},
		logger:      logger,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
		lockTTL:     defaultLockTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Workflows exposes the definitions the executor resolves runs against.
func (e *Executor) Workflows() WorkflowSource {
	return e.workflows
}

// Run loads a run record.
func (e *Executor) Run(ctx context.Context, runID string) (*Run, error) {
	return e.runs.Get(ctx, runID)
}

// RunsForLead lists a lead's runs, oldest first.
func (e *Executor) RunsForLead(ctx context.Context, orgID, leadID string) ([]*Run, error) {
	return e.runs.ListByLead(ctx, orgID, leadID)
}

// Start creates a run and executes actions until the first delay, which is
// handed to the scheduler.
func (e *Executor) Start(ctx context.Context, wf Workflow, lead *leads.Lead, event Event) (*Run, error) {
	if lead == nil {
		return nil, leads.ErrLeadNotFound
	}
	if lead.IsDead {
		return nil, ErrLeadInactive
	}
	now := e.now().UTC()
	run := &Run{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		OrgID:      lead.OrgID,
		LeadID:     lead.ID,
		Event:      event,
		Status:     RunRunning,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("automation: create run: %w", err)
	}
	e.metrics.ObserveRunStarted(wf.ID)
	e.logger.WithLead(lead.OrgID, lead.ID).Info("workflow run started", "run_id", run.ID, "workflow_id", wf.ID, "event", event)

	if err := e.advance(ctx, wf, run, 0, 0, false); err != nil {
		return e.recoverStart(ctx, wf, run, err)
	}
	return run, nil
}

// recoverStart hands a run whose first pass hit an infrastructure error to
// the scheduler so it resumes from its checkpoint. When even that fails the
// run is marked failed and no run is returned, letting the trigger fire again.
func (e *Executor) recoverStart(ctx context.Context, wf Workflow, run *Run, cause error) (*Run, error) {
	log := e.logger.WithLead(run.OrgID, run.LeadID)
	if !run.Status.IsFinal() {
		now := e.now().UTC()
		runAt := now.Add(retryDelay(e.retryBase, 0))
		if run.NextAction < len(wf.Actions) {
			// the failing action may be the one whose delay was being scheduled
			if at := now.Add(wf.Actions[run.NextAction].DelayDuration()); at.After(runAt) {
				runAt = at
			}
		}
		err := e.wait(ctx, run, run.NextAction, 0, runAt, cause.Error())
		if err == nil {
			log.Warn("workflow run start interrupted; resuming later", "run_id", run.ID, "action_index", run.NextAction, "run_at", runAt, "error", cause)
			return run, nil
		}
		log.Error("failed to park interrupted workflow run", "run_id", run.ID, "error", err)
		if ferr := e.finish(ctx, run, RunFailed, cause.Error()); ferr != nil {
			log.Error("failed to mark workflow run failed", "run_id", run.ID, "error", ferr)
		}
	}
	return nil, cause
}

// RunStep executes a due step and continues the run. Steps for finished runs
// or superseded steps are ignored. A returned error means the step should be
// retried by the caller; dispatch failures are rescheduled internally.
func (e *Executor) RunStep(ctx context.Context, step Step) error {
	ctx, span := executorTracer.Start(ctx, "automation.run_step", trace.WithAttributes(
		attribute.String("leadflow.run_id", step.RunID),
		attribute.String("leadflow.step_id", step.ID),
		attribute.Int("leadflow.action_index", step.ActionIndex),
	))
	defer span.End()

	log := e.logger.WithLead(step.OrgID, step.LeadID)
	run, err := e.runs.Get(ctx, step.RunID)
	if errors.Is(err, ErrRunNotFound) {
		log.Warn("automation step for unknown run", "run_id", step.RunID, "step_id", step.ID)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("automation: load run: %w", err)
	}
	if run.Status.IsFinal() || run.PendingStepID != step.ID {
		log.Debug("ignoring stale automation step", "run_id", run.ID, "step_id", step.ID, "run_status", run.Status)
		return nil
	}

	wf, err := e.workflows.Get(run.WorkflowID)
	if err != nil {
		return e.finish(ctx, run, RunFailed, err.Error())
	}
	if step.ActionIndex < len(wf.Actions) {
		lag := e.now().Sub(step.RunAt).Seconds()
		e.metrics.ObserveStepLag(string(wf.Actions[step.ActionIndex].Type), lag)
	}

	from, attempts, served := step.ActionIndex, step.Attempts, true
	if run.NextAction > from {
		// a previous attempt got further before failing
		from, attempts, served = run.NextAction, 0, false
	}
	if err := e.advance(ctx, wf, run, from, attempts, served); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// AbandonStep fails the run waiting on step after the runner gives up on it.
func (e *Executor) AbandonStep(ctx context.Context, step Step, cause string) error {
	run, err := e.runs.Get(ctx, step.RunID)
	if errors.Is(err, ErrRunNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("automation: load run: %w", err)
	}
	if run.Status.IsFinal() || run.PendingStepID != step.ID {
		return nil
	}
	return e.finish(ctx, run, RunFailed, cause)
}

// Cancel stops a run and its pending step. Finished runs are returned as is.
func (e *Executor) Cancel(ctx context.Context, runID string) (*Run, error) {
	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsFinal() {
		return run, nil
	}
	if run.PendingStepID != "" {
		if err := e.scheduler.Cancel(ctx, run.PendingStepID); err != nil {
			e.logger.Warn("failed to cancel pending step", "run_id", run.ID, "step_id", run.PendingStepID, "error", err)
		}
	}
	if err := e.finish(ctx, run, RunCancelled, ""); err != nil {
		return nil, err
	}
	return run, nil
}

// CancelLead cancels every open run for a lead and reports how many stopped.
func (e *Executor) CancelLead(ctx context.Context, orgID, leadID string) (int, error) {
	runs, err := e.runs.ListByLead(ctx, orgID, leadID)
	if err != nil {
		return 0, fmt.Errorf("automation: list runs: %w", err)
	}
	var (
		cancelled int
		errs      []error
	)
	for _, run := range runs {
		if run.Status.IsFinal() {
			continue
		}
		if _, err := e.Cancel(ctx, run.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		cancelled++
	}
	return cancelled, errors.Join(errs...)
}

// advance executes actions from index from. attempts applies to the first
// action only; served marks its delay as already elapsed.
func (e *Executor) advance(ctx context.Context, wf Workflow, run *Run, from, attempts int, served bool) error {
	ctx, span := executorTracer.Start(ctx, "automation.advance", trace.WithAttributes(
		attribute.String("leadflow.run_id", run.ID),
		attribute.String("leadflow.workflow_id", wf.ID),
		attribute.Int("leadflow.from_action", from),
	))
	defer span.End()

	var (
		unlock Unlock
		lead   *leads.Lead
	)
	defer func() {
		if unlock != nil {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn("failed to release lead lock", "run_id", run.ID, "error", err)
			}
		}
	}()

	for i := from; i < len(wf.Actions); i++ {
		action := wf.Actions[i]
		first := i == from
		if action.Delay > 0 && !(first && served) {
			return e.wait(ctx, run, i, 0, e.now().UTC().Add(action.DelayDuration()), "")
		}

		if unlock == nil {
			var err error
			unlock, err = e.locker.TryLock(ctx, LeadLockKey(run.OrgID, run.LeadID), e.lockTTL)
			if errors.Is(err, ErrLockNotAcquired) {
				unlock = nil
				attemptsSoFar := 0
				if first {
					attemptsSoFar = attempts
				}
				return e.wait(ctx, run, i, attemptsSoFar, e.now().UTC().Add(lockRetryDelay), "")
			}
			if err != nil {
				return err
			}
			lead, err = e.repo.GetByID(ctx, run.OrgID, run.LeadID)
			if errors.Is(err, leads.ErrLeadNotFound) {
				return e.finish(ctx, run, RunFailed, "lead not found")
			}
			if err != nil {
				return fmt.Errorf("automation: load lead: %w", err)
			}
		}

		if lead.IsDead {
			return e.finish(ctx, run, RunCancelled, "lead is dead")
		}

		actionAttempts := 0
		if first {
			actionAttempts = attempts
		}
		next, stop, err := e.execute(ctx, wf, run, lead, i, actionAttempts)
		if err != nil || stop {
			return err
		}
		if e.cancelledElsewhere(ctx, run) {
			return nil
		}
		lead = next
		run.NextAction = i + 1
		run.Status = RunRunning
		run.UpdatedAt = e.now().UTC()
		if err := e.runs.Update(ctx, run); err != nil {
			return fmt.Errorf("automation: checkpoint run: %w", err)
		}
	}
	return e.finish(ctx, run, RunCompleted, "")
}

// execute runs one action. stop is true when the run was rescheduled or
// finished and the caller must not continue.
func (e *Executor) execute(ctx context.Context, wf Workflow, run *Run, lead *leads.Lead, idx, attempts int) (*leads.Lead, bool, error) {
	action := wf.Actions[idx]
	ctx, span := executorTracer.Start(ctx, "automation.action", trace.WithAttributes(
		attribute.String("leadflow.action", string(action.Type)),
		attribute.Int("leadflow.attempt", attempts+1),
	))
	defer span.End()

	log := e.logger.WithLead(run.OrgID, run.LeadID)
	now := e.now().UTC()

	if action.Type == ActionUpdateStatus {
		return e.updateStatus(ctx, run, lead, leads.Status(action.Template), now)
	}

	activityType, ok := activityTypeFor(action.Type)
	if !ok {
		log.Warn("skipping unknown workflow action", "run_id", run.ID, "action", action.Type)
		return lead, false, nil
	}

	body, err := e.renderBody(wf, idx, lead)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveAction(string(action.Type), "failed")
		return lead, true, e.finish(ctx, run, RunFailed, err.Error())
	}

	outcome, err := e.dispatcher.Dispatch(ctx, lead, action, body)
	if err != nil {
		span.RecordError(err)
		if isPermanent(err) {
			e.metrics.ObserveAction(string(action.Type), "unavailable")
			log.Warn("workflow action skipped", "run_id", run.ID, "action", action.Type, "error", err)
			return lead, false, nil
		}
		if attempts+1 >= e.maxAttempts {
			e.metrics.ObserveAction(string(action.Type), "failed")
			log.Error("workflow action failed; giving up", "run_id", run.ID, "action", action.Type, "attempts", attempts+1, "error", err)
			return lead, true, e.finish(ctx, run, RunFailed, err.Error())
		}
		e.metrics.ObserveRetry()
		delay := retryDelay(e.retryBase, attempts)
		log.Warn("workflow action failed; retrying", "run_id", run.ID, "action", action.Type, "attempts", attempts+1, "retry_in", delay, "error", err)
		return lead, true, e.wait(ctx, run, idx, attempts+1, now.Add(delay), err.Error())
	}
	e.metrics.ObserveAction(string(action.Type), string(outcome))

	updated, err := e.appendActivity(ctx, run, leads.Activity{
		Type:          activityType,
		Channel:       action.ResolvedChannel(),
		Description:   describe(action.Type, wf.Name),
		Timestamp:     now,
		Outcome:       outcome,
		Notes:         body,
		WorkflowRunID: run.ID,
	})
	if err != nil {
		return nil, true, err
	}
	return updated, false, nil
}

func (e *Executor) updateStatus(ctx context.Context, run *Run, lead *leads.Lead, target leads.Status, now time.Time) (*leads.Lead, bool, error) {
	from := lead.Status
	if target == from {
		return lead, false, nil
	}
	if target == leads.StatusDead {
		lead.MarkDead(DeadReasonAutomation, now)
	} else {
		lead.SetStatus(target, now)
	}
	if err := e.repo.Update(ctx, lead); err != nil {
		return nil, true, fmt.Errorf("automation: update status: %w", err)
	}
	e.metrics.ObserveAction(string(ActionUpdateStatus), string(target))

	if target == leads.StatusDead {
		e.record(ctx, events.LeadMarkedDeadV1{OrgID: lead.OrgID, LeadID: lead.ID, Reason: DeadReasonAutomation, MarkedAt: now})
	} else {
		e.record(ctx, events.LeadStatusChangedV1{OrgID: lead.OrgID, LeadID: lead.ID, From: string(from), To: string(target), ChangedAt: now})
	}

	updated, err := e.appendActivity(ctx, run, leads.Activity{
		Type:          leads.ActivityStatusChange,
		Description:   fmt.Sprintf("Status changed from %s to %s", from, target),
		Timestamp:     now,
		Notes:         lead.DeadReason,
		WorkflowRunID: run.ID,
	})
	if err != nil {
		return nil, true, err
	}
	return updated, false, nil
}

func (e *Executor) appendActivity(ctx context.Context, run *Run, a leads.Activity) (*leads.Lead, error) {
	updated, stored, err := e.repo.AppendActivity(ctx, run.OrgID, run.LeadID, a)
	if err != nil {
		return nil, fmt.Errorf("automation: append activity: %w", err)
	}
	run.ActivityIDs = append(run.ActivityIDs, stored.ID)

	if e.observer == nil {
		e.record(ctx, events.ActivityRecordedV1{
			OrgID: run.OrgID, LeadID: run.LeadID, ActivityID: stored.ID, Type: string(stored.Type),
			Channel: string(stored.Channel), Outcome: string(stored.Outcome), WorkflowRunID: run.ID, OccurredAt: stored.Timestamp,
		})
		return updated, nil
	}
	observed, err := e.observer.ActivityRecorded(ctx, updated, stored)
	if err != nil {
		e.logger.WithLead(run.OrgID, run.LeadID).Error("activity observer failed", "run_id", run.ID, "error", err)
		return updated, nil
	}
	if observed != nil {
		return observed, nil
	}
	return updated, nil
}

func (e *Executor) renderBody(wf Workflow, idx int, lead *leads.Lead) (string, error) {
	action := wf.Actions[idx]
	if action.Template == "" {
		return lifecycle.FollowUpMessage(lead, action.ResolvedChannel()), nil
	}
	body, err := lifecycle.RenderForLead(wf.ID+"#"+strconv.Itoa(idx), action.Template, lead)
	if err != nil {
		return "", fmt.Errorf("automation: render %s action %d: %w", wf.ID, idx, err)
	}
	return body, nil
}

// wait persists a step for action idx at runAt and parks the run.
func (e *Executor) wait(ctx context.Context, run *Run, idx, attempts int, runAt time.Time, lastErr string) error {
	now := e.now().UTC()
	step := Step{
		ID:          uuid.NewString(),
		RunID:       run.ID,
		WorkflowID:  run.WorkflowID,
		OrgID:       run.OrgID,
		LeadID:      run.LeadID,
		ActionIndex: idx,
		RunAt:       runAt,
		Attempts:    attempts,
		Status:      StepPending,
		LastError:   lastErr,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.scheduler.Schedule(ctx, step); err != nil {
		return fmt.Errorf("automation: schedule step: %w", err)
	}
	run.Status = RunWaiting
	run.NextAction = idx
	run.PendingStepID = step.ID
	run.Error = lastErr
	run.UpdatedAt = now
	if err := e.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("automation: park run: %w", err)
	}
	e.logger.WithLead(run.OrgID, run.LeadID).Info("workflow run waiting", "run_id", run.ID, "step_id", step.ID, "action_index", idx, "run_at", runAt)
	return nil
}

func (e *Executor) finish(ctx context.Context, run *Run, status RunStatus, msg string) error {
	now := e.now().UTC()
	run.Status = status
	run.PendingStepID = ""
	run.Error = msg
	run.UpdatedAt = now
	run.FinishedAt = &now
	if err := e.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("automation: finish run: %w", err)
	}
	e.metrics.ObserveRunFinished(run.WorkflowID, string(status))
	e.record(ctx, events.AutomationRunFinishedV1{
		OrgID: run.OrgID, LeadID: run.LeadID, RunID: run.ID, WorkflowID: run.WorkflowID, Status: string(status), FinishedAt: now,
	})
	e.logger.WithLead(run.OrgID, run.LeadID).Info("workflow run finished", "run_id", run.ID, "workflow_id", run.WorkflowID, "status", status, "reason", msg)
	return nil
}

// cancelledElsewhere reports a cancel that landed while an action ran, for
// example an observer marking the lead dead. The stored state is copied
// into run.
func (e *Executor) cancelledElsewhere(ctx context.Context, run *Run) bool {
	stored, err := e.runs.Get(ctx, run.ID)
	if err != nil || stored.Status != RunCancelled {
		return false
	}
	*run = *stored
	return true
}

func (e *Executor) record(ctx context.Context, evt events.LeadEvent) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, evt); err != nil {
		orgID, leadID := evt.Lead()
		e.logger.Error("failed to record automation event", "error", err, "type", evt.EventType(), "org_id", orgID, "lead_id", leadID)
	}
}

// retryDelay is base * 2^attempts, capped at a day.
func retryDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = defaultRetryBase
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

func activityTypeFor(t ActionType) (leads.ActivityType, bool) {
	switch t {
	case ActionSendEmail:
		return leads.ActivityEmail, true
	case ActionSendSMS:
		return leads.ActivitySMS, true
	case ActionMakeCall:
		return leads.ActivityCall, true
	case ActionSendWhatsApp:
		return leads.ActivityWhatsApp, true
	case ActionSendTelegram:
		return leads.ActivityTelegram, true
	}
	return "", false
}

func describe(t ActionType, workflowName string) string {
	var what string
	switch t {
	case ActionSendEmail:
		what = "Automated email sent"
	case ActionSendSMS:
		what = "Automated SMS sent"
	case ActionMakeCall:
		what = "Automated call placed"
	case ActionSendWhatsApp:
		what = "Automated WhatsApp message sent"
	case ActionSendTelegram:
		what = "Automated Telegram message sent"
	default:
		what = "Automated action"
	}
	if workflowName == "" {
		return what
	}
	return what + " (" + workflowName + ")"
}

var (
	_ StepExecutor           = (*Executor)(nil)
	_ lifecycle.RunCanceller = (*Executor)(nil)
)
