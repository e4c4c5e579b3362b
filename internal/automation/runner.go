package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/leadflow/pkg/logging"
)

// StepExecutor runs one due step.
type StepExecutor interface {
	RunStep(ctx context.Context, step Step) error
}

// stepAbandoner is told about steps the runner stops retrying.
type stepAbandoner interface {
	AbandonStep(ctx context.Context, step Step, cause string) error
}

// StepRunner polls a StepStore and executes due steps.
type StepRunner struct {
	store       StepStore
	executor    StepExecutor
	logger      *logging.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
	retryBase   time.Duration
	now         func() time.Time
}

func NewStepRunner(store StepStore, executor StepExecutor, logger *logging.Logger) *StepRunner {
	if store == nil || executor == nil {
		panic("automation: step runner requires store and executor")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StepRunner{
		store:       store,
		executor:    executor,
		logger:      logger,
		interval:    5 * time.Second,
		batchSize:   25,
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
		now:         time.Now,
	}
}

func (r *StepRunner) WithInterval(d time.Duration) *StepRunner {
	if d > 0 {
		r.interval = d
	}
	return r
}

func (r *StepRunner) WithBatchSize(n int) *StepRunner {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

// WithRetryPolicy bounds how often a failing step is retried and how long
// the first retry waits.
func (r *StepRunner) WithRetryPolicy(maxAttempts int, base time.Duration) *StepRunner {
	if maxAttempts > 0 {
		r.maxAttempts = maxAttempts
	}
	if base > 0 {
		r.retryBase = base
	}
	return r
}

// Start blocks, draining due steps every interval until ctx is done.
func (r *StepRunner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("automation step runner started", "interval", r.interval, "batch_size", r.batchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("automation step runner stopped")
			return
		case <-ticker.C:
			if _, err := r.ProcessDue(ctx); err != nil {
				r.logger.Error("automation step runner: drain failed", "error", err)
			}
		}
	}
}

// ProcessDue claims and runs one batch of due steps, returning how many
// completed. Steps whose execution errors are released with exponential
// backoff; once maxAttempts is reached the step is failed and its run
// abandoned.
func (r *StepRunner) ProcessDue(ctx context.Context) (int, error) {
	now := r.now().UTC()
	steps, err := r.store.ClaimDue(ctx, now, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("automation: claim due steps: %w", err)
	}

	processed := 0
	for _, step := range steps {
		if err := r.executor.RunStep(ctx, step); err != nil {
			r.retry(ctx, step, now, err)
			continue
		}
		if err := r.store.Complete(ctx, step.ID); err != nil {
			r.logger.Error("automation step complete failed", "step_id", step.ID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (r *StepRunner) retry(ctx context.Context, step Step, now time.Time, cause error) {
	log := r.logger.WithLead(step.OrgID, step.LeadID)
	if step.Attempts+1 >= r.maxAttempts {
		log.Error("automation step failed; giving up", "step_id", step.ID, "run_id", step.RunID, "attempts", step.Attempts+1, "error", cause)
		if err := r.store.Fail(ctx, step.ID, cause.Error()); err != nil {
			log.Error("automation step fail failed", "step_id", step.ID, "error", err)
		}
		if ab, ok := r.executor.(stepAbandoner); ok {
			if err := ab.AbandonStep(ctx, step, cause.Error()); err != nil {
				log.Error("automation run abandon failed", "run_id", step.RunID, "error", err)
			}
		}
		return
	}

	delay := retryDelay(r.retryBase, step.Attempts)
	log.Warn("automation step failed; releasing", "step_id", step.ID, "run_id", step.RunID, "attempts", step.Attempts+1, "retry_in", delay, "error", cause)
	if err := r.store.Release(ctx, step.ID, now.Add(delay), cause.Error()); err != nil {
		log.Error("automation step release failed", "step_id", step.ID, "error", err)
	}
}
