package automation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// claimTimeout is how long a claimed step may stay running before another
// worker may reclaim it.
const claimTimeout = 10 * time.Minute

// Scheduler persists delayed steps and fires them at RunAt.
type Scheduler interface {
	Schedule(ctx context.Context, step Step) error
	Cancel(ctx context.Context, stepID string) error
}

// StepStore is the durable queue behind StoreScheduler.
type StepStore interface {
	Save(ctx context.Context, step Step) error
	Get(ctx context.Context, id string) (Step, error)
	// ClaimDue marks up to limit due steps running and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Step, error)
	Complete(ctx context.Context, id string) error
	// Release puts a claimed step back to pending at runAt and counts the
	// failed attempt.
	Release(ctx context.Context, id string, runAt time.Time, lastErr string) error
	// Fail parks a step that will not be retried.
	Fail(ctx context.Context, id string, lastErr string) error
	// Cancel cancels a step that has not run; it reports false otherwise.
	Cancel(ctx context.Context, id string) (bool, error)
}

// StoreScheduler schedules steps into a StepStore drained by a StepRunner.
type StoreScheduler struct {
	store StepStore
}

func NewStoreScheduler(store StepStore) *StoreScheduler {
	if store == nil {
		panic("automation: step store required")
	}
	return &StoreScheduler{store: store}
}

func (s *StoreScheduler) Schedule(ctx context.Context, step Step) error {
	if step.Status == "" {
		step.Status = StepPending
	}
	return s.store.Save(ctx, step)
}

func (s *StoreScheduler) Cancel(ctx context.Context, stepID string) error {
	_, err := s.store.Cancel(ctx, stepID)
	return err
}

// MemoryStepStore keeps steps in process memory.
type MemoryStepStore struct {
	mu    sync.Mutex
	steps map[string]Step
	now   func() time.Time
}

func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{steps: make(map[string]Step), now: time.Now}
}

func (s *MemoryStepStore) Save(_ context.Context, step Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if existing, ok := s.steps[step.ID]; ok {
		step.CreatedAt = existing.CreatedAt
	} else if step.CreatedAt.IsZero() {
		step.CreatedAt = now
	}
	step.UpdatedAt = now
	s.steps[step.ID] = step
	return nil
}

func (s *MemoryStepStore) Get(_ context.Context, id string) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[id]
	if !ok {
		return Step{}, ErrStepNotFound
	}
	return step, nil
}

func (s *MemoryStepStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Step
	for _, step := range s.steps {
		switch {
		case step.Status == StepPending && !step.RunAt.After(now):
		case step.Status == StepRunning && !step.UpdatedAt.After(now.Add(-claimTimeout)):
		default:
			continue
		}
		due = append(due, step)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].Status = StepRunning
		due[i].UpdatedAt = now
		s.steps[due[i].ID] = due[i]
	}
	return due, nil
}

func (s *MemoryStepStore) Complete(_ context.Context, id string) error {
	return s.transition(id, func(step *Step) { step.Status = StepDone })
}

func (s *MemoryStepStore) Release(_ context.Context, id string, runAt time.Time, lastErr string) error {
	return s.transition(id, func(step *Step) {
		step.Status = StepPending
		step.RunAt = runAt
		step.Attempts++
		step.LastError = lastErr
	})
}

func (s *MemoryStepStore) Fail(_ context.Context, id string, lastErr string) error {
	return s.transition(id, func(step *Step) {
		step.Status = StepFailed
		step.LastError = lastErr
	})
}

func (s *MemoryStepStore) Cancel(_ context.Context, id string) (bool, error) {
	cancelled := false
	err := s.transition(id, func(step *Step) {
		if step.Status == StepPending {
			step.Status = StepCancelled
			cancelled = true
		}
	})
	return cancelled, err
}

// Pending returns the number of steps waiting to run.
func (s *MemoryStepStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, step := range s.steps {
		if step.Status == StepPending {
			n++
		}
	}
	return n
}

func (s *MemoryStepStore) transition(id string, fn func(*Step)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[id]
	if !ok {
		return ErrStepNotFound
	}
	fn(&step)
	step.UpdatedAt = s.now().UTC()
	s.steps[id] = step
	return nil
}

var (
	_ Scheduler = (*StoreScheduler)(nil)
	_ StepStore = (*MemoryStepStore)(nil)
)
