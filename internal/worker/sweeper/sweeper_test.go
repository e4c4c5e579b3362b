package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/leadflow/internal/automation"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/lifecycle"
)

const day = 24 * time.Hour

var baseTime = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type recordingEngine struct {
	leads []string
	err   error
}

func (e *recordingEngine) HandleEvent(_ context.Context, lead *leads.Lead, event automation.Event) ([]*automation.Run, error) {
	if event != automation.EventTick {
		return nil, errors.New("unexpected event " + string(event))
	}
	e.leads = append(e.leads, lead.ID)
	if e.err != nil {
		return nil, e.err
	}
	return []*automation.Run{{ID: "run-" + lead.ID}}, nil
}

type failingSource struct{}

func (failingSource) ListActive(context.Context, string, int) ([]*leads.Lead, error) {
	return nil, errors.New("db down")
}

func seed(t *testing.T, repo *leads.InMemoryRepository, createdAt time.Time) *leads.Lead {
	t.Helper()
	lead, err := repo.WithClock(func() time.Time { return createdAt }).
		Create(context.Background(), &leads.CreateLeadRequest{OrgID: "org-1", Name: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)
	return lead
}

func newSweeper(repo *leads.InMemoryRepository, engine *recordingEngine, now time.Time) *Sweeper {
	svc := lifecycle.NewService(repo, lifecycle.DefaultPolicy(), nil, lifecycle.WithClock(func() time.Time { return now }))
	return New(repo, svc, engine, nil).WithBatchSize(2)
}

func TestRunOnceMarksInactiveLeadsDeadAndTicksTheRest(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	now := baseTime.Add(200 * day)
	stale := seed(t, repo, baseTime)
	fresh := []*leads.Lead{seed(t, repo, now.Add(-day)), seed(t, repo, now.Add(-2*day))}
	engine := &recordingEngine{}

	res, err := newSweeper(repo, engine, now).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 3, MarkedDead: 1, RunsStarted: 2}, res)
	assert.ElementsMatch(t, []string{fresh[0].ID, fresh[1].ID}, engine.leads)

	stored, err := repo.GetByID(context.Background(), "org-1", stale.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDead)
	assert.Equal(t, leads.StatusDead, stored.Status)

	active, err := repo.ListActive(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRunOnceCountsEngineFailures(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	seed(t, repo, baseTime)
	engine := &recordingEngine{err: errors.New("lock busy")}

	res, err := newSweeper(repo, engine, baseTime.Add(day)).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Failed)
}

func TestRunOnceWithoutEngine(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	lead := seed(t, repo, baseTime)
	svc := lifecycle.NewService(repo, lifecycle.DefaultPolicy(), nil, lifecycle.WithClock(func() time.Time { return baseTime.Add(day) }))

	res, err := New(repo, svc, nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 1}, res)

	stored, err := repo.GetByID(context.Background(), "org-1", lead.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.NextFollowUpAt)
}

func TestRunOnceListFailure(t *testing.T) {
	svc := lifecycle.NewService(leads.NewInMemoryRepository(), lifecycle.DefaultPolicy(), nil)
	_, err := New(failingSource{}, svc, nil, nil).RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newSweeper(repo, &recordingEngine{}, baseTime).WithInterval(time.Millisecond).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNewPanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil, nil, nil) })
}
