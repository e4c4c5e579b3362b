package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/leadflow/internal/events"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/pkg/logging"
)

type fakeCanceller struct {
	calls []string
	err   error
}

func (f *fakeCanceller) CancelLead(_ context.Context, orgID, leadID string) (int, error) {
	f.calls = append(f.calls, orgID+"/"+leadID)
	return 2, f.err
}

type captureRecorder struct {
	types []string
}

func (c *captureRecorder) Record(_ context.Context, evt events.LeadEvent, _ ...events.EnvelopeOption) error {
	c.types = append(c.types, evt.EventType())
	return nil
}

type serviceFixture struct {
	repo      *leads.InMemoryRepository
	svc       *Service
	canceller *fakeCanceller
	recorder  *captureRecorder
	now       time.Time
}

func newServiceFixture(t *testing.T, now time.Time) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:      leads.NewInMemoryRepository(),
		canceller: &fakeCanceller{},
		recorder:  &captureRecorder{},
		now:       now,
	}
	f.svc = NewService(f.repo, DefaultPolicy(), logging.Default(),
		WithRunCanceller(f.canceller),
		WithRecorder(f.recorder),
		WithMetrics(metrics.NewLifecycleMetrics(prometheus.NewRegistry())),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *serviceFixture) createLead(t *testing.T, createdAt time.Time) *leads.Lead {
	t.Helper()
	lead, err := f.repo.WithClock(func() time.Time { return createdAt }).
		Create(context.Background(), &leads.CreateLeadRequest{OrgID: "org-1", Name: "Jane", Email: "jane@example.com", Phone: "+15550001111"})
	require.NoError(t, err)
	return lead
}

func TestServiceApplyMarksDeadAndCancelsRuns(t *testing.T) {
	f := newServiceFixture(t, baseTime.Add(200*day))
	lead := f.createLead(t, baseTime)

	updated, eval, err := f.svc.Apply(context.Background(), lead, "sweeper")
	require.NoError(t, err)
	assert.True(t, eval.ShouldMarkDead)
	assert.True(t, updated.IsDead)
	assert.Equal(t, leads.StatusDead, updated.Status)
	assert.Equal(t, DeadReasonInactive, updated.DeadReason)
	assert.Equal(t, []string{"org-1/" + lead.ID}, f.canceller.calls)
	assert.Contains(t, f.recorder.types, events.TypeLeadMarkedDead)
	assert.NotContains(t, f.recorder.types, events.TypeLeadStatusChanged)

	require.Len(t, updated.Activities, 1)
	assert.Equal(t, leads.ActivityStatusChange, updated.Activities[0].Type)
	assert.Equal(t, 0, updated.ContactAttempts)
}

func TestServiceApplyCancelErrorIsNotFatal(t *testing.T) {
	f := newServiceFixture(t, baseTime.Add(200*day))
	f.canceller.err = errors.New("redis down")
	lead := f.createLead(t, baseTime)

	updated, _, err := f.svc.Apply(context.Background(), lead, "sweeper")
	require.NoError(t, err)
	assert.True(t, updated.IsDead)
}

func TestServiceApplyAdvancesStatus(t *testing.T) {
	f := newServiceFixture(t, baseTime.Add(2*day))
	lead := f.createLead(t, baseTime)
	lead, _, err := f.repo.AppendActivity(context.Background(), "org-1", lead.ID, leads.Activity{
		Type: leads.ActivityEmail, Channel: leads.ChannelEmail, Description: "intro", Outcome: leads.OutcomeDelivered, Timestamp: baseTime.Add(day),
	})
	require.NoError(t, err)

	updated, eval, err := f.svc.Apply(context.Background(), lead, "activity")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusContacted, eval.NextStatus)
	assert.Equal(t, leads.StatusContacted, updated.Status)
	require.NotNil(t, updated.NextFollowUpAt)
	assert.Equal(t, f.now.Add(2*day), *updated.NextFollowUpAt)
	assert.Equal(t, []string{events.TypeActivityRecorded, events.TypeLeadStatusChanged}, f.recorder.types)

	stored, err := f.repo.GetByID(context.Background(), "org-1", lead.ID)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusContacted, stored.Status)
	require.Len(t, stored.Activities, 2)
	assert.Equal(t, "Status changed from new to contacted", stored.Activities[1].Description)
}

func TestServiceApplyRefreshesFollowUpOnly(t *testing.T) {
	f := newServiceFixture(t, baseTime.Add(day))
	lead := f.createLead(t, baseTime)

	updated, eval, err := f.svc.Apply(context.Background(), lead, "api")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusNew, eval.NextStatus)
	require.NotNil(t, updated.NextFollowUpAt)
	assert.Equal(t, f.now, *updated.NextFollowUpAt)
	assert.Empty(t, f.recorder.types)
	assert.Empty(t, updated.Activities)
}

func TestServiceObserverHooks(t *testing.T) {
	f := newServiceFixture(t, baseTime.Add(day))
	lead := f.createLead(t, baseTime)

	created, err := f.svc.LeadCreated(context.Background(), lead)
	require.NoError(t, err)
	require.NotNil(t, created.NextFollowUpAt)
	assert.Equal(t, []string{events.TypeLeadCreated}, f.recorder.types)

	f.recorder.types = nil
	withActivity, activity, err := f.repo.AppendActivity(context.Background(), "org-1", lead.ID, leads.Activity{
		Type: leads.ActivitySMS, Channel: leads.ChannelSMS, Description: "hello", Outcome: leads.OutcomeDelivered,
	})
	require.NoError(t, err)
	updated, err := f.svc.ActivityRecorded(context.Background(), withActivity, activity)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusContacted, updated.Status)
	assert.Equal(t, events.TypeActivityRecorded, f.recorder.types[0])

	f.recorder.types = nil
	doc := leads.Document{ID: "d1", Type: leads.DocumentApplication, Status: leads.DocumentReceived}
	withDoc, err := f.repo.UpsertDocument(context.Background(), "org-1", lead.ID, doc)
	require.NoError(t, err)
	_, err = f.svc.DocumentUpdated(context.Background(), withDoc, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{events.TypeDocumentUpdated}, f.recorder.types)
}

func TestServiceApplyOnStaleSnapshotKeepsNewerWrites(t *testing.T) {
	f := newServiceFixture(t, baseTime.Add(day))
	lead := f.createLead(t, baseTime)
	ctx := context.Background()

	page, err := f.repo.ListActive(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	snapshot := page[0]

	doc := leads.Document{ID: "d1", Type: leads.DocumentBankStatement, Status: leads.DocumentVerified, UploadedAt: baseTime}
	_, err = f.repo.UpsertDocument(ctx, "org-1", lead.ID, doc)
	require.NoError(t, err)
	_, _, err = f.repo.AppendActivity(ctx, "org-1", lead.ID, leads.Activity{
		Type: leads.ActivitySMS, Channel: leads.ChannelSMS, Description: "hello", Outcome: leads.OutcomeDelivered, Timestamp: baseTime,
	})
	require.NoError(t, err)

	_, _, err = f.svc.Apply(ctx, snapshot, "sweeper")
	require.NoError(t, err)

	stored, err := f.repo.GetByID(ctx, "org-1", lead.ID)
	require.NoError(t, err)
	require.Len(t, stored.Documents, 1, "uploaded document must survive a sweep over an older snapshot")
	assert.Equal(t, leads.DocumentVerified, stored.Documents[0].Status)
	assert.Equal(t, 1, stored.ContactAttempts)
	require.NotNil(t, stored.NextFollowUpAt)
}

func TestServiceEvaluateNotFound(t *testing.T) {
	f := newServiceFixture(t, baseTime)
	_, _, err := f.svc.Evaluate(context.Background(), "org-1", "missing")
	assert.ErrorIs(t, err, leads.ErrLeadNotFound)
}
