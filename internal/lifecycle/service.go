package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/leadflow/internal/events"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// DeadReasonInactive is recorded on leads that aged out without contact.
const DeadReasonInactive = "inactive"

// RunCanceller stops pending automation for a lead.
type RunCanceller interface {
	CancelLead(ctx context.Context, orgID, leadID string) (int, error)
}

// Service applies lifecycle rules to stored leads.
type Service struct {
	repo      leads.Repository
	policy    Policy
	canceller RunCanceller
	recorder  events.Recorder
	metrics   *metrics.LifecycleMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

func WithRunCanceller(c RunCanceller) ServiceOption {
	return func(s *Service) { s.canceller = c }
}

func WithRecorder(r events.Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

func WithMetrics(m *metrics.LifecycleMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a lifecycle service.
func NewService(repo leads.Repository, policy Policy, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("lifecycle: lead repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:   repo,
		policy: policy.normalized(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SetRunCanceller attaches the automation executor after construction, since
// the executor itself depends on the lead repository.
func (s *Service) SetRunCanceller(c RunCanceller) {
	s.canceller = c
}

// Policy returns the active thresholds.
func (s *Service) Policy() Policy {
	return s.policy
}

// Evaluate loads a lead and evaluates it without persisting anything.
func (s *Service) Evaluate(ctx context.Context, orgID, leadID string) (*leads.Lead, Evaluation, error) {
	lead, err := s.repo.GetByID(ctx, orgID, leadID)
	if err != nil {
		return nil, Evaluation{}, err
	}
	return lead, s.policy.Evaluate(lead, s.now().UTC()), nil
}

// ApplyByID loads and applies lifecycle rules to one lead.
func (s *Service) ApplyByID(ctx context.Context, orgID, leadID, source string) (*leads.Lead, Evaluation, error) {
	lead, err := s.repo.GetByID(ctx, orgID, leadID)
	if err != nil {
		return nil, Evaluation{}, err
	}
	return s.Apply(ctx, lead, source)
}

// Apply evaluates the lead and persists the result: a dead mark, a one-step
// status advance, and a refreshed follow-up date.
func (s *Service) Apply(ctx context.Context, lead *leads.Lead, source string) (*leads.Lead, Evaluation, error) {
	now := s.now().UTC()
	eval := s.policy.Evaluate(lead, now)
	s.metrics.ObserveEvaluation(source)
	log := s.logger.WithLead(lead.OrgID, lead.ID)

	switch {
	case eval.ShouldMarkDead:
		from := lead.Status
		lead.MarkDead(DeadReasonInactive, now)
		updated, err := s.persistTransition(ctx, lead, from, now)
		if err != nil {
			return nil, eval, err
		}
		if s.canceller != nil {
			if n, err := s.canceller.CancelLead(ctx, lead.OrgID, lead.ID); err != nil {
				log.Error("failed to cancel automation for dead lead", "error", err)
			} else if n > 0 {
				log.Info("cancelled automation runs for dead lead", "runs", n)
			}
		}
		s.record(ctx, events.LeadMarkedDeadV1{OrgID: lead.OrgID, LeadID: lead.ID, Reason: DeadReasonInactive, MarkedAt: now})
		s.metrics.ObserveMarkedDead()
		log.Info("lead marked dead", "reason", DeadReasonInactive, "previous_status", from)
		return updated, eval, nil

	case eval.NextStatus != lead.Status:
		from := lead.Status
		lead.SetStatus(eval.NextStatus, now)
		lead.NextFollowUpAt = eval.NextFollowUpAt
		updated, err := s.persistTransition(ctx, lead, from, now)
		if err != nil {
			return nil, eval, err
		}
		log.Info("lead status advanced", "from", from, "to", lead.Status, "source", source)
		return updated, eval, nil
	}

	if !sameTime(lead.NextFollowUpAt, eval.NextFollowUpAt) {
		lead.NextFollowUpAt = eval.NextFollowUpAt
		lead.UpdatedAt = now
		if err := s.repo.Update(ctx, lead); err != nil {
			return nil, eval, fmt.Errorf("lifecycle: update follow-up: %w", err)
		}
	}
	return lead, eval, nil
}

func (s *Service) persistTransition(ctx context.Context, lead *leads.Lead, from leads.Status, now time.Time) (*leads.Lead, error) {
	if err := s.repo.Update(ctx, lead); err != nil {
		return nil, fmt.Errorf("lifecycle: update status: %w", err)
	}
	desc := fmt.Sprintf("Status changed from %s to %s", from, lead.Status)
	updated, activity, err := s.repo.AppendActivity(ctx, lead.OrgID, lead.ID, leads.Activity{
		Type:        leads.ActivityStatusChange,
		Description: desc,
		Timestamp:   now,
		Notes:       lead.DeadReason,
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: record status change: %w", err)
	}
	s.record(ctx, events.ActivityRecordedV1{
		OrgID: lead.OrgID, LeadID: lead.ID, ActivityID: activity.ID, Type: string(activity.Type), OccurredAt: activity.Timestamp,
	})
	if lead.Status != leads.StatusDead {
		s.record(ctx, events.LeadStatusChangedV1{OrgID: lead.OrgID, LeadID: lead.ID, From: string(from), To: string(lead.Status), ChangedAt: now})
	}
	s.metrics.ObserveTransition(string(from), string(lead.Status))
	return updated, nil
}

func (s *Service) record(ctx context.Context, evt events.LeadEvent) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, evt); err != nil {
		orgID, leadID := evt.Lead()
		s.logger.Error("failed to record lead event", "error", err, "type", evt.EventType(), "org_id", orgID, "lead_id", leadID)
	}
}

// LeadCreated publishes the creation event and schedules the first follow-up.
func (s *Service) LeadCreated(ctx context.Context, lead *leads.Lead) (*leads.Lead, error) {
	s.record(ctx, events.LeadCreatedV1{OrgID: lead.OrgID, LeadID: lead.ID, Source: lead.Source, CreatedAt: lead.CreatedAt})
	updated, _, err := s.Apply(ctx, lead, "lead_created")
	return updated, err
}

// ActivityRecorded publishes the activity and re-evaluates the lead.
func (s *Service) ActivityRecorded(ctx context.Context, lead *leads.Lead, a leads.Activity) (*leads.Lead, error) {
	s.record(ctx, events.ActivityRecordedV1{
		OrgID:         lead.OrgID,
		LeadID:        lead.ID,
		ActivityID:    a.ID,
		Type:          string(a.Type),
		Channel:       string(a.Channel),
		Outcome:       string(a.Outcome),
		WorkflowRunID: a.WorkflowRunID,
		OccurredAt:    a.Timestamp,
	})
	if lead.IsDead {
		return lead, nil
	}
	updated, _, err := s.Apply(ctx, lead, "activity")
	return updated, err
}

// DocumentUpdated publishes the document change and re-evaluates the lead.
func (s *Service) DocumentUpdated(ctx context.Context, lead *leads.Lead, doc leads.Document) (*leads.Lead, error) {
	s.record(ctx, events.DocumentUpdatedV1{
		OrgID:      lead.OrgID,
		LeadID:     lead.ID,
		DocumentID: doc.ID,
		Type:       string(doc.Type),
		Status:     string(doc.Status),
		UpdatedAt:  s.now().UTC(),
	})
	if lead.IsDead {
		return lead, nil
	}
	updated, _, err := s.Apply(ctx, lead, "document")
	return updated, err
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

var _ leads.Observer = (*Service)(nil)
