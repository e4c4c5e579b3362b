package leads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, orgID, id string) (*Lead, error)
	ListByOrg(ctx context.Context, orgID string, filter ListLeadsFilter) ([]*Lead, error)
	// ListActive pages through non-terminal leads across all orgs ordered by
	// ID. Pass the last ID of the previous page as afterID.
	ListActive(ctx context.Context, afterID string, limit int) ([]*Lead, error)
	// Update persists the lifecycle fields: status, the dead flag and reason,
	// the next follow-up date and updated_at. Documents, channels and contact
	// counters are written only by UpsertDocument and AppendActivity, so a
	// stale snapshot cannot revert them.
	Update(ctx context.Context, lead *Lead) error
	AppendActivity(ctx context.Context, orgID, leadID string, a Activity) (*Lead, Activity, error)
	UpsertDocument(ctx context.Context, orgID, leadID string, doc Document) (*Lead, error)
}

// ListLeadsFilter narrows ListByOrg results.
type ListLeadsFilter struct {
	Status Status
	Limit  int
	Offset int
}

func (f ListLeadsFilter) normalized() ListLeadsFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// InMemoryRepository keeps leads in process memory. Used for local runs and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   time.Now,
	}
}

// WithClock overrides the clock used for creation and activity timestamps.
func (r *InMemoryRepository) WithClock(now func() time.Time) *InMemoryRepository {
	if now != nil {
		r.mu.Lock()
		r.now = now
		r.mu.Unlock()
	}
	return r
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lead := NewLead(req, r.now())

	r.mu.Lock()
	r.leads[lead.ID] = lead.Clone()
	r.mu.Unlock()

	return lead, nil
}

// GetByID retrieves a lead by ID within an org.
func (r *InMemoryRepository) GetByID(ctx context.Context, orgID, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok || lead.OrgID != orgID {
		return nil, ErrLeadNotFound
	}
	return lead.Clone(), nil
}

// ListByOrg returns an org's leads, newest first.
func (r *InMemoryRepository) ListByOrg(ctx context.Context, orgID string, filter ListLeadsFilter) ([]*Lead, error) {
	filter = filter.normalized()

	r.mu.RLock()
	var matched []*Lead
	for _, lead := range r.leads {
		if lead.OrgID != orgID {
			continue
		}
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		matched = append(matched, lead.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if filter.Offset >= len(matched) {
		return []*Lead{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// ListActive returns non-terminal leads with IDs greater than afterID.
func (r *InMemoryRepository) ListActive(ctx context.Context, afterID string, limit int) ([]*Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	r.mu.RLock()
	var out []*Lead
	for _, lead := range r.leads {
		if lead.IsDead || lead.Status.IsTerminal() || lead.ID <= afterID {
			continue
		}
		out = append(out, lead.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Update copies the lifecycle fields onto the stored lead.
func (r *InMemoryRepository) Update(ctx context.Context, lead *Lead) error {
	if lead == nil {
		return ErrLeadNotFound
	}
	if !lead.Status.Valid() {
		return ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.leads[lead.ID]
	if !ok || existing.OrgID != lead.OrgID {
		return ErrLeadNotFound
	}
	existing.Status = lead.Status
	existing.IsDead = lead.IsDead
	existing.DeadReason = lead.DeadReason
	existing.NextFollowUpAt = cloneTime(lead.NextFollowUpAt)
	existing.UpdatedAt = lead.UpdatedAt
	return nil
}

// AppendActivity records an activity and returns the updated lead.
func (r *InMemoryRepository) AppendActivity(ctx context.Context, orgID, leadID string, a Activity) (*Lead, Activity, error) {
	if a.Type == "" || a.Description == "" {
		return nil, Activity{}, ErrInvalidActivity
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[leadID]
	if !ok || lead.OrgID != orgID {
		return nil, Activity{}, ErrLeadNotFound
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = r.now().UTC()
	}
	recorded := lead.RecordActivity(a)
	return lead.Clone(), recorded, nil
}

// UpsertDocument inserts or replaces a document on the lead.
func (r *InMemoryRepository) UpsertDocument(ctx context.Context, orgID, leadID string, doc Document) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[leadID]
	if !ok || lead.OrgID != orgID {
		return nil, ErrLeadNotFound
	}
	lead.UpsertDocument(doc)
	lead.UpdatedAt = r.now().UTC()
	return lead.Clone(), nil
}
