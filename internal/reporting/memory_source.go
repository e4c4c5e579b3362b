package reporting

import (
	"context"
	"sort"

	"github.com/wolfman30/leadflow/internal/leads"
)

const memoryPageSize = 100

// RepositorySource aggregates by paging through a leads.Repository. It
// backs in-memory deployments.
type RepositorySource struct {
	repo leads.Repository
}

func NewRepositorySource(repo leads.Repository) *RepositorySource {
	if repo == nil {
		panic("reporting: repository required")
	}
	return &RepositorySource{repo: repo}
}

func (s *RepositorySource) each(ctx context.Context, orgID string, fn func(*leads.Lead)) error {
	for offset := 0; ; offset += memoryPageSize {
		page, err := s.repo.ListByOrg(ctx, orgID, leads.ListLeadsFilter{Limit: memoryPageSize, Offset: offset})
		if err != nil {
			return err
		}
		for _, lead := range page {
			fn(lead)
		}
		if len(page) < memoryPageSize {
			return nil
		}
	}
}

func (s *RepositorySource) StatusStats(ctx context.Context, orgID string, statuses []leads.Status) ([]StatusStats, error) {
	wanted := make(map[leads.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	agg := make(map[leads.Status]*StatusStats)
	err := s.each(ctx, orgID, func(lead *leads.Lead) {
		if !wanted[lead.Status] {
			return
		}
		st, ok := agg[lead.Status]
		if !ok {
			st = &StatusStats{Status: lead.Status}
			agg[lead.Status] = st
		}
		st.Count++
		st.TotalValue += lead.Value
	})
	if err != nil {
		return nil, err
	}
	out := make([]StatusStats, 0, len(agg))
	for _, st := range agg {
		out = append(out, *st)
	}
	return out, nil
}

func (s *RepositorySource) ChannelStats(ctx context.Context, orgID string) ([]ChannelStats, error) {
	agg := make(map[leads.Channel]*ChannelStats)
	err := s.each(ctx, orgID, func(lead *leads.Lead) {
		for _, a := range lead.Activities {
			if !a.Type.IsOutreach() || a.Channel == "" {
				continue
			}
			c, ok := agg[a.Channel]
			if !ok {
				c = &ChannelStats{Channel: a.Channel}
				agg[a.Channel] = c
			}
			c.Attempts++
			if a.Outcome.Succeeded() {
				c.Successes++
			}
		}
	})
	if err != nil {
		return nil, err
	}
	out := make([]ChannelStats, 0, len(agg))
	for _, c := range agg {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

var _ Source = (*RepositorySource)(nil)
