// Package reporting summarizes an org's pipeline: leads and value per status
// plus per-channel outreach success.
package reporting

import (
	"context"
	"time"

	"github.com/wolfman30/leadflow/internal/leads"
)

// PipelineOrder lists statuses in the order reports show them.
var PipelineOrder = []leads.Status{
	leads.StatusNew, leads.StatusContacted, leads.StatusProspect, leads.StatusHot,
	leads.StatusApplication, leads.StatusDoc, leads.StatusDead,
}

type StatusStats struct {
	Status     leads.Status `json:"status"`
	Count      int          `json:"count"`
	TotalValue float64      `json:"total_value"`
}

type ChannelStats struct {
	Channel     leads.Channel `json:"channel"`
	Attempts    int           `json:"attempts"`
	Successes   int           `json:"successes"`
	SuccessRate float64       `json:"success_rate"`
}

// PipelineReport is the response of GET /reports/pipeline.
type PipelineReport struct {
	OrgID       string         `json:"org_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	TotalLeads  int            `json:"total_leads"`
	TotalValue  float64        `json:"total_value"`
	Statuses    []StatusStats  `json:"statuses"`
	Channels    []ChannelStats `json:"channels"`
}

// Source computes raw aggregates. Statuses with no leads may be omitted.
type Source interface {
	StatusStats(ctx context.Context, orgID string, statuses []leads.Status) ([]StatusStats, error)
	ChannelStats(ctx context.Context, orgID string) ([]ChannelStats, error)
}

// BuildReport fills gaps so every requested status appears, in pipeline
// order, and computes totals.
func BuildReport(ctx context.Context, src Source, orgID string, statuses []leads.Status, now time.Time) (*PipelineReport, error) {
	if len(statuses) == 0 {
		statuses = PipelineOrder
	}
	raw, err := src.StatusStats(ctx, orgID, statuses)
	if err != nil {
		return nil, err
	}
	channels, err := src.ChannelStats(ctx, orgID)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[leads.Status]StatusStats, len(raw))
	for _, s := range raw {
		byStatus[s.Status] = s
	}
	wanted := make(map[leads.Status]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	report := &PipelineReport{OrgID: orgID, GeneratedAt: now.UTC(), Statuses: []StatusStats{}, Channels: []ChannelStats{}}
	for _, status := range PipelineOrder {
		if !wanted[status] {
			continue
		}
		s := byStatus[status]
		s.Status = status
		report.Statuses = append(report.Statuses, s)
		report.TotalLeads += s.Count
		report.TotalValue += s.TotalValue
	}
	for _, c := range channels {
		if c.Attempts > 0 {
			c.SuccessRate = float64(c.Successes) / float64(c.Attempts)
		}
		report.Channels = append(report.Channels, c)
	}
	return report, nil
}
