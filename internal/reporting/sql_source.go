package reporting

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/wolfman30/leadflow/internal/leads"
)

// queryer is satisfied by *sql.DB and sqlmock.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLSource aggregates straight from the leads tables.
type SQLSource struct {
	db queryer
}

func NewSQLSource(db queryer) *SQLSource {
	if db == nil {
		panic("reporting: db required")
	}
	return &SQLSource{db: db}
}

func (s *SQLSource) StatusStats(ctx context.Context, orgID string, statuses []leads.Status) ([]StatusStats, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(value), 0)
		FROM leads
		WHERE org_id = $1 AND status = ANY($2)
		GROUP BY status`, orgID, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("reporting: status stats: %w", err)
	}
	defer rows.Close()

	var out []StatusStats
	for rows.Next() {
		var (
			st     StatusStats
			status string
		)
		if err := rows.Scan(&status, &st.Count, &st.TotalValue); err != nil {
			return nil, fmt.Errorf("reporting: scan status stats: %w", err)
		}
		st.Status = leads.Status(status)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLSource) ChannelStats(ctx context.Context, orgID string) ([]ChannelStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, COUNT(*), COUNT(*) FILTER (WHERE outcome = ANY($3))
		FROM lead_activities
		WHERE org_id = $1 AND type = ANY($2) AND channel <> ''
		GROUP BY channel
		ORDER BY channel`, orgID, pq.Array(outreachTypes()), pq.Array(successOutcomes()))
	if err != nil {
		return nil, fmt.Errorf("reporting: channel stats: %w", err)
	}
	defer rows.Close()

	var out []ChannelStats
	for rows.Next() {
		var (
			c       ChannelStats
			channel string
		)
		if err := rows.Scan(&channel, &c.Attempts, &c.Successes); err != nil {
			return nil, fmt.Errorf("reporting: scan channel stats: %w", err)
		}
		c.Channel = leads.Channel(channel)
		out = append(out, c)
	}
	return out, rows.Err()
}

func outreachTypes() []string {
	return []string{
		string(leads.ActivityCall), string(leads.ActivityEmail), string(leads.ActivitySMS),
		string(leads.ActivityWhatsApp), string(leads.ActivityTelegram), string(leads.ActivityMessage),
	}
}

func successOutcomes() []string {
	return []string{
		string(leads.OutcomeSuccess), string(leads.OutcomeDelivered), string(leads.OutcomeRead), string(leads.OutcomeReplied),
	}
}

var _ Source = (*SQLSource)(nil)
