package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx pool so pgxmock can stand in during tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const leadColumns = `id::text, org_id, name, email, phone, status, source, value, created_at, updated_at,
	last_contacted_at, next_follow_up_at, contact_attempts, documents, channels, is_dead, dead_reason`

const activityColumns = `id::text, lead_id::text, type, channel, description, occurred_at, outcome, notes, workflow_run_id`

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db  DB
	now func() time.Time
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db, now: time.Now}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lead := NewLead(req, r.now())
	docs, channels, err := encodeCollections(lead)
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO leads (id, org_id, name, email, phone, status, source, value, created_at, updated_at,
			contact_attempts, documents, channels, is_dead, dead_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		lead.ID, lead.OrgID, lead.Name, lead.Email, lead.Phone, string(lead.Status), lead.Source, lead.Value,
		lead.CreatedAt, lead.UpdatedAt, lead.ContactAttempts, docs, channels, lead.IsDead, lead.DeadReason,
	)
	if err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a lead scoped to the org, including its activity log.
func (r *PostgresRepository) GetByID(ctx context.Context, orgID, id string) (*Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 AND org_id = $2`, id, orgID))
	if err != nil {
		return nil, err
	}
	if err := attachActivities(ctx, r.db, []*Lead{lead}); err != nil {
		return nil, err
	}
	return lead, nil
}

// ListByOrg returns an org's leads, newest first.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, filter ListLeadsFilter) ([]*Lead, error) {
	filter = filter.normalized()
	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = r.db.Query(ctx, `SELECT `+leadColumns+` FROM leads
			WHERE org_id = $1 AND status = $2
			ORDER BY created_at DESC, id
			LIMIT $3 OFFSET $4`, orgID, string(filter.Status), filter.Limit, filter.Offset)
	} else {
		rows, err = r.db.Query(ctx, `SELECT `+leadColumns+` FROM leads
			WHERE org_id = $1
			ORDER BY created_at DESC, id
			LIMIT $2 OFFSET $3`, orgID, filter.Limit, filter.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("leads: list by org: %w", err)
	}
	out, err := scanLeads(rows)
	if err != nil {
		return nil, err
	}
	if err := attachActivities(ctx, r.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActive pages through leads that are neither dead nor fully documented.
func (r *PostgresRepository) ListActive(ctx context.Context, afterID string, limit int) ([]*Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+leadColumns+` FROM leads
		WHERE is_dead = FALSE AND status NOT IN ('doc', 'dead') AND id::text > $1
		ORDER BY id::text
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: list active: %w", err)
	}
	out, err := scanLeads(rows)
	if err != nil {
		return nil, err
	}
	if err := attachActivities(ctx, r.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes the lifecycle columns only.
func (r *PostgresRepository) Update(ctx context.Context, lead *Lead) error {
	if lead == nil {
		return ErrLeadNotFound
	}
	if !lead.Status.Valid() {
		return ErrInvalidStatus
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET status = $3, is_dead = $4, dead_reason = $5, next_follow_up_at = $6, updated_at = $7
		WHERE id = $1 AND org_id = $2`,
		lead.ID, lead.OrgID, string(lead.Status), lead.IsDead, lead.DeadReason, lead.NextFollowUpAt, lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("leads: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// AppendActivity inserts an activity and the counter changes it causes in
// one transaction.
func (r *PostgresRepository) AppendActivity(ctx context.Context, orgID, leadID string, a Activity) (*Lead, Activity, error) {
	if a.Type == "" || a.Description == "" {
		return nil, Activity{}, ErrInvalidActivity
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = r.now().UTC()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, Activity{}, fmt.Errorf("leads: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lead, err := lockLead(ctx, tx, orgID, leadID)
	if err != nil {
		return nil, Activity{}, err
	}
	if err := attachActivities(ctx, tx, []*Lead{lead}); err != nil {
		return nil, Activity{}, err
	}
	recorded := lead.RecordActivity(a)

	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_activities (id, lead_id, org_id, type, channel, description, occurred_at, outcome, notes, workflow_run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		recorded.ID, lead.ID, lead.OrgID, string(recorded.Type), string(recorded.Channel), recorded.Description,
		recorded.Timestamp, string(recorded.Outcome), recorded.Notes, recorded.WorkflowRunID,
	); err != nil {
		return nil, Activity{}, fmt.Errorf("leads: insert activity: %w", err)
	}
	if err := updateLead(ctx, tx, lead); err != nil {
		return nil, Activity{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, Activity{}, fmt.Errorf("leads: commit activity: %w", err)
	}
	return lead, recorded, nil
}

// UpsertDocument inserts or replaces a document inside the lead's documents column.
func (r *PostgresRepository) UpsertDocument(ctx context.Context, orgID, leadID string, doc Document) (*Lead, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("leads: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lead, err := lockLead(ctx, tx, orgID, leadID)
	if err != nil {
		return nil, err
	}
	lead.UpsertDocument(doc)
	lead.UpdatedAt = r.now().UTC()
	if err := updateLead(ctx, tx, lead); err != nil {
		return nil, err
	}
	if err := attachActivities(ctx, tx, []*Lead{lead}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("leads: commit document: %w", err)
	}
	return lead, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateLead(ctx context.Context, db execer, lead *Lead) error {
	docs, channels, err := encodeCollections(lead)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `
		UPDATE leads SET name = $3, email = $4, phone = $5, status = $6, source = $7, value = $8,
			updated_at = $9, last_contacted_at = $10, next_follow_up_at = $11, contact_attempts = $12,
			documents = $13, channels = $14, is_dead = $15, dead_reason = $16
		WHERE id = $1 AND org_id = $2`,
		lead.ID, lead.OrgID, lead.Name, lead.Email, lead.Phone, string(lead.Status), lead.Source, lead.Value,
		lead.UpdatedAt, lead.LastContactedAt, lead.NextFollowUpAt, lead.ContactAttempts,
		docs, channels, lead.IsDead, lead.DeadReason,
	)
	if err != nil {
		return fmt.Errorf("leads: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func lockLead(ctx context.Context, tx pgx.Tx, orgID, leadID string) (*Lead, error) {
	return scanLead(tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 AND org_id = $2 FOR UPDATE`, leadID, orgID))
}

func encodeCollections(lead *Lead) ([]byte, []byte, error) {
	docs := lead.Documents
	if docs == nil {
		docs = []Document{}
	}
	channels := lead.Channels
	if channels == nil {
		channels = []ChannelStatus{}
	}
	docsJSON, err := json.Marshal(docs)
	if err != nil {
		return nil, nil, fmt.Errorf("leads: encode documents: %w", err)
	}
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return nil, nil, fmt.Errorf("leads: encode channels: %w", err)
	}
	return docsJSON, channelsJSON, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead     Lead
		status   string
		docs     []byte
		channels []byte
	)
	if err := row.Scan(
		&lead.ID, &lead.OrgID, &lead.Name, &lead.Email, &lead.Phone, &status, &lead.Source, &lead.Value,
		&lead.CreatedAt, &lead.UpdatedAt, &lead.LastContactedAt, &lead.NextFollowUpAt, &lead.ContactAttempts,
		&docs, &channels, &lead.IsDead, &lead.DeadReason,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	lead.Status = Status(status)
	lead.Documents = []Document{}
	lead.Channels = []ChannelStatus{}
	lead.Activities = []Activity{}
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &lead.Documents); err != nil {
			return nil, fmt.Errorf("leads: decode documents: %w", err)
		}
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &lead.Channels); err != nil {
			return nil, fmt.Errorf("leads: decode channels: %w", err)
		}
	}
	return &lead, nil
}

func scanLeads(rows pgx.Rows) ([]*Lead, error) {
	defer rows.Close()
	out := []*Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: iterate rows: %w", err)
	}
	return out, nil
}

// attachActivities loads activity logs for all leads with one query.
func attachActivities(ctx context.Context, q queryer, leads []*Lead) error {
	if len(leads) == 0 {
		return nil
	}
	ids := make([]string, 0, len(leads))
	byID := make(map[string]*Lead, len(leads))
	for _, l := range leads {
		ids = append(ids, l.ID)
		byID[l.ID] = l
	}
	rows, err := q.Query(ctx, `SELECT `+activityColumns+` FROM lead_activities
		WHERE lead_id::text = ANY($1)
		ORDER BY occurred_at, id`, ids)
	if err != nil {
		return fmt.Errorf("leads: list activities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a                             Activity
			leadID, typ, channel, outcome string
		)
		if err := rows.Scan(&a.ID, &leadID, &typ, &channel, &a.Description, &a.Timestamp, &outcome, &a.Notes, &a.WorkflowRunID); err != nil {
			return fmt.Errorf("leads: scan activity: %w", err)
		}
		a.Type = ActivityType(typ)
		a.Channel = Channel(channel)
		a.Outcome = Outcome(outcome)
		if l, ok := byID[leadID]; ok {
			l.Activities = append(l.Activities, a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("leads: iterate activities: %w", err)
	}
	return nil
}
