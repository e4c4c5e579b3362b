package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadColumnNames = []string{
	"id", "org_id", "name", "email", "phone", "status", "source", "value", "created_at", "updated_at",
	"last_contacted_at", "next_follow_up_at", "contact_attempts", "documents", "channels", "is_dead", "dead_reason",
}

var activityColumnNames = []string{"id", "lead_id", "type", "channel", "description", "occurred_at", "outcome", "notes", "workflow_run_id"}

func leadRow(rows *pgxmock.Rows, id, status string, attempts int, lastContacted *time.Time) *pgxmock.Rows {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, "org-1", "Jane", "jane@example.com", "+15550001111", status, "web", 1500.0, created, created,
		lastContacted, nil, attempts,
		[]byte(`[{"id":"d1","type":"application","status":"received","uploaded_at":"2025-01-03T00:00:00Z"}]`),
		[]byte(`[{"channel":"email","enabled":true,"success_rate":0,"total_attempts":0}]`),
		false, "",
	)
}

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	repo := NewPostgresRepository(mock)
	repo.now = func() time.Time { return time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC) }
	return repo, mock
}

func TestPostgresRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO leads").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lead, err := repo.Create(context.Background(), &CreateLeadRequest{OrgID: "org-1", Name: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, StatusNew, lead.Status)
	assert.NotEmpty(t, lead.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateValidates(t *testing.T) {
	repo, mock := newMockRepo(t)
	_, err := repo.Create(context.Background(), &CreateLeadRequest{OrgID: "org-1"})
	assert.ErrorIs(t, err, ErrInvalidName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	contacted := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE id = \\$1 AND org_id = \\$2").
		WithArgs("lead-1", "org-1").
		WillReturnRows(leadRow(pgxmock.NewRows(leadColumnNames), "lead-1", "contacted", 1, &contacted))
	mock.ExpectQuery("FROM lead_activities").
		WithArgs([]string{"lead-1"}).
		WillReturnRows(pgxmock.NewRows(activityColumnNames).
			AddRow("act-1", "lead-1", "email", "email", "intro", contacted, "delivered", "", ""))

	lead, err := repo.GetByID(context.Background(), "org-1", "lead-1")
	require.NoError(t, err)
	assert.Equal(t, StatusContacted, lead.Status)
	require.Len(t, lead.Documents, 1)
	assert.Equal(t, DocumentApplication, lead.Documents[0].Type)
	require.Len(t, lead.Activities, 1)
	assert.Equal(t, OutcomeDelivered, lead.Activities[0].Outcome)
	require.NotNil(t, lead.LastContactedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM leads").
		WithArgs("missing", "org-1").
		WillReturnRows(pgxmock.NewRows(leadColumnNames))

	_, err := repo.GetByID(context.Background(), "org-1", "missing")
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestPostgresRepository_ListActive(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := pgxmock.NewRows(leadColumnNames)
	leadRow(rows, "a", "new", 0, nil)
	leadRow(rows, "b", "hot", 4, nil)
	mock.ExpectQuery("WHERE is_dead = FALSE").
		WithArgs("", 2).
		WillReturnRows(rows)
	mock.ExpectQuery("FROM lead_activities").
		WithArgs([]string{"a", "b"}).
		WillReturnRows(pgxmock.NewRows(activityColumnNames))

	out, err := repo.ListActive(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, StatusHot, out[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AppendActivity(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("lead-1", "org-1").
		WillReturnRows(leadRow(pgxmock.NewRows(leadColumnNames), "lead-1", "new", 0, nil))
	mock.ExpectQuery("FROM lead_activities").
		WithArgs([]string{"lead-1"}).
		WillReturnRows(pgxmock.NewRows(activityColumnNames))
	mock.ExpectExec("INSERT INTO lead_activities").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE leads SET").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	lead, recorded, err := repo.AppendActivity(context.Background(), "org-1", "lead-1", Activity{
		Type: ActivityEmail, Channel: ChannelEmail, Description: "intro", Outcome: OutcomeDelivered,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, lead.ContactAttempts)
	assert.Equal(t, repo.now().UTC(), recorded.Timestamp)
	assert.InDelta(t, 1.0, lead.Channels[0].SuccessRate, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AppendActivityRollsBackOnInsertError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("lead-1", "org-1").
		WillReturnRows(leadRow(pgxmock.NewRows(leadColumnNames), "lead-1", "new", 0, nil))
	mock.ExpectQuery("FROM lead_activities").
		WithArgs([]string{"lead-1"}).
		WillReturnRows(pgxmock.NewRows(activityColumnNames))
	mock.ExpectExec("INSERT INTO lead_activities").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, _, err := repo.AppendActivity(context.Background(), "org-1", "lead-1", Activity{Type: ActivityCall, Description: "dial"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE leads SET").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	lead := newTestLead("jane@example.com", "")
	lead.OrgID = "org-1"
	err := repo.Update(context.Background(), lead)
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestPostgresRepository_UpdateRejectsUnknownStatus(t *testing.T) {
	repo, _ := newMockRepo(t)
	lead := newTestLead("jane@example.com", "")
	lead.Status = "bogus"
	assert.ErrorIs(t, repo.Update(context.Background(), lead), ErrInvalidStatus)
}

func TestPostgresRepository_UpdateWritesLifecycleColumnsOnly(t *testing.T) {
	repo, mock := newMockRepo(t)
	lead := newTestLead("jane@example.com", "")
	lead.ID = "lead-1"
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	lead.MarkDead("inactive", now)

	mock.ExpectExec(`UPDATE leads SET status = \$3, is_dead = \$4, dead_reason = \$5, next_follow_up_at = \$6, updated_at = \$7`).
		WithArgs("lead-1", "org-1", "dead", true, "inactive", lead.NextFollowUpAt, lead.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), lead))
	require.NoError(t, mock.ExpectationsWereMet())
}
