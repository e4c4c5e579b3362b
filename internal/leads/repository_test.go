package leads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepository_UpdateKeepsConcurrentWrites(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	created, err := repo.Create(ctx, &CreateLeadRequest{OrgID: "org-1", Name: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)

	page, err := repo.ListActive(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	snapshot := page[0]

	_, err = repo.UpsertDocument(ctx, "org-1", created.ID, Document{ID: "d1", Type: DocumentBankStatement, Status: DocumentVerified})
	require.NoError(t, err)
	_, _, err = repo.AppendActivity(ctx, "org-1", created.ID, Activity{Type: ActivityEmail, Channel: ChannelEmail, Description: "intro"})
	require.NoError(t, err)

	next := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	snapshot.SetStatus(StatusContacted, next)
	snapshot.NextFollowUpAt = &next
	require.NoError(t, repo.Update(ctx, snapshot))

	stored, err := repo.GetByID(ctx, "org-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusContacted, stored.Status)
	require.NotNil(t, stored.NextFollowUpAt)
	assert.True(t, stored.NextFollowUpAt.Equal(next))
	require.Len(t, stored.Documents, 1, "document written after the snapshot must survive")
	assert.Equal(t, 1, stored.ContactAttempts)
	assert.NotNil(t, stored.LastContactedAt)
	assert.Len(t, stored.Activities, 1)
}

func TestInMemoryRepository_UpdateScopedToOrg(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	created, err := repo.Create(ctx, &CreateLeadRequest{OrgID: "org-1", Name: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)

	created.OrgID = "org-2"
	assert.ErrorIs(t, repo.Update(ctx, created), ErrLeadNotFound)
	assert.ErrorIs(t, repo.Update(ctx, nil), ErrLeadNotFound)
}
