package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/wolfman30/leadflow/pkg/logging"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "org-1", "lead:lead-1", TypeLeadCreated, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.Record(context.Background(), LeadCreatedV1{OrgID: "org-1", LeadID: "lead-1"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "org_id", "event_type", "payload", "created_at"}).
		AddRow(id, "org-1", TypeLeadCreated, []byte(`{"event_type":"lead.created.v1"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDelivererDrainSendsToQueue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)
	queue := NewMemoryQueue(4)
	deliverer := NewDeliverer(store, NewQueueDelivery(queue), logging.Default()).WithBatchSize(5)

	okID, failID := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT id").WithArgs(int32(5)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "org_id", "event_type", "payload", "created_at"}).
			AddRow(okID, "org-1", TypeLeadCreated, []byte(`{"a":1}`), time.Now()).
			AddRow(failID, "org-1", TypeLeadCreated, []byte(`{"b":2}`), time.Now()),
	)
	mock.ExpectExec("UPDATE outbox").WithArgs(okID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE outbox").WithArgs(failID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	deliverer.drain(context.Background())

	if queue.Len() != 2 {
		t.Fatalf("expected 2 queued envelopes, got %d", queue.Len())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type failingHandler struct{}

func (failingHandler) Handle(context.Context, OutboxEntry) error { return errors.New("queue down") }

func TestDelivererLeavesFailedEntriesPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	deliverer := NewDeliverer(newOutboxStoreWithExec(mock), failingHandler{}, nil)
	mock.ExpectQuery("SELECT id").WithArgs(int32(25)).WillReturnRows(
		pgxmock.NewRows([]string{"id", "org_id", "event_type", "payload", "created_at"}).
			AddRow(uuid.New(), "org-1", TypeLeadCreated, []byte(`{}`), time.Now()),
	)
	deliverer.drain(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected calls: %v", err)
	}
}

type captureRecorder struct{ got []LeadEvent }

func (c *captureRecorder) Record(_ context.Context, evt LeadEvent, _ ...EnvelopeOption) error {
	c.got = append(c.got, evt)
	return nil
}

func TestTeeRecordsToAll(t *testing.T) {
	a, b := &captureRecorder{}, &captureRecorder{}
	rec := Tee(a, nil, b)
	if err := rec.Record(context.Background(), LeadCreatedV1{OrgID: "o", LeadID: "l"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected both recorders to receive the event")
	}
}
