package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docsathi/telehealth-api/pkg/logging"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "appointment:a-1", TypeConsultationCompleted, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.Publish(context.Background(), "appointment:a-1", ConsultationCompletedV1{AppointmentID: "a-1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "aggregate", "type", "payload", "created_at", "attempts"}).
		AddRow(id, "appointment:a-1", TypeConsultationCompleted, []byte(`{"event_type":"consultation.completed.v1","payload":{"appointment_id":"a-1"}}`), now, 2)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10), 5).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].Attempts != 2 {
		t.Fatalf("unexpected entries: %#v", entries)
	}
	env, err := entries[0].Envelope()
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	var evt ConsultationCompletedV1
	if err := env.Decode(&evt); err != nil || evt.AppointmentID != "a-1" {
		t.Fatalf("unexpected payload %#v err=%v", evt, err)
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

func TestOutboxStoreMarkFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)
	id := uuid.New()
	mock.ExpectQuery("UPDATE outbox").
		WithArgs(id, "smtp down").
		WillReturnRows(pgxmock.NewRows([]string{"attempts"}).AddRow(3))

	attempts, err := store.MarkFailed(context.Background(), id, errors.New("smtp down"))
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type memoryPending struct {
	entries   []OutboxEntry
	delivered map[uuid.UUID]bool
	attempts  map[uuid.UUID]int
}

func newMemoryPending(entries ...OutboxEntry) *memoryPending {
	return &memoryPending{entries: entries, delivered: map[uuid.UUID]bool{}, attempts: map[uuid.UUID]int{}}
}

func (m *memoryPending) FetchPending(_ context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error) {
	var out []OutboxEntry
	for _, e := range m.entries {
		if m.delivered[e.ID] || m.attempts[e.ID] >= maxAttempts {
			continue
		}
		if int32(len(out)) == limit {
			break
		}
		e.Attempts = m.attempts[e.ID]
		out = append(out, e)
	}
	return out, nil
}

func (m *memoryPending) MarkFailed(_ context.Context, id uuid.UUID, _ error) (int, error) {
	m.attempts[id]++
	return m.attempts[id], nil
}

func (m *memoryPending) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	if m.delivered[id] {
		return false, nil
	}
	m.delivered[id] = true
	return true, nil
}

func TestDelivererRetriesFailedEntries(t *testing.T) {
	good, bad := uuid.New(), uuid.New()
	store := newMemoryPending(OutboxEntry{ID: good, Type: "a"}, OutboxEntry{ID: bad, Type: "b"})
	fail := true
	handler := HandlerFunc(func(_ context.Context, entry OutboxEntry) error {
		if entry.ID == bad && fail {
			return errors.New("smtp down")
		}
		return nil
	})
	d := newDeliverer(store, handler, logging.Discard())

	if n := d.drain(context.Background()); n != 1 {
		t.Fatalf("expected 1 delivered, got %d", n)
	}
	if store.delivered[bad] {
		t.Fatal("failed entry must remain pending")
	}

	fail = false
	if n := d.drain(context.Background()); n != 1 {
		t.Fatalf("expected retry to deliver 1, got %d", n)
	}
	if !store.delivered[bad] {
		t.Fatal("expected retried entry delivered")
	}
	if store.attempts[bad] != 1 {
		t.Fatalf("expected one recorded failure, got %d", store.attempts[bad])
	}
}

func TestDelivererParksPoisonEntriesSoNewerEventsFlow(t *testing.T) {
	poison := []OutboxEntry{{ID: uuid.New(), Type: "bad"}, {ID: uuid.New(), Type: "bad"}}
	fresh := OutboxEntry{ID: uuid.New(), Type: "good"}
	store := newMemoryPending(poison[0], poison[1], fresh)

	handler := HandlerFunc(func(_ context.Context, entry OutboxEntry) error {
		if entry.Type == "bad" {
			return errors.New("permanent failure")
		}
		return nil
	})
	d := newDeliverer(store, handler, logging.Discard()).WithBatchSize(2).WithMaxAttempts(3)

	for i := 0; i < 3; i++ {
		if n := d.drain(context.Background()); n != 0 {
			t.Fatalf("tick %d: expected nothing delivered while poison fills the batch, got %d", i, n)
		}
	}
	for _, p := range poison {
		if store.attempts[p.ID] != 3 {
			t.Fatalf("expected poison entry at max attempts, got %d", store.attempts[p.ID])
		}
	}

	if n := d.drain(context.Background()); n != 1 {
		t.Fatalf("expected fresh entry delivered once poison is parked, got %d", n)
	}
	if !store.delivered[fresh.ID] {
		t.Fatal("fresh entry not delivered")
	}
	if store.delivered[poison[0].ID] || store.delivered[poison[1].ID] {
		t.Fatal("poison entries must not be marked delivered")
	}
}

func TestRecorderRejectsInvalidEvents(t *testing.T) {
	var r Recorder
	if err := r.Publish(context.Background(), "", AppointmentBookedV1{}); err == nil {
		t.Fatal("expected aggregate error")
	}
	if err := r.Publish(context.Background(), "appointment:1", AppointmentBookedV1{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := r.Types(); len(got) != 1 || got[0] != TypeAppointmentBooked {
		t.Fatalf("unexpected types %v", got)
	}
}

func TestPublishCarriesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), chimw.RequestIDKey, "req-42")
	var r Recorder
	if err := r.Publish(ctx, "appointment:1", ConsultationCompletedV1{AppointmentID: "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got []string
	err := r.Deliver(context.Background(), HandlerFunc(func(_ context.Context, entry OutboxEntry) error {
		env, err := entry.Envelope()
		if err != nil {
			return err
		}
		got = append(got, env.CorrelationID)
		return nil
	}))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(got) != 1 || got[0] != "req-42" {
		t.Fatalf("expected correlation id from request, got %v", got)
	}
}

func TestOutboxStoreTxPublishesInsideTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	ctx := context.Background()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "appointment:a-1", TypeAppointmentBooked, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := NewOutboxStoreTx(tx).Publish(ctx, "appointment:a-1", AppointmentBookedV1{AppointmentID: "a-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
