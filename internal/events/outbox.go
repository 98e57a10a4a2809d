package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docsathi/telehealth-api/pkg/logging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxEntry is a stored envelope awaiting delivery.
type OutboxEntry struct {
	ID        uuid.UUID
	Aggregate string
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
	Attempts  int
}

// Envelope decodes the stored payload.
func (e OutboxEntry) Envelope() (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(e.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: decode outbox %s: %w", e.ID, err)
	}
	return env, nil
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// HandlerFunc adapts a function to DeliveryHandler.
type HandlerFunc func(ctx context.Context, entry OutboxEntry) error

func (f HandlerFunc) Handle(ctx context.Context, entry OutboxEntry) error { return f(ctx, entry) }

// Publisher appends domain events for later delivery.
type Publisher interface {
	Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error
}

type outboxExec interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists events for reliable delivery.
type OutboxStore struct {
	pool outboxExec
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{pool: pool}
}

// NewOutboxStoreTx publishes through an open transaction so events commit
// or roll back together with the row changes made in it.
func NewOutboxStoreTx(tx pgx.Tx) *OutboxStore {
	if tx == nil {
		panic("events: tx required")
	}
	return &OutboxStore{pool: tx}
}

func newOutboxStoreWithExec(exec outboxExec) *OutboxStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &OutboxStore{pool: exec}
}

// Publish implements Publisher.
func (s *OutboxStore) Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error {
	_, err := AppendCanonicalEvent(ctx, s.pool, aggregate, evt, correlationFromContext(ctx))
	return err
}

// FetchPending returns undelivered entries that have failed fewer than
// maxAttempts times, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error) {
	query := `
		SELECT id, aggregate, type, payload, created_at, attempts
		FROM outbox
		WHERE delivered_at IS NULL AND attempts < $2
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Aggregate, &entry.Type, &payload, &entry.CreatedAt, &entry.Attempts); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed records a failed delivery attempt and returns the new count.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, cause error) (int, error) {
	query := `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND delivered_at IS NULL
		RETURNING attempts
	`
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	rows, err := s.pool.Query(ctx, query, id, msg)
	if err != nil {
		return 0, fmt.Errorf("events: mark failed: %w", err)
	}
	defer rows.Close()
	attempts := 0
	if rows.Next() {
		if err := rows.Scan(&attempts); err != nil {
			return 0, fmt.Errorf("events: scan attempts: %w", err)
		}
	}
	return attempts, rows.Err()
}

type pendingStore interface {
	FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) (int, error)
}

// DefaultMaxAttempts is how many times an entry is tried before it is parked.
const DefaultMaxAttempts = 5

// Deliverer polls the outbox and invokes the handler. Failed entries stay
// pending and are retried on later ticks until they reach maxAttempts; after
// that they stay in the table with last_error set and are no longer fetched.
type Deliverer struct {
	store       pendingStore
	handler     DeliveryHandler
	logger      *logging.Logger
	batchSize   int32
	maxAttempts int
	interval    time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	var ps pendingStore
	if store != nil {
		ps = store
	}
	return newDeliverer(ps, handler, logger)
}

func newDeliverer(store pendingStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:       store,
		handler:     handler,
		logger:      logger,
		batchSize:   25,
		maxAttempts: DefaultMaxAttempts,
		interval:    2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start blocks until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type)
			attempts, markErr := d.store.MarkFailed(ctx, entry.ID, err)
			if markErr != nil {
				d.logger.Error("failed to record outbox attempt", "error", markErr, "event_id", entry.ID)
			} else if attempts >= d.maxAttempts {
				d.logger.Error("outbox entry parked after max attempts", "event_id", entry.ID, "type", entry.Type, "attempts", attempts)
			}
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			delivered++
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
		}
	}
	return delivered
}
