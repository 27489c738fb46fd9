package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "srwa/pkg/platform/audit"
	txcontext "srwa/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the relay.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Payload is the JSON structure published to Kafka.
type Payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Subject   string `json:"subject,omitempty"`
	Action    string `json:"action"`
	Resource  string `json:"resource,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Signature string `json:"signature,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

// Append writes an audit event to the outbox table. When ctx carries a
// transaction the row commits with the caller's unit of work.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	payload := Payload{
		ID:        eventID.String(),
		Category:  string(audit.AuditEvent(event.Action).Category()),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Resource:  event.Resource,
		Decision:  event.Decision,
		Reason:    event.Reason,
		Signature: event.Signature,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if event.Subject != "" {
		aggregateType = "account"
		aggregateID = event.Subject
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		aggregateID,
		event.Action,
		body,
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Entry is one unpublished outbox row.
type Entry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
}

// FetchUnpublished returns up to limit rows in insertion order, locking them
// for the surrounding transaction so concurrent relays skip them.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps published_at on the given rows.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, err := s.execer(ctx).ExecContext(ctx,
			`UPDATE outbox SET published_at = $2 WHERE id = $1`, id, s.now()); err != nil {
			return fmt.Errorf("mark outbox entry %s: %w", id, err)
		}
	}
	return nil
}

// DB exposes the pool so the relay can open its own transactions.
func (s *Store) DB() *sql.DB { return s.db }
