// Package outbox implements transactional event publishing. Domain writes
// append an entry to the outbox table inside the same transaction as the
// row they mutate; a relay process drains the table and publishes to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardline/mar/internal/platform/db"
)

// Entry is a single event awaiting publication.
type Entry struct {
	ID            int64           `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Topic         string          `json:"topic"`
	Key           string          `json:"key"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	RetryCount    int             `json:"retry_count"`
	LastError     *string         `json:"last_error,omitempty"`
}

// Writer appends entries to the outbox. The domain layer depends on this
// interface so service tests can capture emitted events in memory.
type Writer interface {
	Write(ctx context.Context, entry *Entry) error
}

// PgWriter writes outbox entries through the transaction on the context
// when one is open, so the entry commits or rolls back with the domain row.
type PgWriter struct {
	pool *pgxpool.Pool
}

func NewPgWriter(pool *pgxpool.Pool) *PgWriter {
	return &PgWriter{pool: pool}
}

func (w *PgWriter) Write(ctx context.Context, entry *Entry) error {
	const query = `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, topic, key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	args := []any{
		entry.AggregateID,
		entry.AggregateType,
		entry.EventType,
		entry.Payload,
		entry.Topic,
		entry.Key,
	}

	var err error
	if tx := db.TxFromContext(ctx); tx != nil {
		err = tx.QueryRow(ctx, query, args...).Scan(&entry.ID, &entry.CreatedAt)
	} else {
		err = w.pool.QueryRow(ctx, query, args...).Scan(&entry.ID, &entry.CreatedAt)
	}
	if err != nil {
		return fmt.Errorf("write outbox entry: %w", err)
	}
	return nil
}
