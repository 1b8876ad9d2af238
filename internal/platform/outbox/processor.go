package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/wardline/mar/internal/platform/metrics"
)

// relayLockID is the advisory lock held by the active relay so that only
// one process drains the outbox at a time.
const relayLockID = int64(86911002)

// Publisher delivers a drained entry to the message broker.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// ProcessorConfig holds relay tuning parameters.
type ProcessorConfig struct {
	// BatchSize is the number of entries drained per poll.
	BatchSize int
	// PollInterval is how often the relay checks for pending entries.
	PollInterval time.Duration
	// MaxRetries is the retry ceiling before an entry is parked.
	MaxRetries int
	// CleanupAfter controls how long processed entries are retained.
	CleanupAfter time.Duration
	// CleanupInterval is how often retention is enforced.
	CleanupInterval time.Duration
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:       100,
		PollInterval:    time.Second,
		MaxRetries:      5,
		CleanupAfter:    7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// Processor polls the outbox table and publishes pending entries in order.
type Processor struct {
	pool      *pgxpool.Pool
	publisher Publisher
	cfg       ProcessorConfig
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcessor creates a relay. metrics may be nil.
func NewProcessor(pool *pgxpool.Pool, publisher Publisher, cfg ProcessorConfig, logger zerolog.Logger, m *metrics.Metrics) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultProcessorConfig().BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultProcessorConfig().PollInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultProcessorConfig().MaxRetries
	}
	return &Processor{
		pool:      pool,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "outbox_processor").Logger(),
		metrics:   m,
		done:      make(chan struct{}),
	}
}

// Start begins the poll loop in a background goroutine.
func (p *Processor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	p.logger.Info().
		Int("batch_size", p.cfg.BatchSize).
		Dur("poll_interval", p.cfg.PollInterval).
		Msg("outbox processor started")
}

// Stop halts the poll loop and waits for the in-flight batch to finish.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
	p.logger.Info().Msg("outbox processor stopped")
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	cleanup := time.NewTicker(p.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processBatch(ctx)
		case <-cleanup.C:
			if n, err := p.CleanupProcessed(ctx, p.cfg.CleanupAfter); err != nil {
				p.logger.Error().Err(err).Msg("outbox cleanup failed")
			} else if n > 0 {
				p.logger.Debug().Int64("removed", n).Msg("outbox cleanup")
			}
		}
	}
}

func (p *Processor) processBatch(ctx context.Context) {
	var acquired bool
	if err := p.pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", relayLockID).Scan(&acquired); err != nil || !acquired {
		// Another relay holds the lock.
		return
	}
	defer p.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", relayLockID)

	entries, err := p.fetchPending(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("fetch pending outbox entries")
		return
	}
	if len(entries) == 0 {
		p.updatePendingGauge(ctx)
		return
	}

	for _, entry := range entries {
		if err := p.processEntry(ctx, entry); err != nil {
			p.logger.Error().
				Err(err).
				Int64("id", entry.ID).
				Str("event_type", entry.EventType).
				Msg("process outbox entry")
		}
	}

	p.updatePendingGauge(ctx)
}

func (p *Processor) fetchPending(ctx context.Context) ([]*Entry, error) {
	const query = `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       topic, key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := p.pool.Query(ctx, query, p.cfg.MaxRetries, p.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("query pending entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		if err := rows.Scan(
			&entry.ID, &entry.AggregateID, &entry.AggregateType,
			&entry.EventType, &entry.Payload, &entry.Topic,
			&entry.Key, &entry.CreatedAt, &entry.RetryCount, &entry.LastError,
		); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (p *Processor) processEntry(ctx context.Context, entry *Entry) error {
	if err := p.publisher.Publish(ctx, entry.Topic, entry.Key, entry.Payload); err != nil {
		errStr := err.Error()
		if _, updateErr := p.pool.Exec(ctx,
			`UPDATE outbox SET retry_count = retry_count + 1, last_error = $1 WHERE id = $2`,
			errStr, entry.ID,
		); updateErr != nil {
			p.logger.Error().Err(updateErr).Int64("id", entry.ID).Msg("record outbox retry")
		}
		if p.metrics != nil {
			p.metrics.OutboxPublishFailuresTotal.Inc()
		}
		return fmt.Errorf("publish: %w", err)
	}

	if _, err := p.pool.Exec(ctx,
		`UPDATE outbox SET processed_at = NOW() WHERE id = $1`,
		entry.ID,
	); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.OutboxPublishedTotal.Inc()
	}
	p.logger.Debug().
		Int64("id", entry.ID).
		Str("topic", entry.Topic).
		Str("event_type", entry.EventType).
		Msg("outbox entry published")

	return nil
}

func (p *Processor) updatePendingGauge(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	var pending int64
	if err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL",
	).Scan(&pending); err != nil {
		return
	}
	p.metrics.OutboxPending.Set(float64(pending))
}

// CleanupProcessed removes processed entries older than the retention window.
func (p *Processor) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := p.pool.Exec(ctx,
		`DELETE FROM outbox WHERE processed_at IS NOT NULL AND processed_at < NOW() - $1::interval`,
		olderThan.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup outbox: %w", err)
	}
	return result.RowsAffected(), nil
}

// Stats summarizes outbox health for readiness probes.
type Stats struct {
	Pending       int64      `json:"pending"`
	Parked        int64      `json:"parked"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// GetStats reports the pending backlog and entries past the retry ceiling.
func (p *Processor) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL AND retry_count < $1",
		p.cfg.MaxRetries,
	).Scan(&stats.Pending); err != nil {
		return nil, err
	}

	if err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL AND retry_count >= $1",
		p.cfg.MaxRetries,
	).Scan(&stats.Parked); err != nil {
		return nil, err
	}

	p.pool.QueryRow(ctx, "SELECT MIN(created_at) FROM outbox WHERE processed_at IS NULL").Scan(&stats.OldestPending)

	return stats, nil
}
