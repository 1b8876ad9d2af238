package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisherConfig holds producer settings for the relay.
type KafkaPublisherConfig struct {
	Brokers        []string
	LingerMS       int64
	MaxRetries     int
	RetryBackoffMS int64
}

func DefaultKafkaPublisherConfig() KafkaPublisherConfig {
	return KafkaPublisherConfig{
		Brokers:        []string{"localhost:9092"},
		LingerMS:       50,
		MaxRetries:     3,
		RetryBackoffMS: 100,
	}
}

// KafkaPublisher publishes outbox entries to Kafka with franz-go.
type KafkaPublisher struct {
	client *kgo.Client
	logger zerolog.Logger
}

func NewKafkaPublisher(cfg KafkaPublisherConfig, logger zerolog.Logger) (*KafkaPublisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Duration(cfg.RetryBackoffMS) * time.Millisecond * time.Duration(attempt+1)
		}),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.Lz4Compression()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &KafkaPublisher{
		client: client,
		logger: logger.With().Str("component", "kafka_publisher").Logger(),
	}, nil
}

// Publish sends a single record and waits for broker acknowledgment. The
// relay marks an entry processed only after the ack, so delivery is
// at-least-once.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	var produceErr error
	var wg sync.WaitGroup
	wg.Add(1)

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		defer wg.Done()
		if err != nil {
			produceErr = err
			p.logger.Error().
				Err(err).
				Str("topic", topic).
				Str("key", key).
				Msg("produce failed")
			return
		}
		p.logger.Debug().
			Str("topic", r.Topic).
			Int32("partition", r.Partition).
			Int64("offset", r.Offset).
			Msg("record produced")
	})

	wg.Wait()
	return produceErr
}

// Close flushes buffered records and shuts the client down.
func (p *KafkaPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("flush on close")
	}

	p.client.Close()
	return nil
}
