package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"campusmarket/internal/config"
	"campusmarket/internal/metrics"

	"github.com/segmentio/kafka-go"
)

const (
	emitterQueueSize  = 256
	emitterWriteLimit = 5 * time.Second
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter queues events and writes them to a topic from a background
// goroutine, keyed by transaction id so one transaction's events stay ordered.
type KafkaEmitter struct {
	writer  kafkaMessageWriter
	logger  *slog.Logger
	metrics metrics.Collector
	queue   chan Event
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewKafkaEmitter(cfg config.Kafka, logger *slog.Logger, collector metrics.Collector) (*KafkaEmitter, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("notification topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
	return newKafkaEmitter(writer, logger, collector), nil
}

func newKafkaEmitter(writer kafkaMessageWriter, logger *slog.Logger, collector metrics.Collector) *KafkaEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	e := &KafkaEmitter{
		writer:  writer,
		logger:  logger,
		metrics: collector,
		queue:   make(chan Event, emitterQueueSize),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// Notify enqueues the event. A full queue or a closed emitter drops it.
func (e *KafkaEmitter) Notify(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(ctx, event, "notification emitter closed, dropping event")
		return
	}
	select {
	case e.queue <- event:
	default:
		e.drop(ctx, event, "notification queue full, dropping event")
	}
}

// Close drains queued events and closes the writer. Events sent after Close
// are dropped.
func (e *KafkaEmitter) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()
	})
	<-e.done
	return e.writer.Close()
}

func (e *KafkaEmitter) drop(ctx context.Context, event Event, msg string) {
	e.metrics.RecordNotificationFailure(string(event.Type))
	e.logger.WarnContext(ctx, msg, "type", event.Type, "transaction_id", event.TransactionID)
}

func (e *KafkaEmitter) run() {
	defer close(e.done)
	for event := range e.queue {
		if err := e.write(event); err != nil {
			e.metrics.RecordNotificationFailure(string(event.Type))
			e.logger.Error("notification publish failed",
				"type", event.Type, "transaction_id", event.TransactionID, "error", err)
		}
	}
}

func (e *KafkaEmitter) write(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), emitterWriteLimit)
	defer cancel()
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}
