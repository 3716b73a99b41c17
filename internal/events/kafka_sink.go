package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	kafkaQueueSize    = 256
	kafkaWriteTimeout = 5 * time.Second
)

// MessageWriter is the part of *kafka.Writer the sink uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a writer for topic. Events are keyed by type, so the
// hash balancer keeps each type's events in order on one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: kafkaWriteTimeout,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  5,
	}
}

// KafkaSink forwards bus events to Kafka as msgpack-encoded messages.
// Events are queued and written by a single goroutine; a full queue drops events.
type KafkaSink struct {
	writer MessageWriter
	queue  chan *Event
	done   chan struct{}
	log    zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

// NewKafkaSink creates a new sink around writer
func NewKafkaSink(writer MessageWriter, log zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		queue:  make(chan *Event, kafkaQueueSize),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "kafka_sink").Logger(),
	}
}

// Handle enqueues an event. It never blocks. Events arriving after Close are dropped.
func (s *KafkaSink) Handle(event *Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- event:
	default:
		s.log.Warn().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Kafka queue full, dropping event")
	}
}

// Start runs the writer loop until ctx is cancelled or Close is called
func (s *KafkaSink) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-s.queue:
				if !ok {
					return
				}
				if err := s.write(ctx, event); err != nil {
					s.log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to publish event to Kafka")
				}
			}
		}
	}()
}

// Close drains the queue and closes the writer.
// It must only be called after Start.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	<-s.done
	return s.writer.Close()
}

func (s *KafkaSink) write(ctx context.Context, event *Event) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()

	return s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.Type),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "module", Value: []byte(event.Module)},
			{Key: "content-type", Value: []byte("application/msgpack")},
		},
	})
}

// EncodeEvent encodes an event as msgpack
func EncodeEvent(event *Event) ([]byte, error) {
	payload, err := msgpack.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}
	return payload, nil
}
