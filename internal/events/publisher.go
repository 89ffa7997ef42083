package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/domain"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes finalized transactions to a Kafka topic. Writes go
// through a circuit breaker so a dead broker fails fast instead of holding
// every request for the writer timeout.
type KafkaPublisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewKafkaPublisher creates a synchronous producer for topic.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 2 * time.Second,
	}
	log.Info("kafka publisher initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return newPublisher(writer, log)
}

func newPublisher(w messageWriter, log *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{writer: w, log: log}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return p
}

// PublishTransaction emits one event keyed by the source account so every
// event for an account lands on the same partition.
func (p *KafkaPublisher) PublishTransaction(ctx context.Context, txn domain.Transaction) error {
	ev := FromTransaction(txn)
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal transaction event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(txn.SourceAccountID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ev.EventID)},
			{Key: "event-type", Value: []byte("transaction." + string(txn.Status))},
		},
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("kafka publisher unavailable: %w", err)
	}
	if err != nil {
		return fmt.Errorf("write transaction event %s: %w", ev.TransactionID, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
