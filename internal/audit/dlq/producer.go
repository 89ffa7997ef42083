package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// FailedDocument is an audit event that could not be decoded or indexed.
type FailedDocument struct {
	OriginalDocument json.RawMessage `json:"originalDocument"`
	DocumentID       string          `json:"documentId"`
	ErrorType        string          `json:"errorType"`
	ErrorReason      string          `json:"errorReason"`
	FailedAt         time.Time       `json:"failedAt"`
	SourceTopic      string          `json:"sourceTopic"`
	Partition        int             `json:"partition"`
	Offset           int64           `json:"offset"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes failed documents to the dead letter topic.
type Producer struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	log.Info("dlq producer initialized", zap.String("topic", topic))
	return &Producer{writer: writer, topic: topic, log: log}
}

// SendToDeadLetter keys by document id so retries of one transaction stay
// ordered on a single partition. Malformed payloads without an id fall back
// to the source offset.
func (p *Producer) SendToDeadLetter(ctx context.Context, doc FailedDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	key := doc.DocumentID
	if key == "" {
		key = fmt.Sprintf("%s-%d-%d", doc.SourceTopic, doc.Partition, doc.Offset)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		p.log.Error("dlq write failed", zap.String("document_id", doc.DocumentID), zap.Error(err))
		return err
	}

	p.log.Info("sent document to dlq",
		zap.String("document_id", doc.DocumentID),
		zap.String("error_type", doc.ErrorType),
		zap.String("topic", p.topic),
	)
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
