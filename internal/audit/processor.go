// Package audit consumes finalized transaction events and indexes them for
// search. Events that cannot be decoded or indexed go to a dead letter topic.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/audit/dlq"
	"github.com/chungtau/ledger-bank/internal/events"
)

// Document is the indexed shape of one transaction event.
type Document struct {
	TransactionID        string    `json:"transactionId"`
	EventID              string    `json:"eventId"`
	Type                 string    `json:"type"`
	SourceAccountID      string    `json:"sourceAccountId"`
	DestinationAccountID string    `json:"destinationAccountId,omitempty"`
	Amount               float64   `json:"amount"`
	AmountRaw            string    `json:"amountRaw"`
	Status               string    `json:"status"`
	BookedAt             string    `json:"bookedAt"`
	IndexedAt            time.Time `json:"indexedAt"`
}

// NewDocument validates ev and converts it for indexing. The raw decimal
// string is kept next to the float so no precision is lost.
func NewDocument(ev events.TransactionEvent) (Document, error) {
	if ev.TransactionID == "" {
		return Document{}, errors.New("missing transactionId")
	}
	amount, err := decimal.NewFromString(ev.Amount)
	if err != nil {
		return Document{}, fmt.Errorf("invalid amount %q: %w", ev.Amount, err)
	}
	return Document{
		TransactionID:        ev.TransactionID,
		EventID:              ev.EventID,
		Type:                 ev.Type,
		SourceAccountID:      ev.SourceAccountID,
		DestinationAccountID: ev.DestinationAccountID,
		Amount:               amount.InexactFloat64(),
		AmountRaw:            ev.Amount,
		Status:               ev.Status,
		BookedAt:             ev.BookedAt,
	}, nil
}

// Indexer queues documents for asynchronous indexing.
type Indexer interface {
	Index(ctx context.Context, doc Document, raw []byte) error
}

// DeadLetter accepts documents that will never index successfully.
type DeadLetter interface {
	SendToDeadLetter(ctx context.Context, doc dlq.FailedDocument) error
}

// MessageReader is the consumer side of a kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type Processor struct {
	indexer Indexer
	dead    DeadLetter
	log     *zap.Logger
}

// NewProcessor builds a processor. dead may be nil, in which case
// undecodable events are logged and dropped.
func NewProcessor(indexer Indexer, dead DeadLetter, log *zap.Logger) *Processor {
	return &Processor{indexer: indexer, dead: dead, log: log}
}

// Run consumes until ctx is cancelled. Read errors are logged and retried.
func (p *Processor) Run(ctx context.Context, r MessageReader) {
	p.log.Info("audit consumer started")
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("read message failed", zap.Error(err))
			continue
		}
		if err := p.Handle(ctx, m); err != nil {
			p.log.Error("handle message failed",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		}
	}
}

// Handle decodes one message and hands it to the indexer.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) error {
	log := p.log.With(
		zap.String("key", string(m.Key)),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)

	var ev events.TransactionEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		log.Warn("undecodable event", zap.Error(err), zap.ByteString("raw", m.Value))
		return p.deadLetter(ctx, m, "", "decode_error", err)
	}
	doc, err := NewDocument(ev)
	if err != nil {
		log.Warn("invalid event", zap.Error(err), zap.ByteString("raw", m.Value))
		return p.deadLetter(ctx, m, ev.TransactionID, "validation_error", err)
	}

	doc.IndexedAt = time.Now().UTC()
	if err := p.indexer.Index(ctx, doc, m.Value); err != nil {
		return fmt.Errorf("index transaction %s: %w", doc.TransactionID, err)
	}
	log.Debug("queued transaction for indexing",
		zap.String("transaction_id", doc.TransactionID),
		zap.String("status", doc.Status),
	)
	return nil
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, id, errType string, cause error) error {
	if p.dead == nil {
		return nil
	}
	return p.dead.SendToDeadLetter(ctx, dlq.FailedDocument{
		OriginalDocument: rawJSON(m.Value),
		DocumentID:       id,
		ErrorType:        errType,
		ErrorReason:      cause.Error(),
		FailedAt:         time.Now().UTC(),
		SourceTopic:      m.Topic,
		Partition:        m.Partition,
		Offset:           m.Offset,
	})
}

// rawJSON keeps the payload embeddable in the dead letter envelope even when
// it is not valid JSON.
func rawJSON(b []byte) json.RawMessage {
	if json.Valid(b) {
		return b
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
