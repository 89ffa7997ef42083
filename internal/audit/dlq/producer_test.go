package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestSendToDeadLetter(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "audit-dlq", log: zap.NewNop()}

	doc := FailedDocument{
		OriginalDocument: json.RawMessage(`{"transactionId":"5"}`),
		DocumentID:       "5",
		ErrorType:        "mapper_parsing_exception",
		FailedAt:         time.Now().UTC(),
		SourceTopic:      "transaction-events",
	}
	require.NoError(t, p.SendToDeadLetter(t.Context(), doc))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "5", string(w.msgs[0].Key))

	var got FailedDocument
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "mapper_parsing_exception", got.ErrorType)
	assert.JSONEq(t, `{"transactionId":"5"}`, string(got.OriginalDocument))
}

func TestSendToDeadLetter_KeyFallsBackToOffset(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "audit-dlq", log: zap.NewNop()}

	require.NoError(t, p.SendToDeadLetter(t.Context(), FailedDocument{
		OriginalDocument: json.RawMessage(`"garbage"`),
		SourceTopic:      "transaction-events",
		Partition:        2,
		Offset:           40,
	}))
	assert.Equal(t, "transaction-events-2-40", string(w.msgs[0].Key))
}

func TestSendToDeadLetter_WriteError(t *testing.T) {
	t.Parallel()

	p := &Producer{writer: &fakeWriter{err: errors.New("no leader")}, log: zap.NewNop()}
	assert.Error(t, p.SendToDeadLetter(t.Context(), FailedDocument{DocumentID: "1", OriginalDocument: json.RawMessage(`{}`)}))
}
