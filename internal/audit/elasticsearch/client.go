package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/audit"
	"github.com/chungtau/ledger-bank/internal/audit/dlq"
)

// Client indexes audit documents through a bulk indexer.
type Client struct {
	es          *elasticsearch.Client
	indexer     esutil.BulkIndexer
	index       string
	sourceTopic string
	dead        audit.DeadLetter
	log         *zap.Logger
}

type Config struct {
	URL         string
	Index       string
	SourceTopic string
	DeadLetter  audit.DeadLetter
}

const indexMapping = `{
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0,
		"index": { "refresh_interval": "1s" }
	},
	"mappings": {
		"properties": {
			"transactionId": { "type": "keyword" },
			"eventId": { "type": "keyword" },
			"type": { "type": "keyword" },
			"sourceAccountId": { "type": "keyword" },
			"destinationAccountId": { "type": "keyword" },
			"amount": { "type": "scaled_float", "scaling_factor": 100 },
			"amountRaw": { "type": "keyword" },
			"status": { "type": "keyword" },
			"bookedAt": { "type": "date", "format": "strict_date_optional_time||epoch_millis" },
			"indexedAt": { "type": "date" }
		}
	}
}`

// NewClient connects, ensures the index exists and starts the bulk indexer.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    3,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("connect to elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch info: %s", res.Status())
	}
	log.Info("connected to elasticsearch", zap.String("status", res.Status()))

	c := &Client{
		es:          es,
		index:       cfg.Index,
		sourceTopic: cfg.SourceTopic,
		dead:        cfg.DeadLetter,
		log:         log,
	}
	if err := c.ensureIndex(); err != nil {
		return nil, err
	}

	c.indexer, err = esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        es,
		Index:         cfg.Index,
		NumWorkers:    2,
		FlushBytes:    5e+6,
		FlushInterval: 5 * time.Second,
		OnError: func(_ context.Context, err error) {
			log.Error("bulk indexer error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bulk indexer: %w", err)
	}
	return c, nil
}

func (c *Client) ensureIndex() error {
	res, err := c.es.Indices.Exists([]string{c.index})
	if err != nil {
		return fmt.Errorf("check index %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = c.es.Indices.Create(c.index, c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)))
	if err != nil {
		return fmt.Errorf("create index %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", c.index, res.Status())
	}
	c.log.Info("created index", zap.String("index", c.index))
	return nil
}

// Index queues doc. The transaction id is the document id, so a redelivered
// event overwrites rather than duplicates.
func (c *Client) Index(ctx context.Context, doc audit.Document, raw []byte) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	return c.indexer.Add(ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: doc.TransactionID,
		Body:       bytes.NewReader(body),
		OnFailure: func(_ context.Context, _ esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			errType, reason := "client_error", ""
			if err != nil {
				reason = err.Error()
			} else {
				errType, reason = res.Error.Type, res.Error.Reason
			}
			c.log.Error("index transaction failed",
				zap.String("transaction_id", doc.TransactionID),
				zap.String("error_type", errType),
				zap.String("reason", reason),
			)
			c.deadLetter(doc.TransactionID, raw, errType, reason)
		},
	})
}

func (c *Client) deadLetter(id string, raw []byte, errType, reason string) {
	if c.dead == nil {
		return
	}
	// The bulk callback outlives the request context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dead.SendToDeadLetter(ctx, dlq.FailedDocument{
		OriginalDocument: raw,
		DocumentID:       id,
		ErrorType:        errType,
		ErrorReason:      reason,
		FailedAt:         time.Now().UTC(),
		SourceTopic:      c.sourceTopic,
	})
	if err != nil {
		c.log.Error("dlq fallback failed", zap.String("transaction_id", id), zap.Error(err))
	}
}

// Close flushes the bulk indexer.
func (c *Client) Close(ctx context.Context) error {
	if c.indexer == nil {
		return nil
	}
	if err := c.indexer.Close(ctx); err != nil {
		return fmt.Errorf("close bulk indexer: %w", err)
	}
	stats := c.indexer.Stats()
	c.log.Info("bulk indexer closed",
		zap.Uint64("flushed", stats.NumFlushed),
		zap.Uint64("failed", stats.NumFailed),
	)
	return nil
}
