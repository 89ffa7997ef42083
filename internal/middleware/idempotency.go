package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	IdempotencyHeader    = "Idempotency-Key"
	IdempotencyHitHeader = "X-Idempotency-Hit"

	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = 30 * time.Second
)

const (
	stateInFlight  = "in_flight"
	stateCompleted = "completed"
)

type idempotentRecord struct {
	State  string `json:"state"`
	Status int    `json:"status,omitempty"`
	Body   []byte `json:"body,omitempty"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped per caller. Server errors are not stored so the client
// can retry them.
type Idempotency struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotency(client *redis.Client, ttl time.Duration) *Idempotency {
	return &Idempotency{client: client, ttl: ttl}
}

func (i *Idempotency) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(IdempotencyHeader)
		if raw == "" {
			c.Next()
			return
		}
		if _, err := uuid.Parse(raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Idempotency-Key must be a UUID",
			})
			return
		}

		scope := "anonymous"
		if identity, ok := GetIdentity(c); ok {
			scope = strconv.FormatInt(identity.UserID, 10)
		}
		key := "idempotency:" + scope + ":" + raw
		log := Logger(c).With(zap.String("idempotency_key", raw))
		ctx := c.Request.Context()

		claimed, err := i.claim(ctx, key)
		if err != nil {
			log.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}

		if !claimed {
			rec, err := i.load(ctx, key)
			switch {
			case errors.Is(err, redis.Nil):
				// expired between claim and load; let the client retry
				fallthrough
			case err == nil && rec.State == stateInFlight:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"code":    "REQUEST_IN_PROGRESS",
					"message": "A request with this Idempotency-Key is still being processed",
				})
			case err != nil:
				log.Warn("idempotency store unavailable", zap.Error(err))
				c.Next()
			default:
				log.Info("idempotency hit")
				c.Header(IdempotencyHitHeader, "true")
				c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
				c.Abort()
			}
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		storeCtx := context.WithoutCancel(ctx)
		status := rec.Status()
		if status >= http.StatusInternalServerError {
			if err := i.client.Del(storeCtx, key).Err(); err != nil {
				log.Warn("release idempotency key", zap.Error(err))
			}
			return
		}

		payload, err := json.Marshal(idempotentRecord{State: stateCompleted, Status: status, Body: rec.body.Bytes()})
		if err == nil {
			err = i.client.Set(storeCtx, key, payload, i.ttl).Err()
		}
		if err != nil {
			log.Error("save idempotent response", zap.Error(err))
		}
	}
}

func (i *Idempotency) claim(ctx context.Context, key string) (bool, error) {
	payload, _ := json.Marshal(idempotentRecord{State: stateInFlight})
	return i.client.SetNX(ctx, key, payload, inFlightTTL).Result()
}

func (i *Idempotency) load(ctx context.Context, key string) (idempotentRecord, error) {
	raw, err := i.client.Get(ctx, key).Bytes()
	if err != nil {
		return idempotentRecord{}, err
	}
	var rec idempotentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return idempotentRecord{}, err
	}
	return rec, nil
}

// bodyRecorder tees the response body so it can be stored after the handler.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
