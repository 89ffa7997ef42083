// Package natsrpc serves balance lookups over NATS request/reply for
// internal consumers that do not go through the HTTP edge.
package natsrpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/domain"
)

const (
	BalanceSubject = "ledger.balance"
	queueGroup     = "ledger-balance"
)

// BalanceSource answers authorized balance reads.
type BalanceSource interface {
	Balance(ctx context.Context, accountID int64, caller domain.Identity) (domain.Account, error)
}

type BalanceRequest struct {
	AccountID int64  `json:"account_id"`
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
}

type BalanceReply struct {
	AccountID   int64  `json:"account_id,omitempty"`
	AccountType string `json:"account_type,omitempty"`
	Balance     string `json:"balance,omitempty"`
	Code        string `json:"code,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Responder subscribes to BalanceSubject in a queue group so several
// instances share the load.
type Responder struct {
	nc      *nats.Conn
	source  BalanceSource
	log     *zap.Logger
	timeout time.Duration
	sub     *nats.Subscription
}

func NewResponder(nc *nats.Conn, source BalanceSource, log *zap.Logger) *Responder {
	return &Responder{
		nc:      nc,
		source:  source,
		log:     log,
		timeout: 2 * time.Second,
	}
}

// Start begins answering requests.
func (r *Responder) Start() error {
	sub, err := r.nc.QueueSubscribe(BalanceSubject, queueGroup, func(msg *nats.Msg) {
		if err := msg.Respond(r.handle(msg.Data)); err != nil {
			r.log.Warn("nats respond failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	r.sub = sub
	r.log.Info("nats balance responder started", zap.String("subject", BalanceSubject))
	return nil
}

// Stop drains the subscription.
func (r *Responder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Drain()
}

func (r *Responder) handle(data []byte) []byte {
	var req BalanceRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encode(BalanceReply{Code: string(domain.KindInvalidRequest), Error: "malformed request"})
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok || req.UserID <= 0 || req.AccountID <= 0 {
		return encode(BalanceReply{Code: string(domain.KindInvalidRequest), Error: "account_id, user_id and role are required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	acc, err := r.source.Balance(ctx, req.AccountID, domain.Identity{UserID: req.UserID, Role: role})
	if err != nil {
		kind := domain.KindOf(err)
		if kind == "" || kind == domain.KindStoreFailure {
			r.log.Error("balance lookup failed", zap.Int64("account_id", req.AccountID), zap.Error(err))
			return encode(BalanceReply{Code: string(domain.KindStoreFailure), Error: "internal error"})
		}
		return encode(BalanceReply{Code: string(kind), Error: err.Error()})
	}

	return encode(BalanceReply{
		AccountID:   acc.ID,
		AccountType: string(acc.Type),
		Balance:     acc.Balance.StringFixed(2),
	})
}

func encode(reply BalanceReply) []byte {
	b, _ := json.Marshal(reply)
	return b
}
