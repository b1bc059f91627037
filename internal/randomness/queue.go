package randomness

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	RequestQueue  = "randomness_requests"
	CallbackQueue = "randomness_callbacks"
)

// Request is what gets queued for the oracle.
type Request struct {
	RequestID   string    `json:"request_id"`
	Seed        Seed      `json:"seed"`
	Fee         uint64    `json:"fee"`
	GasBudget   uint32    `json:"gas_budget"`
	RequestedAt time.Time `json:"requested_at"`
}

// Callback is what the oracle sends back.
type Callback struct {
	RequestID string   `json:"request_id"`
	Value     *big.Int `json:"value"`
}

// Pusher is the queue write side, implemented by redisdb.RedisClient.
type Pusher interface {
	RPushGeneric(queue string, data []byte) error
}

// QueueOracle hands requests to an oracle worker through a list queue. Identifiers are uuids
// handed out by NewRequestID, ahead of the push.
type QueueOracle struct {
	FeeSchedule
	queue Pusher
	now   func() time.Time
}

func NewQueueOracle(queue Pusher, fees FeeSchedule) *QueueOracle {
	return &QueueOracle{FeeSchedule: fees, queue: queue, now: time.Now}
}

func (o *QueueOracle) NewRequestID() string {
	return uuid.New().String()
}

func (o *QueueOracle) Request(ctx context.Context, requestID string, seed Seed, fee uint64, gasBudget uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want, err := o.Fee(gasBudget)
	if err != nil {
		return fmt.Errorf("[QueueOracle] - %w", err)
	}
	if fee < want {
		return fmt.Errorf("[QueueOracle] - fee %d below required %d", fee, want)
	}
	req := Request{
		RequestID:   requestID,
		Seed:        seed,
		Fee:         fee,
		GasBudget:   gasBudget,
		RequestedAt: o.now(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("[QueueOracle] - failed to serialize request: %w", err)
	}
	if err := o.queue.RPushGeneric(RequestQueue, data); err != nil {
		return fmt.Errorf("[QueueOracle] - failed to queue request: %w", err)
	}
	return nil
}

// Simulator answers queued requests the way a development oracle would.
type Simulator struct {
	Secret []byte
}

func (s Simulator) Answer(req Request) Callback {
	return Callback{RequestID: req.RequestID, Value: HMACValue(s.Secret, req.Seed, req.RequestID)}
}

func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("invalid randomness request: %w", err)
	}
	return req, nil
}

func DecodeCallback(data []byte) (Callback, error) {
	var cb Callback
	if err := json.Unmarshal(data, &cb); err != nil {
		return Callback{}, fmt.Errorf("invalid randomness callback: %w", err)
	}
	return cb, nil
}
