// Package randomness correlates rounds with requests made to an external randomness oracle
// and keeps what the oracle delivered.
package randomness

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Lavizord/roulette-server/internal/models"
)

// ErrDuplicateRequest is returned when an oracle hands out an identifier that is already bound
// to a round. Nothing is forwarded to the oracle in that case.
var ErrDuplicateRequest = errors.New("randomness request id already bound to a round")

// Oracle is the request half of a two-phase randomness service. The value arrives later
// through Coordinator.RecordCallback, possibly before Request has returned.
type Oracle interface {
	Fee(gasBudget uint32) (uint64, error)
	// NewRequestID allocates the identifier the oracle will answer with.
	NewRequestID() string
	Request(ctx context.Context, requestID string, seed Seed, fee uint64, gasBudget uint32) error
}

type Coordinator struct {
	oracle Oracle
	now    func() time.Time

	mu      sync.Mutex
	rounds  map[string]uint64
	records map[string]models.RandomnessRecord
}

func NewCoordinator(oracle Oracle, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		oracle:  oracle,
		now:     now,
		rounds:  make(map[string]uint64),
		records: make(map[string]models.RandomnessRecord),
	}
}

// Fee is the amount the oracle charges for a request with the given callback gas budget.
func (c *Coordinator) Fee(gasBudget uint32) (uint64, error) {
	return c.oracle.Fee(gasBudget)
}

// Request binds a fresh identifier to roundID and only then forwards seed and fee to the
// oracle, so a callback can be recorded as soon as the oracle has the request. The binding is
// dropped again when the oracle refuses.
func (c *Coordinator) Request(ctx context.Context, roundID uint64, seed Seed, fee uint64, gasBudget uint32) (string, error) {
	requestID := c.oracle.NewRequestID()
	if requestID == "" {
		return "", errors.Errorf("oracle allocated an empty request id for round %d", roundID)
	}

	c.mu.Lock()
	if owner, ok := c.rounds[requestID]; ok {
		c.mu.Unlock()
		return "", errors.Wrapf(ErrDuplicateRequest, "%s is bound to round %d", requestID, owner)
	}
	c.rounds[requestID] = roundID
	c.mu.Unlock()

	if err := c.oracle.Request(ctx, requestID, seed, fee, gasBudget); err != nil {
		c.mu.Lock()
		delete(c.rounds, requestID)
		delete(c.records, requestID)
		c.mu.Unlock()
		return "", errors.Wrapf(err, "oracle request for round %d", roundID)
	}
	return requestID, nil
}

// RecordCallback stores the oracle value for requestID. Unknown identifiers, nil values and
// repeated deliveries are ignored; ok reports whether the value was written.
func (c *Coordinator) RecordCallback(requestID string, value *big.Int) (roundID uint64, ok bool) {
	if value == nil {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	roundID, known := c.rounds[requestID]
	if !known {
		return 0, false
	}
	if _, settled := c.records[requestID]; settled {
		return roundID, false
	}
	c.records[requestID] = models.RandomnessRecord{
		RequestID: requestID,
		RoundID:   roundID,
		Value:     new(big.Int).Set(value),
		SettledAt: c.now(),
	}
	return roundID, true
}

// Status returns what is known for requestID. The record is zero-valued apart from the ids
// until the callback has arrived.
func (c *Coordinator) Status(requestID string) models.RandomnessRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.records[requestID]; ok {
		rec.Value = new(big.Int).Set(rec.Value)
		return rec
	}
	return models.RandomnessRecord{RequestID: requestID, RoundID: c.rounds[requestID]}
}

// RoundFor returns the round bound to requestID.
func (c *Coordinator) RoundFor(requestID string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	roundID, ok := c.rounds[requestID]
	return roundID, ok
}

// Restore rebinds a request and, when rec is settled, its value. It is used when rebuilding
// state from the mirror and never overwrites an existing value.
func (c *Coordinator) Restore(roundID uint64, rec models.RandomnessRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds[rec.RequestID] = roundID
	if rec.Settled() && rec.Value != nil {
		if _, ok := c.records[rec.RequestID]; !ok {
			rec.RoundID = roundID
			c.records[rec.RequestID] = rec
		}
	}
}
