package models

import (
	"math/big"
	"time"
)

// Pockets is the number of outcomes on the wheel: 0..36 plus the second zero, stored as 37.
const Pockets = 38

// DoubleZero is the value used for the second-zero pocket.
const DoubleZero uint8 = 37

type RoundState string

const (
	RoundOpen               RoundState = "open"
	RoundAwaitingRandomness RoundState = "awaiting_randomness"
	RoundRandomnessSettled  RoundState = "randomness_settled"
	RoundResolved           RoundState = "resolved"
)

// Round is one open-bet, close, randomize, resolve cycle.
type Round struct {
	ID                  uint64    `json:"id"`
	BettingClosesAt     time.Time `json:"betting_closes_at"`
	Resolved            bool      `json:"resolved"`
	RandomnessRequested bool      `json:"randomness_requested"`
	ResultNumber        uint8     `json:"result_number"`
	RandomnessRequestID string    `json:"randomness_request_id,omitempty"`
	RequestedAt         time.Time `json:"requested_at,omitempty"`
	ResolvedAt          time.Time `json:"resolved_at,omitempty"`
	BetIDs              []uint64  `json:"bet_ids"`
}

// BettingOpen reports whether bets are accepted at now.
func (r *Round) BettingOpen(now time.Time) bool {
	return now.Before(r.BettingClosesAt)
}

// State derives the lifecycle phase. settled says whether the oracle has delivered a value
// for the round's request.
func (r *Round) State(settled bool) RoundState {
	switch {
	case r.Resolved:
		return RoundResolved
	case r.RandomnessRequested && settled:
		return RoundRandomnessSettled
	case r.RandomnessRequested:
		return RoundAwaitingRandomness
	default:
		return RoundOpen
	}
}

// RandomnessRecord holds what the oracle delivered for one request identifier.
type RandomnessRecord struct {
	RequestID string    `json:"request_id"`
	RoundID   uint64    `json:"round_id"`
	Value     *big.Int  `json:"value,omitempty"`
	SettledAt time.Time `json:"settled_at,omitempty"`
}

// Settled reports whether the callback has arrived.
func (r RandomnessRecord) Settled() bool {
	return !r.SettledAt.IsZero()
}

// ResultNumber reduces an oracle value to a pocket number.
func ResultNumber(value *big.Int) uint8 {
	m := new(big.Int).Mod(value, big.NewInt(Pockets))
	return uint8(m.Uint64())
}
