package models

import (
	"time"
)

type EventKind string

const (
	EventRoundCreated            EventKind = "round_created"
	EventRandomnessRequested     EventKind = "randomness_requested"
	EventRandomnessFulfilled     EventKind = "randomness_fulfilled"
	EventRoundResolved           EventKind = "round_resolved"
	EventBetPlaced               EventKind = "bet_placed"
	EventBetWon                  EventKind = "bet_won"
	EventBetLost                 EventKind = "bet_lost"
	EventCounterpartyWhitelisted EventKind = "counterparty_whitelisted"
	EventCounterpartyRemoved     EventKind = "counterparty_removed"
	EventRefundFailed            EventKind = "refund_failed"
)

// Event is a notification for observers and indexers. Only the fields relevant to Kind are set.
type Event struct {
	Kind         EventKind `json:"kind"`
	RoundID      uint64    `json:"round_id,omitempty"`
	BetID        uint64    `json:"bet_id,omitempty"`
	Player       string    `json:"player,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	TokenID      string    `json:"token_id,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	ResultNumber *uint8    `json:"result_number,omitempty"`
	Amount       uint64    `json:"amount,omitempty"`
	ClosesAt     time.Time `json:"closes_at,omitempty"`
	At           time.Time `json:"at"`
}
