// Package custody moves staked tokens and native value between parties. The engine only
// depends on the Transferer and Payer interfaces; the backing service is external.
package custody

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lavizord/roulette-server/logger"
)

type Reason string

const (
	ReasonStake  Reason = "stake"
	ReasonPayout Reason = "payout"
	ReasonHouse  Reason = "house"
)

// Transfer moves one token of a counterparty collection.
type Transfer struct {
	ID           string    `json:"id"`
	Counterparty string    `json:"counterparty"`
	TokenID      string    `json:"token_id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	RoundID      uint64    `json:"round_id"`
	BetID        uint64    `json:"bet_id,omitempty"`
	Reason       Reason    `json:"reason"`
	At           time.Time `json:"at"`
}

// NewTransfer fills the id and timestamp.
func NewTransfer(counterparty, tokenID, from, to string, roundID, betID uint64, reason Reason) Transfer {
	return Transfer{
		ID:           uuid.New().String(),
		Counterparty: counterparty,
		TokenID:      tokenID,
		From:         from,
		To:           to,
		RoundID:      roundID,
		BetID:        betID,
		Reason:       reason,
		At:           time.Now(),
	}
}

// Transferer either completes the transfer or returns an error having moved nothing.
type Transferer interface {
	Transfer(ctx context.Context, t Transfer) error
}

// Payer sends native value, used for fee refunds.
type Payer interface {
	Pay(ctx context.Context, to string, amount uint64) error
}

// Recorder keeps an audit trail of completed transfers.
type Recorder interface {
	SaveTransfer(ctx context.Context, t Transfer) error
}

// Audited records every successful transfer. A failing recorder is logged and never fails
// the transfer, which has already happened.
type Audited struct {
	Next     Transferer
	Recorder Recorder
}

func (a Audited) Transfer(ctx context.Context, t Transfer) error {
	if err := a.Next.Transfer(ctx, t); err != nil {
		return err
	}
	if err := a.Recorder.SaveTransfer(ctx, t); err != nil {
		logger.Default.Errorf("[custody] - transfer %s done but not audited: %v", t.ID, err)
	}
	return nil
}

// Ledger is an in-process custody service. It backs tests and single-node development runs.
type Ledger struct {
	mu       sync.Mutex
	owners   map[string]string
	balances map[string]uint64
	history  []Transfer
	failNext error
}

func NewLedger() *Ledger {
	return &Ledger{
		owners:   make(map[string]string),
		balances: make(map[string]uint64),
	}
}

func tokenKey(counterparty, tokenID string) string {
	return counterparty + "/" + tokenID
}

// Mint assigns a token to owner.
func (l *Ledger) Mint(counterparty, tokenID, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners[tokenKey(counterparty, tokenID)] = owner
}

// OwnerOf returns the current owner of a token, empty when unknown.
func (l *Ledger) OwnerOf(counterparty, tokenID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owners[tokenKey(counterparty, tokenID)]
}

// FailNext makes the next Transfer or Pay return err.
func (l *Ledger) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

func (l *Ledger) takeFailure() error {
	err := l.failNext
	l.failNext = nil
	return err
}

func (l *Ledger) Transfer(ctx context.Context, t Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.takeFailure(); err != nil {
		return err
	}
	key := tokenKey(t.Counterparty, t.TokenID)
	if owner := l.owners[key]; owner != t.From {
		return fmt.Errorf("[Ledger] - %s is owned by %q, not %q", key, owner, t.From)
	}
	l.owners[key] = t.To
	l.history = append(l.history, t)
	return nil
}

// Credit adds native balance, used to fund an account in tests.
func (l *Ledger) Credit(to string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] += amount
}

func (l *Ledger) Pay(ctx context.Context, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.takeFailure(); err != nil {
		return err
	}
	l.balances[to] += amount
	return nil
}

func (l *Ledger) BalanceOf(addr string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr]
}

// History returns the completed transfers in order.
func (l *Ledger) History() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transfer(nil), l.history...)
}
