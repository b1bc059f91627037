// Package engine runs the round lifecycle: it opens rounds, takes bets into custody, asks the
// oracle for randomness once betting closes, and settles every bet of a round exactly once.
//
// All mutating operations serialize on one lock. The oracle callback is the exception: it only
// writes into the randomness coordinator and never takes the engine lock.
package engine

import (
	"context"
	"io"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Lavizord/roulette-server/internal/custody"
	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/internal/notify"
	"github.com/Lavizord/roulette-server/internal/randomness"
	"github.com/Lavizord/roulette-server/logger"
)

type Config struct {
	// Address is the custody account holding staked tokens.
	Address    string
	HouseVault string
	// BettingWindow is the closing offset given to rounds created after a settlement.
	BettingWindow  time.Duration
	MinCallbackGas uint32
}

// Whitelist answers counterparty membership.
type Whitelist interface {
	IsWhitelisted(ctx context.Context, counterparty string) (bool, error)
}

// Journal mirrors engine state to durable storage. The engine keeps going when it fails.
type Journal interface {
	SaveRound(ctx context.Context, r models.Round) error
	SaveBet(ctx context.Context, b models.Bet) error
	SaveRandomness(ctx context.Context, rec models.RandomnessRecord) error
	SaveRefund(ctx context.Context, addr string, amount uint64) error
}

type Deps struct {
	Whitelist Whitelist
	Custody   custody.Transferer
	Payer     custody.Payer
	Oracle    randomness.Oracle
	Notifier  notify.Notifier
	Journal   Journal
	Now       func() time.Time
	// Entropy feeds seed derivation, crypto/rand when nil.
	Entropy io.Reader
}

type Engine struct {
	cfg       Config
	whitelist Whitelist
	custody   custody.Transferer
	payer     custody.Payer
	coord     *randomness.Coordinator
	notifier  notify.Notifier
	journal   Journal
	now       func() time.Time
	entropy   io.Reader

	mu sync.RWMutex
	// rounds[i] has id i+1, bets likewise. Nothing is ever removed.
	rounds     []*models.Round
	bets       []*models.Bet
	unresolved map[uint64]struct{}
	refunds    map[string]uint64
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Address == "" || cfg.HouseVault == "" {
		return nil, errors.New("engine address and house vault are required")
	}
	if cfg.BettingWindow <= 0 {
		return nil, errors.Errorf("betting window must be positive, got %s", cfg.BettingWindow)
	}
	if deps.Whitelist == nil || deps.Custody == nil || deps.Payer == nil || deps.Oracle == nil {
		return nil, errors.New("whitelist, custody, payer and oracle are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Log{}
	}
	return &Engine{
		cfg:        cfg,
		whitelist:  deps.Whitelist,
		custody:    deps.Custody,
		payer:      deps.Payer,
		coord:      randomness.NewCoordinator(deps.Oracle, deps.Now),
		notifier:   deps.Notifier,
		journal:    deps.Journal,
		now:        deps.Now,
		entropy:    deps.Entropy,
		unresolved: make(map[uint64]struct{}),
		refunds:    make(map[string]uint64),
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Fee is the oracle fee for a callback gas budget.
func (e *Engine) Fee(gasBudget uint32) (uint64, error) {
	fee, err := e.coord.Fee(gasBudget)
	if err != nil {
		return 0, fail(KindOracle, "fee", err)
	}
	return fee, nil
}

func (e *Engine) emit(ctx context.Context, ev models.Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.notifier.Notify(ctx, ev)
}

func (e *Engine) saveRound(ctx context.Context, r *models.Round) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveRound(ctx, cloneRound(r)); err != nil {
		logger.Default.Errorf("[Engine] - failed to mirror round %d: %v", r.ID, err)
	}
}

func (e *Engine) saveBet(ctx context.Context, b *models.Bet) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveBet(ctx, cloneBet(b)); err != nil {
		logger.Default.Errorf("[Engine] - failed to mirror bet %d: %v", b.ID, err)
	}
}

func (e *Engine) saveRefund(ctx context.Context, addr string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveRefund(ctx, addr, e.refunds[addr]); err != nil {
		logger.Default.Errorf("[Engine] - failed to mirror pending refund of %s: %v", addr, err)
	}
}

func (e *Engine) round(id uint64) (*models.Round, bool) {
	if id == 0 || id > uint64(len(e.rounds)) {
		return nil, false
	}
	return e.rounds[id-1], true
}

func (e *Engine) bet(id uint64) (*models.Bet, bool) {
	if id == 0 || id > uint64(len(e.bets)) {
		return nil, false
	}
	return e.bets[id-1], true
}

func (e *Engine) current() (*models.Round, bool) {
	if len(e.rounds) == 0 {
		return nil, false
	}
	return e.rounds[len(e.rounds)-1], true
}

// RoundStatus answers the status query for a round.
type RoundStatus struct {
	RoundID      uint64            `json:"round_id"`
	State        models.RoundState `json:"state"`
	RequestID    string            `json:"request_id,omitempty"`
	RawValue     *big.Int          `json:"raw_value,omitempty"`
	SettledAt    time.Time         `json:"settled_at,omitempty"`
	ResultNumber *uint8            `json:"result_number,omitempty"`
}

func (e *Engine) Status(roundID uint64) (RoundStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.round(roundID)
	if !ok {
		return RoundStatus{}, fail(KindNotFound, "status", ErrRoundNotFound)
	}
	st := RoundStatus{RoundID: r.ID, RequestID: r.RandomnessRequestID}
	var settled bool
	if r.RandomnessRequested {
		rec := e.coord.Status(r.RandomnessRequestID)
		settled = rec.Settled()
		st.RawValue = rec.Value
		st.SettledAt = rec.SettledAt
	}
	st.State = r.State(settled)
	if r.Resolved {
		n := r.ResultNumber
		st.ResultNumber = &n
	}
	return st, nil
}

// CurrentRound returns the round open for betting, the one with the highest id.
func (e *Engine) CurrentRound() (models.Round, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.current()
	if !ok {
		return models.Round{}, false
	}
	return cloneRound(r), true
}

func (e *Engine) Round(id uint64) (models.Round, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.round(id)
	if !ok {
		return models.Round{}, fail(KindNotFound, "round", ErrRoundNotFound)
	}
	return cloneRound(r), nil
}

func (e *Engine) Bet(id uint64) (models.Bet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.bet(id)
	if !ok {
		return models.Bet{}, fail(KindNotFound, "bet", ErrBetNotFound)
	}
	return cloneBet(b), nil
}

// Unresolved returns rounds that have not been settled yet, lowest id first.
func (e *Engine) Unresolved() []models.Round {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]uint64, 0, len(e.unresolved))
	for id := range e.unresolved {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.Round, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRound(e.rounds[id-1]))
	}
	return out
}

// PendingRefund is the amount owed to addr after a failed refund.
func (e *Engine) PendingRefund(addr string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.refunds[addr]
}

func cloneRound(r *models.Round) models.Round {
	c := *r
	c.BetIDs = append([]uint64(nil), r.BetIDs...)
	return c
}

func cloneBet(b *models.Bet) models.Bet {
	c := *b
	c.Numbers = append([]uint8(nil), b.Numbers...)
	return c
}
