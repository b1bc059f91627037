package engine

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Lavizord/roulette-server/internal/custody"
	"github.com/Lavizord/roulette-server/internal/metrics"
	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/internal/roulette"
	"github.com/Lavizord/roulette-server/logger"
)

// CreateRound opens a new round that becomes the current one.
func (e *Engine) CreateRound(ctx context.Context, closesAt time.Time) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !closesAt.After(e.now()) {
		return 0, fail(KindValidation, "create round", ErrClosingNotInFuture)
	}
	return e.createRound(ctx, closesAt), nil
}

// Bootstrap opens the first round when none exists yet and returns the current round id.
func (e *Engine) Bootstrap(ctx context.Context) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.current(); ok {
		return r.ID
	}
	return e.createRound(ctx, e.now().Add(e.cfg.BettingWindow))
}

func (e *Engine) createRound(ctx context.Context, closesAt time.Time) uint64 {
	r := &models.Round{
		ID:              uint64(len(e.rounds)) + 1,
		BettingClosesAt: closesAt,
		BetIDs:          []uint64{},
	}
	e.rounds = append(e.rounds, r)
	e.unresolved[r.ID] = struct{}{}
	metrics.RoundsCreated.Inc(1)

	e.saveRound(ctx, r)
	e.emit(ctx, models.Event{Kind: models.EventRoundCreated, RoundID: r.ID, ClosesAt: closesAt})
	logger.Default.Infof("[Engine] - round %d created, betting closes at %s", r.ID, closesAt.Format(time.RFC3339))
	return r.ID
}

// BetRequest is a wager as submitted by a player.
type BetRequest struct {
	Counterparty string         `json:"counterparty"`
	TokenID      string         `json:"token_id"`
	Kind         models.BetKind `json:"kind"`
	Numbers      models.Numbers `json:"numbers,omitempty"`
	Param        uint8          `json:"param,omitempty"`
}

// PlaceBet stakes a token on the current round. The token is in custody before the bet is
// recorded; if the transfer fails nothing is recorded.
func (e *Engine) PlaceBet(ctx context.Context, player string, req BetRequest) (uint64, error) {
	const op = "place bet"
	player = strings.TrimSpace(player)
	if player == "" {
		return 0, fail(KindValidation, op, ErrMissingCaller)
	}
	if strings.TrimSpace(req.TokenID) == "" {
		return 0, fail(KindValidation, op, errors.New("token id is required"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.whitelist.IsWhitelisted(ctx, req.Counterparty)
	if err != nil {
		return 0, fail(KindInternal, op, errors.Wrap(err, "whitelist lookup"))
	}
	if !ok {
		return 0, fail(KindAuthorization, op, errors.Wrap(ErrNotWhitelisted, req.Counterparty))
	}

	r, ok := e.current()
	if !ok {
		return 0, fail(KindState, op, ErrNoOpenRound)
	}
	now := e.now()
	if !r.BettingOpen(now) {
		return 0, fail(KindState, op, errors.Wrapf(ErrBettingClosed, "round %d closed at %s", r.ID, r.BettingClosesAt.Format(time.RFC3339)))
	}
	if err := roulette.Validate(req.Kind, req.Numbers, req.Param); err != nil {
		return 0, fail(KindValidation, op, err)
	}

	betID := uint64(len(e.bets)) + 1
	t := custody.NewTransfer(req.Counterparty, req.TokenID, player, e.cfg.Address, r.ID, betID, custody.ReasonStake)
	if err := e.custody.Transfer(ctx, t); err != nil {
		return 0, fail(KindInternal, op, errors.Wrap(err, "stake transfer"))
	}

	b := &models.Bet{
		ID:           betID,
		RoundID:      r.ID,
		Player:       player,
		Counterparty: req.Counterparty,
		TokenID:      req.TokenID,
		Kind:         req.Kind,
		Param:        req.Param,
		PlacedAt:     now,
	}
	if _, inside := roulette.RequiredNumbers(req.Kind); inside {
		b.Numbers = append([]uint8(nil), req.Numbers...)
	}
	e.bets = append(e.bets, b)
	r.BetIDs = append(r.BetIDs, b.ID)
	metrics.BetsPlaced.Inc(1)

	e.saveBet(ctx, b)
	e.saveRound(ctx, r)
	e.emit(ctx, models.Event{
		Kind:         models.EventBetPlaced,
		RoundID:      r.ID,
		BetID:        b.ID,
		Player:       player,
		Counterparty: b.Counterparty,
		TokenID:      b.TokenID,
	})
	return b.ID, nil
}
