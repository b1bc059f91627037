package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/Lavizord/roulette-server/internal/custody"
	"github.com/Lavizord/roulette-server/internal/metrics"
	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/internal/roulette"
	"github.com/Lavizord/roulette-server/logger"
)

// FinalizeResult summarizes a settlement.
type FinalizeResult struct {
	RoundID      uint64 `json:"round_id"`
	ResultNumber uint8  `json:"result_number"`
	Won          int    `json:"won"`
	Lost         int    `json:"lost"`
	NextRoundID  uint64 `json:"next_round_id"`
}

// Finalize resolves a round whose randomness has been delivered and settles its bets.
func (e *Engine) Finalize(ctx context.Context, roundID uint64) (FinalizeResult, error) {
	const op = "finalize"
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.round(roundID)
	if !ok {
		return FinalizeResult{}, fail(KindNotFound, op, ErrRoundNotFound)
	}
	if !r.RandomnessRequested {
		return FinalizeResult{}, fail(KindState, op, errors.Wrapf(ErrNotRequested, "round %d", r.ID))
	}
	if r.Resolved {
		return FinalizeResult{}, fail(KindState, op, errors.Wrapf(ErrAlreadyResolved, "round %d", r.ID))
	}
	rec := e.coord.Status(r.RandomnessRequestID)
	if !rec.Settled() {
		return FinalizeResult{}, fail(KindState, op, errors.Wrapf(ErrRandomnessPending, "round %d request %s", r.ID, r.RandomnessRequestID))
	}

	r.ResultNumber = models.ResultNumber(rec.Value)
	res, err := e.settle(ctx, r)
	if err != nil {
		return res, fail(KindInternal, op, err)
	}
	return res, nil
}

// settle routes every unprocessed bet of r. A bet is marked processed only once its token
// has moved, so a failed transfer leaves the round unresolved and a later call picks up
// where this one stopped.
func (e *Engine) settle(ctx context.Context, r *models.Round) (FinalizeResult, error) {
	defer metrics.SettlementTime.UpdateSince(time.Now())
	res := FinalizeResult{RoundID: r.ID, ResultNumber: r.ResultNumber}

	for _, id := range r.BetIDs {
		b, ok := e.bet(id)
		if !ok || b.Processed {
			continue
		}
		won := roulette.Wins(b.Kind, b.Numbers, b.Param, r.ResultNumber)
		to, reason, kind := e.cfg.HouseVault, custody.ReasonHouse, models.EventBetLost
		if won {
			to, reason, kind = b.Player, custody.ReasonPayout, models.EventBetWon
		}
		t := custody.NewTransfer(b.Counterparty, b.TokenID, e.cfg.Address, to, r.ID, b.ID, reason)
		if err := e.custody.Transfer(ctx, t); err != nil {
			e.saveRound(ctx, r)
			return res, errors.Wrapf(err, "settling bet %d of round %d", b.ID, r.ID)
		}
		b.Processed = true
		b.Won = won
		if won {
			res.Won++
			metrics.BetsWon.Inc(1)
		} else {
			res.Lost++
			metrics.BetsLost.Inc(1)
		}
		e.saveBet(ctx, b)
		e.emit(ctx, models.Event{
			Kind:         kind,
			RoundID:      r.ID,
			BetID:        b.ID,
			Player:       b.Player,
			Counterparty: b.Counterparty,
			TokenID:      b.TokenID,
		})
	}

	r.Resolved = true
	r.ResolvedAt = e.now()
	delete(e.unresolved, r.ID)
	metrics.RoundsResolved.Inc(1)
	e.saveRound(ctx, r)
	n := r.ResultNumber
	e.emit(ctx, models.Event{Kind: models.EventRoundResolved, RoundID: r.ID, ResultNumber: &n})
	logger.Default.Infof("[Engine] - round %d resolved on %d: %d won, %d lost", r.ID, n, res.Won, res.Lost)

	res.NextRoundID = e.createRound(ctx, e.now().Add(e.cfg.BettingWindow))
	return res, nil
}
