package engine

import (
	"context"
	"math/big"
	"strings"

	"github.com/pkg/errors"

	"github.com/Lavizord/roulette-server/internal/metrics"
	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/internal/randomness"
	"github.com/Lavizord/roulette-server/logger"
)

// RandomnessResult is returned by RequestRandomness.
type RandomnessResult struct {
	RoundID   uint64 `json:"round_id"`
	RequestID string `json:"request_id"`
	Fee       uint64 `json:"fee"`
	Refunded  uint64 `json:"refunded"`
	// RefundErr is set when the overpayment could not be returned. The amount is kept as a
	// pending refund for the caller and can be claimed with ClaimRefund.
	RefundErr error `json:"-"`
}

// RequestRandomness asks the oracle for the value that decides a closed round. payment is
// what the caller sent; anything above the oracle fee is refunded.
func (e *Engine) RequestRandomness(ctx context.Context, caller string, roundID uint64, gasBudget uint32, payment uint64) (RandomnessResult, error) {
	const op = "request randomness"
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return RandomnessResult{}, fail(KindValidation, op, ErrMissingCaller)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.round(roundID)
	if !ok {
		return RandomnessResult{}, fail(KindNotFound, op, ErrRoundNotFound)
	}
	now := e.now()
	if r.BettingOpen(now) {
		return RandomnessResult{}, fail(KindState, op, errors.Wrapf(ErrBettingOpen, "round %d", r.ID))
	}
	if r.RandomnessRequested {
		return RandomnessResult{}, fail(KindState, op, errors.Wrapf(ErrAlreadyRequested, "round %d", r.ID))
	}
	if gasBudget < e.cfg.MinCallbackGas {
		return RandomnessResult{}, fail(KindOracle, op, errors.Wrapf(ErrGasBelowFloor, "%d < %d", gasBudget, e.cfg.MinCallbackGas))
	}
	fee, err := e.coord.Fee(gasBudget)
	if err != nil {
		return RandomnessResult{}, fail(KindOracle, op, err)
	}
	if payment < fee {
		return RandomnessResult{}, fail(KindOracle, op, errors.Wrapf(ErrInsufficientFee, "paid %d, fee is %d", payment, fee))
	}

	seed, err := randomness.DeriveSeed(e.cfg.Address, r.ID, now, e.entropy)
	if err != nil {
		return RandomnessResult{}, fail(KindInternal, op, err)
	}
	requestID, err := e.coord.Request(ctx, r.ID, seed, fee, gasBudget)
	if err != nil {
		return RandomnessResult{}, fail(KindOracle, op, err)
	}

	r.RandomnessRequestID = requestID
	r.RandomnessRequested = true
	r.RequestedAt = now
	metrics.RandomnessAsked.Inc(1)
	e.saveRound(ctx, r)
	e.emit(ctx, models.Event{Kind: models.EventRandomnessRequested, RoundID: r.ID, RequestID: requestID, Amount: fee})
	logger.Default.Infof("[Engine] - round %d requested randomness %s (fee %d, gas %d)", r.ID, requestID, fee, gasBudget)

	res := RandomnessResult{RoundID: r.ID, RequestID: requestID, Fee: fee}
	if over := payment - fee; over > 0 {
		if err := e.payer.Pay(ctx, caller, over); err != nil {
			// The oracle request cannot be taken back, so the request stands and the caller is
			// owed the difference.
			e.refunds[caller] += over
			e.saveRefund(ctx, caller)
			metrics.RefundsFailed.Inc(1)
			res.RefundErr = fail(KindRefund, op, errors.Wrapf(err, "refund of %d to %s", over, caller))
			logger.Default.Warnf("[Engine] - %v, kept as pending refund", res.RefundErr)
			e.emit(ctx, models.Event{Kind: models.EventRefundFailed, RoundID: r.ID, Player: caller, Amount: over})
		} else {
			res.Refunded = over
		}
	}
	return res, nil
}

// FulfillRandomness is the oracle callback. It never fails: unknown, stale or repeated
// request ids are ignored and reported through the return value only.
func (e *Engine) FulfillRandomness(ctx context.Context, requestID string, value *big.Int) (ignored bool) {
	defer func() {
		if p := recover(); p != nil {
			logger.Default.Errorf("[Engine] - randomness callback %s panicked: %v", requestID, p)
			ignored = true
		}
	}()

	roundID, ok := e.coord.RecordCallback(requestID, value)
	if !ok {
		metrics.CallbacksIgnored.Inc(1)
		logger.Default.Warnf("[Engine] - ignoring randomness callback for request %q", requestID)
		return true
	}
	metrics.CallbacksRecorded.Inc(1)

	rec := e.coord.Status(requestID)
	if e.journal != nil {
		if err := e.journal.SaveRandomness(ctx, rec); err != nil {
			logger.Default.Errorf("[Engine] - failed to mirror randomness %s: %v", requestID, err)
		}
	}
	e.emit(ctx, models.Event{Kind: models.EventRandomnessFulfilled, RoundID: roundID, RequestID: requestID, At: rec.SettledAt})
	return false
}

// ClaimRefund pays out a pending refund left behind by a failed overpayment refund.
func (e *Engine) ClaimRefund(ctx context.Context, caller string) (uint64, error) {
	const op = "claim refund"
	e.mu.Lock()
	defer e.mu.Unlock()

	amount := e.refunds[caller]
	if amount == 0 {
		return 0, fail(KindState, op, ErrNothingToRefund)
	}
	if err := e.payer.Pay(ctx, caller, amount); err != nil {
		return 0, fail(KindRefund, op, errors.Wrapf(err, "refund of %d to %s", amount, caller))
	}
	delete(e.refunds, caller)
	e.saveRefund(ctx, caller)
	return amount, nil
}
