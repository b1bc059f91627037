package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/logger"
)

// Snapshot is the engine state as kept by a Journal.
type Snapshot struct {
	Rounds     []models.Round            `json:"rounds"`
	Bets       []models.Bet              `json:"bets"`
	Randomness []models.RandomnessRecord `json:"randomness"`
	Refunds    map[string]uint64         `json:"refunds"`
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Snapshot{
		Rounds:  make([]models.Round, 0, len(e.rounds)),
		Bets:    make([]models.Bet, 0, len(e.bets)),
		Refunds: make(map[string]uint64, len(e.refunds)),
	}
	for _, r := range e.rounds {
		s.Rounds = append(s.Rounds, cloneRound(r))
		if r.RandomnessRequested {
			s.Randomness = append(s.Randomness, e.coord.Status(r.RandomnessRequestID))
		}
	}
	for _, b := range e.bets {
		s.Bets = append(s.Bets, cloneBet(b))
	}
	for addr, amount := range e.refunds {
		s.Refunds[addr] = amount
	}
	return s
}

// Restore loads a snapshot into an engine that has not been used yet. Rounds and bets must be
// sorted by id with ids 1..n.
func (e *Engine) Restore(ctx context.Context, s Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.rounds) > 0 || len(e.bets) > 0 {
		return fail(KindState, "restore", errors.New("engine already holds state"))
	}
	for i, r := range s.Rounds {
		if r.ID != uint64(i)+1 {
			return fail(KindValidation, "restore", errors.Wrapf(ErrSnapshotGap, "round at %d has id %d", i, r.ID))
		}
	}
	for i, b := range s.Bets {
		if b.ID != uint64(i)+1 {
			return fail(KindValidation, "restore", errors.Wrapf(ErrSnapshotGap, "bet at %d has id %d", i, b.ID))
		}
		if b.RoundID == 0 || b.RoundID > uint64(len(s.Rounds)) {
			return fail(KindValidation, "restore", errors.Errorf("bet %d references unknown round %d", b.ID, b.RoundID))
		}
	}

	records := make(map[string]models.RandomnessRecord, len(s.Randomness))
	for _, rec := range s.Randomness {
		records[rec.RequestID] = rec
	}
	for i := range s.Rounds {
		r := s.Rounds[i]
		e.rounds = append(e.rounds, &r)
		if !r.Resolved {
			e.unresolved[r.ID] = struct{}{}
		}
		if r.RandomnessRequested && r.RandomnessRequestID != "" {
			rec, ok := records[r.RandomnessRequestID]
			if !ok {
				rec = models.RandomnessRecord{RequestID: r.RandomnessRequestID}
			}
			e.coord.Restore(r.ID, rec)
		}
	}
	for i := range s.Bets {
		b := s.Bets[i]
		e.bets = append(e.bets, &b)
	}
	for addr, amount := range s.Refunds {
		if amount > 0 {
			e.refunds[addr] = amount
		}
	}
	logger.Default.Infof("[Engine] - restored %d rounds, %d bets, %d unresolved", len(e.rounds), len(e.bets), len(e.unresolved))
	return nil
}
