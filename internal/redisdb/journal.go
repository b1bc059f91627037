package redisdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/Lavizord/roulette-server/internal/engine"
	"github.com/Lavizord/roulette-server/internal/models"
)

func (r *RedisClient) SaveRound(ctx context.Context, round models.Round) error {
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("[RedisClient] - failed to serialize round: %v", err)
	}
	return r.Client.HSet(ctx, roundsKey, idField(round.ID), data).Err()
}

// SaveBet stores the bet and, the first time it is seen, appends it to its round's list.
func (r *RedisClient) SaveBet(ctx context.Context, bet models.Bet) error {
	data, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("[RedisClient] - failed to serialize bet: %v", err)
	}
	added, err := r.Client.HSet(ctx, betsKey, idField(bet.ID), data).Result()
	if err != nil {
		return err
	}
	if added == 0 {
		return nil
	}
	return r.Client.RPush(ctx, RoundBetsKey(bet.RoundID), idField(bet.ID)).Err()
}

func (r *RedisClient) SaveRandomness(ctx context.Context, rec models.RandomnessRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("[RedisClient] - failed to serialize randomness: %v", err)
	}
	return r.Client.HSet(ctx, randomnessKey, rec.RequestID, data).Err()
}

// SaveRefund keeps the pending refund of addr, a zero amount clears it.
func (r *RedisClient) SaveRefund(ctx context.Context, addr string, amount uint64) error {
	if amount == 0 {
		return r.Client.HDel(ctx, refundsKey, addr).Err()
	}
	return r.Client.HSet(ctx, refundsKey, addr, strconv.FormatUint(amount, 10)).Err()
}

// RoundBetIDs reads the bet list of a round.
func (r *RedisClient) RoundBetIDs(ctx context.Context, roundID uint64) ([]uint64, error) {
	raw, err := r.Client.LRange(ctx, RoundBetsKey(roundID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("[RedisClient] - failed to read bets of round %d: %v", roundID, err)
	}
	ids := make([]uint64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("[RedisClient] - bad bet id %q in round %d", s, roundID)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LoadSnapshot reads the mirrored state back for engine.Restore.
func (r *RedisClient) LoadSnapshot(ctx context.Context) (engine.Snapshot, error) {
	rounds, err := r.Client.HGetAll(ctx, roundsKey).Result()
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("[RedisClient] - failed to load rounds: %v", err)
	}
	bets, err := r.Client.HGetAll(ctx, betsKey).Result()
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("[RedisClient] - failed to load bets: %v", err)
	}
	records, err := r.Client.HGetAll(ctx, randomnessKey).Result()
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("[RedisClient] - failed to load randomness: %v", err)
	}
	refunds, err := r.Client.HGetAll(ctx, refundsKey).Result()
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("[RedisClient] - failed to load refunds: %v", err)
	}
	return buildSnapshot(rounds, bets, records, refunds)
}

func buildSnapshot(rounds, bets, records, refunds map[string]string) (engine.Snapshot, error) {
	s := engine.Snapshot{
		Rounds:     make([]models.Round, 0, len(rounds)),
		Bets:       make([]models.Bet, 0, len(bets)),
		Randomness: make([]models.RandomnessRecord, 0, len(records)),
		Refunds:    make(map[string]uint64, len(refunds)),
	}
	for field, data := range rounds {
		var round models.Round
		if err := json.Unmarshal([]byte(data), &round); err != nil {
			return engine.Snapshot{}, fmt.Errorf("[RedisClient] - failed to deserialize round %s: %v", field, err)
		}
		s.Rounds = append(s.Rounds, round)
	}
	for field, data := range bets {
		var bet models.Bet
		if err := json.Unmarshal([]byte(data), &bet); err != nil {
			return engine.Snapshot{}, fmt.Errorf("[RedisClient] - failed to deserialize bet %s: %v", field, err)
		}
		s.Bets = append(s.Bets, bet)
	}
	for field, data := range records {
		var rec models.RandomnessRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return engine.Snapshot{}, fmt.Errorf("[RedisClient] - failed to deserialize randomness %s: %v", field, err)
		}
		s.Randomness = append(s.Randomness, rec)
	}
	for addr, raw := range refunds {
		amount, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return engine.Snapshot{}, fmt.Errorf("[RedisClient] - bad refund amount for %s: %v", addr, err)
		}
		s.Refunds[addr] = amount
	}
	sort.Slice(s.Rounds, func(i, j int) bool { return s.Rounds[i].ID < s.Rounds[j].ID })
	sort.Slice(s.Bets, func(i, j int) bool { return s.Bets[i].ID < s.Bets[j].ID })
	return s, nil
}
