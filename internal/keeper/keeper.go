// Package keeper drives rounds forward on a schedule: it asks for randomness once betting has
// closed, finalizes once the value is in, and reports rounds whose callback never came.
package keeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Lavizord/roulette-server/internal/engine"
	"github.com/Lavizord/roulette-server/internal/metrics"
	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/logger"
)

type Engine interface {
	Unresolved() []models.Round
	Status(roundID uint64) (engine.RoundStatus, error)
	RequestRandomness(ctx context.Context, caller string, roundID uint64, gasBudget uint32, payment uint64) (engine.RandomnessResult, error)
	Finalize(ctx context.Context, roundID uint64) (engine.FinalizeResult, error)
}

type Config struct {
	// Address pays the oracle fee and receives refunds.
	Address    string
	Fee        uint64
	GasBudget  uint32
	StuckAfter time.Duration
}

type Keeper struct {
	eng  Engine
	cfg  Config
	now  func() time.Time
	cron *cron.Cron
}

// Report is what one pass did.
type Report struct {
	Requested []uint64
	Finalized []uint64
	Stuck     []uint64
	Failed    []uint64
}

func New(eng Engine, cfg Config) *Keeper {
	return &Keeper{eng: eng, cfg: cfg, now: time.Now}
}

// Tick makes one pass over the unresolved rounds. A round whose request is outstanding is
// never asked for randomness again, however long it has been waiting.
func (k *Keeper) Tick(ctx context.Context) Report {
	var rep Report
	now := k.now()
	for _, r := range k.eng.Unresolved() {
		if !r.RandomnessRequested {
			if r.BettingOpen(now) {
				continue
			}
			res, err := k.eng.RequestRandomness(ctx, k.cfg.Address, r.ID, k.cfg.GasBudget, k.cfg.Fee)
			if err != nil {
				logger.Default.Errorf("[Keeper] - randomness request for round %d failed: %v", r.ID, err)
				rep.Failed = append(rep.Failed, r.ID)
				continue
			}
			if res.RefundErr != nil {
				logger.Default.Warnf("[Keeper] - %v", res.RefundErr)
			}
			rep.Requested = append(rep.Requested, r.ID)
			continue
		}

		st, err := k.eng.Status(r.ID)
		if err != nil {
			rep.Failed = append(rep.Failed, r.ID)
			continue
		}
		if st.State == models.RoundRandomnessSettled {
			if _, err := k.eng.Finalize(ctx, r.ID); err != nil {
				logger.Default.Errorf("[Keeper] - finalize of round %d failed: %v", r.ID, err)
				rep.Failed = append(rep.Failed, r.ID)
				continue
			}
			rep.Finalized = append(rep.Finalized, r.ID)
			continue
		}
		if k.cfg.StuckAfter > 0 && now.Sub(r.RequestedAt) > k.cfg.StuckAfter {
			logger.Default.Warnf("[Keeper] - round %d has waited %s for randomness %s", r.ID, now.Sub(r.RequestedAt).Truncate(time.Second), r.RandomnessRequestID)
			rep.Stuck = append(rep.Stuck, r.ID)
		}
	}
	metrics.StuckRounds.Update(int64(len(rep.Stuck)))
	return rep
}

// Start runs Tick on spec until Stop. Overlapping runs are skipped.
func (k *Keeper) Start(spec string) error {
	c := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	_, err := c.AddFunc(spec, func() {
		rep := k.Tick(context.Background())
		if len(rep.Requested)+len(rep.Finalized) > 0 {
			logger.Default.Infof("[Keeper] - requested %v, finalized %v", rep.Requested, rep.Finalized)
		}
	})
	if err != nil {
		return err
	}
	k.cron = c
	c.Start()
	logger.Default.Infof("[Keeper] - running on %q", spec)
	return nil
}

// Stop waits for a running pass to finish.
func (k *Keeper) Stop() {
	if k.cron != nil {
		<-k.cron.Stop().Done()
	}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Default.Debugw("[Keeper] - "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Default.Errorw("[Keeper] - "+msg, append(keysAndValues, "error", err)...)
}
