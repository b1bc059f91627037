package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lavizord/roulette-server/internal/custody"
	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/internal/notify"
	"github.com/Lavizord/roulette-server/internal/randomness"
	"github.com/Lavizord/roulette-server/internal/whitelist"
)

const (
	engineAddr = "engine"
	vault      = "vault"
	apes       = "apes"
	gas        = uint32(50_000)
	fee        = uint64(10)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeOracle struct {
	randomness.FeeSchedule
	mu    sync.Mutex
	ids   int
	calls int
	err   error
	// answer, when set, runs inside Request before it returns.
	answer func(requestID string)
}

func (o *fakeOracle) NewRequestID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids++
	return fmt.Sprintf("req-%d", o.ids)
}

func (o *fakeOracle) Request(ctx context.Context, requestID string, seed randomness.Seed, fee uint64, gas uint32) error {
	o.mu.Lock()
	err, answer := o.err, o.answer
	if err == nil {
		o.calls++
	}
	o.mu.Unlock()
	if err != nil {
		return err
	}
	if answer != nil {
		answer(requestID)
	}
	return nil
}

type fixture struct {
	eng    *Engine
	clock  *clock
	ledger *custody.Ledger
	oracle *fakeOracle
	events *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:  &clock{now: time.Unix(1_700_000_000, 0).UTC()},
		ledger: custody.NewLedger(),
		oracle: &fakeOracle{FeeSchedule: randomness.FeeSchedule{BaseFee: fee}},
		events: &notify.Recorder{},
	}
	eng, err := New(Config{
		Address:        engineAddr,
		HouseVault:     vault,
		BettingWindow:  5 * time.Minute,
		MinCallbackGas: gas,
	}, Deps{
		Whitelist: whitelist.NewRegistry(whitelist.NewMemory(apes), nil),
		Custody:   f.ledger,
		Payer:     f.ledger,
		Oracle:    f.oracle,
		Notifier:  f.events,
		Now:       f.clock.Now,
	})
	require.NoError(t, err)
	f.eng = eng
	return f
}

// open creates a round closing in 10 seconds and mints the given tokens to alice.
func (f *fixture) open(t *testing.T, tokens ...string) uint64 {
	t.Helper()
	for _, tok := range tokens {
		f.ledger.Mint(apes, tok, "alice")
	}
	id, err := f.eng.CreateRound(context.Background(), f.clock.Now().Add(10*time.Second))
	require.NoError(t, err)
	return id
}

func (f *fixture) closeAndRequest(t *testing.T, roundID uint64) string {
	t.Helper()
	f.clock.Advance(11 * time.Second)
	res, err := f.eng.RequestRandomness(context.Background(), "keeper", roundID, gas, fee)
	require.NoError(t, err)
	return res.RequestID
}

func straight(tok string, n uint8) BetRequest {
	return BetRequest{Counterparty: apes, TokenID: tok, Kind: models.Straight, Numbers: []uint8{n}}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{Address: engineAddr, HouseVault: vault, BettingWindow: time.Minute}, Deps{})
	assert.Error(t, err)
	_, err = New(Config{Address: engineAddr, BettingWindow: time.Minute}, Deps{})
	assert.Error(t, err)
}

func TestEndToEnd(t *testing.T) {
	cases := []struct {
		name    string
		value   *big.Int
		owner   string
		outcome models.EventKind
	}{
		{"win returns token to player", big.NewInt(38*1000 + 17), "alice", models.EventBetWon},
		{"loss sends token to vault", big.NewInt(38*1000 + 5), vault, models.EventBetLost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			roundID := f.open(t, "T")

			betID, err := f.eng.PlaceBet(ctx, "alice", straight("T", 17))
			require.NoError(t, err)
			assert.Equal(t, engineAddr, f.ledger.OwnerOf(apes, "T"))

			reqID := f.closeAndRequest(t, roundID)
			assert.False(t, f.eng.FulfillRandomness(ctx, reqID, tc.value))

			res, err := f.eng.Finalize(ctx, roundID)
			require.NoError(t, err)
			assert.Equal(t, tc.owner, f.ledger.OwnerOf(apes, "T"))
			assert.Equal(t, uint8(new(big.Int).Mod(tc.value, big.NewInt(38)).Uint64()), res.ResultNumber)

			outcome := f.events.OfKind(tc.outcome)
			require.Len(t, outcome, 1)
			assert.Equal(t, betID, outcome[0].BetID)

			resolved := f.events.OfKind(models.EventRoundResolved)
			require.Len(t, resolved, 1)
			require.NotNil(t, resolved[0].ResultNumber)
			assert.Equal(t, res.ResultNumber, *resolved[0].ResultNumber)

			bet, err := f.eng.Bet(betID)
			require.NoError(t, err)
			assert.True(t, bet.Processed)

			next, ok := f.eng.CurrentRound()
			require.True(t, ok)
			assert.Equal(t, roundID+1, next.ID)
			assert.Equal(t, res.NextRoundID, next.ID)
			assert.Equal(t, f.clock.Now().Add(5*time.Minute), next.BettingClosesAt)
			assert.False(t, next.Resolved)
			assert.Len(t, f.events.OfKind(models.EventRoundCreated), 2)
		})
	}
}

func TestFinalizeTwiceRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roundID := f.open(t, "T")
	_, err := f.eng.PlaceBet(ctx, "alice", straight("T", 17))
	require.NoError(t, err)
	reqID := f.closeAndRequest(t, roundID)
	f.eng.FulfillRandomness(ctx, reqID, big.NewInt(17))

	_, err = f.eng.Finalize(ctx, roundID)
	require.NoError(t, err)
	transfers := len(f.ledger.History())

	_, err = f.eng.Finalize(ctx, roundID)
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))
	assert.True(t, errors.Is(err, ErrAlreadyResolved))
	assert.Len(t, f.ledger.History(), transfers)
	assert.Len(t, f.events.OfKind(models.EventBetWon), 1)
	assert.Len(t, f.events.OfKind(models.EventRoundCreated), 2)
}

func TestFinalizeOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roundID := f.open(t)

	_, err := f.eng.Finalize(ctx, roundID)
	assert.True(t, errors.Is(err, ErrNotRequested))
	assert.Equal(t, KindState, KindOf(err))

	f.closeAndRequest(t, roundID)
	_, err = f.eng.Finalize(ctx, roundID)
	assert.True(t, errors.Is(err, ErrRandomnessPending))
	assert.Equal(t, KindState, KindOf(err))

	_, err = f.eng.Finalize(ctx, 99)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCallbackIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roundID := f.open(t)
	reqID := f.closeAndRequest(t, roundID)

	assert.True(t, f.eng.FulfillRandomness(ctx, "unknown", big.NewInt(1)))
	assert.True(t, f.eng.FulfillRandomness(ctx, reqID, nil))

	assert.False(t, f.eng.FulfillRandomness(ctx, reqID, big.NewInt(38+4)))
	first, err := f.eng.Status(roundID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	assert.True(t, f.eng.FulfillRandomness(ctx, reqID, big.NewInt(9)))
	second, err := f.eng.Status(roundID)
	require.NoError(t, err)

	assert.Equal(t, first.RawValue, second.RawValue)
	assert.Equal(t, first.SettledAt, second.SettledAt)
	assert.Len(t, f.events.OfKind(models.EventRandomnessFulfilled), 1)
}

func TestBettingClosesAfterWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "T1", "T2")

	_, err := f.eng.PlaceBet(ctx, "alice", straight("T1", 3))
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	_, err = f.eng.PlaceBet(ctx, "alice", straight("T2", 3))
	require.Error(t, err)
	assert.Equal(t, KindState, KindOf(err))
	assert.True(t, errors.Is(err, ErrBettingClosed))
	assert.Equal(t, "alice", f.ledger.OwnerOf(apes, "T2"))
}

func TestPlaceBetRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("no round", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Mint(apes, "T", "alice")
		_, err := f.eng.PlaceBet(ctx, "alice", straight("T", 1))
		assert.True(t, errors.Is(err, ErrNoOpenRound))
		assert.Equal(t, KindState, KindOf(err))
	})

	cases := []struct {
		name string
		req  BetRequest
		kind Kind
	}{
		{"counterparty not whitelisted", BetRequest{Counterparty: "punks", TokenID: "T", Kind: models.Red}, KindAuthorization},
		{"split with one number", BetRequest{Counterparty: apes, TokenID: "T", Kind: models.Split, Numbers: []uint8{1}}, KindValidation},
		{"number out of range", straight("T", 38), KindValidation},
		{"dozen param zero", BetRequest{Counterparty: apes, TokenID: "T", Kind: models.Dozen}, KindValidation},
		{"unknown kind", BetRequest{Counterparty: apes, TokenID: "T", Kind: models.BetKind(99)}, KindValidation},
		{"missing token", BetRequest{Counterparty: apes, Kind: models.Red}, KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(t, "T")
			_, err := f.eng.PlaceBet(ctx, "alice", tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
			assert.Equal(t, "alice", f.ledger.OwnerOf(apes, "T"))
			assert.Empty(t, f.events.OfKind(models.EventBetPlaced))
		})
	}

	t.Run("failed transfer records nothing", func(t *testing.T) {
		f := newFixture(t)
		roundID := f.open(t, "T")
		_, err := f.eng.PlaceBet(ctx, "bob", straight("T", 1))
		require.Error(t, err)
		r, err := f.eng.Round(roundID)
		require.NoError(t, err)
		assert.Empty(t, r.BetIDs)
		_, err = f.eng.Bet(1)
		assert.Equal(t, KindNotFound, KindOf(err))
	})
}

func TestOutsideBetDropsNumbers(t *testing.T) {
	f := newFixture(t)
	f.open(t, "T")
	id, err := f.eng.PlaceBet(context.Background(), "alice", BetRequest{
		Counterparty: apes, TokenID: "T", Kind: models.Red, Numbers: []uint8{1, 2, 99},
	})
	require.NoError(t, err)
	b, err := f.eng.Bet(id)
	require.NoError(t, err)
	assert.Empty(t, b.Numbers)
}

func TestCreateRoundRejectsPast(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.CreateRound(context.Background(), f.clock.Now())
	assert.True(t, errors.Is(err, ErrClosingNotInFuture))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestRequestRandomnessRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	roundID := f.open(t)

	_, err := f.eng.RequestRandomness(ctx, "keeper", roundID, gas, fee)
	assert.True(t, errors.Is(err, ErrBettingOpen))
	assert.Equal(t, KindState, KindOf(err))

	f.clock.Advance(time.Minute)
	_, err = f.eng.RequestRandomness(ctx, "keeper", roundID, gas-1, fee)
	assert.True(t, errors.Is(err, ErrGasBelowFloor))
	assert.Equal(t, KindOracle, KindOf(err))

	_, err = f.eng.RequestRandomness(ctx, "keeper", roundID, gas, fee-1)
	assert.True(t, errors.Is(err, ErrInsufficientFee))
	assert.Equal(t, KindOracle, KindOf(err))
	assert.Equal(t, 0, f.oracle.calls)

	_, err = f.eng.RequestRandomness(ctx, "", roundID, gas, fee)
	assert.Equal(t, KindValidation, KindOf(err))

	f.oracle.err = errors.New("oracle down")
	_, err = f.eng.RequestRandomness(ctx, "keeper", roundID, gas, fee)
	assert.Equal(t, KindOracle, KindOf(err))
	f.oracle.err = nil
	assert.True(t, f.eng.FulfillRandomness(ctx, "req-1", big.NewInt(1)), "refused request stays unbound")

	res, err := f.eng.RequestRandomness(ctx, "keeper", roundID, gas, fee)
	require.NoError(t, err)
	assert.Equal(t, "req-2", res.RequestID)
	assert.Equal(t, fee, res.Fee)

	_, err = f.eng.RequestRandomness(ctx, "keeper", roundID, gas, fee)
	assert.True(t, errors.Is(err, ErrAlreadyRequested))
	assert.Equal(t, 1, f.oracle.calls)
}

func TestOverpaymentRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("refunded", func(t *testing.T) {
		f := newFixture(t)
		roundID := f.open(t)
		f.clock.Advance(time.Minute)
		res, err := f.eng.RequestRandomness(ctx, "keeper", roundID, gas, fee+5)
		require.NoError(t, err)
		assert.NoError(t, res.RefundErr)
		assert.Equal(t, uint64(5), res.Refunded)
		assert.Equal(t, uint64(5), f.ledger.BalanceOf("keeper"))
	})

	t.Run("failed refund is kept for a claim", func(t *testing.T) {
		f := newFixture(t)
		roundID := f.open(t)
		f.clock.Advance(time.Minute)
		f.ledger.FailNext(errors.New("payment rejected"))

		res, err := f.eng.RequestRandomness(ctx, "keeper", roundID, gas, fee+5)
		require.NoError(t, err)
		require.Error(t, res.RefundErr)
		assert.Equal(t, KindRefund, KindOf(res.RefundErr))
		assert.Zero(t, res.Refunded)
		assert.Equal(t, uint64(5), f.eng.PendingRefund("keeper"))
		assert.Len(t, f.events.OfKind(models.EventRefundFailed), 1)

		r, err := f.eng.Round(roundID)
		require.NoError(t, err)
		assert.True(t, r.RandomnessRequested)

		amount, err := f.eng.ClaimRefund(ctx, "keeper")
		require.NoError(t, err)
		assert.Equal(t, uint64(5), amount)
		assert.Equal(t, uint64(5), f.ledger.BalanceOf("keeper"))
		assert.Zero(t, f.eng.PendingRefund("keeper"))

		_, err = f.eng.ClaimRefund(ctx, "keeper")
		assert.True(t, errors.Is(err, ErrNothingToRefund))
	})
}

func TestSettlementResumesAfterTransferFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roundID := f.open(t, "T1", "T2")
	b1, err := f.eng.PlaceBet(ctx, "alice", straight("T1", 17))
	require.NoError(t, err)
	b2, err := f.eng.PlaceBet(ctx, "alice", BetRequest{Counterparty: apes, TokenID: "T2", Kind: models.Even})
	require.NoError(t, err)
	reqID := f.closeAndRequest(t, roundID)
	f.eng.FulfillRandomness(ctx, reqID, big.NewInt(17))

	f.ledger.FailNext(errors.New("custody unavailable"))
	_, err = f.eng.Finalize(ctx, roundID)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	r, err := f.eng.Round(roundID)
	require.NoError(t, err)
	assert.False(t, r.Resolved)
	assert.Len(t, f.eng.Unresolved(), 1)

	res, err := f.eng.Finalize(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Won)
	assert.Equal(t, 1, res.Lost)
	assert.Equal(t, "alice", f.ledger.OwnerOf(apes, "T1"))
	assert.Equal(t, vault, f.ledger.OwnerOf(apes, "T2"))

	for _, id := range []uint64{b1, b2} {
		b, err := f.eng.Bet(id)
		require.NoError(t, err)
		assert.True(t, b.Processed)
	}
	assert.Len(t, f.events.OfKind(models.EventBetWon), 1)
	assert.Len(t, f.events.OfKind(models.EventBetLost), 1)
}

func TestStatusFollowsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roundID := f.open(t)

	st, err := f.eng.Status(roundID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundOpen, st.State)
	assert.Nil(t, st.RawValue)

	reqID := f.closeAndRequest(t, roundID)
	st, _ = f.eng.Status(roundID)
	assert.Equal(t, models.RoundAwaitingRandomness, st.State)
	assert.Equal(t, reqID, st.RequestID)

	f.eng.FulfillRandomness(ctx, reqID, big.NewInt(38+36))
	st, _ = f.eng.Status(roundID)
	assert.Equal(t, models.RoundRandomnessSettled, st.State)
	assert.Equal(t, 0, big.NewInt(74).Cmp(st.RawValue))
	assert.Equal(t, f.clock.Now(), st.SettledAt)
	assert.Nil(t, st.ResultNumber)

	_, err = f.eng.Finalize(ctx, roundID)
	require.NoError(t, err)
	st, _ = f.eng.Status(roundID)
	assert.Equal(t, models.RoundResolved, st.State)
	require.NotNil(t, st.ResultNumber)
	assert.Equal(t, uint8(36), *st.ResultNumber)

	_, err = f.eng.Status(42)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.eng.Bootstrap(ctx)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, id, f.eng.Bootstrap(ctx))
	r, ok := f.eng.CurrentRound()
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), r.BettingClosesAt)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roundID := f.open(t, "T1", "T2")
	_, err := f.eng.PlaceBet(ctx, "alice", straight("T1", 17))
	require.NoError(t, err)
	reqID := f.closeAndRequest(t, roundID)
	f.eng.FulfillRandomness(ctx, reqID, big.NewInt(17))
	_, err = f.eng.Finalize(ctx, roundID)
	require.NoError(t, err)
	_, err = f.eng.PlaceBet(ctx, "alice", straight("T2", 0))
	require.NoError(t, err)

	snap := f.eng.Snapshot()
	require.Len(t, snap.Rounds, 2)
	require.Len(t, snap.Bets, 2)
	require.Len(t, snap.Randomness, 1)

	g := newFixture(t)
	require.NoError(t, g.eng.Restore(ctx, snap))

	unresolved := g.eng.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, uint64(2), unresolved[0].ID)
	st, err := g.eng.Status(roundID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundResolved, st.State)
	assert.Equal(t, 0, big.NewInt(17).Cmp(st.RawValue))

	// The restored coordinator still knows the old request id, so a late callback is ignored.
	assert.True(t, g.eng.FulfillRandomness(ctx, reqID, big.NewInt(3)))

	assert.Error(t, g.eng.Restore(ctx, snap))

	snap.Rounds = snap.Rounds[1:]
	h := newFixture(t)
	err = h.eng.Restore(ctx, snap)
	assert.True(t, errors.Is(err, ErrSnapshotGap))
}

func TestCallbackBeforeRequestReturns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	roundID := f.open(t, "T")
	_, err := f.eng.PlaceBet(ctx, "alice", straight("T", 17))
	require.NoError(t, err)

	var ignored bool
	f.oracle.answer = func(requestID string) {
		ignored = f.eng.FulfillRandomness(ctx, requestID, big.NewInt(38*9+17))
	}
	requestID := f.closeAndRequest(t, roundID)
	assert.False(t, ignored)
	assert.True(t, f.eng.FulfillRandomness(ctx, requestID, big.NewInt(0)), "first value wins")

	res, err := f.eng.Finalize(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, uint8(17), res.ResultNumber)
	assert.Equal(t, 1, res.Won)
	assert.Equal(t, "alice", f.ledger.OwnerOf(apes, "T"))
}

func TestDuplicateRequestIDIsNotForwarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.open(t)
	f.closeAndRequest(t, first)

	second, err := f.eng.CreateRound(ctx, f.clock.Now().Add(time.Second))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Second)

	f.oracle.mu.Lock()
	f.oracle.ids = 0
	f.oracle.mu.Unlock()
	_, err = f.eng.RequestRandomness(ctx, "keeper", second, gas, fee+3)
	assert.True(t, errors.Is(err, randomness.ErrDuplicateRequest))
	assert.Equal(t, KindOracle, KindOf(err))
	assert.Equal(t, 1, f.oracle.calls)
	assert.Zero(t, f.ledger.BalanceOf("keeper"))

	r, err := f.eng.Round(second)
	require.NoError(t, err)
	assert.False(t, r.RandomnessRequested)

	res, err := f.eng.RequestRandomness(ctx, "keeper", second, gas, fee)
	require.NoError(t, err)
	assert.Equal(t, "req-2", res.RequestID)
}

func TestFeeOverflowRejected(t *testing.T) {
	f := newFixture(t)
	f.oracle.FeeSchedule = randomness.FeeSchedule{BaseFee: fee, GasPrice: math.MaxUint64}
	roundID := f.open(t)
	f.clock.Advance(time.Minute)

	_, err := f.eng.RequestRandomness(context.Background(), "keeper", roundID, gas, 1)
	assert.True(t, errors.Is(err, randomness.ErrFeeOverflow))
	assert.Equal(t, KindOracle, KindOf(err))
	assert.Equal(t, 0, f.oracle.calls)

	_, err = f.eng.Fee(gas)
	assert.True(t, errors.Is(err, randomness.ErrFeeOverflow))
}

func TestConcurrentLifecycle(t *testing.T) {
	const players = 16
	const workers = 8
	ctx := context.Background()
	f := newFixture(t)
	roundID := f.open(t)
	for i := 0; i < players; i++ {
		f.ledger.Mint(apes, fmt.Sprintf("T%d", i), fmt.Sprintf("p%d", i))
		f.ledger.Mint(apes, fmt.Sprintf("L%d", i), "late")
	}

	var wg sync.WaitGroup
	placed := make(chan uint64, players)
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.eng.PlaceBet(ctx, fmt.Sprintf("p%d", i), straight(fmt.Sprintf("T%d", i), uint8(i)))
			if assert.NoError(t, err) {
				placed <- id
			}
		}(i)
	}
	wg.Wait()
	close(placed)
	betIDs := map[uint64]bool{}
	for id := range placed {
		assert.False(t, betIDs[id], "bet id %d handed out twice", id)
		betIDs[id] = true
	}
	require.Len(t, betIDs, players)

	f.clock.Advance(11 * time.Second)
	deadline := time.Now().Add(5 * time.Second)
	var requested, finalized int32
	late := make(chan uint64, players)

	for w := 0; w < workers; w++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := f.eng.RequestRandomness(ctx, "keeper", roundID, gas, fee)
			if err == nil {
				atomic.AddInt32(&requested, 1)
				return
			}
			assert.True(t, errors.Is(err, ErrAlreadyRequested), "%v", err)
		}()
		go func(w int) {
			defer wg.Done()
			value := big.NewInt(int64(38*(w+1) + w))
			for atomic.LoadInt32(&finalized) == 0 && time.Now().Before(deadline) {
				f.eng.FulfillRandomness(ctx, "req-1", value)
				runtime.Gosched()
			}
		}(w)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				_, err := f.eng.Finalize(ctx, roundID)
				if err == nil {
					atomic.AddInt32(&finalized, 1)
					return
				}
				if errors.Is(err, ErrAlreadyResolved) {
					return
				}
				runtime.Gosched()
			}
		}()
	}
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.eng.PlaceBet(ctx, "late", straight(fmt.Sprintf("L%d", i), 0))
			if err == nil {
				late <- id
				return
			}
			assert.True(t, errors.Is(err, ErrBettingClosed), "%v", err)
		}(i)
	}
	wg.Wait()
	close(late)

	assert.Equal(t, int32(1), requested)
	require.Equal(t, int32(1), finalized)

	r, err := f.eng.Round(roundID)
	require.NoError(t, err)
	assert.True(t, r.Resolved)
	assert.Len(t, f.events.OfKind(models.EventRoundCreated), 2)
	assert.Len(t, f.events.OfKind(models.EventRoundResolved), 1)
	assert.Len(t, f.events.OfKind(models.EventBetWon), 1)
	assert.Len(t, f.events.OfKind(models.EventBetLost), players-1)

	settled := map[string]int{}
	for _, tr := range f.ledger.History() {
		if tr.Reason == custody.ReasonPayout || tr.Reason == custody.ReasonHouse {
			settled[tr.TokenID]++
		}
	}
	for i := 0; i < players; i++ {
		tok := fmt.Sprintf("T%d", i)
		assert.Equal(t, 1, settled[tok], "token %s", tok)
		want := vault
		if uint8(i) == r.ResultNumber {
			want = fmt.Sprintf("p%d", i)
		}
		assert.Equal(t, want, f.ledger.OwnerOf(apes, tok))
	}
	for id := range betIDs {
		b, err := f.eng.Bet(id)
		require.NoError(t, err)
		assert.True(t, b.Processed)
	}

	for id := range late {
		b, err := f.eng.Bet(id)
		require.NoError(t, err)
		assert.NotEqual(t, roundID, b.RoundID)
		assert.False(t, b.Processed)
		assert.Equal(t, engineAddr, f.ledger.OwnerOf(apes, b.TokenID))
	}
	for i := 0; i < players; i++ {
		tok := fmt.Sprintf("L%d", i)
		if owner := f.ledger.OwnerOf(apes, tok); owner != engineAddr {
			assert.Equal(t, "late", owner)
		}
	}
}
