// Package metrics registers the server's counters in the go-metrics default registry.
package metrics

import (
	"encoding/json"
	"net/http"

	gometrics "github.com/rcrowley/go-metrics"
)

var (
	BetsPlaced        = gometrics.NewRegisteredCounter("roulette.bets.placed", nil)
	BetsWon           = gometrics.NewRegisteredCounter("roulette.bets.won", nil)
	BetsLost          = gometrics.NewRegisteredCounter("roulette.bets.lost", nil)
	RoundsCreated     = gometrics.NewRegisteredCounter("roulette.rounds.created", nil)
	RoundsResolved    = gometrics.NewRegisteredCounter("roulette.rounds.resolved", nil)
	RandomnessAsked   = gometrics.NewRegisteredCounter("roulette.randomness.requested", nil)
	CallbacksRecorded = gometrics.NewRegisteredCounter("roulette.callbacks.recorded", nil)
	CallbacksIgnored  = gometrics.NewRegisteredCounter("roulette.callbacks.ignored", nil)
	RefundsFailed     = gometrics.NewRegisteredCounter("roulette.refunds.failed", nil)
	StuckRounds       = gometrics.NewRegisteredGauge("roulette.rounds.stuck", nil)
	SettlementTime    = gometrics.NewRegisteredTimer("roulette.settlement", nil)
)

// Handler serves the default registry as JSON.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(gometrics.DefaultRegistry); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
