package redisdb

import "strconv"

const (
	roundsKey     = "rounds"
	betsKey       = "bets"
	randomnessKey = "randomness"
	refundsKey    = "refunds"
	whitelistKey  = "whitelist"

	// EventsChannel carries every engine event as a messages envelope.
	EventsChannel = "roulette:events"
)

func idField(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// RoundBetsKey is the list of bet ids placed on a round, in placement order.
func RoundBetsKey(roundID uint64) string {
	return "round:" + idField(roundID) + ":bets"
}
