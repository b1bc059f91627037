package messages

import "github.com/Lavizord/roulette-server/internal/models"

type CommandType string

const (
	ServerCommand    CommandType = "server"
	ClientCommand    CommandType = "client"
	BroadcastCommand CommandType = "broadcast"
)

type CommandInfo struct {
	Type CommandType
}

var validCommands = map[string]CommandInfo{
	string(models.EventRoundCreated):            {Type: BroadcastCommand},
	string(models.EventRandomnessRequested):     {Type: BroadcastCommand},
	string(models.EventRandomnessFulfilled):     {Type: BroadcastCommand},
	string(models.EventRoundResolved):           {Type: BroadcastCommand},
	string(models.EventBetPlaced):               {Type: BroadcastCommand},
	string(models.EventBetWon):                  {Type: BroadcastCommand},
	string(models.EventBetLost):                 {Type: BroadcastCommand},
	string(models.EventCounterpartyWhitelisted): {Type: BroadcastCommand},
	string(models.EventCounterpartyRemoved):     {Type: BroadcastCommand},
	string(models.EventRefundFailed):            {Type: BroadcastCommand},
	"subscribe":                                 {Type: ClientCommand},
	"unsubscribe":                               {Type: ClientCommand},
	"message":                                   {Type: ServerCommand},
}

// CommandTypeOf reports the direction of a command, false when it is unknown.
func CommandTypeOf(command string) (CommandType, bool) {
	info, ok := validCommands[command]
	return info.Type, ok
}
