package redisdb

import (
	"context"

	"github.com/Lavizord/roulette-server/internal/messages"
	"github.com/Lavizord/roulette-server/internal/models"
	"github.com/Lavizord/roulette-server/logger"
)

// Publisher is satisfied by RedisClient.
type Publisher interface {
	Publish(channel string, message []byte) error
}

// EventPublisher sends engine events to EventsChannel.
type EventPublisher struct {
	Pub Publisher
}

func (p EventPublisher) Notify(_ context.Context, ev models.Event) {
	data, err := messages.GenerateEventMessage(ev)
	if err != nil {
		logger.Default.Errorf("[RedisClient] - failed to encode %s event: %v", ev.Kind, err)
		return
	}
	if err := p.Pub.Publish(EventsChannel, data); err != nil {
		logger.Default.Errorf("[RedisClient] - %v", err)
	}
}
