// oraclesim is a development oracle: it answers queued randomness requests after a delay with
// an HMAC of the request seed.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lavizord/roulette-server/internal/config"
	"github.com/Lavizord/roulette-server/internal/randomness"
	"github.com/Lavizord/roulette-server/internal/redisdb"
	"github.com/Lavizord/roulette-server/logger"
)

var name = "oraclesim"
var redisClient *redisdb.RedisClient

func init() {
	if err := config.LoadConfig(); err != nil {
		logger.Default.Fatalf("[%s] - %v", name, err)
	}
	logger.SetLevel(config.Cfg.LogLevel)

	redisConData := config.Cfg.Redis
	client, err := redisdb.NewRedisClient(redisConData.Addr, redisConData.Password, redisConData.DB)
	if err != nil {
		logger.Default.Fatalf("[%s-Redis] Error initializing Redis client: %v", name, err)
	}
	redisClient = client
}

func main() {
	defer func() {
		redisClient.Close()
		logger.Sync()
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := randomness.Simulator{Secret: []byte(config.Cfg.Oracle.Secret)}
	delay := config.Cfg.FulfillDelay()
	logger.Default.Infof("[%s] - answering %s after %s", name, randomness.RequestQueue, delay)

	redisClient.Consume(ctx, randomness.RequestQueue, 5*time.Second, func(data []byte) {
		req, err := randomness.DecodeRequest(data)
		if err != nil {
			logger.Default.Warnf("[%s] - %v", name, err)
			return
		}
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			cb, err := json.Marshal(sim.Answer(req))
			if err != nil {
				logger.Default.Errorf("[%s] - %v", name, err)
				return
			}
			if err := redisClient.RPushGeneric(randomness.CallbackQueue, cb); err != nil {
				logger.Default.Errorf("[%s] - failed to push callback %s: %v", name, req.RequestID, err)
				return
			}
			logger.Default.Debugf("[%s] - answered %s", name, req.RequestID)
		}()
	})
}
