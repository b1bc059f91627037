package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/Lavizord/roulette-server/internal/api"
	"github.com/Lavizord/roulette-server/internal/config"
	"github.com/Lavizord/roulette-server/internal/custody"
	"github.com/Lavizord/roulette-server/internal/engine"
	"github.com/Lavizord/roulette-server/internal/keeper"
	"github.com/Lavizord/roulette-server/internal/notify"
	"github.com/Lavizord/roulette-server/internal/postgrescli"
	"github.com/Lavizord/roulette-server/internal/randomness"
	"github.com/Lavizord/roulette-server/internal/redisdb"
	"github.com/Lavizord/roulette-server/internal/whitelist"
	"github.com/Lavizord/roulette-server/logger"
)

var name = "roulettesrv"
var redisClient *redisdb.RedisClient
var postgresClient *postgrescli.PostgresCli

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

	pg := config.Cfg.Postgres
	sslmode := "disable"
	if pg.Ssl {
		sslmode = "require"
	}
	sqlcliente, err := postgrescli.NewPostgresCli(pg.User, pg.Password, pg.DBName, pg.Host, pg.Port, sslmode)
	if err != nil {
		logger.Default.Fatalf("[PostgreSQL] Error initializing POSTGRES client: %v", err)
	}
	postgresClient = sqlcliente

	if err := postgresClient.CreateDb(context.Background()); err != nil {
		logger.Default.Fatalf("error creating db: %v", err)
	}
	logger.Default.Infof("created db...")
}

func main() {
	defer func() {
		if redisClient != nil {
			redisClient.Close()
		}
		if postgresClient != nil {
			postgresClient.Close()
		}
		logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := &config.Cfg

	events := notify.Multi{
		notify.Log{},
		redisdb.EventPublisher{Pub: redisClient},
		postgrescli.EventSink{Cli: postgresClient},
	}
	wl := whitelist.NewRegistry(redisClient, events)

	custodyClient, err := custody.NewClient(cfg.Custody.BaseUrl, cfg.Custody.Token)
	if err != nil {
		logger.Default.Fatalf("[%s] - custody client: %v", name, err)
	}

	eng, err := engine.New(engine.Config{
		Address:        cfg.Roulette.EngineAddress,
		HouseVault:     cfg.Roulette.HouseVault,
		BettingWindow:  cfg.BettingWindow(),
		MinCallbackGas: cfg.Roulette.MinCallbackGas,
	}, engine.Deps{
		Whitelist: wl,
		Custody:   custody.Audited{Next: custodyClient, Recorder: postgresClient},
		Payer:     custodyClient,
		Oracle: randomness.NewQueueOracle(redisClient, randomness.FeeSchedule{
			BaseFee:  cfg.Oracle.BaseFee,
			GasPrice: cfg.Oracle.GasPrice,
		}),
		Notifier: events,
		Journal:  redisClient,
	})
	if err != nil {
		logger.Default.Fatalf("[%s] - %v", name, err)
	}

	snap, err := redisClient.LoadSnapshot(ctx)
	if err != nil {
		logger.Default.Fatalf("[%s] - loading state: %v", name, err)
	}
	if err := eng.Restore(ctx, snap); err != nil {
		logger.Default.Fatalf("[%s] - restoring state: %v", name, err)
	}
	current := eng.Bootstrap(ctx)
	logger.Default.Infof("[%s] - current round is %d", name, current)

	go redisClient.Consume(ctx, randomness.CallbackQueue, 5*time.Second, func(data []byte) {
		cb, err := randomness.DecodeCallback(data)
		if err != nil {
			logger.Default.Warnf("[%s] - %v", name, err)
			return
		}
		eng.FulfillRandomness(ctx, cb.RequestID, cb.Value)
	})

	k := keeper.New(eng, keeper.Config{
		Address:    cfg.Roulette.EngineAddress,
		Fee:        cfg.Roulette.KeeperFee,
		GasBudget:  cfg.Roulette.KeeperGas,
		StuckAfter: cfg.StuckAfter(),
	})
	if err := k.Start(cfg.Roulette.KeeperSpec); err != nil {
		logger.Default.Fatalf("[%s] - keeper: %v", name, err)
	}
	defer k.Stop()

	router := api.RegisterRoutes(api.Deps{
		Engine:      eng,
		Whitelist:   wl,
		Audit:       postgresClient,
		Auth:        api.Auth{Secret: []byte(cfg.Auth.JwtSecret)},
		OracleToken: cfg.Oracle.CallbackToken,
	})
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Cors.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "x-access-token"},
		AllowCredentials: true,
	}).Handler(router)

	port := cfg.FirstPort(name, 8080)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: corsHandler}
	go func() {
		logger.Default.Infof("[API] - HTTP server starting on %d...", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Default.Fatalf("[API] - %v", err)
		}
	}()

	<-ctx.Done()
	logger.Default.Infof("[%s] - shutting down", name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Default.Errorf("[API] - shutdown: %v", err)
	}
}
