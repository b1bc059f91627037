package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/Lavizord/roulette-server/internal/config"
	"github.com/Lavizord/roulette-server/internal/redisdb"
	"github.com/Lavizord/roulette-server/internal/wsapi"
	"github.com/Lavizord/roulette-server/logger"
)

var name = "wsapi"

func allowedOrigin(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := allowed[r.Header.Get("Origin")]
		return ok
	}
}

func main() {
	if err := config.LoadConfig(); err != nil {
		logger.Default.Fatalf("[%s] - %v", name, err)
	}
	logger.SetLevel(config.Cfg.LogLevel)
	defer logger.Sync()

	redisConData := config.Cfg.Redis
	redisClient, err := redisdb.NewRedisClient(redisConData.Addr, redisConData.Password, redisConData.DB)
	if err != nil {
		logger.Default.Fatalf("[%s-Redis] Error initializing Redis client: %v", name, err)
	}
	defer redisClient.Close()

	hub := wsapi.NewHub(allowedOrigin(config.Cfg.Cors.AllowedOrigins))
	redisClient.Subscribe(redisdb.EventsChannel, hub.Broadcast)

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	http.HandleFunc("/ws", hub.HandleConnection)

	// Get SSL cert paths from env
	certPath := os.Getenv("SSL_CERT_PATH")
	keyPath := os.Getenv("SSL_KEY_PATH")
	ports := config.Cfg.Services[name].Ports
	if len(ports) == 0 {
		logger.Default.Fatalf("[%s] - No ports defined for wsapi", name)
	}

	if certPath == "" || keyPath == "" {
		addr := fmt.Sprintf(":%d", ports[0])
		logger.Default.Infof("[%s] - SSL certificate paths not set, WebSocket server started on %s", name, addr)
		logger.Default.Fatal(http.ListenAndServe(addr, nil))
	}
	if len(ports) < 2 {
		logger.Default.Fatalf("[%s] - SSL needs a second port", name)
	}
	addr := fmt.Sprintf(":%d", ports[1])
	logger.Default.Infof("[%s] - WebSocket server started on %s over TLS", name, addr)
	logger.Default.Fatal(http.ListenAndServeTLS(addr, certPath, keyPath, nil))
}
