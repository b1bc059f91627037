package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

/*
	{
	"log_level": "info",
	"redis": {
		"addr": "redis:6379",
		"db": 0
	},
	"postgres": {
		"user": "roulette", "password": "roulette", "dbname": "roulette",
		"host": "postgres", "port": "5432", "ssl": false
	},
	"services": {
		"roulettesrv": { "ports": [8080] },
		"wsapi": { "ports": [8081] },
		"oraclesim": {}
	},
	"roulette": {
		"engine_address": "roulette-engine",
		"house_vault": "house-vault",
		"betting_window_seconds": 300,
		"min_callback_gas": 50000,
		"keeper_spec": "@every 5s",
		"keeper_fee": 1000000,
		"keeper_gas": 100000,
		"stuck_after_seconds": 600
	},
	"oracle": { "base_fee": 1000, "gas_price": 2, "fulfill_delay_ms": 1500, "secret": "dev", "callback_token": "" },
	"custody": { "base_url": "http://custody:9000", "token": "" },
	"auth": { "jwt_secret": "" },
	"cors": { "allowed_origins": ["http://localhost:5173"] }
	}
*/

const (
	DefaultBettingWindow  = 300 * time.Second
	DefaultMinCallbackGas = 50_000
	DefaultKeeperSpec     = "@every 5s"
	DefaultStuckAfter     = 10 * time.Minute
)

type Service struct {
	Ports []int `json:"ports,omitempty"`
}

type Config struct {
	LogLevel string `json:"log_level"`
	Redis    struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	Postgres struct {
		User     string `json:"user"`
		Password string `json:"password"`
		DBName   string `json:"dbname"`
		Host     string `json:"host"`
		Port     string `json:"port"`
		Ssl      bool   `json:"ssl"`
	} `json:"postgres"`
	Services map[string]Service `json:"services"`
	Roulette struct {
		EngineAddress        string `json:"engine_address"`
		HouseVault           string `json:"house_vault"`
		BettingWindowSeconds int    `json:"betting_window_seconds"`
		MinCallbackGas       uint32 `json:"min_callback_gas"`
		KeeperSpec           string `json:"keeper_spec"`
		KeeperFee            uint64 `json:"keeper_fee"`
		KeeperGas            uint32 `json:"keeper_gas"`
		StuckAfterSeconds    int    `json:"stuck_after_seconds"`
	} `json:"roulette"`
	Oracle struct {
		BaseFee        uint64 `json:"base_fee"`
		GasPrice       uint64 `json:"gas_price"`
		FulfillDelayMs int    `json:"fulfill_delay_ms"`
		Secret         string `json:"secret"`
		// CallbackToken guards the http callback route, empty leaves it open.
		CallbackToken string `json:"callback_token"`
	} `json:"oracle"`
	Custody struct {
		BaseUrl string `json:"base_url"`
		Token   string `json:"token"`
	} `json:"custody"`
	Auth struct {
		JwtSecret string `json:"jwt_secret"`
	} `json:"auth"`
	Cors struct {
		AllowedOrigins []string `json:"allowed_origins"`
	} `json:"cors"`
}

// Global config instance
var Cfg Config

// LoadConfig reads .env (if present) and then the JSON file named by CONFIG_PATH into Cfg.
func LoadConfig() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		return errors.New("[config] - CONFIG_PATH not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	Cfg = *cfg
	return nil
}

// Load decodes a config file and applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "[config] - error opening config file %s", path)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config] - error decoding JSON")
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JwtSecret = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("CUSTODY_TOKEN"); v != "" {
		c.Custody.Token = v
	}
	if v := os.Getenv("ORACLE_CALLBACK_TOKEN"); v != "" {
		c.Oracle.CallbackToken = v
	}
}

// Validate fills defaults and rejects configs the server cannot run with.
func (c *Config) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	r := &c.Roulette
	if r.EngineAddress == "" {
		return errors.New("[config] - roulette.engine_address is required")
	}
	if r.HouseVault == "" {
		return errors.New("[config] - roulette.house_vault is required")
	}
	if r.EngineAddress == r.HouseVault {
		return fmt.Errorf("[config] - engine address and house vault must differ, both are %q", r.EngineAddress)
	}
	if r.BettingWindowSeconds <= 0 {
		r.BettingWindowSeconds = int(DefaultBettingWindow / time.Second)
	}
	if r.MinCallbackGas == 0 {
		r.MinCallbackGas = DefaultMinCallbackGas
	}
	if r.KeeperSpec == "" {
		r.KeeperSpec = DefaultKeeperSpec
	}
	if r.KeeperGas == 0 {
		r.KeeperGas = r.MinCallbackGas
	}
	if r.StuckAfterSeconds <= 0 {
		r.StuckAfterSeconds = int(DefaultStuckAfter / time.Second)
	}
	return nil
}

func (c *Config) BettingWindow() time.Duration {
	return time.Duration(c.Roulette.BettingWindowSeconds) * time.Second
}

func (c *Config) StuckAfter() time.Duration {
	return time.Duration(c.Roulette.StuckAfterSeconds) * time.Second
}

func (c *Config) FulfillDelay() time.Duration {
	return time.Duration(c.Oracle.FulfillDelayMs) * time.Millisecond
}

// FirstPort returns the first port configured for a service, or fallback.
func (c *Config) FirstPort(service string, fallback int) int {
	svc, ok := c.Services[service]
	if !ok || len(svc.Ports) == 0 {
		return fallback
	}
	return svc.Ports[0]
}
