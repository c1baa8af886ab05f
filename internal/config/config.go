// Package config loads client and server settings from .env, the environment and flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// DefaultServerURL is used when neither the settings file, the environment nor a flag name a server.
const DefaultServerURL = "http://localhost:8080"

// Client is the awclaim configuration. Flags override the environment.
type Client struct {
	ServerURL  string        `env:"AWCLAIM_SERVER_URL"`
	Timeout    time.Duration `env:"AWCLAIM_TIMEOUT" default:"0s"`
	Policy     string        `env:"AWCLAIM_POLICY" default:"independent"`
	LogLevel   string        `env:"AWCLAIM_LOG_LEVEL" default:"warn"`
	DeviceID   string        `env:"AWCLAIM_DEVICE_ID" default:"demo-device"`
	AppVersion string        `env:"AWCLAIM_APP_VERSION" default:"1.0.0"`
	DevLog     bool          `env:"AWCLAIM_DEV_LOG" default:"false"`
}

// Server is the claimd configuration.
type Server struct {
	Addr        string `env:"CLAIMD_ADDR" default:":8080"`
	HealthAddr  string `env:"CLAIMD_HEALTH_ADDR" default:":8081"`
	DatabaseURL string `env:"DATABASE_URL"`
	ReceiptKey  string `env:"CLAIMD_RECEIPT_KEY"`
	IPHashKey   string `env:"CLAIMD_IP_HASH_KEY"`
	TrustProxy  bool   `env:"CLAIMD_TRUST_PROXY" default:"false"`

	SessionTTL time.Duration `env:"CLAIMD_SESSION_TTL" default:"15m"`
	ReceiptTTL time.Duration `env:"CLAIMD_RECEIPT_TTL" default:"24h"`

	LimitWindow   time.Duration `env:"CLAIMD_LIMIT_WINDOW" default:"15m"`
	LimitMaxFails int           `env:"CLAIMD_LIMIT_MAX_FAILS" default:"5"`
	LimitBlockFor time.Duration `env:"CLAIMD_LIMIT_BLOCK_FOR" default:"15m"`

	LogLevel string `env:"CLAIMD_LOG_LEVEL" default:"info"`
	Dev      bool   `env:"CLAIMD_DEV" default:"false"`
}

// loadDotEnv reads .env when present; a missing file is not an error.
func loadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// LoadClient reads the environment and then parses global flags from args.
// It returns the remaining (subcommand) arguments.
func LoadClient(fs *flag.FlagSet, args []string) (*Client, []string, error) {
	loadDotEnv()

	var cfg Client
	if err := env.Load(&cfg, nil); err != nil {
		return nil, nil, fmt.Errorf("environment: %w", err)
	}

	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "claim server base URL (overrides saved setting)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "request timeout (0 = transport default)")
	fs.StringVar(&cfg.Policy, "policy", cfg.Policy, "duplicate claim policy: independent|singleflight")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "device id sent with claims")
	fs.StringVar(&cfg.AppVersion, "app-version", cfg.AppVersion, "app version sent with claims")
	fs.BoolVar(&cfg.DevLog, "dev-log", cfg.DevLog, "human-readable logs")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if cfg.Timeout < 0 {
		return nil, nil, errors.New("timeout must not be negative")
	}
	return &cfg, fs.Args(), nil
}

// LoadServer reads the environment and then parses flags from args.
func LoadServer(fs *flag.FlagSet, args []string) (*Server, error) {
	loadDotEnv()

	var cfg Server
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.DatabaseURL, "dsn", cfg.DatabaseURL, "PostgreSQL DSN (empty = in-memory store)")
	fs.StringVar(&cfg.ReceiptKey, "receipt-key", cfg.ReceiptKey, "HS256 key for claim receipts")
	fs.StringVar(&cfg.IPHashKey, "ip-hash-key", cfg.IPHashKey, "key for hashing client addresses")
	fs.BoolVar(&cfg.TrustProxy, "trust-proxy", cfg.TrustProxy, "take client address from X-Forwarded-For")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "how long a session can be claimed")
	fs.DurationVar(&cfg.ReceiptTTL, "receipt-ttl", cfg.ReceiptTTL, "claim receipt lifetime")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.Dev, "dev", cfg.Dev, "development mode (random keys, console logs)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Server) validate() error {
	if !c.Dev && (c.ReceiptKey == "" || c.IPHashKey == "") {
		return errors.New("receipt key and ip hash key are required outside dev mode")
	}
	if len(c.IPHashKey) > 64 {
		return errors.New("ip hash key must be at most 64 bytes")
	}
	if c.SessionTTL <= 0 || c.ReceiptTTL <= 0 {
		return errors.New("ttl values must be positive")
	}
	if c.LimitMaxFails <= 0 || c.LimitWindow <= 0 || c.LimitBlockFor <= 0 {
		return errors.New("limiter settings must be positive")
	}
	return nil
}
