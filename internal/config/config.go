package config

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Shared settings
	BaseURL     string `env:"BASE_URL"`
	EnableHTTPS bool   `env:"ENABLE_HTTPS"`

	// Client-side settings
	ServerURL    string `env:"-"`
	ClientDBPath string `env:"CLIENT_DB_PATH"`
	TokenFile    string `env:"TOKEN_FILE"`

	// Sync engine knobs
	ProbeURL       string        `env:"PROBE_URL"`
	ProbeTimeout   time.Duration `env:"PROBE_TIMEOUT"`
	ProbeInterval  time.Duration `env:"PROBE_INTERVAL"`
	RetryAttempts  int           `env:"SYNC_RETRY_ATTEMPTS"`
	RetryBaseDelay time.Duration `env:"SYNC_RETRY_BASE_DELAY"`
	SettleDelay    time.Duration `env:"SYNC_SETTLE_DELAY"`
	PurgeAfterDays int           `env:"PURGE_AFTER_DAYS"`

	// Devserver settings
	AuthSecret   string `env:"AUTH_SECRET"`
	ServerDBPath string `env:"SERVER_DB_PATH"`

	Version bool `env:"-"` // show client version and exit (flag only)
}

func NewConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	_ = env.Parse(cfg)

	// flags apply ONLY when the env variables are unset
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "reporting server address (host:port)")
	flag.BoolVar(&cfg.EnableHTTPS, "https", cfg.EnableHTTPS, "prefer https scheme for the server URL")
	flag.StringVar(&cfg.ClientDBPath, "client-db", cfg.ClientDBPath, "path to client SQLite DB")
	flag.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "path to auth token file")
	flag.StringVar(&cfg.ProbeURL, "probe-url", cfg.ProbeURL, "URL used by the reachability probe")
	flag.IntVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "upload attempts per item")
	flag.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "JWT signing secret (devserver)")
	flag.StringVar(&cfg.ServerDBPath, "server-db", cfg.ServerDBPath, "path to devserver SQLite DB")
	flag.BoolVar(&cfg.Version, "version", cfg.Version, "show client version and exit")

	flag.Parse()

	// validate BaseURL: must be "address:port" (no scheme, no path), otherwise default
	hostPortRe := regexp.MustCompile(`^[A-Za-z0-9\.\-]+:\d{1,5}$`)
	if !hostPortRe.MatchString(cfg.BaseURL) {
		cfg.BaseURL = "localhost:8080"
	}

	if cfg.EnableHTTPS {
		cfg.ServerURL = "https://" + cfg.BaseURL
	} else {
		cfg.ServerURL = "http://" + cfg.BaseURL
	}

	// Fill client defaults if empty
	home, _ := os.UserHomeDir()
	if cfg.ClientDBPath == "" {
		cfg.ClientDBPath = filepath.Join(home, "stairsync.db")
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = filepath.Join(home, ".stairsync_token")
	}
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = cfg.ServerURL + "/api/ping"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	if cfg.PurgeAfterDays <= 0 {
		cfg.PurgeAfterDays = 30
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "dev-secret-key"
	}
	if cfg.ServerDBPath == "" {
		cfg.ServerDBPath = filepath.Join(home, "stairsync-server.db")
	}

	return cfg
}
