package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the overlay agent.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Control API
	BindAddr string

	// Page driving
	TabURLFilter   string
	EvalTimeoutMS  int
	PollIntervalMS int

	// Recommendation backend
	BackendURL       string
	BackendTimeoutMS int

	// Synced storage substrate. Empty RedisAddr selects the in-memory
	// fallback: the overlay works, state just does not survive restarts.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Market-data journaling
	CaptureMarketData    bool
	DataDir              string
	JournalBufferSize    int
	JournalMaxFileSizeMB int

	// Logging
	LogLevel string
	LogFile  string

	// Managed browser. When LaunchBrowser is false the agent attaches to
	// an already-running Chromium with --remote-debugging-port.
	LaunchBrowser bool
	ProfileDir    string
	StartURL      string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:           getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:              getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BindAddr:             getEnvOrDefault("PMAGENT_BIND_ADDR", "127.0.0.1:8199"),
		TabURLFilter:         getEnvOrDefault("PMAGENT_TAB_URL_FILTER", "polymarket.com"),
		EvalTimeoutMS:        getEnvIntOrDefault("PMAGENT_EVAL_TIMEOUT_MS", 5000),
		PollIntervalMS:       getEnvIntOrDefault("PMAGENT_POLL_INTERVAL_MS", 2000),
		BackendURL:           getEnvOrDefault("PMAGENT_BACKEND_URL", "http://127.0.0.1:8000"),
		BackendTimeoutMS:     getEnvIntOrDefault("PMAGENT_BACKEND_TIMEOUT_MS", 5000),
		RedisAddr:            getEnvOrDefault("PMAGENT_REDIS_ADDR", ""),
		RedisPassword:        getEnvOrDefault("PMAGENT_REDIS_PASSWORD", ""),
		RedisDB:              getEnvIntOrDefault("PMAGENT_REDIS_DB", 0),
		RedisPrefix:          getEnvOrDefault("PMAGENT_REDIS_PREFIX", "pm_agent"),
		CaptureMarketData:    getEnvBoolOrDefault("PMAGENT_CAPTURE_MARKET_DATA", false),
		DataDir:              getEnvOrDefault("PMAGENT_DATA_DIR", "./market_data"),
		JournalBufferSize:    getEnvIntOrDefault("PMAGENT_JOURNAL_BUFFER_SIZE", 5000),
		JournalMaxFileSizeMB: getEnvIntOrDefault("PMAGENT_JOURNAL_MAX_FILE_SIZE_MB", 200),
		LogLevel:             strings.ToLower(getEnvOrDefault("PMAGENT_LOG_LEVEL", "info")),
		LogFile:              getEnvOrDefault("PMAGENT_LOG_FILE", "logs/pm_agent.log"),
		LaunchBrowser:        getEnvBoolOrDefault("PMAGENT_LAUNCH_BROWSER", false),
		ProfileDir:           getEnvOrDefault("PMAGENT_BROWSER_PROFILE_DIR", ""),
		StartURL:             getEnvOrDefault("PMAGENT_START_URL", "https://polymarket.com/"),
	}

	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.PollIntervalMS < 500 {
		cfg.PollIntervalMS = 500
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
