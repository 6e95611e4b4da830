package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config centralizes runtime settings for the client, the watcher and the
// local dashboard.
type Config struct {
	Environment string
	LogLevel    string

	APIBase string

	PollInterval time.Duration
	PollMaxTicks int

	SlotTimeout     time.Duration
	TriggerTimeout  time.Duration
	StatusTimeout   time.Duration
	TransferTimeout time.Duration
	RetryMaxElapsed time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	StateBackend   string
	StateFile      string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	DashboardAddr      string
	CORSAllowedOrigins []string
}

// LoadDotEnv loads .env-style files. Missing files are skipped and variables
// already present in the process environment keep precedence.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func Load() Config {
	return Config{
		Environment: getEnv("ENVIRONMENT", "local"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		APIBase: strings.TrimRight(getEnv("COACH_API_BASE", "http://localhost:8000/api/v1"), "/"),

		PollInterval: getEnvMillis("POLL_INTERVAL_MS", 3000),
		PollMaxTicks: getEnvInt("POLL_MAX_TICKS", 0),

		SlotTimeout:     getEnvMillis("SLOT_TIMEOUT_MS", 15000),
		TriggerTimeout:  getEnvMillis("TRIGGER_TIMEOUT_MS", 15000),
		StatusTimeout:   getEnvMillis("STATUS_TIMEOUT_MS", 12000),
		TransferTimeout: getEnvMillis("TRANSFER_TIMEOUT_MS", 0),
		RetryMaxElapsed: getEnvMillis("RETRY_MAX_ELAPSED_MS", 10000),

		RateLimitRPS:   getEnvFloat("API_RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("API_RATE_LIMIT_BURST", 5),

		StateBackend:   strings.ToLower(getEnv("STATE_BACKEND", BackendFile)),
		StateFile:      getEnv("STATE_FILE", defaultStateFile()),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "sales-coach:"),

		DashboardAddr:      getEnv("DASHBOARD_ADDR", ":8090"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func defaultStateFile() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".sales-coach", "state.json")
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvMillis(key string, fallbackMS int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMS)) * time.Millisecond
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
