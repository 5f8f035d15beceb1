package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Telegram
	BotToken string
	AdminID  string

	// Admission
	SubscribeSecret string

	// Screening
	Granularities      string // comma-separated, e.g. "1h,4h,1d"
	CycleInterval      time.Duration
	MaxWorkers         int
	SendWorkers        int
	DeclineInstruments string // comma-separated symbols eligible for the decline detector

	// Persistence
	OccurrenceBackend string // "sqlite" or "redis"
	SQLitePath        string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	UsersPath         string
	PrefsPath         string

	// Infrastructure
	MetricsAddr string
	ExchangeURL string
}

// Load reads configuration from the environment, with an optional .env file
// for local development.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	return &Config{
		BotToken: mustEnv("TG_BOT_TOKEN"),
		AdminID:  mustEnv("TG_ADMIN_ID"),

		SubscribeSecret: mustEnv("SUBSCRIBE_PASSWORD"),

		Granularities:      getEnv("GRANULARITIES", "1h,4h,1d"),
		CycleInterval:      getDuration("CYCLE_INTERVAL", 60*time.Minute),
		MaxWorkers:         getInt("MAX_WORKERS", 10),
		SendWorkers:        getInt("SEND_WORKERS", 4),
		DeclineInstruments: getEnv("DECLINE_INSTRUMENTS", "BTCUSDT,ETHUSDT"),

		OccurrenceBackend: getEnv("OCCURRENCE_BACKEND", "sqlite"),
		SQLitePath:        getEnv("SQLITE_PATH", "data/occurrences.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getInt("REDIS_DB", 0),
		UsersPath:         getEnv("USERS_PATH", "data/allowed_users.txt"),
		PrefsPath:         getEnv("PREFS_PATH", "data/user_settings.json"),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		ExchangeURL: getEnv("EXCHANGE_URL", ""),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
