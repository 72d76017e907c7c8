package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yeremiapane/chopchop-backend/utils"
)

type Config struct {
	Env     string
	Port    string
	GinMode string

	LogLevel  string
	LogFormat string

	DBDriver string
	DBDSN    string

	WebhookAPIKey string
	AdminAPIKey   string
	JWTSecret     string
	TokenTTL      time.Duration

	MenuverseURL     string
	MenuverseAPIKey  string
	MenuverseTimeout time.Duration

	AMQPURL      string
	AMQPExchange string

	StatusTableFile string
	CacheTTL        time.Duration

	ProjectionInterval    time.Duration
	ProjectionMaxAttempts int
	ChangeMonitorInterval time.Duration
	SyncInterval          time.Duration

	BroadcastUnmatchedVendors bool

	WebhookRatePerSecond float64
	WebhookBurst         int

	CORSOrigins []string

	OTLPEndpoint    string
	ServiceName     string
	TraceSampleRate float64
}

// Load reads .env (when present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		utils.InfoLogger.Debug("No .env file loaded")
	}

	return &Config{
		Env:     getEnv("APP_ENV", "development"),
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "chopchop.db"),

		WebhookAPIKey: firstEnv("WEBHOOK_API_KEY", "MENUVERSE_WEBHOOK_API_KEY"),
		AdminAPIKey:   os.Getenv("ADMIN_API_KEY"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		TokenTTL:      getDuration("VENDOR_TOKEN_TTL", 24*time.Hour),

		MenuverseURL:     getEnv("MENUVERSE_API_URL", "https://menuverse-api.onrender.com/graphql"),
		MenuverseAPIKey:  os.Getenv("MENUVERSE_API_KEY"),
		MenuverseTimeout: getDuration("MENUVERSE_TIMEOUT", 10*time.Second),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "order_events"),

		StatusTableFile: os.Getenv("STATUS_TABLE_FILE"),
		CacheTTL:        getDuration("ORDER_CACHE_TTL", 30*time.Second),

		ProjectionInterval:    getDuration("PROJECTION_INTERVAL", 2*time.Second),
		ProjectionMaxAttempts: getInt("PROJECTION_MAX_ATTEMPTS", 8),
		ChangeMonitorInterval: getDuration("CHANGE_MONITOR_INTERVAL", 500*time.Millisecond),
		SyncInterval:          getDuration("SYNC_INTERVAL", 0),

		BroadcastUnmatchedVendors: getBool("VENDOR_FALLBACK_BROADCAST", false),

		WebhookRatePerSecond: getFloat("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookBurst:         getInt("WEBHOOK_BURST", 40),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),

		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:     getEnv("OTEL_SERVICE_NAME", "chopchop-backend"),
		TraceSampleRate: getFloat("OTEL_SAMPLE_RATE", 1),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		utils.ErrorLogger.Printf("Invalid duration for %s: %q, using %s", key, v, def)
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		utils.ErrorLogger.Printf("Invalid integer for %s: %q, using %d", key, v, def)
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		utils.ErrorLogger.Printf("Invalid number for %s: %q, using %v", key, v, def)
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
