package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds both the relay settings and the client settings; each binary
// reads the part it needs.
type Config struct {
	Addr            string
	JWTSecret       string
	JWTTTLMin       int
	DBDriver        string
	DBDsn           string
	MaxGroupMembers int
	InboundRate     float64
	InboundBurst    int

	ServerURL            string
	Token                string
	ReconnectDelay       time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	TypingIdle           time.Duration
	TypingTTL            time.Duration
	PageSize             int

	LogLevel string
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return def
}

func getint(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil {
		return def
	}
	return n
}

func getms(key string, def int) time.Duration {
	return time.Duration(getint(key, def)) * time.Millisecond
}

func MustLoad() Config {
	rate, err := strconv.ParseFloat(getenv("INBOUND_RATE", "5"), 64)
	if err != nil {
		rate = 5
	}

	cfg := Config{
		Addr:            getenv("HTTP_ADDR", ":8080"),
		JWTSecret:       getenv("JWT_SECRET", ""),
		JWTTTLMin:       getint("JWT_TTL_MIN", 1440),
		DBDriver:        getenv("DB_DRIVER", "sqlite"),
		DBDsn:           getenv("DB_DSN", "file:chat.db?_pragma=foreign_keys(ON)"),
		MaxGroupMembers: getint("MAX_GROUP_MEMBERS", 50),
		InboundRate:     rate,
		InboundBurst:    getint("INBOUND_BURST", 10),

		ServerURL:            getenv("CHAT_SERVER_URL", "http://localhost:8080"),
		Token:                getenv("CHAT_TOKEN", ""),
		ReconnectDelay:       getms("RECONNECT_DELAY_MS", 2000),
		ReconnectMaxDelay:    getms("RECONNECT_MAX_DELAY_MS", 30000),
		MaxReconnectAttempts: getint("RECONNECT_MAX_ATTEMPTS", 6),
		TypingIdle:           getms("TYPING_IDLE_MS", 1200),
		TypingTTL:            getms("TYPING_TTL_MS", 5000),
		PageSize:             getint("PAGE_SIZE", 50),

		LogLevel: getenv("LOG_LEVEL", "info"),
	}
	return cfg
}

// NewLogger builds the process logger: text to stderr at the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
