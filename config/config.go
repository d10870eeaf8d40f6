package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port            string
	Hostname        string
	Mode            string // "local" or "cloud"
	AllowedOrigins  []string
	TLSCertFile     string
	TLSKeyFile      string
	ShutdownTimeout time.Duration
	APISpecFile     string

	// Relay
	BridgeTimeout time.Duration
	PinRateLimit  int // validate-pin calls per minute per client

	// WebSocket
	WSPath            string
	WSPingInterval    time.Duration
	WSPongWait        time.Duration
	WSSendBuffer      int
	WSMaxMessageBytes int64

	// Logging
	LogDir   string
	LogLevel string
}

func LoadConfig() Config {
	_ = godotenv.Load()

	mode := getEnv("RELAY_MODE", "")
	if mode == "" {
		mode = "local"
		// Hosted relays (Railway, Render) advertise themselves this way.
		if os.Getenv("RAILWAY_ENVIRONMENT") != "" || os.Getenv("RENDER") != "" {
			mode = "cloud"
		}
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Hostname:        getEnv("RELAY_HOSTNAME", "escoresheet.local"),
		Mode:            mode,
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "*")),
		TLSCertFile:     getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:      getEnv("TLS_KEY_FILE", ""),
		ShutdownTimeout: mustParseDuration(getEnv("SHUTDOWN_TIMEOUT", "5s"), 5*time.Second),
		APISpecFile:     getEnv("API_SPEC_FILE", "./cmd/server/docs/openapi.json"),

		BridgeTimeout: mustParseDuration(getEnv("BRIDGE_TIMEOUT", "5s"), 5*time.Second),
		PinRateLimit:  mustParseInt(getEnv("PIN_RATE_LIMIT", "30"), 30),

		WSPath:            getEnv("WS_PATH", "/ws"),
		WSPingInterval:    mustParseDuration(getEnv("WS_PING_INTERVAL", "25s"), 25*time.Second),
		WSPongWait:        mustParseDuration(getEnv("WS_PONG_WAIT", "60s"), 60*time.Second),
		WSSendBuffer:      mustParseInt(getEnv("WS_SEND_BUFFER", "64"), 64),
		WSMaxMessageBytes: int64(mustParseInt(getEnv("WS_MAX_MESSAGE_BYTES", "104857600"), 100<<20)),

		LogDir:   getEnv("LOG_DIR", "logs"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// TLSEnabled reports whether both certificate files are configured and
// present on disk.
func (c Config) TLSEnabled() bool {
	if c.TLSCertFile == "" || c.TLSKeyFile == "" {
		return false
	}
	if _, err := os.Stat(c.TLSCertFile); err != nil {
		return false
	}
	_, err := os.Stat(c.TLSKeyFile)
	return err == nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func splitList(str string) []string {
	var out []string
	for _, part := range strings.Split(str, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func mustParseDuration(str string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(str)
	if err != nil || d <= 0 {
		log.Printf("Invalid duration '%s', defaulting to %s", str, fallback)
		return fallback
	}
	return d
}

func mustParseInt(str string, fallback int) int {
	i, err := strconv.Atoi(str)
	if err != nil || i <= 0 {
		log.Printf("Invalid integer '%s', defaulting to %d", str, fallback)
		return fallback
	}
	return i
}
