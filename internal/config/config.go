package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Adapter names accepted in ADAPTER. The choice is a deployment decision;
// switching adapters for an existing chat is not supported.
const (
	AdapterNode  = "node"
	AdapterRelay = "relay"
)

// Config holds application configuration
type Config struct {
	ListenAddr string
	DBPath     string

	// Which remote sync adapter drives per-chat message sync.
	Adapter string

	// Remote endpoints
	NodeURL      string // decentralized message-node gateway
	RelayURL     string // realtime relay (fallback adapter + directory push)
	DirectoryURL string // chat directory backend
	UserAPIURL   string // user directory lookup

	UserID        string
	Username      string
	APIToken      string // shared secret for the local HTTP surface, empty disables the check
	SessionSecret string

	PollInterval   time.Duration
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() Config {
	cfg := Config{
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		DBPath:        getenv("DB_PATH", "chatsync.db"),
		Adapter:       getenv("ADAPTER", AdapterNode),
		NodeURL:       getenv("NODE_URL", "http://localhost:5555"),
		RelayURL:      getenv("RELAY_URL", "http://localhost:5001"),
		DirectoryURL:  getenv("DIRECTORY_URL", "http://localhost:5001"),
		UserAPIURL:    getenv("USER_API_URL", "https://maia-api.ngrok-free.dev"),
		UserID:        getenv("USER_ID", ""),
		Username:      getenv("USERNAME", ""),
		APIToken:      getenv("API_TOKEN", ""),
		SessionSecret: getenv("SESSION_SECRET", "change-me-in-production"),
	}

	intervalMS, err := strconv.Atoi(getenv("POLL_INTERVAL_MS", "5000"))
	if err != nil || intervalMS <= 0 {
		intervalMS = 5000
	}
	cfg.PollInterval = time.Duration(intervalMS) * time.Millisecond

	origins := getenv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	cfg.AllowedOrigins = strings.Split(origins, ",")
	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
