package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// API
	APIPort    int
	ServerName string

	// TLS
	TLSEnabled bool

	// Storage
	DataDir      string
	AllowedRoots []string

	// Sessions
	PairingTimeout   time.Duration
	SessionRetention time.Duration
	SweepInterval    time.Duration

	// Telemetry
	TelemetryInterval time.Duration

	// Rate limiting
	RateLimit       int
	RateLimitWindow time.Duration
}

func Load() *Config {
	// Optional .env for local development; real environment always wins.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	dataDir := getEnv("DATA_DIR", defaultDataDir())

	roots := splitPaths(getEnv("ALLOWED_ROOTS", ""))
	if len(roots) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Println("WARNING: ALLOWED_ROOTS not set and no home directory found - transfers are disabled until configured")
		} else {
			log.Printf("WARNING: ALLOWED_ROOTS not set - defaulting transfer access to %s", home)
			roots = []string{home}
		}
	}

	hostName, _ := os.Hostname()
	if hostName == "" {
		hostName = "pclink-server"
	}

	return &Config{
		APIPort:    getEnvInt("API_PORT", 8587),
		ServerName: getEnv("SERVER_NAME", hostName),

		TLSEnabled: getEnvBool("TLS_ENABLED", true),

		DataDir:      dataDir,
		AllowedRoots: roots,

		PairingTimeout:   time.Duration(getEnvInt("PAIRING_TIMEOUT_SECONDS", 60)) * time.Second,
		SessionRetention: time.Duration(getEnvInt("SESSION_RETENTION_DAYS", 7)) * 24 * time.Hour,
		SweepInterval:    time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,

		TelemetryInterval: time.Duration(getEnvInt("TELEMETRY_INTERVAL_SECONDS", 5)) * time.Second,

		RateLimit:       getEnvInt("API_RATE_LIMIT", 300),
		RateLimitWindow: 1 * time.Minute,
	}
}

func defaultDataDir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return ".pclink"
	}
	return filepath.Join(cfgDir, "pclink")
}

func splitPaths(s string) []string {
	var roots []string
	for _, p := range strings.Split(s, string(os.PathListSeparator)) {
		p = strings.TrimSpace(p)
		if p != "" {
			roots = append(roots, p)
		}
	}
	return roots
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
