package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/cartorio-ai/cartorio/pkg/decision"
)

// Config holds service configuration.
type Config struct {
	LogLevel string

	// StoreDriver selects the contract store: memory, sqlite, or postgres.
	StoreDriver string
	DatabaseURL string

	// LawPackDir and PolicyBundleDir are scanned for governance content.
	LawPackDir      string
	PolicyBundleDir string

	// IdentifierSecret keys the identifier checksum. Empty disables actor
	// validation at the gate.
	IdentifierSecret string

	// DefaultDecision applies when no rule matches: allow or deny.
	DefaultDecision string

	// DefenseWindowDays is the default dispute defense window.
	DefenseWindowDays int
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("STORE_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "cartorio.db"
	}

	defaultDecision := os.Getenv("POLICY_DEFAULT_DECISION")
	if defaultDecision == "" {
		defaultDecision = "allow"
	}

	defenseDays := 7
	if v := os.Getenv("DEFENSE_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			defenseDays = n
		}
	}

	return &Config{
		LogLevel:          logLevel,
		StoreDriver:       driver,
		DatabaseURL:       dbURL,
		LawPackDir:        os.Getenv("LAW_PACK_DIR"),
		PolicyBundleDir:   os.Getenv("POLICY_BUNDLE_DIR"),
		IdentifierSecret:  os.Getenv("IDENTIFIER_SECRET"),
		DefaultDecision:   defaultDecision,
		DefenseWindowDays: defenseDays,
	}
}

// Default reports the decision applied when no rule matches. Anything other
// than an explicit "allow" fails closed.
func (c *Config) Default() decision.Decision {
	if c.DefaultDecision == "allow" {
		return decision.Allow()
	}
	return decision.Deny("no rule matched")
}

// SlogLevel maps the configured log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}
