package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartorio-ai/cartorio/pkg/decision"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "STORE_DRIVER", "DATABASE_URL", "LAW_PACK_DIR",
		"POLICY_BUNDLE_DIR", "IDENTIFIER_SECRET", "POLICY_DEFAULT_DECISION",
		"DEFENSE_WINDOW_DAYS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "cartorio.db", cfg.DatabaseURL)
	assert.Equal(t, "allow", cfg.DefaultDecision)
	assert.Equal(t, 7, cfg.DefenseWindowDays)
	assert.Equal(t, decision.KindAllow, cfg.Default().Kind)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://cartorio@localhost:5432/cartorio?sslmode=disable")
	t.Setenv("LAW_PACK_DIR", "/etc/cartorio/laws")
	t.Setenv("POLICY_DEFAULT_DECISION", "deny")
	t.Setenv("DEFENSE_WINDOW_DAYS", "14")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "/etc/cartorio/laws", cfg.LawPackDir)
	assert.Equal(t, 14, cfg.DefenseWindowDays)
	assert.Equal(t, decision.KindDeny, cfg.Default().Kind)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadIgnoresBadDefenseWindow(t *testing.T) {
	t.Setenv("DEFENSE_WINDOW_DAYS", "not-a-number")
	assert.Equal(t, 7, Load().DefenseWindowDays)

	t.Setenv("DEFENSE_WINDOW_DAYS", "-3")
	assert.Equal(t, 7, Load().DefenseWindowDays)
}
