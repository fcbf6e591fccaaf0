package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	var missingDotEnv = func(t *testing.T) string {
		return filepath.Join(t.TempDir(), "missing.env")
	}

	t.Run("should apply defaults", func(t *testing.T) {
		// Act
		var cfg, err = Load(missingDotEnv(t))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.DBDriver)
		assert.Equal(t, "membership", cfg.Namespace)
		assert.Equal(t, 30*24*time.Hour, cfg.RejectionRetention)
		assert.Zero(t, cfg.RejoinCooldown)
		assert.False(t, cfg.PresidentMembership)
		assert.Empty(t, cfg.SweepSchedule)
	})

	t.Run("should read overrides from the environment", func(t *testing.T) {
		// Arrange
		t.Setenv("MEMBERSHIP_DB_DRIVER", "postgres")
		t.Setenv("MEMBERSHIP_DB_DSN", "postgres://localhost/membership?sslmode=disable")
		t.Setenv("MEMBERSHIP_PUBLIC_COMMUNITY_ID", "public")
		t.Setenv("MEMBERSHIP_REJOIN_COOLDOWN", "2h")
		t.Setenv("MEMBERSHIP_PRESIDENT_MEMBERSHIP", "true")
		t.Setenv("MEMBERSHIP_SWEEP_SCHEDULE", "@every 10m")

		// Act
		var cfg, err = Load(missingDotEnv(t))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.DBDriver)
		assert.Equal(t, "public", cfg.PublicCommunityID)
		assert.Equal(t, 2*time.Hour, cfg.RejoinCooldown)
		assert.True(t, cfg.PresidentMembership)
		assert.Equal(t, "@every 10m", cfg.SweepSchedule)
	})

	t.Run("should load values from a dotenv file without overriding the environment", func(t *testing.T) {
		// Arrange
		var path = filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("MEMBERSHIP_NAMESPACE=from_file\nMEMBERSHIP_HTTP_ADDR=:9999\n"), 0o600))
		t.Setenv("MEMBERSHIP_HTTP_ADDR", ":7000")
		t.Cleanup(func() { _ = os.Unsetenv("MEMBERSHIP_NAMESPACE") })

		// Act
		var cfg, err = Load(path)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "from_file", cfg.Namespace)
		assert.Equal(t, ":7000", cfg.HTTPAddr)
	})

	t.Run("should reject an unknown driver", func(t *testing.T) {
		// Arrange
		t.Setenv("MEMBERSHIP_DB_DRIVER", "mysql")

		// Act
		var _, err = Load(missingDotEnv(t))

		// Assert
		assert.ErrorContains(t, err, "MEMBERSHIP_DB_DRIVER")
	})

	t.Run("should report malformed durations", func(t *testing.T) {
		// Arrange
		t.Setenv("MEMBERSHIP_REJECTION_RETENTION", "a month")

		// Act
		var _, err = Load(missingDotEnv(t))

		// Assert
		assert.ErrorContains(t, err, "parse env:")
	})
}
