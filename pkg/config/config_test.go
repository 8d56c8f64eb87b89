package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "hospital_ops", cfg.Database.Database)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.AutoCloseInterval)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.StatisticsInterval)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.RetryInterval)
	assert.Equal(t, 2*time.Second, cfg.Realtime.PublishTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("SCHEDULER_AUTOCLOSE_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.AutoCloseInterval)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres",
		Password: "secret", Database: "hospital_ops", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=hospital_ops sslmode=disable",
		cfg.DatabaseDSN(),
	)
}
