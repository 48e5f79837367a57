//go:build integration

package integration

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/postgres"
	"github.com/medflow/clinic-workflow/backend/internal/infrastructure/clients/redis"
	"github.com/medflow/clinic-workflow/backend/pkg/config"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func newTestPostgresClient(t *testing.T) *postgres.Client {
	t.Helper()

	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("Skipping integration test: TEST_DB_HOST not set")
	}

	cfg := &config.DatabaseConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", ""),
		Database: getEnv("TEST_DB_NAME", "clinic_workflow_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}

	client, err := postgres.NewClient(cfg)
	require.NoError(t, err, "Failed to create postgres client")
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	if os.Getenv("TEST_REDIS_HOST") == "" {
		t.Skip("Skipping integration test: TEST_REDIS_HOST not set")
	}

	cfg := &config.RedisConfig{
		Host:     getEnv("TEST_REDIS_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_REDIS_PORT", 6379),
		Password: getEnv("TEST_REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("TEST_REDIS_DB", 0),
	}

	client, err := redis.NewClient(cfg)
	require.NoError(t, err, "Failed to create redis client")
	t.Cleanup(func() { client.Close() })
	return client
}

// resetWorkflowTables clears workflow data and the token counter so each
// test starts from an empty clinic
func resetWorkflowTables(t *testing.T, client *postgres.Client) {
	t.Helper()
	ctx := context.Background()

	schemaFile := getEnv("SCHEMA_FILE", "../../migrations/001_initial_schema.sql")
	schema, err := os.ReadFile(schemaFile)
	require.NoError(t, err, "Failed to read schema file")
	_, err = client.DB().ExecContext(ctx, string(schema))
	require.NoError(t, err, "Failed to apply schema")

	_, err = client.DB().ExecContext(ctx, `
		TRUNCATE TABLE task_updates, tasks, encounters, patients, doctors
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err, "Failed to truncate tables")

	_, err = client.DB().ExecContext(ctx,
		`UPDATE workflow_counters SET value = 0 WHERE name = 'encounter_token'`)
	require.NoError(t, err, "Failed to reset token counter")
}
