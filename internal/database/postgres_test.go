package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/config"
)

// Test configuration for local PostgreSQL
func getTestConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		Name:     getEnvOrDefault("DB_NAME", "permits"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		PoolMin:  2,
		PoolMax:  5,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func TestInTx_Commits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE buildings").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = InTx(context.Background(), mock, func(tx DBTX) error {
		_, err := tx.Exec(context.Background(), "UPDATE buildings SET updated_at = NOW()")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("insert failed")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM transactions").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO transactions").WillReturnError(boom)
	mock.ExpectRollback()

	err = InTx(context.Background(), mock, func(tx DBTX) error {
		if _, err := tx.Exec(context.Background(), "DELETE FROM transactions WHERE building_id = 1"); err != nil {
			return err
		}
		_, err := tx.Exec(context.Background(), "INSERT INTO transactions (document_id) VALUES ('x')")
		return err
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err = InTx(context.Background(), mock, func(tx DBTX) error {
		called = true
		return nil
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.False(t, called)
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mock.Close()

	for _, stmt := range schemaStatements {
		mock.ExpectExec(stmt).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsOnFirstFailure(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(schemaStatements[0]).WillReturnError(errors.New("permission denied"))

	err = Migrate(context.Background(), mock)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "schema statement 0")
}

func TestNewPostgresPool_Success(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := getTestConfig()

	db, err := NewPostgresPool(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	defer db.Close()

	if db.Stats() == nil {
		t.Error("Expected stats to be available")
	}
	if err := Migrate(ctx, db.Pool); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	// Schema statements are idempotent
	if err := Migrate(ctx, db.Pool); err != nil {
		t.Fatalf("Second Migrate failed: %v", err)
	}
}

func TestNewPostgresPool_InvalidHost(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cfg := getTestConfig()
	cfg.Host = "invalid-host-that-does-not-exist"

	_, err := NewPostgresPool(ctx, cfg)
	if err == nil {
		t.Error("Expected error when connecting to invalid host")
	}
}

func TestWithConn_ReleasesConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := NewPostgresPool(ctx, getTestConfig())
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	defer db.Close()

	for i := 0; i < 10; i++ {
		err := db.WithConn(ctx, func(conn DBTX) error {
			var one int
			return conn.QueryRow(ctx, "SELECT 1").Scan(&one)
		})
		if err != nil {
			t.Fatalf("WithConn failed on iteration %d: %v", i, err)
		}
	}

	if acquired := db.Stats().AcquiredConns(); acquired != 0 {
		t.Errorf("Expected all connections released, %d still acquired", acquired)
	}
}
