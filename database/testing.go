package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TestPostgresURLEnv selects a Postgres server for tests instead of a temporary SQLite file.
const TestPostgresURLEnv = "MEMBERSHIP_TEST_POSTGRES_URL"

// TestingT is an interface for testing compatibility.
type TestingT interface {
	Logf(format string, args ...any)
	FailNow()
	Cleanup(func())
	TempDir() string
}

// SetupTestDatabase returns an isolated, empty database.
// By default it is a fresh SQLite file; if MEMBERSHIP_TEST_POSTGRES_URL is set, a new
// Postgres schema is created on that server instead.
func SetupTestDatabase(t TestingT) *sqlx.DB {
	if connURL := os.Getenv(TestPostgresURLEnv); connURL != "" {
		return setupPostgres(t, connURL)
	}
	return setupSQLite(t)
}

func setupSQLite(t TestingT) *sqlx.DB {
	var path = filepath.Join(t.TempDir(), "membership.db")

	conn, err := Open(context.Background(), DriverSQLite, path)
	if err != nil {
		t.Logf("failed to open sqlite database: %v", err)
		t.FailNow()
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

func setupPostgres(t TestingT, connURL string) *sqlx.DB {
	var schema = fmt.Sprintf("test_%s", uuid.New().String()[0:8])

	// First, connect to create the schema
	conn, err := sqlx.Open(DriverPostgres, connURL)
	if err != nil {
		t.Logf("failed to connect to database. Is your local database running?: %v", err)
		t.FailNow()
	}

	_, err = conn.Exec("CREATE SCHEMA IF NOT EXISTS " + schema)
	if err != nil {
		t.Logf("Failed to create schema %s", schema)
		t.Logf("Error: %s", err)
		t.FailNow()
	}
	conn.Close()

	// Reconnect with the schema on the search path
	var separator = "?"
	if strings.Contains(connURL, "?") {
		separator = "&"
	}
	conn, err = Open(context.Background(), DriverPostgres, connURL+separator+"search_path="+schema)
	if err != nil {
		t.Logf("failed to connect to database with schema: %v", err)
		t.FailNow()
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}
