// Package store opens the SQLite databases backing the index queue, the event
// queue and the content snapshot.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// Open opens (creating if needed) a SQLite database and applies schema.
// An empty path opens an in-memory database.
func Open(path string, schema string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, serrors.StorageError(fmt.Sprintf("failed to create directory %s", dir), err)
		}
		if err := validateIntegrity(path); err != nil {
			return nil, serrors.New(serrors.ErrCodeCorruptStorage,
				fmt.Sprintf("database %s is corrupted", path), err).
				WithDetail("path", path)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, serrors.StorageError("failed to open database", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, serrors.StorageError("failed to set pragma", err)
		}
	}

	if schema != "" {
		if _, err := db.Exec(schema); err != nil {
			_ = db.Close()
			return nil, serrors.StorageError("failed to create schema", err)
		}
	}
	return db, nil
}

// validateIntegrity checks an existing database file before opening it.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	_, _ = db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.Close()
}

// IsBusy reports whether err is a SQLite lock contention error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// classify maps driver errors onto storage error codes.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsBusy(err) {
		return serrors.New(serrors.ErrCodeStorageBusy, op, err)
	}
	return serrors.New(serrors.ErrCodeStorageQuery, op, err)
}

// Exec runs a write statement, retrying on lock contention.
func Exec(ctx context.Context, db *sql.DB, op string, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := serrors.Retry(ctx, serrors.BusyRetryConfig(), func() error {
		var execErr error
		res, execErr = db.ExecContext(ctx, query, args...)
		return classify(op, execErr)
	})
	return res, err
}

// Query runs a read statement and classifies its error.
func Query(ctx context.Context, db *sql.DB, op string, query string, args ...any) (*sql.Rows, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	return rows, nil
}
