// Package sqlite contains SQLite implementations of repository interfaces
// (pure Go driver, no CGO).
package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinovest/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/and161185/plaze/internal/migrate"
)

// Open connects to dsn, applies connection defaults and runs migrations.
// An empty dsn means ./data/plaze.db.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = "./data/plaze.db"
	}
	memory := isMemory(dsn)
	if !memory {
		path := dsn
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		path = strings.TrimPrefix(path, "file:")
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, err
		}
	}

	conn, err := sqlx.Open("sqlite", withDefaults(dsn, memory))
	if err != nil {
		return nil, err
	}
	if memory {
		// every connection to :memory: is a separate database
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
	}
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := migrate.UpSQLite(ctx, conn.DB); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func isMemory(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// withDefaults appends per-connection settings unless the DSN already sets them.
// Write transactions start with BEGIN IMMEDIATE so read-modify-write sequences serialize.
func withDefaults(dsn string, memory bool) string {
	params := []struct{ key, value string }{
		{"_txlock", "immediate"},
		{"_time_format", "sqlite"},
		{"busy_timeout", "_pragma=busy_timeout(5000)"},
		{"foreign_keys", "_pragma=foreign_keys(1)"},
	}
	if !memory {
		params = append(params, struct{ key, value string }{"journal_mode", "_pragma=journal_mode(WAL)"})
	}
	for _, p := range params {
		if strings.Contains(dsn, p.key) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		if strings.HasPrefix(p.value, "_pragma=") {
			dsn += sep + p.value
		} else {
			dsn += sep + p.key + "=" + p.value
		}
	}
	return dsn
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
