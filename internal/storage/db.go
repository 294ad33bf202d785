package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DB wraps a SQL connection together with the dialect used to render
// DDL and placeholders for it.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open opens (or creates) the SQLite database at dbPath and runs the
// meta-table migrations.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer — limit to single connection to prevent SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, dialect: SQLiteDialect{}}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenDSN opens a database by driver name ("sqlite", "mysql", "postgres")
// and DSN. Meta-table migrations run only on SQLite; for server databases
// the caller is expected to manage its own catalog.
func OpenDSN(driver, dsn string) (*DB, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return &DB{conn: conn, dialect: d}, nil
}

// MySQLDSN builds a MySQL DSN.
// Format: user:password@tcp(host:port)/dbname?parseTime=true
func MySQLDSN(host string, port int, user, password, dbname string) string {
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		user, password, host, port, dbname)
}

// PostgresDSN builds a Postgres connection string.
func PostgresDSN(host string, port int, user, password, dbname, sslMode string) string {
	if port == 0 {
		port = 5432
	}
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslMode)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Dialect returns the SQL dialect for this connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS import_jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_type TEXT NOT NULL,
			source_config TEXT NOT NULL DEFAULT '{}',
			target_kind TEXT NOT NULL DEFAULT 'table',
			target_name TEXT NOT NULL,
			unique_field TEXT NOT NULL DEFAULT '',
			pk_name TEXT NOT NULL DEFAULT 'id',
			title_field TEXT NOT NULL DEFAULT '',
			content_field TEXT NOT NULL DEFAULT '',
			detect_images INTEGER NOT NULL DEFAULT 1,
			max_depth INTEGER NOT NULL DEFAULT 3,
			sync_mode TEXT NOT NULL DEFAULT 'append',
			trigger_type TEXT NOT NULL DEFAULT 'manual',
			trigger_config TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			last_run_at DATETIME,
			last_status TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS import_run_logs (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES import_jobs(id),
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			status TEXT NOT NULL,
			rows_read INTEGER NOT NULL DEFAULT 0,
			rows_written INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_run_logs_job ON import_run_logs(job_id)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			post_type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_type ON posts(post_type)`,
		`CREATE TABLE IF NOT EXISTS post_fields (
			post_id TEXT NOT NULL REFERENCES posts(id),
			name TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (post_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS field_definitions (
			post_type TEXT NOT NULL,
			name TEXT NOT NULL,
			field_type TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (post_type, name)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}
	return nil
}
