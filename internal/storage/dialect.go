package storage

import (
	"fmt"
	"strings"

	"tablemap/internal/infer"
	"tablemap/internal/schema"
)

// Dialect renders identifiers, placeholders, and DDL for one SQL flavor.
type Dialect interface {
	Name() string
	Quote(ident string) string
	// Placeholder returns the bind marker for the n-th parameter (1-based).
	Placeholder(n int) string
	// ColumnType maps a storage type to this dialect's column type.
	ColumnType(t infer.StorageType) string
	// CreateTableSQL renders the full CREATE TABLE statement.
	CreateTableSQL(table string, s *schema.Schema) string
	// TableExistsSQL returns a query with one bind parameter (the table
	// name) that yields at least one row when the table exists.
	TableExistsSQL() string
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite":
		return SQLiteDialect{}, nil
	case "mysql":
		return MySQLDialect{}, nil
	case "postgres":
		return PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// ── SQLite ─────────────────────────────────────────────────

type SQLiteDialect struct{}

func (SQLiteDialect) Name() string            { return "sqlite" }
func (SQLiteDialect) Quote(ident string) string { return `"` + ident + `"` }
func (SQLiteDialect) Placeholder(int) string  { return "?" }

func (SQLiteDialect) ColumnType(t infer.StorageType) string {
	switch t {
	case infer.TypeInteger:
		return "INTEGER"
	case infer.TypeDecimal:
		return "NUMERIC"
	case infer.TypeBoolean:
		return "INTEGER"
	case infer.TypeDateTime:
		return "DATETIME"
	case infer.TypeVarchar, infer.TypeImage:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d SQLiteDialect) CreateTableSQL(table string, s *schema.Schema) string {
	defs := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		def := d.Quote(c.Name) + " " + d.ColumnType(c.Type)
		if c.PrimaryKey {
			def += " PRIMARY KEY"
			if c.AutoIncrement {
				def += " AUTOINCREMENT"
			}
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Quote(table), strings.Join(defs, ",\n  "))
}

func (SQLiteDialect) TableExistsSQL() string {
	return `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`
}

// ── MySQL ──────────────────────────────────────────────────

type MySQLDialect struct{}

func (MySQLDialect) Name() string              { return "mysql" }
func (MySQLDialect) Quote(ident string) string { return "`" + ident + "`" }
func (MySQLDialect) Placeholder(int) string    { return "?" }

func (MySQLDialect) ColumnType(t infer.StorageType) string {
	switch t {
	case infer.TypeInteger:
		return "BIGINT"
	case infer.TypeDecimal:
		return "DECIMAL(10,2)"
	case infer.TypeBoolean:
		return "TINYINT(1)"
	case infer.TypeDateTime:
		return "DATETIME"
	case infer.TypeVarchar, infer.TypeImage:
		return "VARCHAR(255)"
	default:
		return "LONGTEXT"
	}
}

func (d MySQLDialect) CreateTableSQL(table string, s *schema.Schema) string {
	defs := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		def := d.Quote(c.Name) + " " + d.ColumnType(c.Type)
		if c.AutoIncrement {
			def += " AUTO_INCREMENT"
		}
		if c.PrimaryKey {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		d.Quote(table), strings.Join(defs, ",\n  "))
}

func (MySQLDialect) TableExistsSQL() string {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`
}

// ── Postgres ───────────────────────────────────────────────

type PostgresDialect struct{}

func (PostgresDialect) Name() string              { return "postgres" }
func (PostgresDialect) Quote(ident string) string { return `"` + ident + `"` }
func (PostgresDialect) Placeholder(n int) string  { return fmt.Sprintf("$%d", n) }

func (PostgresDialect) ColumnType(t infer.StorageType) string {
	switch t {
	case infer.TypeInteger:
		return "BIGINT"
	case infer.TypeDecimal:
		return "NUMERIC(10,2)"
	case infer.TypeBoolean:
		return "BOOLEAN"
	case infer.TypeDateTime:
		return "TIMESTAMP"
	case infer.TypeVarchar, infer.TypeImage:
		return "VARCHAR(255)"
	default:
		return "TEXT"
	}
}

func (d PostgresDialect) CreateTableSQL(table string, s *schema.Schema) string {
	defs := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		typ := d.ColumnType(c.Type)
		if c.AutoIncrement && c.Type == infer.TypeInteger {
			typ = "BIGSERIAL"
		}
		def := d.Quote(c.Name) + " " + typ
		if c.PrimaryKey {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Quote(table), strings.Join(defs, ",\n  "))
}

func (PostgresDialect) TableExistsSQL() string {
	return `SELECT tablename FROM pg_tables WHERE schemaname = current_schema() AND tablename = $1`
}
