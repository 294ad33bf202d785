package source

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"tablemap/internal/record"
)

// ── Database Source ────────────────────────────────────────
// Runs a query against an external database and streams the rows.

type databaseSource struct{}

func init() { Register(&databaseSource{}) }

func (s *databaseSource) Spec() Spec {
	return Spec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: []ConfigField{
			{Key: "driver", Label: "Driver", Required: true, Help: "mysql, postgres or sqlite"},
			{Key: "dsn", Label: "DSN", Required: true, Help: "Connection string for the driver"},
			{Key: "query", Label: "Query", Required: true, Help: "SELECT statement to run"},
		},
	}
}

func (s *databaseSource) Read(ctx context.Context, cfg Config) (<-chan *record.Record, <-chan error) {
	out := make(chan *record.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		driver, _ := cfg["driver"].(string)
		dsn, _ := cfg["dsn"].(string)
		query, _ := cfg["query"].(string)
		if driver == "" || dsn == "" || query == "" {
			errCh <- fmt.Errorf("driver, dsn and query are required")
			return
		}

		db, err := sql.Open(driver, dsn)
		if err != nil {
			errCh <- fmt.Errorf("open %s: %w", driver, err)
			return
		}
		defer db.Close()

		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			errCh <- fmt.Errorf("query: %w", err)
			return
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			errCh <- fmt.Errorf("columns: %w", err)
			return
		}

		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				errCh <- fmt.Errorf("scan: %w", err)
				return
			}

			rec := record.NewRecord()
			for i, col := range cols {
				rec.Set(col, record.FromAny(vals[i]))
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}
