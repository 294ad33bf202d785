package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tablemap/internal/codec"
	"tablemap/internal/infer"
	"tablemap/internal/record"
	"tablemap/internal/schema"
)

// dateTimeLayout is how DATETIME column values are rendered for storage.
const dateTimeLayout = "2006-01-02 15:04:05"

// TableStore performs typed CRUD against tables created on demand from
// example records. All data values travel as bound parameters; composite
// values cross the storage boundary through the codec.
type TableStore struct {
	db *DB
}

// NewTableStore creates a TableStore over an open DB.
func NewTableStore(db *DB) *TableStore {
	return &TableStore{db: db}
}

// TableExists reports whether the named table exists.
func (s *TableStore) TableExists(ctx context.Context, name string) (bool, error) {
	row := s.db.conn.QueryRowContext(ctx, s.db.dialect.TableExistsSQL(), name)
	var found string
	err := row.Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", name, err)
	}
	return true, nil
}

// EnsureTable creates the table for the schema unless it already exists.
// Existing tables are left untouched: the schema is fixed at creation,
// never migrated.
func (s *TableStore) EnsureTable(ctx context.Context, name string, sc *schema.Schema) error {
	exists, err := s.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	ddl := s.db.dialect.CreateTableSQL(name, sc)
	if _, err := s.db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	return nil
}

// Insert writes one record and returns the generated id (0 when the
// primary key value came from the record itself). Failures are logged
// and reported as a zero result.
func (s *TableStore) Insert(ctx context.Context, table string, sc *schema.Schema, rec *record.Record) (int64, error) {
	cols, args := s.bindColumns(sc, rec)
	if len(cols) == 0 {
		return 0, nil
	}

	d := s.db.dialect
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
		marks[i] = d.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error().Err(err).Str("table", table).Msg("insert failed")
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// BulkInsert writes all records inside one transaction. A failure on any
// row rolls the whole batch back and reports zero rows and an empty id
// list — no partial batches. Generated ids are collected per row from
// the driver rather than reconstructed from an id range.
func (s *TableStore) BulkInsert(ctx context.Context, table string, sc *schema.Schema, recs []*record.Record) (int, []int64, error) {
	if len(recs) == 0 {
		return 0, nil, nil
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	d := s.db.dialect
	ids := make([]int64, 0, len(recs))
	for i, rec := range recs {
		cols, args := s.bindColumns(sc, rec)
		quoted := make([]string, len(cols))
		marks := make([]string, len(cols))
		for j, c := range cols {
			quoted[j] = d.Quote(c)
			marks[j] = d.Placeholder(j + 1)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.Quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			log.Error().Err(err).Str("table", table).Int("row", i).Msg("bulk insert rolled back")
			return 0, nil, fmt.Errorf("insert row %d into %s: %w", i, table, err)
		}
		id, _ := res.LastInsertId()
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit: %w", err)
	}
	return len(recs), ids, nil
}

// Get reads one row by primary key value.
func (s *TableStore) Get(ctx context.Context, table string, sc *schema.Schema, pkValue any) (*record.Record, error) {
	pk, ok := sc.PrimaryKey()
	if !ok {
		return nil, fmt.Errorf("schema for %s has no primary key", table)
	}

	d := s.db.dialect
	names := sc.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(quoted, ", "), d.Quote(table), d.Quote(pk.Name), d.Placeholder(1))

	row := s.db.conn.QueryRowContext(ctx, query, pkValue)
	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get from %s: %w", table, err)
	}
	return s.scanRecord(sc, names, vals), nil
}

// List reads all rows in primary-key order.
func (s *TableStore) List(ctx context.Context, table string, sc *schema.Schema) ([]*record.Record, error) {
	pk, ok := sc.PrimaryKey()
	if !ok {
		return nil, fmt.Errorf("schema for %s has no primary key", table)
	}

	d := s.db.dialect
	names := sc.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s ASC",
		strings.Join(quoted, ", "), d.Quote(table), d.Quote(pk.Name))

	rows, err := s.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, s.scanRecord(sc, names, vals))
	}
	return out, rows.Err()
}

// Update rewrites the non-key fields of one row by primary key value.
// Returns the number of affected rows; failures are logged and reported
// as zero.
func (s *TableStore) Update(ctx context.Context, table string, sc *schema.Schema, pkValue any, rec *record.Record) (int, error) {
	pk, ok := sc.PrimaryKey()
	if !ok {
		return 0, fmt.Errorf("schema for %s has no primary key", table)
	}

	d := s.db.dialect
	var sets []string
	var args []any
	n := 1
	for _, col := range sc.Columns {
		if col.PrimaryKey {
			continue
		}
		v, ok := rec.Get(col.Name)
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", d.Quote(col.Name), d.Placeholder(n)))
		args = append(args, encodeArg(col.Type, v))
		n++
	}
	if len(sets) == 0 {
		return 0, nil
	}
	args = append(args, pkValue)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.Quote(table), strings.Join(sets, ", "), d.Quote(pk.Name), d.Placeholder(n))

	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error().Err(err).Str("table", table).Msg("update failed")
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// Delete removes one row by primary key value.
func (s *TableStore) Delete(ctx context.Context, table string, sc *schema.Schema, pkValue any) (int, error) {
	pk, ok := sc.PrimaryKey()
	if !ok {
		return 0, fmt.Errorf("schema for %s has no primary key", table)
	}
	d := s.db.dialect
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		d.Quote(table), d.Quote(pk.Name), d.Placeholder(1))

	res, err := s.db.conn.ExecContext(ctx, query, pkValue)
	if err != nil {
		log.Error().Err(err).Str("table", table).Msg("delete failed")
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// bindColumns returns the column names and bind arguments for a record,
// skipping the auto-generated primary key and fields absent from the
// schema (the schema is the contract; extra record fields are dropped).
func (s *TableStore) bindColumns(sc *schema.Schema, rec *record.Record) ([]string, []any) {
	var cols []string
	var args []any
	for _, col := range sc.Columns {
		if col.AutoIncrement {
			continue
		}
		v, ok := rec.Get(col.Name)
		if !ok {
			continue
		}
		cols = append(cols, col.Name)
		args = append(args, encodeArg(col.Type, v))
	}
	return cols, args
}

// encodeArg converts a value into a driver argument. Composite values
// and timestamps in text columns cross the boundary codec-encoded;
// DATETIME columns get the canonical layout.
func encodeArg(t infer.StorageType, v record.Value) any {
	switch v.Kind() {
	case record.KindNull:
		return nil
	case record.KindBool:
		if v.Bool() {
			return int64(1)
		}
		return int64(0)
	case record.KindInt:
		return v.Int()
	case record.KindFloat:
		return v.Float()
	case record.KindString:
		return v.Str()
	case record.KindTime:
		if t == infer.TypeDateTime {
			return v.Time().Format(dateTimeLayout)
		}
		return codec.Encode(v)
	default:
		return codec.Encode(v)
	}
}

// scanRecord converts scanned driver values back into a record,
// decoding any codec-encoded strings.
func (s *TableStore) scanRecord(sc *schema.Schema, names []string, vals []any) *record.Record {
	rec := record.NewRecord()
	for i, name := range names {
		col, _ := sc.Column(name)
		rec.Set(name, decodeScan(col.Type, vals[i]))
	}
	return rec
}

func decodeScan(t infer.StorageType, raw any) record.Value {
	switch x := raw.(type) {
	case nil:
		return record.Null()
	case int64:
		if t == infer.TypeBoolean {
			return record.Bool(x != 0)
		}
		return record.Int(x)
	case float64:
		return record.Float(x)
	case bool:
		return record.Bool(x)
	case time.Time:
		return record.Time(x)
	case []byte:
		return decodeText(t, string(x))
	case string:
		return decodeText(t, x)
	default:
		return record.String(fmt.Sprint(x))
	}
}

func decodeText(t infer.StorageType, s string) record.Value {
	if v, ok := codec.Decode(s); ok {
		return v
	}
	if t == infer.TypeDateTime {
		if ts, err := time.Parse(dateTimeLayout, s); err == nil {
			return record.Time(ts)
		}
	}
	return record.String(s)
}
