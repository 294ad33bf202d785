// Package schema derives column schemas from example records.
package schema

import (
	"fmt"

	"tablemap/internal/infer"
	"tablemap/internal/record"
)

// Column is one column of a derived table schema.
type Column struct {
	Name          string            `json:"name"`
	Type          infer.StorageType `json:"type"`
	PrimaryKey    bool              `json:"primaryKey,omitempty"`
	AutoIncrement bool              `json:"autoIncrement,omitempty"`
}

// Schema is an ordered column list. It is built once per target table and
// never migrated afterwards — later records are coerced into this shape.
type Schema struct {
	Columns []Column `json:"columns"`
}

// ColumnNames returns the column names in order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the primary key column.
func (s *Schema) PrimaryKey() (Column, bool) {
	for _, c := range s.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

// Column returns the column with the given name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ErrSchemaConflict is returned when the declared primary key field
// exists in the example record but its inferred type cannot key a row.
type ErrSchemaConflict struct {
	Field string
	Type  infer.StorageType
}

func (e *ErrSchemaConflict) Error() string {
	return fmt.Sprintf("primary key field %q infers unusable type %s", e.Field, e.Type)
}

// Build derives a schema from an example record. Fields are visited in
// record order. If pkName is not a field of the example, a synthetic
// auto-increment column of pkType is prepended; if it is, that column is
// rewritten in place as the primary key (first occurrence wins).
//
// Build is deterministic: identical inputs yield identical schemas.
func Build(example *record.Record, pkName string, pkType infer.StorageType) (*Schema, error) {
	if pkName == "" {
		pkName = "id"
	}
	if pkType == "" {
		pkType = infer.TypeInteger
	}

	s := &Schema{}
	pkSeen := false
	for _, name := range example.Keys() {
		v, _ := example.Get(name)
		t := infer.Infer(v)
		col := Column{Name: name, Type: t}
		if name == pkName && !pkSeen {
			if t.Composite() {
				return nil, &ErrSchemaConflict{Field: name, Type: t}
			}
			col.PrimaryKey = true
			pkSeen = true
		}
		s.Columns = append(s.Columns, col)
	}

	if !pkSeen {
		synthetic := Column{Name: pkName, Type: pkType, PrimaryKey: true, AutoIncrement: true}
		s.Columns = append([]Column{synthetic}, s.Columns...)
	}
	return s, nil
}
