package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tablemap/internal/codec"
	"tablemap/internal/infer"
	"tablemap/internal/record"
)

// Post is a typed content entry. Fields beyond title and content live in
// the post_fields side table keyed by name.
type Post struct {
	ID        string
	PostType  string
	Title     string
	Content   string
	Fields    *record.Record
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentStore persists imported records as typed posts with custom
// fields, the content-destination counterpart of TableStore.
type ContentStore struct {
	db *DB
}

// NewContentStore creates a ContentStore over an open DB.
func NewContentStore(db *DB) *ContentStore {
	return &ContentStore{db: db}
}

// FindExisting returns the id of a post of the type whose named field
// matches the value, or "" when no post matches. Title and content are
// checked against the posts table; anything else against post_fields.
func (s *ContentStore) FindExisting(ctx context.Context, postType, field string, value record.Value) (string, error) {
	var row *sql.Row
	switch field {
	case "title", "content":
		query := fmt.Sprintf(`SELECT id FROM posts WHERE post_type = ? AND %s = ? LIMIT 1`, field)
		row = s.db.conn.QueryRowContext(ctx, query, postType, value.Text())
	default:
		row = s.db.conn.QueryRowContext(ctx,
			`SELECT p.id FROM posts p
			 JOIN post_fields f ON f.post_id = p.id
			 WHERE p.post_type = ? AND f.name = ? AND f.value = ? LIMIT 1`,
			postType, field, fieldText(value))
	}

	var id string
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find existing %s post: %w", postType, err)
	}
	return id, nil
}

// Upsert writes a transformed record as a post. An empty id inserts a
// new post under a fresh uuid; a non-empty id updates the existing post
// and replaces its custom fields. Returns the post id.
func (s *ContentStore) Upsert(ctx context.Context, postType, id string, rec *record.Record) (string, error) {
	title := textField(rec, "title")
	content := textField(rec, "content")

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if id == "" {
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO posts (id, post_type, title, content) VALUES (?, ?, ?, ?)`,
			id, postType, title, content)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE posts SET title = ?, content = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			title, content, id)
		if err == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM post_fields WHERE post_id = ?`, id)
		}
	}
	if err != nil {
		return "", fmt.Errorf("upsert %s post: %w", postType, err)
	}

	for _, name := range rec.Keys() {
		if name == "title" || name == "content" {
			continue
		}
		v, _ := rec.Get(name)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO post_fields (post_id, name, value) VALUES (?, ?, ?)`,
			id, name, fieldText(v))
		if err != nil {
			return "", fmt.Errorf("write field %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Get reads one post with its custom fields.
func (s *ContentStore) Get(ctx context.Context, id string) (*Post, error) {
	var p Post
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id, post_type, title, content, created_at, updated_at FROM posts WHERE id = ?`,
		id).Scan(&p.ID, &p.PostType, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT name, value FROM post_fields WHERE post_id = ? ORDER BY name ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("get post fields %s: %w", id, err)
	}
	defer rows.Close()

	p.Fields = record.NewRecord()
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan post field: %w", err)
		}
		if v, ok := codec.Decode(value); ok {
			p.Fields.Set(name, v)
		} else {
			p.Fields.Set(name, record.String(value))
		}
	}
	return &p, rows.Err()
}

// ListByType returns the posts of a type in creation order, without
// their custom fields.
func (s *ContentStore) ListByType(ctx context.Context, postType string) ([]*Post, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, post_type, title, content, created_at, updated_at
		 FROM posts WHERE post_type = ? ORDER BY created_at ASC, id ASC`, postType)
	if err != nil {
		return nil, fmt.Errorf("list %s posts: %w", postType, err)
	}
	defer rows.Close()

	var out []*Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.PostType, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Delete removes a post and its custom fields.
func (s *ContentStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_fields WHERE post_id = ?`, id); err != nil {
		return fmt.Errorf("delete post fields %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	return tx.Commit()
}

// EnsureFieldDefinition registers a field type for a post type, once.
// Re-registering the same field is a no-op; the first definition wins.
func (s *ContentStore) EnsureFieldDefinition(ctx context.Context, postType, name string, t infer.StorageType) error {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO field_definitions (post_type, name, field_type) VALUES (?, ?, ?)
		 ON CONFLICT (post_type, name) DO NOTHING`,
		postType, name, string(t))
	if err != nil {
		return fmt.Errorf("ensure field definition %s.%s: %w", postType, name, err)
	}
	return nil
}

// FieldDefinitions returns the registered field types for a post type.
func (s *ContentStore) FieldDefinitions(ctx context.Context, postType string) (map[string]infer.StorageType, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT name, field_type FROM field_definitions WHERE post_type = ?`, postType)
	if err != nil {
		return nil, fmt.Errorf("field definitions %s: %w", postType, err)
	}
	defer rows.Close()

	defs := make(map[string]infer.StorageType)
	for rows.Next() {
		var name, t string
		if err := rows.Scan(&name, &t); err != nil {
			return nil, fmt.Errorf("scan field definition: %w", err)
		}
		defs[name] = infer.StorageType(t)
	}
	return defs, rows.Err()
}

// textField renders a record field for the posts columns.
func textField(rec *record.Record, name string) string {
	v, ok := rec.Get(name)
	if !ok || v.IsNull() {
		return ""
	}
	return v.Text()
}

// fieldText renders a value for the post_fields value column. Scalars
// store their plain text; composites and timestamps go through the
// codec so they survive the round trip intact.
func fieldText(v record.Value) string {
	switch v.Kind() {
	case record.KindList, record.KindRecord, record.KindTime:
		return codec.Encode(v)
	default:
		return v.Text()
	}
}
