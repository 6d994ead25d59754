package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/profilecrm/profilecrm/internal/core"
)

// TagStore handles tag persistence. Contacts carry tag names, so deleting
// or renaming a tag never touches them.
type TagStore struct {
	db *DB
}

// NewTagStore creates a new tag store
func NewTagStore(db *DB) *TagStore {
	return &TagStore{db: db}
}

// Create creates a tag with a fresh time-ordered id
func (s *TagStore) Create(ctx context.Context, name, color string) (*core.Tag, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: tag name is required", core.ErrInvalidInput)
	}

	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	if color == "" {
		color = s.db.cfg.TagColor
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate tag id: %w", err)
	}

	tag := &core.Tag{
		ID:        id.String(),
		Name:      name,
		Color:     color,
		CreatedAt: s.db.now(),
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)
	`, tag.ID, tag.Name, tag.Color, toMillis(tag.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert tag %q: %w", name, err)
	}

	return tag, nil
}

// Get returns a tag by id, or nil if there is none
func (s *TagStore) Get(ctx context.Context, id string) (*core.Tag, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	var row groupRow
	err = conn.GetContext(ctx, &row, `SELECT id, name, color, created_at FROM tags WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %s: %w", id, err)
	}

	return &core.Tag{ID: row.ID, Name: row.Name, Color: row.Color, CreatedAt: fromMillis(row.CreatedAt)}, nil
}

// GetAll returns all tags in insertion order
func (s *TagStore) GetAll(ctx context.Context) ([]*core.Tag, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	var rows []groupRow
	if err := conn.SelectContext(ctx, &rows, `SELECT id, name, color, created_at FROM tags ORDER BY rowid`); err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}

	tags := make([]*core.Tag, 0, len(rows))
	for _, r := range rows {
		tags = append(tags, &core.Tag{ID: r.ID, Name: r.Name, Color: r.Color, CreatedAt: fromMillis(r.CreatedAt)})
	}
	return tags, nil
}

// Delete removes a tag unconditionally
func (s *TagStore) Delete(ctx context.Context, id string) error {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete tag %s: %w", id, err)
	}
	return nil
}

// put writes a tag verbatim, replacing any tag with the same id
func (s *TagStore) put(ctx context.Context, tag *core.Tag) error {
	if tag == nil {
		return fmt.Errorf("%w: null tag", core.ErrInvalidInput)
	}

	conn, err := s.db.handle(ctx)
	if err != nil {
		return err
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    name = excluded.name,
		    color = excluded.color,
		    created_at = excluded.created_at
	`, tag.ID, tag.Name, tag.Color, toMillis(tag.CreatedAt))
	if err != nil {
		return fmt.Errorf("put tag %s: %w", tag.ID, err)
	}
	return nil
}
