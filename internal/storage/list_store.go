package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/profilecrm/profilecrm/internal/core"
)

// groupRow is the persisted shape shared by lists and tags
type groupRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Color     string `db:"color"`
	CreatedAt int64  `db:"created_at"`
}

// ListStore handles list persistence
type ListStore struct {
	db *DB
}

// NewListStore creates a new list store
func NewListStore(db *DB) *ListStore {
	return &ListStore{db: db}
}

// Create creates a list with a fresh time-ordered id. An empty color gets
// the configured default. Names are unique; a duplicate fails.
func (s *ListStore) Create(ctx context.Context, name, color string) (*core.List, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: list name is required", core.ErrInvalidInput)
	}

	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	if color == "" {
		color = s.db.cfg.ListColor
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate list id: %w", err)
	}

	list := &core.List{
		ID:        id.String(),
		Name:      name,
		Color:     color,
		CreatedAt: s.db.now(),
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO lists (id, name, color, created_at) VALUES (?, ?, ?, ?)
	`, list.ID, list.Name, list.Color, toMillis(list.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert list %q: %w", name, err)
	}

	return list, nil
}

// Get returns a list by id, or nil if there is none
func (s *ListStore) Get(ctx context.Context, id string) (*core.List, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	var row groupRow
	err = conn.GetContext(ctx, &row, `SELECT id, name, color, created_at FROM lists WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list %s: %w", id, err)
	}

	return &core.List{ID: row.ID, Name: row.Name, Color: row.Color, CreatedAt: fromMillis(row.CreatedAt)}, nil
}

// GetAll returns all lists in insertion order
func (s *ListStore) GetAll(ctx context.Context) ([]*core.List, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	var rows []groupRow
	if err := conn.SelectContext(ctx, &rows, `SELECT id, name, color, created_at FROM lists ORDER BY rowid`); err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}

	lists := make([]*core.List, 0, len(rows))
	for _, r := range rows {
		lists = append(lists, &core.List{ID: r.ID, Name: r.Name, Color: r.Color, CreatedAt: fromMillis(r.CreatedAt)})
	}
	return lists, nil
}

// Delete removes a list unconditionally. Contacts that point at it keep
// the dangling id.
func (s *ListStore) Delete(ctx context.Context, id string) error {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete list %s: %w", id, err)
	}
	return nil
}

// put writes a list verbatim, replacing any list with the same id
func (s *ListStore) put(ctx context.Context, list *core.List) error {
	if list == nil {
		return fmt.Errorf("%w: null list", core.ErrInvalidInput)
	}

	conn, err := s.db.handle(ctx)
	if err != nil {
		return err
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO lists (id, name, color, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    name = excluded.name,
		    color = excluded.color,
		    created_at = excluded.created_at
	`, list.ID, list.Name, list.Color, toMillis(list.CreatedAt))
	if err != nil {
		return fmt.Errorf("put list %s: %w", list.ID, err)
	}
	return nil
}
