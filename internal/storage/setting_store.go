package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/profilecrm/profilecrm/internal/core"
)

// SettingStore is a key/value store for UI and enrichment preferences.
// Values are arbitrary JSON.
type SettingStore struct {
	db *DB
}

// NewSettingStore creates a new setting store
func NewSettingStore(db *DB) *SettingStore {
	return &SettingStore{db: db}
}

// Get returns the raw JSON stored under key. found is false if the key was
// never set.
func (s *SettingStore) Get(ctx context.Context, key string) (value json.RawMessage, found bool, err error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, false, err
	}

	var raw string
	err = conn.GetContext(ctx, &raw, `SELECT value FROM settings WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get setting %s: %w", key, err)
	}

	return json.RawMessage(raw), true, nil
}

// GetInto decodes the value stored under key into dst
func (s *SettingStore) GetInto(ctx context.Context, key string, dst any) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return true, nil
}

// Set overwrites the value under key and returns what was written
func (s *SettingStore) Set(ctx context.Context, key string, value any) (json.RawMessage, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: setting key is required", core.ErrInvalidInput)
	}

	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: setting %s is not valid JSON", core.ErrInvalidInput, key)
		}
		data = v
	default:
		data, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: encode setting %s: %w", core.ErrInvalidInput, key, err)
		}
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(data))
	if err != nil {
		return nil, fmt.Errorf("set setting %s: %w", key, err)
	}

	return json.RawMessage(data), nil
}

// GetAll returns every setting ordered by key
func (s *SettingStore) GetAll(ctx context.Context) ([]core.Setting, error) {
	conn, err := s.db.handle(ctx)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := conn.SelectContext(ctx, &rows, `SELECT key, value FROM settings ORDER BY key`); err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}

	settings := make([]core.Setting, 0, len(rows))
	for _, r := range rows {
		settings = append(settings, core.Setting{Key: r.Key, Value: json.RawMessage(r.Value)})
	}
	return settings, nil
}
