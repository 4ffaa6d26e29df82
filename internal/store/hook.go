package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Hook binds a plugin to a rep event type.
type Hook struct {
	ID         string
	PluginName string
	Event      string
	Config     json.RawMessage
	Enabled    bool
	CreatedAt  time.Time
}

// HookRepository provides CRUD operations for hooks.
type HookRepository struct {
	db *sql.DB
}

// Hooks returns the hook repository for this store.
func (s *Store) Hooks() *HookRepository {
	return &HookRepository{db: s.db}
}

// Create inserts a new hook into the database.
func (r *HookRepository) Create(h *Hook) error {
	h.CreatedAt = time.Now()

	config := h.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO hooks (id, plugin_name, event, config, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.PluginName, h.Event, string(config), h.Enabled, h.CreatedAt,
	)
	return err
}

// GetByID retrieves a hook by its ID.
func (r *HookRepository) GetByID(id string) (*Hook, error) {
	row := r.db.QueryRow(
		`SELECT id, plugin_name, event, config, enabled, created_at
		 FROM hooks WHERE id = ?`,
		id,
	)

	h, err := scanHook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return h, nil
}

// List retrieves all hooks, oldest first.
func (r *HookRepository) List() ([]*Hook, error) {
	return r.query(
		`SELECT id, plugin_name, event, config, enabled, created_at
		 FROM hooks ORDER BY created_at, plugin_name`,
	)
}

// ListEnabled retrieves the enabled hooks for an event.
func (r *HookRepository) ListEnabled(event string) ([]*Hook, error) {
	return r.query(
		`SELECT id, plugin_name, event, config, enabled, created_at
		 FROM hooks WHERE event = ? AND enabled = 1 ORDER BY plugin_name`,
		event,
	)
}

// SetEnabled turns a hook on or off.
func (r *HookRepository) SetEnabled(id string, enabled bool) error {
	result, err := r.db.Exec(`UPDATE hooks SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes a hook from the database by its ID.
func (r *HookRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM hooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (r *HookRepository) query(q string, args ...any) ([]*Hook, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []*Hook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hooks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHook(s scanner) (*Hook, error) {
	h := &Hook{}
	var config string
	var enabled int

	if err := s.Scan(&h.ID, &h.PluginName, &h.Event, &config, &enabled, &h.CreatedAt); err != nil {
		return nil, err
	}

	h.Config = json.RawMessage(config)
	h.Enabled = enabled != 0
	return h, nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
