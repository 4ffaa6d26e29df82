package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ayusman/squatcoach/internal/exercise"
)

// Setting keys for the persisted exercise thresholds.
const (
	KeyExtension        = "exercise.extension"
	KeyFlexion          = "exercise.flexion"
	KeyDepthWarning     = "exercise.depth_warning"
	KeyMinVisibility    = "exercise.min_visibility"
	KeyFlashDuration    = "exercise.flash_duration_ms"
	KeyGateDepthWarning = "exercise.gate_depth_warning"
)

// SettingsRepository reads and writes key-value settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

// All returns every stored setting.
func (r *SettingsRepository) All() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Delete removes key.
func (r *SettingsRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadThresholds overlays any stored threshold settings onto base.
// Missing keys keep the base value.
func (r *SettingsRepository) LoadThresholds(base exercise.Thresholds) (exercise.Thresholds, error) {
	all, err := r.All()
	if err != nil {
		return base, err
	}

	t := base
	floats := map[string]*float64{
		KeyExtension:     &t.Extension,
		KeyFlexion:       &t.Flexion,
		KeyDepthWarning:  &t.DepthWarning,
		KeyMinVisibility: &t.MinVisibility,
	}
	for key, dst := range floats {
		v, ok := all[key]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return base, fmt.Errorf("setting %s: %w", key, err)
		}
		*dst = f
	}

	if v, ok := all[KeyFlashDuration]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return base, fmt.Errorf("setting %s: %w", KeyFlashDuration, err)
		}
		t.FlashDuration = time.Duration(ms) * time.Millisecond
	}
	if v, ok := all[KeyGateDepthWarning]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return base, fmt.Errorf("setting %s: %w", KeyGateDepthWarning, err)
		}
		t.GateDepthWarning = b
	}

	return t, nil
}

// SaveThresholds stores every threshold in a single transaction.
func (r *SettingsRepository) SaveThresholds(t exercise.Thresholds) error {
	values := map[string]string{
		KeyExtension:        strconv.FormatFloat(t.Extension, 'f', -1, 64),
		KeyFlexion:          strconv.FormatFloat(t.Flexion, 'f', -1, 64),
		KeyDepthWarning:     strconv.FormatFloat(t.DepthWarning, 'f', -1, 64),
		KeyMinVisibility:    strconv.FormatFloat(t.MinVisibility, 'f', -1, 64),
		KeyFlashDuration:    strconv.FormatInt(t.FlashDuration.Milliseconds(), 10),
		KeyGateDepthWarning: strconv.FormatBool(t.GateDepthWarning),
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for k, v := range values {
		if _, err := tx.Exec(
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now,
		); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}

	return tx.Commit()
}
