// Package preferences persists user settings (seed program, OS filter,
// download directory) in the settings database and serves them to the
// catalog and download services.
package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Defaults supplies fallback values when a setting has never been written.
type Defaults struct {
	SeedProgram string
	OSFilter    string
	DownloadDir string
}

type Service struct {
	db       *sql.DB
	defaults Defaults
}

func NewService(db *sql.DB, defaults Defaults) *Service {
	return &Service{db: db, defaults: defaults}
}

// Get returns the current preferences, falling back to defaults for any
// setting that has never been written.
func (s *Service) Get(ctx context.Context) (*Preferences, error) {
	prefs := &Preferences{
		SeedProgram: SeedProgram(s.defaults.SeedProgram),
		OSFilter:    s.defaults.OSFilter,
		DownloadDir: s.defaults.DownloadDir,
	}

	if val, err := s.getString(ctx, KeySeedProgram); err == nil && ValidSeedProgram(val) {
		prefs.SeedProgram = SeedProgram(val)
	}
	if val, err := s.getString(ctx, KeyOSFilter); err == nil && val != "" {
		prefs.OSFilter = val
	}
	if val, err := s.getString(ctx, KeyDownloadDir); err == nil && val != "" {
		prefs.DownloadDir = val
	}

	return prefs, nil
}

// Set updates all preferences.
func (s *Service) Set(ctx context.Context, prefs Preferences) error {
	if !ValidSeedProgram(string(prefs.SeedProgram)) {
		return fmt.Errorf("invalid seed program %q", prefs.SeedProgram)
	}

	if err := s.setString(ctx, KeySeedProgram, string(prefs.SeedProgram)); err != nil {
		return err
	}
	if err := s.setString(ctx, KeyOSFilter, prefs.OSFilter); err != nil {
		return err
	}
	return s.setString(ctx, KeyDownloadDir, prefs.DownloadDir)
}

// SetDownloadDir updates the download directory preference only.
func (s *Service) SetDownloadDir(ctx context.Context, dir string) error {
	return s.setString(ctx, KeyDownloadDir, dir)
}

// DownloadDirectory resolves the destination directory for new downloads.
func (s *Service) DownloadDirectory(ctx context.Context) (string, error) {
	if val, err := s.getString(ctx, KeyDownloadDir); err == nil && val != "" {
		return val, nil
	}
	if s.defaults.DownloadDir == "" {
		return "", fmt.Errorf("download directory is not configured")
	}
	return s.defaults.DownloadDir, nil
}

func (s *Service) getString(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, nil
}

func (s *Service) setString(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}
