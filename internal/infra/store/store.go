// Package store persists per-guild settings in SQLite.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"
)

// AlwaysOn is a guild's 24/7 setting.
type AlwaysOn struct {
	GuildID   string
	ChannelID string // voice channel to stay in
	Enabled   bool
	UpdatedAt time.Time
}

// Store wraps the settings database.
type Store struct {
	db *sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
}

const schema = `CREATE TABLE IF NOT EXISTS always_on (
	guild_id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	// The driver registers itself as "sqlite3" on import
	_ = sqlite3.SQLiteDriver{}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}
	db.SetMaxOpenConns(1)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := db.ExecContext(initCtx, p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to apply %s", p)
		}
	}
	if _, err := db.ExecContext(initCtx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create tables")
	}

	zlog.Info().Msgf("store: opened: path=%s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetAlwaysOn records a guild's 24/7 setting.
func (s *Store) SetAlwaysOn(ctx context.Context, guildID, channelID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO always_on (guild_id, channel_id, enabled) VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			enabled = excluded.enabled,
			updated_at = CURRENT_TIMESTAMP
	`, guildID, channelID, enabled)
	if err != nil {
		return errors.Wrapf(err, "failed to save 24/7 setting for guild %s", guildID)
	}
	return nil
}

// AlwaysOn returns a guild's 24/7 setting. Unknown guilds are disabled.
func (s *Store) AlwaysOn(ctx context.Context, guildID string) (AlwaysOn, error) {
	setting := AlwaysOn{GuildID: guildID}
	err := s.db.QueryRowContext(ctx,
		"SELECT channel_id, enabled, updated_at FROM always_on WHERE guild_id = ?", guildID,
	).Scan(&setting.ChannelID, &setting.Enabled, &setting.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return setting, nil
	}
	if err != nil {
		return setting, errors.Wrapf(err, "failed to load 24/7 setting for guild %s", guildID)
	}
	return setting, nil
}

// EnabledAlwaysOn returns every guild with 24/7 enabled.
func (s *Store) EnabledAlwaysOn(ctx context.Context) ([]AlwaysOn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT guild_id, channel_id, enabled, updated_at FROM always_on WHERE enabled = 1 ORDER BY guild_id")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list 24/7 settings")
	}
	defer rows.Close()

	var settings []AlwaysOn
	for rows.Next() {
		var a AlwaysOn
		if err := rows.Scan(&a.GuildID, &a.ChannelID, &a.Enabled, &a.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan 24/7 setting")
		}
		settings = append(settings, a)
	}
	return settings, errors.Wrap(rows.Err(), "failed to list 24/7 settings")
}
