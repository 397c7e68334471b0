// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/suggestus/internal/models"
)

// DuckDBConfig holds DuckDB connection settings.
type DuckDBConfig struct {
	// Path is the database file path. ":memory:" uses an in-memory
	// database. Default: data/suggestus.db
	Path string `koanf:"path"`

	// Threads limits DuckDB's worker threads. 0 lets DuckDB decide.
	Threads int `koanf:"threads"`

	// MaxMemory caps DuckDB's memory usage, e.g. "512MB". Default: 512MB
	MaxMemory string `koanf:"max_memory"`
}

// DuckDB implements Store on an embedded DuckDB database.
type DuckDB struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// NewDuckDB opens the database file, creating parent directories and the
// schema as needed.
func NewDuckDB(cfg DuckDBConfig, logger zerolog.Logger) (*DuckDB, error) {
	if cfg.Path == "" {
		cfg.Path = "data/suggestus.db"
	}
	if cfg.MaxMemory == "" {
		cfg.MaxMemory = "512MB"
	}

	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
			}
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&max_memory=%s", cfg.Path, cfg.MaxMemory)
	if cfg.Threads > 0 {
		connStr += fmt.Sprintf("&threads=%d", cfg.Threads)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DuckDB{
		conn:   conn,
		logger: logger.With().Str("component", "store").Logger(),
	}

	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db.logger.Info().Str("path", cfg.Path).Msg("duckdb store opened")
	return db, nil
}

func (d *DuckDB) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR PRIMARY KEY,
			user_id INTEGER NOT NULL,
			item_id INTEGER NOT NULL,
			event_type VARCHAR NOT NULL,
			rating DOUBLE,
			timestamp TIMESTAMP NOT NULL,
			session_id VARCHAR,
			source VARCHAR,
			metadata VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id INTEGER PRIMARY KEY,
			total_interactions INTEGER NOT NULL,
			total_ratings INTEGER NOT NULL,
			avg_rating DOUBLE NOT NULL,
			first_interaction TIMESTAMP NOT NULL,
			last_interaction TIMESTAMP NOT NULL,
			most_active_hour INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY,
			title VARCHAR NOT NULL,
			genres VARCHAR,
			year INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user ON events (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_item ON events (item_id)`,
	}

	for _, stmt := range schema {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// SaveEvent persists an interaction event.
func (d *DuckDB) SaveEvent(ctx context.Context, event *models.Event) error {
	var metadata *string
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
		s := string(raw)
		metadata = &s
	}

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO events (id, user_id, item_id, event_type, rating, timestamp, session_id, source, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.UserID, event.ItemID, string(event.Type),
		event.Rating, event.Timestamp, nullable(event.SessionID), nullable(event.Source), metadata)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RatingsByUser returns all of the user's ratings ordered by time.
func (d *DuckDB) RatingsByUser(ctx context.Context, userID int) ([]models.Rating, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT user_id, item_id, rating, timestamp FROM events
		 WHERE user_id = ? AND event_type = 'rate' AND rating IS NOT NULL
		 ORDER BY timestamp`, userID)
	if err != nil {
		return nil, fmt.Errorf("ratings by user: %w", err)
	}
	defer rows.Close()
	return scanRatings(rows)
}

// RecentRatings returns up to limit ratings, most recent first.
func (d *DuckDB) RecentRatings(ctx context.Context, limit int) ([]models.Rating, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT user_id, item_id, rating, timestamp FROM events
		 WHERE event_type = 'rate' AND rating IS NOT NULL
		 ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent ratings: %w", err)
	}
	defer rows.Close()
	return scanRatings(rows)
}

func scanRatings(rows *sql.Rows) ([]models.Rating, error) {
	var ratings []models.Rating
	for rows.Next() {
		var r models.Rating
		if err := rows.Scan(&r.UserID, &r.ItemID, &r.Rating, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}

// UserHistory returns distinct item IDs the user has interacted with.
func (d *DuckDB) UserHistory(ctx context.Context, userID int) ([]int, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT DISTINCT item_id FROM events WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("user history: %w", err)
	}
	defer rows.Close()

	var items []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

// Profile returns the user's profile, or ErrNotFound.
func (d *DuckDB) Profile(ctx context.Context, userID int) (*models.UserProfile, error) {
	var p models.UserProfile
	err := d.conn.QueryRowContext(ctx,
		`SELECT user_id, total_interactions, total_ratings, avg_rating,
		        first_interaction, last_interaction, most_active_hour
		 FROM user_profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.TotalInteractions, &p.TotalRatings, &p.AvgRating,
			&p.FirstInteraction, &p.LastInteraction, &p.MostActiveHour)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &p, nil
}

// SaveProfile inserts or replaces the user's profile.
func (d *DuckDB) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO user_profiles
		 (user_id, total_interactions, total_ratings, avg_rating,
		  first_interaction, last_interaction, most_active_hour)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		profile.UserID, profile.TotalInteractions, profile.TotalRatings, profile.AvgRating,
		profile.FirstInteraction, profile.LastInteraction, profile.MostActiveHour)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// UserStats returns the user's rating aggregate.
func (d *DuckDB) UserStats(ctx context.Context, userID int) (models.Stats, error) {
	return d.stats(ctx,
		`SELECT COALESCE(AVG(rating), 0), COUNT(rating) FROM events
		 WHERE user_id = ? AND event_type = 'rate' AND rating IS NOT NULL`, userID)
}

// ItemStats returns the item's rating aggregate.
func (d *DuckDB) ItemStats(ctx context.Context, itemID int) (models.Stats, error) {
	return d.stats(ctx,
		`SELECT COALESCE(AVG(rating), 0), COUNT(rating) FROM events
		 WHERE item_id = ? AND event_type = 'rate' AND rating IS NOT NULL`, itemID)
}

func (d *DuckDB) stats(ctx context.Context, query string, id int) (models.Stats, error) {
	var s models.Stats
	if err := d.conn.QueryRowContext(ctx, query, id).Scan(&s.AvgRating, &s.Count); err != nil {
		return models.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	return s, nil
}

// Items returns the full catalog.
func (d *DuckDB) Items(ctx context.Context) (map[int]models.Item, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT id, title, genres, year FROM items`)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	items := make(map[int]models.Item)
	for rows.Next() {
		var (
			item   models.Item
			genres *string
			year   *int
		)
		if err := rows.Scan(&item.ID, &item.Title, &genres, &year); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if genres != nil && *genres != "" {
			item.Genres = strings.Split(*genres, "|")
		}
		if year != nil {
			item.Year = *year
		}
		items[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// SaveItem inserts or replaces a catalog item.
func (d *DuckDB) SaveItem(ctx context.Context, item *models.Item) error {
	var year *int
	if item.Year != 0 {
		year = &item.Year
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO items (id, title, genres, year) VALUES (?, ?, ?, ?)`,
		item.ID, item.Title, strings.Join(item.Genres, "|"), year)
	if err != nil {
		return fmt.Errorf("save item: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *DuckDB) Close() error {
	return d.conn.Close()
}

// Ping verifies the connection with a bounded timeout.
func (d *DuckDB) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.conn.PingContext(pingCtx)
}

var _ Store = (*DuckDB)(nil)
