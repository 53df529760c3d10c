/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const defaultHistoryLimit = 50

// Archiver records finished rounds.
type Archiver interface {
	RecordRound(ctx context.Context, rec RoundRecord) error
}

// RoundRecord is one finished round as stored in the archive.
type RoundRecord struct {
	ID         string    `json:"id"`
	GameID     string    `json:"gameId"`
	Code       string    `json:"gameCode"`
	Round      int       `json:"round"`
	Prompt     string    `json:"prompt"`
	Clue       string    `json:"clue,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	WinnerID   string    `json:"winnerId,omitempty"`
	WinnerName string    `json:"winnerName,omitempty"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
}

// RoundArchive is a SQLite backed Archiver.
type RoundArchive struct {
	db *sql.DB
}

// openArchive prepares a SQLite database at path and ensures the schema exists.
func openArchive(path string) (*RoundArchive, error) {
	if path == "" {
		return nil, errors.New("archive path is empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()

		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := initArchiveSchema(db); err != nil {
		db.Close()

		return nil, err
	}

	return &RoundArchive{db: db}, nil
}

func initArchiveSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS rounds (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL DEFAULT '',
			code TEXT NOT NULL,
			round INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			clue TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			winner_id TEXT NOT NULL DEFAULT '',
			winner_name TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_code_ended ON rounds(code, ended_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_game_ended ON rounds(game_id, ended_at DESC, round DESC);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}

func (a *RoundArchive) RecordRound(ctx context.Context, rec RoundRecord) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO rounds (id, game_id, code, round, prompt, clue, image_url, winner_id, winner_name, outcome, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GameID, rec.Code, rec.Round, rec.Prompt, rec.Clue, rec.ImageURL,
		rec.WinnerID, rec.WinnerName, rec.Outcome, rec.StartedAt.UTC(), rec.EndedAt.UTC())
	if err != nil {
		return fmt.Errorf("record round %s/%d: %w", rec.Code, rec.Round, err)
	}

	return nil
}

// Rounds returns up to limit archived rounds of one game, newest first.
// Codes are reused once a game ends, so the game is picked by gameID; an
// empty gameID means the game that most recently finished a round under
// code.
func (a *RoundArchive) Rounds(ctx context.Context, code, gameID string, limit int) ([]RoundRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	if gameID == "" {
		err := a.db.QueryRowContext(ctx,
			`SELECT game_id FROM rounds WHERE code = ? ORDER BY ended_at DESC LIMIT 1`, code).Scan(&gameID)
		if errors.Is(err, sql.ErrNoRows) {
			return []RoundRecord{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find latest game for %s: %w", code, err)
		}
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, game_id, code, round, prompt, clue, image_url, winner_id, winner_name, outcome, started_at, ended_at
		FROM rounds WHERE code = ? AND game_id = ? ORDER BY ended_at DESC, round DESC LIMIT ?`,
		code, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	records := []RoundRecord{}
	for rows.Next() {
		var rec RoundRecord
		if err := rows.Scan(&rec.ID, &rec.GameID, &rec.Code, &rec.Round, &rec.Prompt, &rec.Clue, &rec.ImageURL,
			&rec.WinnerID, &rec.WinnerName, &rec.Outcome, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}

	return records, nil
}

// Close releases database resources.
func (a *RoundArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}

	return a.db.Close()
}
