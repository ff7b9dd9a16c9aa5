// Copyright 2025 The NLP Odyssey Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a SQLite-based implementation of Store.
//
// By default, uses an in-memory database that is lost when the process
// ends. For persistent storage, provide a file path.
type SQLiteStore struct {
	sessionID    string
	dbDSN        string
	sessionTable string
	entriesTable string
	db           *sql.DB
	mu           sync.Mutex
}

type SQLiteStoreParams struct {
	// Unique identifier for the voice session.
	SessionID string

	// Optional database data source name.
	// Defaults to "file::memory:?cache=shared" (in-memory database).
	DBDataSourceName string

	// Optional name of the table to store session metadata.
	// Defaults to "voice_sessions".
	SessionTable string

	// Optional name of the table to store history entries.
	// Defaults to "voice_entries".
	EntriesTable string
}

// NewSQLiteStore initializes the SQLite store.
func NewSQLiteStore(ctx context.Context, params SQLiteStoreParams) (_ *SQLiteStore, err error) {
	s := &SQLiteStore{
		sessionID:    params.SessionID,
		dbDSN:        cmp.Or(params.DBDataSourceName, "file::memory:?cache=shared"),
		sessionTable: cmp.Or(params.SessionTable, "voice_sessions"),
		entriesTable: cmp.Or(params.EntriesTable, "voice_entries"),
	}

	defer func() {
		if err != nil && s.db != nil {
			if e := s.Close(); e != nil {
				err = errors.Join(err, e)
			}
		}
	}()

	s.db, err = sql.Open("sqlite3", s.dbDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`)
	if err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	err = s.initDB(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) SessionID(context.Context) string {
	return s.sessionID
}

func (s *SQLiteStore) Entries(ctx context.Context, limit int) (_ []Entry, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	if limit <= 0 {
		// Fetch all entries in chronological order
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT entry_data FROM "%s"
			WHERE session_id = ?
			ORDER BY created_at ASC
		`, s.entriesTable), s.sessionID)
	} else {
		// Fetch the latest N entries in chronological order
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT entry_data FROM "%s"
			WHERE session_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		`, s.entriesTable), s.sessionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying history entries: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("error closing sql.Rows: %w", e))
		}
	}()

	var entries []Entry
	for rows.Next() {
		var entryData string
		if err = rows.Scan(&entryData); err != nil {
			return nil, fmt.Errorf("sql rows scan error: %w", err)
		}

		entry, err := unmarshalEntry(entryData)
		if err != nil {
			continue // Skip invalid JSON entries
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sql rows scan error: %w", err)
	}

	// Reverse to get chronological order when using DESC
	if limit > 0 {
		slices.Reverse(entries)
	}

	return entries, nil
}

func (s *SQLiteStore) AddEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure session exists
	_, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf(`INSERT OR IGNORE INTO "%s" (session_id) VALUES (?)`, s.sessionTable),
		s.sessionID,
	)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		entryData, err := marshalEntry(entry)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(
			ctx,
			fmt.Sprintf(`INSERT INTO "%s" (session_id, entry_data) VALUES (?, ?)`, s.entriesTable),
			s.sessionID, entryData,
		)
		if err != nil {
			return fmt.Errorf("error inserting entry in entries table: %w", err)
		}
	}

	// Update session timestamp
	_, err = s.db.ExecContext(
		ctx,
		fmt.Sprintf(`UPDATE "%s" SET updated_at = CURRENT_TIMESTAMP WHERE session_id = ?`, s.sessionTable),
		s.sessionID,
	)
	if err != nil {
		return fmt.Errorf("error updating session timestamp: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf(`DELETE FROM "%s" WHERE session_id = ?`, s.entriesTable),
		s.sessionID,
	)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		fmt.Sprintf(`DELETE FROM "%s" WHERE session_id = ?`, s.sessionTable),
		s.sessionID,
	)
	if err != nil {
		return err
	}

	return nil
}

// Initialize the database schema.
func (s *SQLiteStore) initDB(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s" (
			session_id TEXT PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`, s.sessionTable))
	if err != nil {
		return fmt.Errorf("error creating session table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s" (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			entry_data TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES "%s" (session_id) ON DELETE CASCADE
		)
	`, s.entriesTable, s.sessionTable))
	if err != nil {
		return fmt.Errorf("error creating entries table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS "idx_%s_session_id" ON "%s" (session_id, created_at)`,
		s.entriesTable, s.entriesTable))
	if err != nil {
		return fmt.Errorf("error creating index: %w", err)
	}

	return nil
}

// Close the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
