// ABOUTME: Optional SQLite run artifact for post-hoc transcript inspection.
// ABOUTME: One write per run; the live harness never reads back from it.

package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Archive persists transcript snapshots as a diagnostics artifact of one
// test run. It is opt-in: the harness core keeps all state in memory.
type Archive struct {
	db *sql.DB
}

// NewArchive opens (or creates) an archive database at the given path.
// Parent directories are created if needed.
func NewArchive(path string) (*Archive, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	// WAL keeps concurrent snapshot writes cheap
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	a := &Archive{db: db}
	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// createSchema bootstraps the archive tables.
func (a *Archive) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcript_entries (
		run_id          TEXT NOT NULL,
		seq             INTEGER NOT NULL,
		direction       TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		activity_type   TEXT NOT NULL,
		text            TEXT,
		timestamp       TEXT NOT NULL,
		raw_activity    TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_conversation
		ON transcript_entries (run_id, conversation_id);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("creating archive schema: %w", err)
	}
	return nil
}

// Save writes a transcript snapshot under the given run id. The raw
// activity JSON is stored alongside the indexed columns so unknown
// fields survive the archive round trip.
func (a *Archive) Save(ctx context.Context, runID string, entries []Entry) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcript_entries (
			run_id, seq, direction, conversation_id, activity_type, text, timestamp, raw_activity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing archive insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		raw, err := json.Marshal(e.Activity)
		if err != nil {
			return fmt.Errorf("encoding activity %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID,
			i,
			string(e.Direction),
			e.Activity.ConversationID,
			e.Activity.Type,
			e.Activity.Text,
			e.Timestamp.Format(time.RFC3339Nano),
			string(raw),
		); err != nil {
			return fmt.Errorf("inserting entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing archive transaction: %w", err)
	}
	return nil
}

// Load reads back the transcript entries of a run in record order.
// Used by post-hoc inspection tooling, never by the live harness.
func (a *Archive) Load(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT direction, timestamp, raw_activity
		FROM transcript_entries
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var dir, ts, raw string
		if err := rows.Scan(&dir, &ts, &raw); err != nil {
			return nil, fmt.Errorf("scanning archive row: %w", err)
		}

		var e Entry
		e.Direction = Direction(dir)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing archive timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Activity); err != nil {
			return nil, fmt.Errorf("decoding archived activity: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
