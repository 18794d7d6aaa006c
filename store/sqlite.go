package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLStore is a database/sql-backed CheckpointStore shared by the SQLite
// and MySQL providers, grounded on the teacher's store/sqlite.go and
// store/mysql.go: both are thin wrappers around the same table shape, so
// the query logic lives once here and each driver file supplies the DSN,
// driver name, and schema DDL dialect differences (MySQL also overrides
// Save for its upsert syntax).
type SQLStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	run_id        TEXT NOT NULL,
	checkpoint_id TEXT NOT NULL,
	label         TEXT,
	signature     TEXT,
	timestamp     DATETIME NOT NULL,
	data          BLOB NOT NULL,
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	UNIQUE(run_id, checkpoint_id)
);
`

// NewSQLiteStore opens (creating if necessary) a SQLite-backed
// CheckpointStore at path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, checkpoint_id, label, signature, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, checkpoint_id) DO UPDATE SET
			label = excluded.label, signature = excluded.signature,
			timestamp = excluded.timestamp, data = excluded.data
	`, rec.RunID, rec.CheckpointID, rec.Label, rec.Signature, rec.Timestamp, rec.Data)
	if err != nil {
		return fmt.Errorf("store: save checkpoint: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, runID, checkpointID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, checkpoint_id, label, signature, timestamp, data
		FROM checkpoints WHERE run_id = ? AND checkpoint_id = ?
	`, runID, checkpointID)
	return scanRecord(row)
}

func (s *SQLStore) ListCheckpoints(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, checkpoint_id, label, signature, timestamp, data
		FROM checkpoints WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListCheckpointIDs(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT checkpoint_id FROM checkpoints WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list checkpoint ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan checkpoint id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) GetLatest(ctx context.Context, runID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, checkpoint_id, label, signature, timestamp, data
		FROM checkpoints WHERE run_id = ? ORDER BY seq DESC LIMIT 1
	`, runID)
	return scanRecord(row)
}

func (s *SQLStore) Delete(ctx context.Context, runID, checkpointID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ? AND checkpoint_id = ?`, runID, checkpointID)
	if err != nil {
		return fmt.Errorf("store: delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanRecord serve Load/GetLatest's single-row path and
// ListCheckpoints' multi-row path with one implementation.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var ts time.Time
	err := row.Scan(&rec.RunID, &rec.CheckpointID, &rec.Label, &rec.Signature, &ts, &rec.Data)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: scan checkpoint: %w", err)
	}
	rec.Timestamp = ts
	return rec, nil
}
