package datalayer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps data-layer entries in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS datalayer (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			data TEXT NOT NULL,
			pushed_at INTEGER NOT NULL,
			dispatched INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_datalayer_dispatched ON datalayer(dispatched);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Push(ctx context.Context, data map[string]any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode push: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO datalayer (data, pushed_at) VALUES (?, ?)`,
		string(encoded), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert push: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Flush(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE datalayer SET dispatched = 1 WHERE dispatched = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to flush data layer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count flushed entries: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, data, pushed_at, dispatched FROM datalayer ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query data layer: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			data     string
			pushedAt int64
		)
		if err := rows.Scan(&e.Seq, &data, &pushedAt, &e.Dispatched); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", e.Seq, err)
		}
		e.PushedAt = time.UnixMilli(pushedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
