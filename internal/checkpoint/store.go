package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps checkpoints in a SQLite table as gzip-compressed
// JSON blobs.
type SQLiteStore struct {
	db   *sql.DB
	keep int
}

// OpenSQLite opens (creating if needed) a checkpoint database at path.
func OpenSQLite(ctx context.Context, path string, keep int) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(ctx, db, keep)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore creates a checkpoint store using the given database.
// keep bounds how many checkpoints are retained per thread; zero keeps
// all of them.
func NewSQLiteStore(ctx context.Context, db *sql.DB, keep int) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, keep: keep}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			thread_id TEXT NOT NULL,
			node TEXT NOT NULL,
			created_at TEXT NOT NULL,
			state_gz BLOB NOT NULL,
			byte_size INTEGER NOT NULL,
			message_count INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread
			ON checkpoints(thread_id, seq DESC);
	`)
	return err
}

// Put saves state as the thread's newest checkpoint and prunes older
// ones beyond the retention limit.
func (s *SQLiteStore) Put(ctx context.Context, node Node, state *State) (*Checkpoint, error) {
	cp, blob, err := newCheckpoint(node, state)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints (id, thread_id, node, created_at, state_gz, byte_size, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cp.ID.String(), cp.ThreadID, string(node), cp.CreatedAt.Format(time.RFC3339Nano),
		blob, cp.ByteSize, cp.MessageCount); err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	if s.keep > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM checkpoints
			WHERE thread_id = ? AND seq NOT IN (
				SELECT seq FROM checkpoints
				WHERE thread_id = ?
				ORDER BY seq DESC
				LIMIT ?
			)
		`, cp.ThreadID, cp.ThreadID, s.keep); err != nil {
			return nil, fmt.Errorf("prune: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return cp, nil
}

// Latest returns the thread's newest checkpoint including full state.
func (s *SQLiteStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, node, created_at, state_gz, byte_size, message_count
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, threadID)

	var (
		cp                   Checkpoint
		idStr, node, created string
		blob                 []byte
	)
	err := row.Scan(&idStr, &cp.ThreadID, &node, &created, &blob, &cp.ByteSize, &cp.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}
	cp.ID, _ = uuid.Parse(idStr)
	cp.Node = Node(node)
	cp.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)

	cp.State = &State{}
	if err := decompress(blob, cp.State); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", idStr, err)
	}
	return &cp, nil
}

// List returns checkpoint metadata for the thread, newest first, without
// the state blobs.
func (s *SQLiteStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, node, created_at, byte_size, message_count
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var checkpoints []*Checkpoint
	for rows.Next() {
		var (
			cp                   Checkpoint
			idStr, node, created string
		)
		if err := rows.Scan(&idStr, &cp.ThreadID, &node, &created, &cp.ByteSize, &cp.MessageCount); err != nil {
			return nil, err
		}
		cp.ID, _ = uuid.Parse(idStr)
		cp.Node = Node(node)
		cp.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// newCheckpoint stamps state and builds the checkpoint record plus the
// compressed state blob.
func newCheckpoint(node Node, state *State) (*Checkpoint, []byte, error) {
	if state == nil || state.ThreadID == "" {
		return nil, nil, errors.New("checkpoint: state has no thread id")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("generate id: %w", err)
	}

	now := time.Now().UTC()
	state.UpdatedAt = now
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}

	blob, err := compress(state)
	if err != nil {
		return nil, nil, err
	}

	return &Checkpoint{
		ID:           id,
		ThreadID:     state.ThreadID,
		Node:         node,
		CreatedAt:    now,
		State:        state,
		ByteSize:     int64(len(blob)),
		MessageCount: len(state.Messages),
	}, blob, nil
}
