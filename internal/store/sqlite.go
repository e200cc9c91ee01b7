// Package store provides the SQLite implementation of the Store interface.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/repolens/repolens/internal/models"
	"github.com/repolens/repolens/internal/vector"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && !strings.HasPrefix(dbPath, ":memory:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		repository_summary TEXT,
		ai_suggestions TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS session_turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session_seq ON session_turns(session_id, seq);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		pos INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_session_kind ON chunks(session_id, kind, pos);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateSession inserts a session row. History is ignored; sessions start empty.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.Session) error {
	if !session.Status.Valid() {
		return fmt.Errorf("invalid session status: %q", session.Status)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, created_at) VALUES (?, ?, ?)`,
		session.ID, string(session.Status), session.CreatedAt,
	)
	return err
}

// GetSession returns a session with its history in append order,
// or ErrNotFound.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	var status string
	var summary, suggestionsJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, created_at, repository_summary, ai_suggestions
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &status, &sess.CreatedAt, &summary, &suggestionsJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.Status = models.SessionStatus(status)
	sess.RepositorySummary = summary.String
	if suggestionsJSON.Valid && suggestionsJSON.String != "" {
		if err := json.Unmarshal([]byte(suggestionsJSON.String), &sess.AISuggestions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal suggestions: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM session_turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var turn models.Turn
		var role string
		if err := rows.Scan(&role, &turn.Content); err != nil {
			return nil, err
		}
		turn.Role = models.TurnRole(role)
		sess.History = append(sess.History, turn)
	}
	return &sess, rows.Err()
}

// MarkSessionReady atomically sets summary, suggestions, and status=ready.
// Only applies to sessions still preparing; applying to a session already
// ready or error is a no-op (transitions never go backward).
func (s *SQLiteStore) MarkSessionReady(ctx context.Context, id, summary string, suggestions []string) error {
	suggestionsJSON, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestions: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, repository_summary = ?, ai_suggestions = ?
		 WHERE id = ? AND status = ?`,
		string(models.StatusReady), summary, string(suggestionsJSON), id, string(models.StatusPreparing),
	)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, id, result)
}

// MarkSessionError sets status=error for a session still preparing.
func (s *SQLiteStore) MarkSessionError(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE id = ? AND status = ?`,
		string(models.StatusError), id, string(models.StatusPreparing),
	)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, id, result)
}

// checkTransition distinguishes "session missing" from "already transitioned"
// when a guarded status update matched no rows.
func (s *SQLiteStore) checkTransition(ctx context.Context, id string, result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

// AppendHistory appends turns as one contiguous unit in a single transaction,
// so concurrent appends for the same session compose without interleaving.
func (s *SQLiteStore) AppendHistory(ctx context.Context, id string, turns []models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	for _, turn := range turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_turns (session_id, role, content) VALUES (?, ?, ?)`,
			id, string(turn.Role), turn.Content,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateChunks batch-inserts chunks in one transaction, preserving input
// order. All chunks in a batch must belong to the same session; pos continues
// from the session's last chunk so insertion order is total.
func (s *SQLiteStore) CreateChunks(ctx context.Context, chunks []*models.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var offset int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(pos)+1, 0) FROM chunks WHERE session_id = ?`, chunks[0].SessionID,
	).Scan(&offset); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, session_id, file_path, kind, text, embedding, pos)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ch := range chunks {
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.SessionID, ch.FilePath, string(ch.Kind), ch.Text,
			vector.Encode(ch.Embedding), offset+i,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// QueryChunks scores every chunk matching filter by inner product against
// query, ties broken by insertion order. candidates caps the ranked pool and
// limit the returned slice, so every stored chunk is always eligible.
func (s *SQLiteStore) QueryChunks(ctx context.Context, filter ChunkFilter, query []float32, candidates, limit int) ([]*models.RankedChunk, error) {
	if candidates <= 0 || limit <= 0 {
		return nil, nil
	}
	if limit > candidates {
		limit = candidates
	}

	sb := strings.Builder{}
	sb.WriteString(`SELECT id, session_id, file_path, kind, text, embedding FROM chunks
		WHERE session_id = ?`)
	args := []interface{}{filter.SessionID}
	if filter.Kind != "" {
		sb.WriteString(` AND kind = ?`)
		args = append(args, string(filter.Kind))
	}
	if len(filter.FilePaths) > 0 {
		sb.WriteString(` AND file_path IN (?` + strings.Repeat(",?", len(filter.FilePaths)-1) + `)`)
		for _, p := range filter.FilePaths {
			args = append(args, p)
		}
	}
	sb.WriteString(` ORDER BY pos`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pool []*models.IndexedChunk
	var vectors [][]float32
	for rows.Next() {
		var ch models.IndexedChunk
		var kind string
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.SessionID, &ch.FilePath, &kind, &ch.Text, &blob); err != nil {
			return nil, err
		}
		ch.Kind = models.ChunkKind(kind)
		emb, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for chunk %s: %w", ch.ID, err)
		}
		ch.Embedding = emb
		pool = append(pool, &ch)
		vectors = append(vectors, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := vector.Rank(query, vectors, limit)
	results := make([]*models.RankedChunk, len(ranked))
	for i, r := range ranked {
		results[i] = &models.RankedChunk{IndexedChunk: *pool[r.Pos], Score: r.Score}
	}
	return results, nil
}

// DeleteExpired removes sessions created before cutoff with their turns and chunks.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE session_id IN (SELECT id FROM sessions WHERE created_at < ?)`, cutoff,
	); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_turns WHERE session_id IN (SELECT id FROM sessions WHERE created_at < ?)`, cutoff,
	); err != nil {
		return 0, err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// CountSessions returns the total session count.
func (s *SQLiteStore) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// CountChunks returns the total chunk count.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
