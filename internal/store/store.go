// Package store defines session and chunk persistence for Repolens.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/repolens/repolens/internal/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// ChunkFilter restricts a chunk query. SessionID is required; an empty Kind
// or FilePaths applies no restriction on that axis.
type ChunkFilter struct {
	SessionID string
	Kind      models.ChunkKind
	FilePaths []string
}

// Store defines session lifecycle, history, and chunk retrieval operations.
//
// Status transitions are monotonic: MarkSessionReady and MarkSessionError
// only apply to sessions still in preparing. AppendHistory inserts all given
// turns as one contiguous unit; concurrent appends for the same session
// compose rather than interleave.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	MarkSessionReady(ctx context.Context, id, summary string, suggestions []string) error
	MarkSessionError(ctx context.Context, id string) error
	AppendHistory(ctx context.Context, id string, turns []models.Turn) error

	CreateChunks(ctx context.Context, chunks []*models.IndexedChunk) error
	// QueryChunks ranks every chunk matching filter by inner product
	// against query and returns at most limit results, best first, with
	// candidates capping the ranked pool. Ties keep insertion order.
	QueryChunks(ctx context.Context, filter ChunkFilter, query []float32, candidates, limit int) ([]*models.RankedChunk, error)

	// DeleteExpired removes sessions created before cutoff along with their
	// turns and chunks, returning the number of sessions removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	CountSessions(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
