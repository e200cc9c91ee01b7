package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/genai"
	"github.com/repolens/repolens/internal/models"
	"github.com/repolens/repolens/internal/store"
	"go.uber.org/zap"
)

// NoRelevantFiles is the code context used when the file-mapping stage
// finds nothing to anchor the question to.
const NoRelevantFiles = "no relevant files found"

// Context carries the retrieved material for one question.
type Context struct {
	// SummaryContext is the concatenation of the matched file summaries.
	SummaryContext string
	// CodeContext is the concatenation of the matched code chunks, or
	// NoRelevantFiles when no files matched.
	CodeContext string
	// Files are the distinct file paths the question was mapped to.
	Files []string
}

// Engine answers "which files matter, and which code inside them" for a
// question. Stage one searches the per-file summary chunks to pick a small
// set of files; stage two searches the code chunks restricted to that set.
type Engine struct {
	store    store.Store
	embedder genai.Embedder
	cfg      *config.RetrievalConfig
	logger   *zap.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(st store.Store, embedder genai.Embedder, cfg *config.RetrievalConfig, logger *zap.Logger) *Engine {
	return &Engine{store: st, embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve embeds the question once and runs both stages against the
// session's index. When stage one maps the question to no files, stage two
// is skipped entirely and CodeContext carries NoRelevantFiles.
func (e *Engine) Retrieve(ctx context.Context, sessionID, question string) (*Context, error) {
	query, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	summaryFilter := store.ChunkFilter{SessionID: sessionID, Kind: models.KindSummary}
	summaries, err := e.store.QueryChunks(ctx, summaryFilter, query, e.cfg.MapCandidates, e.cfg.MapLimit)
	if err != nil {
		return nil, fmt.Errorf("summary search failed: %w", err)
	}

	files := distinctPaths(summaries)
	if len(files) == 0 {
		e.logger.Debug("question mapped to no files", zap.String("session_id", sessionID))
		return &Context{CodeContext: NoRelevantFiles}, nil
	}

	codeFilter := store.ChunkFilter{SessionID: sessionID, Kind: models.KindCode, FilePaths: files}
	code, err := e.store.QueryChunks(ctx, codeFilter, query, e.cfg.RetrieveCandidates, e.cfg.RetrieveLimit)
	if err != nil {
		return nil, fmt.Errorf("code search failed: %w", err)
	}

	e.logger.Debug("retrieval complete",
		zap.String("session_id", sessionID),
		zap.Int("files", len(files)),
		zap.Int("code_chunks", len(code)),
	)
	return &Context{
		SummaryContext: renderChunks(summaries),
		CodeContext:    renderChunks(code),
		Files:          files,
	}, nil
}

// distinctPaths returns the unique file paths in rank order.
func distinctPaths(chunks []*models.RankedChunk) []string {
	seen := make(map[string]bool, len(chunks))
	var paths []string
	for _, ch := range chunks {
		if !seen[ch.FilePath] {
			seen[ch.FilePath] = true
			paths = append(paths, ch.FilePath)
		}
	}
	return paths
}

// renderChunks labels each chunk with its file path so the model can cite
// where material came from.
func renderChunks(chunks []*models.RankedChunk) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("--- ")
		b.WriteString(ch.FilePath)
		b.WriteString(" ---\n")
		b.WriteString(ch.Text)
	}
	return b.String()
}
