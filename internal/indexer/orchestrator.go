package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/fetch"
	"github.com/repolens/repolens/internal/genai"
	"github.com/repolens/repolens/internal/models"
	"github.com/repolens/repolens/internal/store"
	"github.com/repolens/repolens/internal/summarizer"
	"go.uber.org/zap"
)

// Orchestrator runs the background indexing job for a repository: fetch,
// chunk, summarize, embed, persist, then flip the session to ready. Any
// failure of fetch, embedding, or persistence lands the session in error;
// per-file summarization failures degrade to fallback text without
// aborting the job.
type Orchestrator struct {
	store       store.Store
	source      fetch.Source
	embedder    genai.Embedder
	summarizer  *summarizer.Summarizer
	chunker     *Chunker
	concurrency int
	logger      *zap.Logger
	jobs        sync.WaitGroup
}

// NewOrchestrator creates an orchestrator with the given dependencies.
func NewOrchestrator(
	st store.Store,
	source fetch.Source,
	embedder genai.Embedder,
	summ *summarizer.Summarizer,
	cfg *config.IndexingConfig,
	logger *zap.Logger,
) *Orchestrator {
	concurrency := cfg.SummaryConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Orchestrator{
		store:       st,
		source:      source,
		embedder:    embedder,
		summarizer:  summ,
		chunker:     NewChunker(cfg.ChunkWindow, cfg.ChunkOverlap),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Start creates a session in preparing state and returns its id immediately;
// indexing proceeds in the background. A second Start for the same repository
// creates an independent new session.
func (o *Orchestrator) Start(ctx context.Context, repoURL string) (string, error) {
	sessionID := uuid.New().String()
	session := &models.Session{
		ID:        sessionID,
		Status:    models.StatusPreparing,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	o.jobs.Add(1)
	go func() {
		defer o.jobs.Done()
		// The job outlives the triggering request, so it gets its own context.
		o.run(context.Background(), sessionID, repoURL)
	}()

	o.logger.Info("indexing started",
		zap.String("session_id", sessionID),
		zap.String("repo_url", repoURL),
	)
	return sessionID, nil
}

// Wait blocks until all in-flight indexing jobs finish.
func (o *Orchestrator) Wait() {
	o.jobs.Wait()
}

func (o *Orchestrator) run(ctx context.Context, sessionID, repoURL string) {
	if err := o.index(ctx, sessionID, repoURL); err != nil {
		o.logger.Error("indexing failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		if markErr := o.store.MarkSessionError(ctx, sessionID); markErr != nil {
			o.logger.Error("failed to mark session error",
				zap.String("session_id", sessionID),
				zap.Error(markErr),
			)
		}
		return
	}
	o.logger.Info("indexing complete", zap.String("session_id", sessionID))
}

func (o *Orchestrator) index(ctx context.Context, sessionID, repoURL string) error {
	files, err := o.source.Fetch(ctx, repoURL)
	if err != nil {
		return fmt.Errorf("failed to fetch repository: %w", err)
	}

	// Sorted path order keeps chunk output deterministic for the same input.
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var chunks []models.Chunk
	var summarized []string
	for _, path := range paths {
		pieces := o.chunker.Split(files[path])
		if len(pieces) == 0 {
			continue
		}
		for _, piece := range pieces {
			chunks = append(chunks, models.Chunk{Text: piece, FilePath: path, Kind: models.KindCode})
		}
		summarized = append(summarized, path)
	}

	// One summary per non-empty file, produced concurrently. SummarizeFile
	// degrades to fallback text on its own, so workers never return errors.
	summaries := make([]string, len(summarized))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, path := range summarized {
		i, path := i, path
		g.Go(func() error {
			summaries[i] = o.summarizer.SummarizeFile(gctx, path, files[path])
			return nil
		})
	}
	_ = g.Wait()
	for i, path := range summarized {
		chunks = append(chunks, models.Chunk{Text: summaries[i], FilePath: path, Kind: models.KindSummary})
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		vectors, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(chunks) {
			return fmt.Errorf("embedding count %d does not match chunk count %d", len(vectors), len(chunks))
		}
		indexed := make([]*models.IndexedChunk, len(chunks))
		for i, ch := range chunks {
			indexed[i] = &models.IndexedChunk{
				ID:        uuid.New().String(),
				SessionID: sessionID,
				Text:      ch.Text,
				FilePath:  ch.FilePath,
				Kind:      ch.Kind,
				Embedding: vectors[i],
			}
		}
		if err := o.store.CreateChunks(ctx, indexed); err != nil {
			return fmt.Errorf("failed to store chunks: %w", err)
		}
		o.logger.Debug("chunks indexed",
			zap.String("session_id", sessionID),
			zap.Int("count", len(indexed)),
		)
	}

	corpus := buildCorpus(paths, files)
	repoSummary := o.summarizer.SummarizeRepository(ctx, corpus)
	suggestions := o.summarizer.SuggestQuestions(ctx, repoSummary)

	if err := o.store.MarkSessionReady(ctx, sessionID, repoSummary, suggestions); err != nil {
		return fmt.Errorf("failed to mark session ready: %w", err)
	}
	return nil
}

// buildCorpus concatenates all files with path labels for whole-repository
// summarization.
func buildCorpus(paths []string, files map[string]string) string {
	var b strings.Builder
	for _, path := range paths {
		b.WriteString("--- FILE: ")
		b.WriteString(path)
		b.WriteString(" ---\n")
		b.WriteString(files[path])
		b.WriteString("\n\n")
	}
	return b.String()
}
