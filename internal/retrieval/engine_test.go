package retrieval

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/genai"
	"github.com/repolens/repolens/internal/models"
	"github.com/repolens/repolens/internal/store"
	"go.uber.org/zap"
)

// queryRecorder serves canned results per chunk kind and records every
// filter it was queried with.
type queryRecorder struct {
	store.Store
	summaries []*models.RankedChunk
	code      []*models.RankedChunk
	queries   []store.ChunkFilter
}

func (q *queryRecorder) QueryChunks(ctx context.Context, filter store.ChunkFilter, query []float32, candidates, limit int) ([]*models.RankedChunk, error) {
	q.queries = append(q.queries, filter)
	if filter.Kind == models.KindSummary {
		return q.summaries, nil
	}
	return q.code, nil
}

func (q *queryRecorder) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func ranked(path, text string, kind models.ChunkKind) *models.RankedChunk {
	return &models.RankedChunk{
		IndexedChunk: models.IndexedChunk{Text: text, FilePath: path, Kind: kind},
	}
}

func newTestEngine(st store.Store) *Engine {
	cfg := &config.RetrievalConfig{MapCandidates: 50, MapLimit: 5, RetrieveCandidates: 150, RetrieveLimit: 15}
	return NewEngine(st, genai.NewMockEmbedder(16), cfg, zap.NewNop())
}

func TestRetrieveTwoStages(t *testing.T) {
	rec := &queryRecorder{
		summaries: []*models.RankedChunk{
			ranked("api/server.go", "HTTP surface of the service.", models.KindSummary),
			ranked("store/db.go", "Persistence layer.", models.KindSummary),
			ranked("api/server.go", "Duplicate mapping.", models.KindSummary),
		},
		code: []*models.RankedChunk{
			ranked("api/server.go", "func handleChat() {}", models.KindCode),
		},
	}
	e := newTestEngine(rec)

	rc, err := e.Retrieve(context.Background(), "s1", "how does the server work?")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if len(rec.queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(rec.queries))
	}
	first, second := rec.queries[0], rec.queries[1]
	if first.Kind != models.KindSummary || len(first.FilePaths) != 0 {
		t.Errorf("stage one filter = %+v, want unrestricted summary search", first)
	}
	if second.Kind != models.KindCode {
		t.Errorf("stage two kind = %q, want %q", second.Kind, models.KindCode)
	}

	wantFiles := []string{"api/server.go", "store/db.go"}
	if len(rc.Files) != len(wantFiles) {
		t.Fatalf("files = %v, want %v", rc.Files, wantFiles)
	}
	for i, p := range wantFiles {
		if rc.Files[i] != p {
			t.Errorf("files[%d] = %q, want %q", i, rc.Files[i], p)
		}
	}
	if len(second.FilePaths) != 2 {
		t.Errorf("stage two restricted to %v, want the mapped files", second.FilePaths)
	}

	if !strings.Contains(rc.SummaryContext, "Persistence layer.") {
		t.Errorf("summary context missing material: %q", rc.SummaryContext)
	}
	if !strings.Contains(rc.CodeContext, "handleChat") {
		t.Errorf("code context missing material: %q", rc.CodeContext)
	}
	if !strings.Contains(rc.CodeContext, "api/server.go") {
		t.Errorf("code context missing path label: %q", rc.CodeContext)
	}
}

func TestRetrieveEmptyMapSkipsCodeSearch(t *testing.T) {
	rec := &queryRecorder{}
	e := newTestEngine(rec)

	rc, err := e.Retrieve(context.Background(), "s1", "anything")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(rec.queries) != 1 {
		t.Fatalf("queries = %d, want only the summary stage", len(rec.queries))
	}
	if rc.CodeContext != NoRelevantFiles {
		t.Errorf("code context = %q, want %q", rc.CodeContext, NoRelevantFiles)
	}
	if rc.SummaryContext != "" {
		t.Errorf("summary context = %q, want empty", rc.SummaryContext)
	}
	if len(rc.Files) != 0 {
		t.Errorf("files = %v, want none", rc.Files)
	}
}

func TestRetrieveAgainstSQLite(t *testing.T) {
	st, err := store.NewSQLiteStore(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	session := &models.Session{ID: "s1", Status: models.StatusPreparing, CreatedAt: time.Now().UTC()}
	if err := st.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	embedder := genai.NewMockEmbedder(16)
	texts := map[string]struct {
		path string
		kind models.ChunkKind
	}{
		"the websocket handler upgrades connections": {"ws.go", models.KindSummary},
		"sqlite schema and migrations":               {"db.go", models.KindSummary},
		"func upgrade(w http.ResponseWriter) {}":     {"ws.go", models.KindCode},
		"CREATE TABLE sessions (...)":                {"db.go", models.KindCode},
	}
	var chunks []*models.IndexedChunk
	i := 0
	for text, meta := range texts {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		chunks = append(chunks, &models.IndexedChunk{
			ID:        "c" + string(rune('0'+i)),
			SessionID: "s1",
			Text:      text,
			FilePath:  meta.path,
			Kind:      meta.kind,
			Embedding: vec,
		})
		i++
	}
	if err := st.CreateChunks(ctx, chunks); err != nil {
		t.Fatalf("CreateChunks: %v", err)
	}

	e := newTestEngine(st)
	rc, err := e.Retrieve(ctx, "s1", "how do websocket connections get upgraded?")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(rc.Files) == 0 {
		t.Fatal("expected the question to map to files")
	}
	// Stage two must only surface code from the mapped file set.
	mapped := map[string]bool{}
	for _, p := range rc.Files {
		mapped[p] = true
	}
	for _, line := range strings.Split(rc.CodeContext, "\n") {
		if strings.HasPrefix(line, "--- ") {
			path := strings.TrimSuffix(strings.TrimPrefix(line, "--- "), " ---")
			if !mapped[path] {
				t.Errorf("code context includes %q outside mapped set %v", path, rc.Files)
			}
		}
	}
}
