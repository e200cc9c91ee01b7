package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/repolens/repolens/internal/chat"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/fetch"
	"github.com/repolens/repolens/internal/genai"
	"github.com/repolens/repolens/internal/indexer"
	"github.com/repolens/repolens/internal/retrieval"
	"github.com/repolens/repolens/internal/store"
	"github.com/repolens/repolens/internal/summarizer"
	"go.uber.org/zap"
)

type stubSource struct {
	files map[string]string
	err   error
}

func (s *stubSource) Fetch(ctx context.Context, repoURL string) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.files, nil
}

var _ fetch.Source = (*stubSource)(nil)

type testServer struct {
	*Server
	orchestrator *indexer.Orchestrator
	store        store.Store
}

func newTestServer(t *testing.T, source fetch.Source) *testServer {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zap.NewNop()
	embedder := genai.NewMockEmbedder(16)
	gen := &genai.StaticGenerator{
		Response: `["How is indexing triggered?","Where are chunks stored?","How does retrieval rank code?","How do I run it locally?"]`,
		Tokens:   []string{"It ", "indexes ", "repositories."},
	}
	summ := summarizer.NewSummarizer(gen, logger)
	idxCfg := &config.IndexingConfig{ChunkWindow: 1500, ChunkOverlap: 200, SummaryConcurrency: 2}
	orchestrator := indexer.NewOrchestrator(st, source, embedder, summ, idxCfg, logger)

	retCfg := &config.RetrievalConfig{MapCandidates: 50, MapLimit: 5, RetrieveCandidates: 150, RetrieveLimit: 15}
	engine := retrieval.NewEngine(st, embedder, retCfg, logger)
	controller := chat.NewController(st, engine, gen, logger)

	srv := NewServer(
		st,
		orchestrator,
		controller,
		&config.ServerConfig{Host: "127.0.0.1", Port: 0},
		&config.SessionConfig{TTLHours: 24, SweepIntervalSecs: 60},
		logger,
	)
	return &testServer{Server: srv, orchestrator: orchestrator, store: st}
}

func (ts *testServer) prepare(t *testing.T, repoURL string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"repo_url": repoURL})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/prepare", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("prepare status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("prepare response: %v", err)
	}
	if resp["session_id"] == "" {
		t.Fatal("prepare returned no session id")
	}
	return resp["session_id"]
}

func TestPrepareAndStatusLifecycle(t *testing.T) {
	ts := newTestServer(t, &stubSource{files: map[string]string{"main.go": "package main\n"}})

	sessionID := ts.prepare(t, "https://github.com/acme/widgets")
	ts.orchestrator.Wait()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/status/"+sessionID, nil)
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Status      string   `json:"status"`
		Suggestions []string `json:"ai_suggestions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("status response: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	if len(resp.Suggestions) != 4 {
		t.Errorf("suggestions = %d, want 4", len(resp.Suggestions))
	}
}

func TestPrepareRejectsInvalidURL(t *testing.T) {
	ts := newTestServer(t, &stubSource{})
	body, _ := json.Marshal(map[string]string{"repo_url": "https://gitlab.com/acme/widgets"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/prepare", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStatusReportsIndexingFailure(t *testing.T) {
	ts := newTestServer(t, &stubSource{err: errors.New("rate limited")})
	sessionID := ts.prepare(t, "https://github.com/acme/widgets")
	ts.orchestrator.Wait()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/status/"+sessionID, nil)
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("status response: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("status = %q, want error", resp.Status)
	}
	if strings.Contains(rec.Body.String(), "ai_suggestions") {
		t.Error("failed session should not expose suggestions")
	}
}

func TestStatusUnknownSession(t *testing.T) {
	ts := newTestServer(t, &stubSource{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/status/no-such-session", nil)
	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHealthAndServiceStatus(t *testing.T) {
	ts := newTestServer(t, &stubSource{files: map[string]string{"main.go": "package main\n"}})
	ts.prepare(t, "https://github.com/acme/widgets")
	ts.orchestrator.Wait()

	rec := httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	ts.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("service status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Sessions int64 `json:"sessions"`
		Chunks   int64 `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("service status response: %v", err)
	}
	if resp.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", resp.Sessions)
	}
	if resp.Chunks == 0 {
		t.Error("expected indexed chunks to be counted")
	}
}

func dialChat(t *testing.T, httpServer *httptest.Server, sessionID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/api/v1/chat/ws?sessionId=" + sessionID
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestChatWebsocketFlow(t *testing.T) {
	ts := newTestServer(t, &stubSource{files: map[string]string{"main.go": "package main\nfunc main() {}\n"}})
	sessionID := ts.prepare(t, "https://github.com/acme/widgets")
	ts.orchestrator.Wait()

	httpServer := httptest.NewServer(ts.Router())
	defer httpServer.Close()

	conn, _, err := dialChat(t, httpServer, sessionID)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"message": "what does this repo do?"}); err != nil {
		t.Fatalf("write question: %v", err)
	}

	var answer strings.Builder
	for {
		var event struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read event: %v", err)
		}
		switch event.Type {
		case "token":
			answer.WriteString(event.Data)
		case "error":
			t.Fatalf("unexpected error event: %s", event.Data)
		case "done":
			if answer.String() != "It indexes repositories." {
				t.Errorf("answer = %q, want the full streamed text", answer.String())
			}
			return
		default:
			t.Fatalf("unknown event type %q", event.Type)
		}
	}
}

func TestChatRejectsUnreadySession(t *testing.T) {
	ts := newTestServer(t, &stubSource{err: errors.New("boom")})
	sessionID := ts.prepare(t, "https://github.com/acme/widgets")
	ts.orchestrator.Wait()

	httpServer := httptest.NewServer(ts.Router())
	defer httpServer.Close()

	conn, _, err := dialChat(t, httpServer, sessionID)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected a close error, got %v", err)
	}
	if closeErr.Code != closeSessionNotReady {
		t.Errorf("close code = %d, want %d", closeErr.Code, closeSessionNotReady)
	}
}

func TestChatRejectsUnknownSession(t *testing.T) {
	ts := newTestServer(t, &stubSource{})
	httpServer := httptest.NewServer(ts.Router())
	defer httpServer.Close()

	conn, _, err := dialChat(t, httpServer, "no-such-session")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected a close error, got %v", err)
	}
	if closeErr.Code != closeSessionNotFound {
		t.Errorf("close code = %d, want %d", closeErr.Code, closeSessionNotFound)
	}
}

func TestChatRequiresSessionID(t *testing.T) {
	ts := newTestServer(t, &stubSource{})
	httpServer := httptest.NewServer(ts.Router())
	defer httpServer.Close()

	_, resp, err := dialChat(t, httpServer, "")
	if err == nil {
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("handshake response = %v, want %d", resp, http.StatusBadRequest)
	}
}
