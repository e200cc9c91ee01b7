package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/repolens/repolens/internal/vector"
	"github.com/repolens/repolens/pkg/utils"
)

// Config configures the Gemini client.
type Config struct {
	BaseURL         string
	APIKeyEnv       string
	EmbeddingModel  string
	GenerationModel string
	ChatModel       string
	Timeout         time.Duration
}

// Client is a Gemini REST API client implementing Embedder and Generator.
// Generate uses the generation model (summaries, suggestions); GenerateStream
// uses the chat model.
type Client struct {
	baseURL         string
	apiKey          string
	embeddingModel  string
	generationModel string
	chatModel       string
	// dimensions is learned from the first embed response; concurrent chat
	// connections share one client, so access is atomic.
	dimensions atomic.Int64
	client     *http.Client
	retry           retryConfig
}

// NewClient creates a Gemini client. The API key is read from the
// environment variable named by cfg.APIKeyEnv.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GEMINI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "embedding-001"
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gemini-2.0-flash-lite"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gemini-2.5-flash"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 120 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          key,
		embeddingModel:  cfg.EmbeddingModel,
		generationModel: cfg.GenerationModel,
		chatModel:       cfg.ChatModel,
		client:          &http.Client{Timeout: t},
		retry:           defaultRetryConfig(),
	}, nil
}

// --- wire types ---

type part struct {
	Text string `json:"text"`
}

type contentBody struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type embedRequest struct {
	Model   string      `json:"model,omitempty"`
	Content contentBody `json:"content"`
}

type embedding struct {
	Values []float32 `json:"values"`
}

type embedResponse struct {
	Embedding embedding `json:"embedding"`
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []embedding `json:"embeddings"`
}

type generateRequest struct {
	Contents []contentBody `json:"contents"`
}

type candidate struct {
	Content contentBody `json:"content"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

func (r *generateResponse) text() string {
	var b strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
		break
	}
	return b.String()
}

// Embed returns a unit-normalized embedding for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	url := fmt.Sprintf("%s/models/%s:embedContent", c.baseURL, c.embeddingModel)
	req := embedRequest{Content: contentBody{Parts: []part{{Text: text}}}}
	out, err := retryWithBackoff(ctx, c.retry, func() (*embedResponse, error) {
		var resp embedResponse
		if err := c.postJSON(ctx, url, req, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(out.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embed content: empty embedding returned")
	}
	vec := out.Embedding.Values
	vector.Normalize(vec)
	c.dimensions.CompareAndSwap(0, int64(len(vec)))
	return vec, nil
}

// EmbedBatch embeds all texts in one API call; returned vectors align
// index-for-index with texts. An empty input returns nil without a call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", c.baseURL, c.embeddingModel)
	req := batchEmbedRequest{Requests: make([]embedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = embedRequest{
			Model:   "models/" + c.embeddingModel,
			Content: contentBody{Parts: []part{{Text: t}}},
		}
	}
	out, err := retryWithBackoff(ctx, c.retry, func() (*batchEmbedResponse, error) {
		var resp batchEmbedResponse
		if err := c.postJSON(ctx, url, req, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch embed contents: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("batch embed contents: got %d embeddings for %d texts", len(out.Embeddings), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for i, e := range out.Embeddings {
		vector.Normalize(e.Values)
		vectors[i] = e.Values
	}
	c.dimensions.CompareAndSwap(0, int64(len(vectors[0])))
	return vectors, nil
}

// Dimensions returns the embedding dimension, 0 until the first embed call.
func (c *Client) Dimensions() int {
	return int(c.dimensions.Load())
}

// Generate produces a complete response using the generation model.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.generationModel)
	req := generateRequest{Contents: []contentBody{{Parts: []part{{Text: prompt}}}}}
	out, err := retryWithBackoff(ctx, c.retry, func() (*generateResponse, error) {
		var resp generateResponse
		if err := c.postJSON(ctx, url, req, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return out.text(), nil
}

// GenerateStream streams a response from the chat model over server-sent
// events. Tokens are delivered in production order; the channel is closed
// when the stream ends.
func (c *Client) GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error) {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.chatModel)
	reqBody := generateRequest{Contents: []contentBody{{Parts: []part{{Text: prompt}}}}}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}

	ch := make(chan StreamToken, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}
			var chunk generateResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				ch <- StreamToken{Err: fmt.Errorf("decode stream chunk: %w", err)}
				return
			}
			text := chunk.text()
			if text == "" {
				continue
			}
			select {
			case ch <- StreamToken{Content: text}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamToken{Err: fmt.Errorf("read stream: %w", err)}
		}
	}()
	return ch, nil
}

// postJSON posts in as JSON and decodes the response into out.
// Rate-limit and server errors are wrapped as retryable.
func (c *Client) postJSON(ctx context.Context, url string, in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return retryable{err: fmt.Errorf("call provider: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retryable{err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
