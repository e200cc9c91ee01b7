// Package fetch acquires repository contents from GitHub.
package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
)

// Errors classifying acquisition failures for the HTTP layer.
var (
	ErrInvalidURL   = errors.New("invalid repository URL")
	ErrRepoNotFound = errors.New("repository not found")
)

// Source fetches a repository's text files keyed by relative path.
type Source interface {
	Fetch(ctx context.Context, repoURL string) (map[string]string, error)
}

// sourceExtensions are the file extensions (and extensionless names) worth indexing.
var sourceExtensions = map[string]bool{
	".py": true, ".html": true, ".css": true, ".js": true, ".ts": true,
	".jsx": true, ".tsx": true, ".c": true, ".cpp": true, ".h": true,
	".hpp": true, ".cs": true, ".java": true, ".kt": true, ".scala": true,
	".go": true, ".rs": true, ".swift": true, ".rb": true, ".php": true,
	".sh": true, ".bash": true, ".ps1": true, ".json": true, ".xml": true,
	".yaml": true, ".yml": true, ".toml": true, ".sql": true, ".md": true,
	".txt": true, "Dockerfile": true, "Makefile": true,
}

// ignoredDirs are directory names skipped anywhere in a path.
var ignoredDirs = map[string]bool{
	"__pycache__": true, ".git": true, ".idea": true, ".vscode": true,
	"node_modules": true, "venv": true, ".venv": true, "dist": true,
	"build": true, "target": true, "out": true, "bin": true, "vendor": true,
}

// ignoredFiles are large generated files skipped by name.
var ignoredFiles = map[string]bool{
	"package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true,
	"composer.lock": true, "Gemfile.lock": true, "Pipfile.lock": true,
	"poetry.lock": true, "go.sum": true,
}

var repoURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/.\s]+)`)

// ParseRepoURL extracts owner and repo from a GitHub URL.
func ParseRepoURL(url string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	owner, repo = m[1], strings.TrimSuffix(m[2], ".git")
	return owner, repo, nil
}

// Config configures the GitHub client.
type Config struct {
	APIBaseURL   string
	TokenEnv     string
	MaxFileBytes int64
	Timeout      time.Duration
}

// GitHub fetches repository contents via the GitHub REST API.
type GitHub struct {
	apiBaseURL   string
	token        string
	maxFileBytes int64
	client       *http.Client
}

// NewGitHub creates a GitHub fetcher. A token (read from the environment
// variable named by cfg.TokenEnv) is optional but raises the rate limit.
func NewGitHub(cfg Config) *GitHub {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.github.com"
	}
	if cfg.TokenEnv == "" {
		cfg.TokenEnv = "GITHUB_TOKEN"
	}
	if cfg.MaxFileBytes == 0 {
		cfg.MaxFileBytes = 1024 * 1024
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	return &GitHub{
		apiBaseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		token:        os.Getenv(cfg.TokenEnv),
		maxFileBytes: cfg.MaxFileBytes,
		client:       &http.Client{Timeout: t},
	}
}

type repoInfo struct {
	DefaultBranch string `json:"default_branch"`
}

type branchInfo struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

type treeResponse struct {
	Tree []treeEntry `json:"tree"`
}

type blobResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Fetch returns the repository's indexable text files keyed by relative path.
// It resolves the default branch head, lists the full tree recursively, and
// downloads each file that passes the extension, directory, and size filters.
func (g *GitHub) Fetch(ctx context.Context, repoURL string) (map[string]string, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	var info repoInfo
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", g.apiBaseURL, owner, repo), &info); err != nil {
		return nil, fmt.Errorf("resolve repository: %w", err)
	}
	branch := info.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	var bi branchInfo
	if err := g.getJSON(ctx, fmt.Sprintf("%s/repos/%s/%s/branches/%s", g.apiBaseURL, owner, repo, branch), &bi); err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}

	var tree treeResponse
	treeURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", g.apiBaseURL, owner, repo, bi.Commit.SHA)
	if err := g.getJSON(ctx, treeURL, &tree); err != nil {
		return nil, fmt.Errorf("list tree: %w", err)
	}

	files := make(map[string]string)
	for _, entry := range tree.Tree {
		if entry.Type != "blob" || !indexable(entry.Path) || entry.Size > g.maxFileBytes {
			continue
		}
		var blob blobResponse
		if err := g.getJSON(ctx, entry.URL, &blob); err != nil {
			return nil, fmt.Errorf("fetch blob %s: %w", entry.Path, err)
		}
		if blob.Encoding != "base64" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.Content, "\n", ""))
		if err != nil {
			continue
		}
		files[entry.Path] = string(raw)
	}
	return files, nil
}

// indexable applies the directory, filename, and extension filters.
func indexable(path string) bool {
	parts := strings.Split(path, "/")
	for _, p := range parts[:len(parts)-1] {
		if ignoredDirs[p] {
			return false
		}
	}
	name := parts[len(parts)-1]
	if ignoredFiles[name] {
		return false
	}
	if sourceExtensions[name] {
		return true
	}
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		return sourceExtensions[name[dot:]]
	}
	return false
}

func (g *GitHub) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("call github: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrRepoNotFound
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("github access denied (check token scope and rate limit)")
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
