// Package main is the Repolens CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/repolens/repolens/internal/chat"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/fetch"
	"github.com/repolens/repolens/internal/genai"
	"github.com/repolens/repolens/internal/indexer"
	"github.com/repolens/repolens/internal/models"
	"github.com/repolens/repolens/internal/retrieval"
	"github.com/repolens/repolens/internal/server"
	"github.com/repolens/repolens/internal/store"
	"github.com/repolens/repolens/internal/summarizer"
	"github.com/repolens/repolens/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/repolens/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. A missing default file falls back to built-in defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys live in the environment; a local .env is a convenience for
	// development and its absence is not an error.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("repolens version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// components holds the wired application services.
type components struct {
	Store        store.Store
	Orchestrator *indexer.Orchestrator
	Controller   *chat.Controller
}

func (c *components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	st, err := store.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	client, err := genai.NewClient(genai.Config{
		BaseURL:         cfg.GenAI.BaseURL,
		APIKeyEnv:       cfg.GenAI.APIKeyEnv,
		EmbeddingModel:  cfg.GenAI.EmbeddingModel,
		GenerationModel: cfg.GenAI.GenerationModel,
		ChatModel:       cfg.GenAI.ChatModel,
		Timeout:         time.Duration(cfg.GenAI.TimeoutSecs) * time.Second,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	source := fetch.NewGitHub(fetch.Config{
		APIBaseURL:   cfg.GitHub.APIBaseURL,
		TokenEnv:     cfg.GitHub.TokenEnv,
		MaxFileBytes: cfg.GitHub.MaxFileBytes,
		Timeout:      time.Duration(cfg.GitHub.TimeoutSecs) * time.Second,
	})

	summ := summarizer.NewSummarizer(client, logger)
	orchestrator := indexer.NewOrchestrator(st, source, client, summ, &cfg.Indexing, logger)
	engine := retrieval.NewEngine(st, client, &cfg.Retrieval, logger)
	controller := chat.NewController(st, engine, client, logger)

	return &components{
		Store:        st,
		Orchestrator: orchestrator,
		Controller:   controller,
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	srv := server.NewServer(
		comps.Store,
		comps.Orchestrator,
		comps.Controller,
		&cfg.Server,
		&cfg.Session,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	comps.Orchestrator.Wait()
}

// runIndex indexes one repository from the command line and waits for the
// job to finish. Useful for smoke-testing credentials and quotas without
// the server.
func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: repolens index [flags] <github-repo-url>")
		os.Exit(1)
	}
	repoURL := fs.Arg(0)
	if _, _, err := fetch.ParseRepoURL(repoURL); err != nil {
		fmt.Fprintf(os.Stderr, "Not a valid GitHub repository URL: %s\n", repoURL)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	sessionID, err := comps.Orchestrator.Start(context.Background(), repoURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start indexing: %v\n", err)
		os.Exit(1)
	}
	comps.Orchestrator.Wait()

	session, err := comps.Store.GetSession(context.Background(), sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load session: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Session:  %s\n", session.ID)
	fmt.Printf("Status:   %s\n", session.Status)
	if session.Status == models.StatusReady {
		fmt.Printf("Summary:\n%s\n", session.RepositorySummary)
		fmt.Println("Suggested questions:")
		for _, q := range session.AISuggestions {
			fmt.Printf("  - %s\n", q)
		}
	} else {
		os.Exit(1)
	}
}

// serviceStatus is the shape of the GET /api/v1/status response.
type serviceStatus struct {
	Sessions int64 `json:"sessions"`
	Chunks   int64 `json:"chunks"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status serviceStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode response: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sessions: %d\n", status.Sessions)
	fmt.Printf("Chunks:   %d\n", status.Chunks)
}

func printUsage() {
	fmt.Println(`Repolens - chat with a GitHub repository

Usage:
  repolens <command> [flags]

Commands:
  server    Start the HTTP/websocket API server
  index     Index one repository and print the result
  status    Show counts from a running server
  version   Show version
  help      Show this help

Flags:
  -config <path>   Config file path (default ` + defaultConfigPath + `)
  -debug           Enable debug logging`)
}
