// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/interaction"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/oracle"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used. A missing default file is not an error: all settings have defaults.
// Returns the config and the path that was actually loaded.
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
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Credentials (OPENAI_API_KEY, tunnel token) may live in a local .env.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "embed":
		runEmbed()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
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
	if err := cfg.ValidateStartup(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
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

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// The corpus stays in memory for the life of the process; an external edit
	// means the persisted embeddings no longer match a restart's corpus.
	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	corpusWatch := watcher.New(cfg.Storage.CorpusPath, func() {
		logger.Warn("corpus file changed on disk; embedding cache is stale, restart to re-embed",
			zap.String("path", cfg.Storage.CorpusPath))
	}, watchOpts...)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := corpusWatch.Start(watchCtx); err != nil {
		logger.Warn("corpus watcher disabled", zap.Error(err))
	}

	srv := server.NewServer(components.Engine, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// buildQuery joins all positional args with spaces so multi-word queries work
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query to
// the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = answer locally without a running server)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *serverURL != "" {
		answer, err := askViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteAnswer(os.Stdout, query, answer, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	answer, err := components.Engine.Answer(ctx, query)
	if err != nil {
		// The answer survives a failed log write; anything else is fatal.
		if !errors.Is(err, rag.ErrLogWrite) {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		logger.Warn("answer served but not recorded", zap.Error(err))
	}
	if err := cli.WriteAnswer(os.Stdout, query, answer, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL, query string) (string, error) {
	body, err := json.Marshal(models.AskRequest{Query: query})
	if err != nil {
		return "", err
	}
	resp, err := http.Post(serverURL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Results) == 0 {
		return "", fmt.Errorf("server returned no results")
	}
	return out.Results[0], nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = search locally without a running server)")
	topK := fs.Int("top-k", 0, "number of results (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae search [flags] <query>")
		os.Exit(1)
	}
	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: kotae search [flags] <query>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *serverURL != "" {
		response, err := searchViaHTTP(*serverURL, query, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	req := models.SearchRequest{Query: query, TopK: *topK}
	if err := req.Validate(cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid query: %v\n", err)
		os.Exit(1)
	}
	start := time.Now()
	results, err := components.Store.SearchScored(ctx, req.Query, req.TopK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	hits := make([]models.SearchHit, len(results))
	for i, res := range results {
		hits[i] = models.SearchHit{Reply: res.Reply, Question: res.Question, Distance: res.Distance, Rank: i + 1}
	}
	response := &models.SearchResponse{
		Hits:      hits,
		Total:     len(hits),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     query,
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, query string, topK int) (*models.SearchResponse, error) {
	body, err := json.Marshal(models.SearchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// runEmbed builds (or validates) the embedding cache without starting the
// server. Useful after replacing the corpus file.
func runEmbed() {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	fmt.Printf("Embedding cache ready: %d records x %d dimensions at %s\n",
		components.Store.Size(), cfg.Embedding.Dimensions, cfg.Storage.EmbeddingCachePath)
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Records        int   `json:"records"`
	Interactions   int   `json:"interactions"`
	DiskUsageBytes int64 `json:"disk_usage_bytes"`
	Config         struct {
		EmbeddingDimensions int    `json:"embedding_dimensions"`
		OracleModel         string `json:"oracle_model"`
		DefaultTopK         int    `json:"default_top_k"`
		CorpusPath          string `json:"corpus_path"`
		InteractionLogPath  string `json:"interaction_log_path"`
	} `json:"config"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = inspect local files)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		corp, err := corpus.Load(cfg.Storage.CorpusPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load corpus: %v\n", err)
			os.Exit(1)
		}
		status.Records = corp.Len()
		if rows, err := interaction.Read(cfg.Storage.InteractionLogPath); err == nil {
			status.Interactions = len(rows)
		}
		status.DiskUsageBytes = utils.DiskUsageBytes(cfg.Storage.EmbeddingCachePath, cfg.Storage.InteractionLogPath)
		status.Config.EmbeddingDimensions = cfg.Embedding.Dimensions
		status.Config.OracleModel = cfg.Oracle.Model
		status.Config.DefaultTopK = cfg.Retrieval.DefaultTopK
		status.Config.CorpusPath = cfg.Storage.CorpusPath
		status.Config.InteractionLogPath = cfg.Storage.InteractionLogPath
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("records:            %d   # searchable corpus records\n", status.Records)
		fmt.Printf("interactions:       %d   # recorded question/answer pairs\n", status.Interactions)
		fmt.Printf("disk_usage_bytes:   %d   # embedding cache + interaction log on disk\n", status.DiskUsageBytes)
		fmt.Println()
		fmt.Println("# configuration")
		fmt.Printf("embedding_dims:     %d\n", status.Config.EmbeddingDimensions)
		fmt.Printf("oracle_model:       %s\n", status.Config.OracleModel)
		fmt.Printf("default_top_k:      %d\n", status.Config.DefaultTopK)
		fmt.Printf("corpus_path:        %s\n", status.Config.CorpusPath)
		fmt.Printf("interaction_log:    %s\n", status.Config.InteractionLogPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Corpus   *corpus.Corpus
	Embedder embedding.Embedder
	Store    *store.Store
	Log      *interaction.Log
	Engine   *rag.Engine
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Log != nil {
		_ = c.Log.Close()
	}
}

// initializeComponents loads the corpus, brings the embedding cache up to
// date, and builds the retrieval store. With withOracle set it additionally
// constructs the generation oracle, interaction log, and answer engine —
// retrieval-only commands skip those so they run without an API key.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withOracle bool) (*Components, error) {
	if err := corpus.EnsureLocal(ctx, cfg.Storage.CorpusPath, cfg.Storage.CorpusURL); err != nil {
		return nil, fmt.Errorf("failed to fetch corpus: %w", err)
	}
	corp, err := corpus.Load(cfg.Storage.CorpusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using mock embedder", zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	cache := embedding.NewCache(
		cfg.Storage.EmbeddingCachePath,
		filepath.Base(cfg.Embedding.ModelPath),
		cfg.Embedding.BatchSize,
		logger,
	)
	matrix, err := cache.LoadOrBuild(ctx, corp, embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare embedding cache: %w", err)
	}

	index, err := vector.NewIndex(matrix)
	if err != nil {
		return nil, fmt.Errorf("failed to build vector index: %w", err)
	}
	s, err := store.New(corp, embedder, index, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}

	components := &Components{
		Corpus:   corp,
		Embedder: embedder,
		Store:    s,
	}
	if !withOracle {
		return components, nil
	}

	orc, err := oracle.NewOpenAIOracle(cfg.Oracle.Model, cfg.Oracle.BaseURL, oracle.SamplingConfig{
		MaxNewTokens: cfg.Oracle.MaxNewTokens,
		DoSample:     cfg.Oracle.DoSample != nil && *cfg.Oracle.DoSample,
		Temperature:  cfg.Oracle.Temperature,
		TopP:         cfg.Oracle.TopP,
		Seed:         cfg.Oracle.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oracle: %w", err)
	}
	log, err := interaction.Open(cfg.Storage.InteractionLogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open interaction log: %w", err)
	}
	components.Log = log
	components.Engine = rag.NewEngine(s, orc, log, rag.Options{
		TopK:          cfg.Retrieval.DefaultTopK,
		OracleTimeout: time.Duration(cfg.Oracle.TimeoutSecs) * time.Second,
		MaxInFlight:   cfg.Oracle.MaxInFlight,
	}, logger)
	return components, nil
}

func printUsage() {
	fmt.Println(`kotae - Retrieval-augmented support answering

Usage:
  kotae server [flags]            Start the HTTP server
  kotae ask [flags] <question>    Answer a question using retrieved context
  kotae search [flags] <query>    Retrieve similar past support replies
  kotae embed [flags]             Build or validate the embedding cache
  kotae status [flags]            Show corpus/cache/log status
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to answer locally.
  --output string    Output format: text or json (default: text)

Search Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to search locally.
  --top-k int        Number of results (default: configured default_top_k)
  --output string    Output format: text or json (default: text)

Embed Flags:
  --config string    Config file path

Status Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to inspect local files.
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae ask "my screen is broken"
  kotae search --top-k 5 "refund"
  kotae search --output json "forgot password"
  kotae embed
  kotae status --output json`)
}
