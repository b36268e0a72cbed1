// Package main is the ragcore CLI entry point.
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
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cortexlayer/ragcore/internal/cli"
	"github.com/cortexlayer/ragcore/internal/config"
	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/server"
	"github.com/cortexlayer/ragcore/internal/storage"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ragcore/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists; when neither exists, defaults plus environment are used.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
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
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
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
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("ragcore version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and wires every component. It exits on failure.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	if resolvedConfigPath == "" {
		logger.Info("no config file found; using defaults and environment")
	} else {
		logger.Info("config loaded", zap.String("config_path", resolvedConfigPath), zap.Bool("debug", debugMode))
	}

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	srv := server.NewServer(
		components.Pipeline,
		components.Indexer,
		components.Store,
		components.Catalog,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	clientID := fs.String("client", "", "tenant id (required)")
	file := fs.String("file", "", "file to ingest: .json chunk list or ingest request, anything else is read as text (required)")
	documentID := fs.String("doc", "", "document id (default: generated)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if *clientID == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: ragcore ingest -client <id> -file <path> [-doc <id>] [-output text|json]")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	docID := defaultDocumentID(*file, *documentID)
	usage, err := components.Indexer.IndexFile(context.Background(), *clientID, *file, docID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteIngest(os.Stdout, docID, usage, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// defaultDocumentID names a text file's document after its base name. JSON files keep
// their own document_id (or get a generated one) unless -doc is given.
func defaultDocumentID(path, flagValue string) string {
	if flagValue != "" || strings.EqualFold(filepath.Ext(path), ".json") {
		return flagValue
	}
	return filepath.Base(path)
}

// printQueryUsage prints query subcommand usage.
func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: ragcore query -client <id> [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces. Quotes are optional.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Plans pick the generation tier: starter uses the cheap model, growth retries once on the
premium model, scale goes straight to premium.

Examples:
  ragcore query -client acme how do I reset my password
  ragcore query -client acme -plan scale "what is the refund window?"
  ragcore query -client acme -server http://localhost:8080 -output json refund policy
`)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. The flag package stops at
// the first non-flag argument.
func reorderArgs(args []string) []string {
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

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = run the pipeline in-process)")
	clientID := fs.String("client", "", "tenant id (required)")
	plan := fs.String("plan", models.PlanStarter, "plan type: starter, growth or scale")
	topK := fs.Int("top-k", models.DefaultTopK, "chunks to retrieve")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if *clientID == "" || fs.NArg() < 1 {
		printQueryUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := &models.QueryRequest{Query: buildQuery(fs.Args()), Plan: *plan, TopK: *topK}
	req.Normalize()

	var result *models.PipelineResult
	if *serverURL != "" {
		result, err = queryViaHTTP(*serverURL, *clientID, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		result = components.Pipeline.Run(context.Background(), *clientID, req.Query, req.Plan, req.TopK)
	}
	if err := cli.WriteResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func tenantURL(serverURL, clientID, path string) string {
	return strings.TrimRight(serverURL, "/") + "/api/v1/tenants/" + url.PathEscape(clientID) + path
}

func queryViaHTTP(serverURL, clientID string, req *models.QueryRequest) (*models.PipelineResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(tenantURL(serverURL, clientID, "/query"), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.PipelineResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read local storage)")
	clientID := fs.String("client", "", "tenant id (required)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if *clientID == "" {
		fmt.Fprintln(os.Stderr, "Usage: ragcore status -client <id> [-server <url>] [-output text|json]")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status *cli.Status
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL, *clientID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		status, err = localStatus(context.Background(), cfg, components, *clientID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func localStatus(ctx context.Context, cfg *config.Config, c *Components, clientID string) (*cli.Status, error) {
	stats, err := c.Store.Stats(ctx, clientID)
	if err != nil {
		return nil, err
	}
	docCount, err := c.Catalog.CountDocuments(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	chunkCount, err := c.Catalog.CountChunks(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	status := &cli.Status{Index: stats, Documents: docCount, Chunks: chunkCount}
	if diskBytes, err := storage.DiskUsageBytes(append(storage.CatalogFiles(cfg.Storage.CatalogPath), cfg.Storage.MirrorDir)...); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status, nil
}

func statusViaHTTP(serverURL, clientID string) (*cli.Status, error) {
	resp, err := http.Get(tenantURL(serverURL, clientID, "/status"))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s cli.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// writeDefaultConfig saves the built-in defaults to path. Secrets are left empty so they keep
// coming from the environment. An existing file is only replaced when force is set.
func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return config.Save(path, cfg)
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*configPath, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *configPath)
}

func printUsage() {
	fmt.Print(`ragcore - multi-tenant retrieval-augmented answering

Usage:
  ragcore <command> [flags]

Commands:
  server    Start the HTTP API server (metrics on /metrics)
  ingest    Embed and index a file for a tenant
  query     Answer a question from a tenant's documents
  status    Show a tenant's index and catalog counts
  watch     Ingest files dropped into a directory for a tenant
  init      Write a config file with the built-in defaults
  version   Print version
  help      Show this help

Configuration is read from -config (default ` + defaultConfigPath + `), or ./config.yaml
when present. API keys come from OPENAI_API_KEY, GROQ_API_KEY, DO_SPACES_KEY and
DO_SPACES_SECRET when the file leaves them empty. Set ` + config.MockEnvVar + `=true to use
deterministic mock embeddings and skip remote uploads.

Examples:
  ragcore server -debug
  ragcore ingest -client acme -file handbook.txt
  ragcore query -client acme -plan growth how long is the warranty
  ragcore status -client acme -output json
  ragcore watch -client acme -dir ./inbox/acme
  ragcore init -config ./config.yaml
`)
}
