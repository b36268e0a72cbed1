package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/cortexlayer/ragcore/internal/extract"
	"github.com/cortexlayer/ragcore/internal/fileid"
	"github.com/cortexlayer/ragcore/internal/storage"
	"github.com/cortexlayer/ragcore/internal/watcher"
)

// inboxHandler ingests each settled file under a content-derived document ID. Files whose ID
// the catalog already holds are skipped: the index is append-only, so re-ingesting unchanged
// bytes would only duplicate vectors.
func inboxHandler(c *Components, clientID string, logger *zap.Logger) watcher.Handler {
	return func(ctx context.Context, path string) {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("inbox read failed", zap.String("path", path), zap.Error(err))
			return
		}
		docID := fileid.FromContent(path, content)
		if _, err := c.Catalog.GetDocument(ctx, clientID, docID); err == nil {
			logger.Debug("inbox file already indexed", zap.String("path", path), zap.String("document_id", docID))
			return
		} else if !errors.Is(err, storage.ErrDocumentNotFound) {
			logger.Warn("inbox catalog lookup failed", zap.String("path", path), zap.Error(err))
			return
		}
		usage, err := c.Indexer.IndexFile(ctx, clientID, path, docID)
		if err != nil {
			logger.Error("inbox ingest failed", zap.String("path", path), zap.Error(err))
			return
		}
		logger.Info("inbox file indexed",
			zap.String("client_id", clientID),
			zap.String("path", path),
			zap.String("document_id", docID),
			zap.Int("tokens", usage.Tokens),
		)
	}
}

// inboxExtensions is every format IndexFile can read.
func inboxExtensions() []string {
	return append([]string{".txt", ".md", ".rst", ".json"}, extract.Formats()...)
}

func parseExtensions(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	clientID := fs.String("client", "", "tenant id (required)")
	dir := fs.String("dir", "", "directory to watch (required)")
	exts := fs.String("ext", strings.Join(inboxExtensions(), ","), "comma-separated extensions to ingest")
	recursive := fs.Bool("recursive", true, "also watch subdirectories")
	_ = fs.Parse(os.Args[2:])

	if *clientID == "" || *dir == "" {
		fmt.Fprintln(os.Stderr, "Usage: ragcore watch -client <id> -dir <path> [-ext .pdf,.txt] [-recursive=false]")
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watcher.New(*dir, inboxHandler(components, *clientID, logger),
		watcher.WithLogger(logger),
		watcher.WithExtensions(parseExtensions(*exts)...),
		watcher.WithRecursive(*recursive),
	)
	if err := w.Run(ctx); err != nil {
		logger.Error("watch failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Shutting down...")
}
