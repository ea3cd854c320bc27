package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/cppgraph-mcp/internal/config"
	"github.com/dshills/cppgraph-mcp/internal/embedder"
	"github.com/dshills/cppgraph-mcp/internal/indexer"
	"github.com/dshills/cppgraph-mcp/internal/parser"
	"github.com/dshills/cppgraph-mcp/internal/query"
	"github.com/dshills/cppgraph-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "cppgraph-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	indexer *indexer.Indexer
	engine  *query.Engine
	logger  *zap.Logger
	roots   []string
	closers []func() error
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRoots sets the directories index_codebase uses when called without paths
func WithRoots(roots []string) Option {
	return func(s *Server) {
		s.roots = roots
	}
}

// New creates a server over an existing indexer and query engine
func New(idx *indexer.Indexer, engine *query.Engine, opts ...Option) *Server {
	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		indexer: idx,
		engine:  engine,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

// Open builds the storage, embedder, indexer and query engine described by
// cfg and returns a server over them. Close releases them.
func Open(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Endpoint:  cfg.Embedding.Endpoint,
		Timeout:   cfg.Embedding.Timeout,
		CacheSize: cfg.Embedding.CacheSize,
		Logger:    logger.Named("embedder"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	store, err := OpenStorage(cfg.Storage.DatabasePath, emb)
	if err != nil {
		_ = emb.Close()
		return nil, err
	}

	idx, err := indexer.New(store, emb,
		indexer.WithWorkers(cfg.Index.Workers),
		indexer.WithBatchSize(cfg.Index.BatchSize),
		indexer.WithParser(parser.New(parser.WithMaxFileSize(cfg.Index.MaxFileSize()), parser.WithLogger(logger.Named("parser")))),
		indexer.WithDiscoverOptions(indexer.DiscoverOptions{
			Extensions:  cfg.Index.Extensions,
			Exclude:     cfg.Index.Exclude,
			MaxFileSize: cfg.Index.MaxFileSize(),
		}),
		indexer.WithLogger(logger.Named("indexer")),
	)
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}

	engine := query.New(store, emb,
		query.WithLogger(logger.Named("query")),
		query.WithTimeout(cfg.Query.Timeout),
		query.WithCacheSize(cfg.Query.CacheSize),
		query.WithCacheTTL(cfg.Query.CacheTTL),
	)

	s := New(idx, engine, WithLogger(logger), WithRoots(cfg.Index.Paths))
	s.closers = []func() error{store.Close, emb.Close}
	return s, nil
}

// OpenStorage opens the database at dbPath sized for emb's vectors,
// creating the parent directory if needed
func OpenStorage(dbPath string, emb embedder.Embedder) (*storage.SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(dbPath,
		storage.WithDimension(emb.Dimension()),
		storage.WithEmbeddingModel(emb.Provider(), emb.Model()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// Indexer returns the server's indexer
func (s *Server) Indexer() *indexer.Indexer { return s.indexer }

// Engine returns the server's query engine
func (s *Server) Engine() *query.Engine { return s.engine }

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Close releases the resources opened by Open
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(findSymbolTool(), s.handleFindSymbol)
	s.mcp.AddTool(traceDependenciesTool(), s.handleTraceDependencies)
	s.mcp.AddTool(getContextTool(), s.handleGetContext)
	s.mcp.AddTool(explainCodeTool(), s.handleExplainCode)
	s.mcp.AddTool(findCodeLocationTool(), s.handleFindCodeLocation)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
