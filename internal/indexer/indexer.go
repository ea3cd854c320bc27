package indexer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/cppgraph-mcp/internal/embedder"
	"github.com/dshills/cppgraph-mcp/internal/parser"
	"github.com/dshills/cppgraph-mcp/internal/storage"
	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// ErrIndexingInProgress is returned when a directory run is already active
var ErrIndexingInProgress = errors.New("indexing already in progress")

const (
	// DefaultBatchSize is the number of files handed to one worker goroutine
	DefaultBatchSize = 10

	// maxErrorSummary caps the parse errors kept in a file's parse_error
	maxErrorSummary = 5
)

// IngestStatus reports what Ingest did with a file
type IngestStatus string

const (
	// IngestIndexed means the file was parsed and fully replaced
	IngestIndexed IngestStatus = "indexed"
	// IngestFallback means the file was replaced with windowed chunks only
	IngestFallback IngestStatus = "fallback"
	// IngestSkipped means the stored content hash already matched
	IngestSkipped IngestStatus = "skipped"
)

// Indexer coordinates the pipeline: parse -> embed -> resolve -> store
type Indexer struct {
	parser   *parser.Parser
	embedder embedder.Embedder
	storage  storage.Storage
	logger   *zap.Logger

	// Worker pool configuration
	workers   int
	batchSize int
	discover  DiscoverOptions

	paths   *pathLocks
	runLock IndexLock
}

// Option configures an Indexer
type Option func(*Indexer)

// WithWorkers sets the number of files processed concurrently
func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithBatchSize sets the number of files per batch
func WithBatchSize(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithDiscoverOptions sets the extensions and exclusions used by IndexDirectory
func WithDiscoverOptions(opts DiscoverOptions) Option {
	return func(idx *Indexer) { idx.discover = opts }
}

// WithParser replaces the default parser
func WithParser(p *parser.Parser) Option {
	return func(idx *Indexer) {
		if p != nil {
			idx.parser = p
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// Statistics contains statistics about one indexing run
type Statistics struct {
	RunID                string
	FilesIndexed         int
	FilesSkipped         int
	FilesFallback        int
	FilesFailed          int
	FilesRemoved         int
	EntitiesExtracted    int
	RelationshipsStored  int
	RelationshipsDropped int
	ChunksCreated        int
	Duration             time.Duration
	ErrorMessages        []string
}

// FileResult summarises what was written for one file
type FileResult struct {
	Path                 string
	FileID               int64
	Fallback             bool
	Entities             int
	RelationshipsStored  int
	RelationshipsDropped int
	Chunks               int
	ParseErrors          int
}

// New creates an Indexer. The embedder's dimension must equal the store's.
func New(store storage.Storage, emb embedder.Embedder, opts ...Option) (*Indexer, error) {
	if emb.Dimension() != store.Dimension() {
		return nil, fmt.Errorf("%w: embedder %s/%s produces %d values, store expects %d",
			storage.ErrDimensionMismatch, emb.Provider(), emb.Model(), emb.Dimension(), store.Dimension())
	}

	idx := &Indexer{
		parser:    parser.New(),
		embedder:  emb,
		storage:   store,
		logger:    zap.NewNop(),
		workers:   runtime.NumCPU(),
		batchSize: DefaultBatchSize,
		paths:     newPathLocks(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Ingest stores one file's content. It upserts the file row as indexing,
// skips the work when the stored hash matches an indexed file, and
// otherwise replaces everything derived from the file.
func (idx *Indexer) Ingest(ctx context.Context, path string, content []byte, hash string, mtime time.Time) (IngestStatus, error) {
	_, status, err := idx.ingest(ctx, path, content, hash, mtime, NewResolver())
	return status, err
}

func (idx *Indexer) ingest(ctx context.Context, path string, content []byte, hash string, mtime time.Time, resolver *Resolver) (*FileResult, IngestStatus, error) {
	unlock := idx.paths.Lock(path)
	defer unlock()

	existing, err := idx.storage.GetFileByPath(ctx, path)
	switch {
	case err == nil:
		if existing.ContentHash == hash && existing.Status == types.FileIndexed {
			filesTotal.WithLabelValues(outcomeSkipped).Inc()
			return nil, IngestSkipped, nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, "", fmt.Errorf("failed to look up file: %w", err)
	}

	file := &storage.File{
		Path:         path,
		ContentHash:  hash,
		FileType:     strings.ToLower(filepath.Ext(path)),
		LOC:          countLines(content),
		LastModified: mtime,
		Status:       types.FileIndexing,
	}
	if err := idx.storage.UpsertFile(ctx, file); err != nil {
		return nil, "", err
	}

	start := time.Now()
	result, err := idx.indexFile(ctx, path, file.ID, content, resolver)
	fileDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		filesTotal.WithLabelValues(outcomeFailed).Inc()
		msg := err.Error()
		// leave the row retryable; the hash alone must not make it look indexed
		if serr := idx.storage.SetFileStatus(context.WithoutCancel(ctx), file.ID, types.FilePending, &msg); serr != nil {
			idx.logger.Warn("failed to record indexing failure",
				zap.String("file", path),
				zap.Error(serr))
		}
		return nil, "", err
	}

	if result.Fallback {
		filesTotal.WithLabelValues(outcomeFallback).Inc()
		return result, IngestFallback, nil
	}
	filesTotal.WithLabelValues(outcomeIndexed).Inc()
	return result, IngestIndexed, nil
}

// IndexFile replaces everything derived from fileID with the result of
// parsing content. The replacement is one transaction: on any failure
// nothing of the new pass is visible and the previous data stays.
func (idx *Indexer) IndexFile(ctx context.Context, path string, fileID int64, content []byte) (*FileResult, error) {
	unlock := idx.paths.Lock(path)
	defer unlock()
	return idx.indexFile(ctx, path, fileID, content, NewResolver())
}

func (idx *Indexer) indexFile(ctx context.Context, path string, fileID int64, content []byte, resolver *Resolver) (*FileResult, error) {
	result, err := idx.parser.ParseWithFallback(ctx, path, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Embedding happens before the transaction so the write lock is held briefly
	chunks := nonEmptyChunks(result.Chunks)
	vectors, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.DeleteFileData(ctx, fileID); err != nil {
		return nil, err
	}

	fileMap, err := writeEntities(ctx, tx, fileID, result.Entities)
	if err != nil {
		return nil, err
	}

	stored, dropped, err := idx.writeRelationships(ctx, tx, fileMap, result.Relationships, resolver)
	if err != nil {
		return nil, err
	}

	if err := writeChunks(ctx, tx, fileID, fileMap, chunks, vectors); err != nil {
		return nil, err
	}

	var parseErr *string
	if result.HasErrors() {
		msg := summarizeErrors(result.Errors)
		parseErr = &msg
	}
	if err := tx.SetFileStatus(ctx, fileID, types.FileIndexed, parseErr); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	resolver.Remember(fileMap)

	idx.logger.Debug("indexed file",
		zap.String("file", path),
		zap.Bool("fallback", result.Fallback),
		zap.Int("entities", len(result.Entities)),
		zap.Int("edges_stored", stored),
		zap.Int("edges_dropped", dropped),
		zap.Int("chunks", len(chunks)))

	return &FileResult{
		Path:                 path,
		FileID:               fileID,
		Fallback:             result.Fallback,
		Entities:             len(result.Entities),
		RelationshipsStored:  stored,
		RelationshipsDropped: dropped,
		Chunks:               len(chunks),
		ParseErrors:          len(result.Errors),
	}, nil
}

// embedChunks returns one vector per chunk, each of the store's width
func (idx *Indexer) embedChunks(ctx context.Context, chunks []types.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if err := embedder.CheckBatch(resp, len(texts), idx.storage.Dimension()); err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Vector
	}
	return vectors, nil
}

// writeEntities inserts a file's entities and links parents found in the same file
func writeEntities(ctx context.Context, tx storage.Tx, fileID int64, entities []types.Entity) (*FileMap, error) {
	m := NewFileMap()
	ids := make([]int64, len(entities))

	for i := range entities {
		e := &entities[i]
		rec := &storage.Entity{
			FileID:        fileID,
			Kind:          e.Kind,
			QualifiedName: e.QualifiedName,
			SimpleName:    e.SimpleName,
			Signature:     e.Signature,
			StartLine:     e.StartLine,
			EndLine:       e.EndLine,
			Complexity:    e.Complexity,
			IsPublic:      e.IsPublic,
			Metadata:      e.Metadata,
		}
		if err := tx.InsertEntity(ctx, rec); err != nil {
			return nil, err
		}
		ids[i] = rec.ID
		m.Add(e, rec.ID)
	}

	for i := range entities {
		parent := entities[i].ParentName()
		if parent == "" {
			continue
		}
		if pid, ok := m.Qualified(parent); ok && pid != ids[i] {
			if err := tx.SetEntityParent(ctx, ids[i], pid); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// writeRelationships resolves and stores edges; unresolved ones are dropped
func (idx *Indexer) writeRelationships(ctx context.Context, tx storage.Tx, m *FileMap, rels []types.Relationship, resolver *Resolver) (int, int, error) {
	var stored, dropped int

	drop := func(rel *types.Relationship, reason string) {
		dropped++
		edgesTotal.WithLabelValues(string(rel.Kind), "dropped").Inc()
		idx.logger.Debug("dropped relationship",
			zap.String("kind", string(rel.Kind)),
			zap.String("from", rel.From),
			zap.String("to", rel.To),
			zap.String("reason", reason))
	}

	for i := range rels {
		rel := &rels[i]
		if rel.Kind == types.RelIncludes || rel.FileLevel() {
			drop(rel, "file-level")
			continue
		}

		fromID, ok, err := resolver.ResolveFrom(ctx, tx, m, rel.From)
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			drop(rel, "unresolved source")
			continue
		}

		toID, ok, err := resolver.ResolveTo(ctx, tx, m, rel.From, rel.To)
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			drop(rel, "unresolved target")
			continue
		}
		if fromID == toID && (rel.Kind == types.RelInherits || rel.Kind == types.RelOverrides) {
			drop(rel, "self reference")
			continue
		}

		inserted, err := tx.InsertRelationship(ctx, &storage.Relationship{
			FromEntityID: fromID,
			ToEntityID:   toID,
			Kind:         rel.Kind,
			Context:      rel.Context,
			Line:         rel.Line,
		})
		if err != nil {
			return 0, 0, err
		}
		if inserted {
			stored++
			edgesTotal.WithLabelValues(string(rel.Kind), "stored").Inc()
		} else {
			edgesTotal.WithLabelValues(string(rel.Kind), "ignored").Inc()
		}
	}

	return stored, dropped, nil
}

// writeChunks stores chunks with their vectors. Entity linkage only uses
// entities of this file.
func writeChunks(ctx context.Context, tx storage.Tx, fileID int64, m *FileMap, chunks []types.Chunk, vectors [][]float32) error {
	for i := range chunks {
		c := &chunks[i]

		var entityID *int64
		if c.EntityName != "" {
			if id, ok := m.Qualified(c.EntityName); ok {
				entityID = &id
			}
		}

		rec := &storage.Chunk{
			FileID:    fileID,
			EntityID:  entityID,
			Kind:      c.Kind,
			Content:   c.Content,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Embedding: vectors[i],
			Metadata:  c.Metadata,
		}
		if err := tx.InsertChunk(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// IndexFiles indexes the given paths in fixed-size batches with bounded
// concurrency. Unchanged files are skipped. A failing file is recorded in
// ErrorMessages and never aborts the run; only cancellation does.
func (idx *Indexer) IndexFiles(ctx context.Context, paths []string) (*Statistics, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	logger := idx.logger.With(zap.String("run_id", runID))
	resolver := NewResolver()

	stats := &Statistics{
		RunID:         runID,
		ErrorMessages: make([]string, 0),
	}

	var (
		indexed, skipped, fallback, failed atomic.Int64
		entities, edges, dropped, chunks   atomic.Int64
		mu                                 sync.Mutex // Protect stats.ErrorMessages
	)

	semaphore := make(chan struct{}, idx.workers)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < len(paths); i += idx.batchSize {
		end := min(i+idx.batchSize, len(paths))
		batch := paths[i:end]

		g.Go(func() error {
			for _, path := range batch {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case semaphore <- struct{}{}:
				}

				result, status, err := idx.indexPath(gctx, path, resolver)
				<-semaphore

				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failed.Add(1)
					mu.Lock()
					stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
					mu.Unlock()
					logger.Warn("failed to index file", zap.String("file", path), zap.Error(err))
					continue
				}

				switch status {
				case IngestSkipped:
					skipped.Add(1)
					continue
				case IngestFallback:
					fallback.Add(1)
				default:
					indexed.Add(1)
				}
				entities.Add(int64(result.Entities))
				edges.Add(int64(result.RelationshipsStored))
				dropped.Add(int64(result.RelationshipsDropped))
				chunks.Add(int64(result.Chunks))
			}
			return nil
		})
	}

	err := g.Wait()

	stats.FilesIndexed = int(indexed.Load())
	stats.FilesSkipped = int(skipped.Load())
	stats.FilesFallback = int(fallback.Load())
	stats.FilesFailed = int(failed.Load())
	stats.EntitiesExtracted = int(entities.Load())
	stats.RelationshipsStored = int(edges.Load())
	stats.RelationshipsDropped = int(dropped.Load())
	stats.ChunksCreated = int(chunks.Load())
	stats.Duration = time.Since(startTime)

	if err != nil {
		return stats, err
	}

	logger.Info("indexing run finished",
		zap.Int("files", len(paths)),
		zap.Int("indexed", stats.FilesIndexed),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("fallback", stats.FilesFallback),
		zap.Int("failed", stats.FilesFailed),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}

// indexPath reads a file from disk and ingests it
func (idx *Indexer) indexPath(ctx context.Context, path string, resolver *Resolver) (*FileResult, IngestStatus, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return idx.ingest(ctx, path, content, ComputeHash(content), info.ModTime(), resolver)
}

// IndexDirectory discovers source files under roots, indexes them and
// removes stored files under those roots that no longer exist. Only one
// directory run may be active; a second caller gets ErrIndexingInProgress.
func (idx *Indexer) IndexDirectory(ctx context.Context, roots []string) (*Statistics, error) {
	if !idx.runLock.TryAcquire() {
		runsTotal.WithLabelValues("busy").Inc()
		return nil, ErrIndexingInProgress
	}
	defer idx.runLock.Release()

	absRoots := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %q: %w", root, err)
		}
		absRoots = append(absRoots, abs)
	}

	paths, err := Discover(absRoots, idx.discover)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	stats, err := idx.IndexFiles(ctx, paths)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return stats, fmt.Errorf("failed to index files: %w", err)
	}

	removed, err := idx.removeMissing(ctx, absRoots, paths)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return stats, fmt.Errorf("failed to remove deleted files: %w", err)
	}
	stats.FilesRemoved = removed

	runsTotal.WithLabelValues("ok").Inc()
	return stats, nil
}

// removeMissing deletes stored files under roots that were not discovered
func (idx *Indexer) removeMissing(ctx context.Context, roots []string, discovered []string) (int, error) {
	present := make(map[string]struct{}, len(discovered))
	for _, p := range discovered {
		present[p] = struct{}{}
	}

	files, err := idx.storage.ListFiles(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		if _, ok := present[f.Path]; ok || !underRoots(f.Path, roots) {
			continue
		}
		if err := idx.RemoveFile(ctx, f.Path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RemoveFile deletes a file and everything derived from it. Unknown paths
// are ignored.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	unlock := idx.paths.Lock(path)
	defer unlock()

	file, err := idx.storage.GetFileByPath(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := idx.storage.DeleteFile(ctx, file.ID); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	filesTotal.WithLabelValues(outcomeRemoved).Inc()
	idx.logger.Debug("removed file", zap.String("file", path))
	return nil
}

// ComputeHash returns the hex SHA-256 of content
func ComputeHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func nonEmptyChunks(chunks []types.Chunk) []types.Chunk {
	out := make([]types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) != "" {
			out = append(out, c)
		}
	}
	return out
}

func summarizeErrors(errs []types.ParseError) string {
	parts := make([]string, 0, min(len(errs), maxErrorSummary))
	for i := range errs {
		if i == maxErrorSummary {
			parts = append(parts, fmt.Sprintf("and %d more", len(errs)-maxErrorSummary))
			break
		}
		e := &errs[i]
		if e.Line > 0 {
			parts = append(parts, fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message))
		} else {
			parts = append(parts, e.Message)
		}
	}
	return strings.Join(parts, "; ")
}
