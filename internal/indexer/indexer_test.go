package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cppgraph-mcp/internal/embedder"
	"github.com/dshills/cppgraph-mcp/internal/storage"
	"github.com/dshills/cppgraph-mcp/pkg/types"
)

const testDimension = 4

// mockEmbedder implements embedder.Embedder for testing
type mockEmbedder struct {
	mu        sync.Mutex
	dimension int
	width     int // width of returned vectors; differs from dimension to simulate a bad provider
	batchErr  error
	calls     int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dimension: testDimension, width: testDimension}
}

func (m *mockEmbedder) vector(text string) []float32 {
	v := make([]float32, m.width)
	for i := range v {
		v[i] = float32((len(text)+i)%7+1) / 7
	}
	return v
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return &embedder.Embedding{Vector: m.vector(req.Text), Dimension: m.width, Provider: "mock", Model: "test-v1"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batchErr != nil {
		return nil, m.batchErr
	}
	m.calls++

	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		embeddings[i] = &embedder.Embedding{
			Vector:    m.vector(text),
			Dimension: m.width,
			Provider:  "mock",
			Model:     "test-v1",
		}
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: embeddings, Provider: "mock", Model: "test-v1"}, nil
}

func (m *mockEmbedder) Dimension() int   { return m.dimension }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "test-v1" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) setWidth(w int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.width = w
}

func (m *mockEmbedder) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// setupTestStorage creates an in-memory SQLite database for testing
func setupTestStorage(t testing.TB) storage.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:", storage.WithDimension(testDimension))
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func setupIndexer(t testing.TB, opts ...Option) (*Indexer, storage.Storage, *mockEmbedder) {
	t.Helper()

	store := setupTestStorage(t)
	emb := newMockEmbedder()
	idx, err := New(store, emb, opts...)
	require.NoError(t, err)
	return idx, store, emb
}

// createTestFile creates a source file under dir
func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	return filePath
}

func ingest(t *testing.T, idx *Indexer, path, content string) IngestStatus {
	t.Helper()
	status, err := idx.Ingest(context.Background(), path, []byte(content), ComputeHash([]byte(content)), time.Now())
	require.NoError(t, err)
	return status
}

func entityNames(t *testing.T, store storage.Storage, path string) []string {
	t.Helper()
	ctx := context.Background()
	file, err := store.GetFileByPath(ctx, path)
	require.NoError(t, err)
	entities, err := store.ListEntitiesByFile(ctx, file.ID)
	require.NoError(t, err)

	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.QualifiedName)
	}
	sort.Strings(names)
	return names
}

func lookup(t *testing.T, store storage.Storage, qname string) *storage.Entity {
	t.Helper()
	ctx := context.Background()
	id, err := store.LookupEntityByQualifiedName(ctx, qname)
	require.NoError(t, err, qname)
	e, err := store.GetEntity(ctx, id)
	require.NoError(t, err)
	return e
}

const nestedSource = `namespace A {
class B {
  void c() {}
};
}
`

const callSource = `#include "gfx/canvas.h"
#include <vector>

struct W {
  void a() { b(); }
  void b() {}
};

void run(W& w) {
  helper();
  w.a();
}
`

// TestNew verifies the embedder and store widths must agree
func TestNew(t *testing.T) {
	store := setupTestStorage(t)

	idx, err := New(store, newMockEmbedder())
	require.NoError(t, err)
	assert.NotNil(t, idx)

	wide := newMockEmbedder()
	wide.dimension = 8
	_, err = New(store, wide)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

// TestIngest_NestedScopes verifies names and parent links follow lexical nesting
func TestIngest_NestedScopes(t *testing.T) {
	idx, store, _ := setupIndexer(t)

	status := ingest(t, idx, "/src/a.cpp", nestedSource)
	assert.Equal(t, IngestIndexed, status)
	assert.Equal(t, []string{"A", "A::B", "A::B::c"}, entityNames(t, store, "/src/a.cpp"))

	method := lookup(t, store, "A::B::c")
	class := lookup(t, store, "A::B")
	ns := lookup(t, store, "A")
	require.NotNil(t, method.ParentID)
	assert.Equal(t, class.ID, *method.ParentID)
	require.NotNil(t, class.ParentID)
	assert.Equal(t, ns.ID, *class.ParentID)
	assert.Nil(t, ns.ParentID)

	file, err := store.GetFileByPath(context.Background(), "/src/a.cpp")
	require.NoError(t, err)
	assert.Equal(t, types.FileIndexed, file.Status)
	assert.NotNil(t, file.LastIndexed)
	assert.Equal(t, ".cpp", file.FileType)
	assert.Equal(t, 5, file.LOC)
}

// TestIngest_UnchangedSkipped verifies an unchanged hash is skipped without embedding
func TestIngest_UnchangedSkipped(t *testing.T) {
	idx, _, emb := setupIndexer(t)

	assert.Equal(t, IngestIndexed, ingest(t, idx, "/src/a.cpp", nestedSource))
	calls := emb.getCallCount()

	assert.Equal(t, IngestSkipped, ingest(t, idx, "/src/a.cpp", nestedSource))
	assert.Equal(t, calls, emb.getCallCount())
}

// TestIngest_ChangedContentReplaces verifies a new hash replaces all derived data
func TestIngest_ChangedContentReplaces(t *testing.T) {
	idx, store, _ := setupIndexer(t)
	ctx := context.Background()

	ingest(t, idx, "/src/a.cpp", nestedSource)
	ingest(t, idx, "/src/a.cpp", "namespace Z {\nvoid only() {}\n}\n")

	assert.Equal(t, []string{"Z", "Z::only"}, entityNames(t, store, "/src/a.cpp"))
	_, err := store.LookupEntityByQualifiedName(ctx, "A::B::c")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 2, stats.Entities)
}

// TestIndexFile_Deterministic verifies re-indexing the same content yields the same sets
func TestIndexFile_Deterministic(t *testing.T) {
	idx, store, _ := setupIndexer(t)
	ctx := context.Background()

	ingest(t, idx, "/src/w.cpp", callSource)
	file, err := store.GetFileByPath(ctx, "/src/w.cpp")
	require.NoError(t, err)

	snapshot := func() ([]string, int, []string) {
		names := entityNames(t, store, "/src/w.cpp")
		chunks, err := store.ListChunksByFile(ctx, file.ID)
		require.NoError(t, err)

		var edges []string
		for _, name := range names {
			e := lookup(t, store, name)
			out, err := store.ListRelationships(ctx, e.ID, storage.Outgoing, nil, 100)
			require.NoError(t, err)
			for _, edge := range out {
				edges = append(edges, fmt.Sprintf("%s-%s->%s", name, edge.Kind, edge.Other.QualifiedName))
			}
		}
		sort.Strings(edges)
		return names, len(chunks), edges
	}

	names1, chunks1, edges1 := snapshot()
	for i := 0; i < 2; i++ {
		_, err := idx.IndexFile(ctx, file.Path, file.ID, []byte(callSource))
		require.NoError(t, err)
	}
	names2, chunks2, edges2 := snapshot()

	assert.Equal(t, names1, names2)
	assert.Equal(t, chunks1, chunks2)
	assert.Equal(t, edges1, edges2)
}

// TestIndexFile_ResolvesEdges verifies resolution order and dropping of unresolved edges
func TestIndexFile_ResolvesEdges(t *testing.T) {
	idx, store, _ := setupIndexer(t)
	ctx := context.Background()

	file := &storage.File{Path: "/src/w.cpp", ContentHash: "h", Status: types.FileIndexing}
	require.NoError(t, store.UpsertFile(ctx, file))

	result, err := idx.IndexFile(ctx, file.Path, file.ID, []byte(callSource))
	require.NoError(t, err)

	// W::a -> W::b (enclosing scope) and run -> W::a (trailing identifier);
	// helper() and both includes are dropped
	assert.Equal(t, 2, result.RelationshipsStored)
	assert.Equal(t, 3, result.RelationshipsDropped)

	b := lookup(t, store, "W::b")
	callers, err := store.ListRelationships(ctx, b.ID, storage.Incoming, []types.RelationKind{types.RelCalls}, 10)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "W::a", callers[0].Other.QualifiedName)
	assert.Equal(t, 5, callers[0].Line)

	a := lookup(t, store, "W::a")
	callers, err = store.ListRelationships(ctx, a.ID, storage.Incoming, nil, 10)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "run", callers[0].Other.QualifiedName)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Relationships)
}

// TestIndexFile_DropsSelfReferences verifies inherits and overrides edges
// that resolve back to their own source are not stored
func TestIndexFile_DropsSelfReferences(t *testing.T) {
	idx, store, _ := setupIndexer(t)
	ctx := context.Background()

	src := "struct D : ext::Base {\n  void run() override {}\n};\nstruct Node : detail::Node {\n};\n"
	file := &storage.File{Path: "/src/d.cpp", ContentHash: "d", Status: types.FileIndexing}
	require.NoError(t, store.UpsertFile(ctx, file))

	result, err := idx.IndexFile(ctx, file.Path, file.ID, []byte(src))
	require.NoError(t, err)
	assert.Zero(t, result.RelationshipsStored)
	assert.Equal(t, 3, result.RelationshipsDropped)

	for _, name := range []string{"D", "D::run", "Node"} {
		e := lookup(t, store, name)
		out, err := store.ListRelationships(ctx, e.ID, storage.Outgoing, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, out, name)
	}
}

// TestIndexFile_ReadersNeverSeeEmptyFile verifies a reader running alongside
// repeated re-indexing always observes the file's entities and chunks
func TestIndexFile_ReadersNeverSeeEmptyFile(t *testing.T) {
	idx, store, _ := setupIndexer(t)
	ctx := context.Background()

	ingest(t, idx, "/src/w.cpp", callSource)
	file, err := store.GetFileByPath(ctx, "/src/w.cpp")
	require.NoError(t, err)

	done := make(chan struct{})
	var reads, emptyEntities, emptyChunks int
	var readErr error

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			entities, err := store.ListEntitiesByFile(ctx, file.ID)
			if err != nil {
				readErr = err
				return
			}
			chunks, err := store.ListChunksByFile(ctx, file.ID)
			if err != nil {
				readErr = err
				return
			}
			reads++
			if len(entities) == 0 {
				emptyEntities++
			}
			if len(chunks) == 0 {
				emptyChunks++
			}
		}
	}()

	for i := 0; i < 25; i++ {
		_, err := idx.IndexFile(ctx, file.Path, file.ID, []byte(callSource))
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	require.NoError(t, readErr)
	assert.Positive(t, reads)
	assert.Zero(t, emptyEntities, "entities were observed mid-replace")
	assert.Zero(t, emptyChunks, "chunks were observed mid-replace")
}

// TestIngest_CrossFileEdges verifies targets resolve against entities of other files
func TestIngest_CrossFileEdges(t *testing.T) {
	idx, store, _ := setupIndexer(t)
	ctx := context.Background()

	ingest(t, idx, "/src/canvas.h", "namespace gfx {\nclass Canvas {\npublic:\n  void draw();\n};\n}\n")
	ingest(t, idx, "/src/button.h", "#include \"canvas.h\"\nnamespace gfx {\nclass Button : public Canvas {\n};\n}\n")

	button := lookup(t, store, "gfx::Button")
	bases, err := store.ListRelationships(ctx, button.ID, storage.Outgoing, []types.RelationKind{types.RelInherits}, 10)
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.Equal(t, "gfx::Canvas", bases[0].Other.QualifiedName)
	assert.Equal(t, "/src/canvas.h", bases[0].Other.FilePath)
}

// TestIngest_WrongWidthWritesNothing verifies a bad embedding width fails the file
// and keeps the previous data
func TestIngest_WrongWidthWritesNothing(t *testing.T) {
	idx, store, emb := setupIndexer(t)
	ctx := context.Background()

	ingest(t, idx, "/src/a.cpp", nestedSource)
	before, err := store.Stats(ctx)
	require.NoError(t, err)

	emb.setWidth(3)
	changed := "namespace Q {\nvoid q() {}\n}\n"
	_, err = idx.Ingest(ctx, "/src/a.cpp", []byte(changed), ComputeHash([]byte(changed)), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, embedder.ErrDimensionMismatch)

	assert.Equal(t, []string{"A", "A::B", "A::B::c"}, entityNames(t, store, "/src/a.cpp"))
	after, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Entities, after.Entities)
	assert.Equal(t, before.Chunks, after.Chunks)

	file, err := store.GetFileByPath(ctx, "/src/a.cpp")
	require.NoError(t, err)
	assert.Equal(t, types.FilePending, file.Status)
	require.NotNil(t, file.ParseError)
	assert.Contains(t, *file.ParseError, "dimension")

	// the failed hash must not make the file look current
	emb.setWidth(testDimension)
	status, err := idx.Ingest(ctx, "/src/a.cpp", []byte(changed), ComputeHash([]byte(changed)), time.Now())
	require.NoError(t, err)
	assert.Equal(t, IngestIndexed, status)
	assert.Equal(t, []string{"Q", "Q::q"}, entityNames(t, store, "/src/a.cpp"))
}

// TestIngest_EmbeddingFailure verifies a provider error leaves no new data
func TestIngest_EmbeddingFailure(t *testing.T) {
	idx, store, emb := setupIndexer(t)
	ctx := context.Background()

	emb.batchErr = embedder.ErrProviderFailed
	_, err := idx.Ingest(ctx, "/src/a.cpp", []byte(nestedSource), ComputeHash([]byte(nestedSource)), time.Now())
	assert.ErrorIs(t, err, embedder.ErrProviderFailed)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entities)
	assert.Zero(t, stats.Chunks)
	assert.Equal(t, 1, stats.FilesByStatus[types.FilePending])
}

// TestIngest_Fallback verifies unparseable content yields only windowed chunks
func TestIngest_Fallback(t *testing.T) {
	idx, store, _ := setupIndexer(t)
	ctx := context.Background()

	var content []byte
	for i := 0; i < 20; i++ {
		content = append(content, []byte("int value = compute_something_long();\n")...)
	}
	content = append(content, 0xff)

	status, err := idx.Ingest(ctx, "/src/bad.cpp", content, ComputeHash(content), time.Now())
	require.NoError(t, err)
	assert.Equal(t, IngestFallback, status)

	file, err := store.GetFileByPath(ctx, "/src/bad.cpp")
	require.NoError(t, err)
	assert.Equal(t, types.FileIndexed, file.Status)
	require.NotNil(t, file.ParseError)

	entities, err := store.ListEntitiesByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, entities)

	chunks, err := store.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, types.ChunkMixed, c.Kind)
		assert.Nil(t, c.EntityID)
	}
}

// TestIndexFiles verifies statistics, skipping and per-file failures
func TestIndexFiles(t *testing.T) {
	idx, store, _ := setupIndexer(t, WithWorkers(2), WithBatchSize(2))
	dir := t.TempDir()
	ctx := context.Background()

	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, createTestFile(t, dir, fmt.Sprintf("f%d.cpp", i),
			fmt.Sprintf("namespace n%d {\nint f%d() { return %d; }\n}\n", i, i, i)))
	}
	missing := filepath.Join(dir, "missing.cpp")

	stats, err := idx.IndexFiles(ctx, append(paths, missing))
	require.NoError(t, err)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 5, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 10, stats.EntitiesExtracted)
	assert.Positive(t, stats.ChunksCreated)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "missing.cpp")

	again, err := idx.IndexFiles(ctx, paths)
	require.NoError(t, err)
	assert.Equal(t, 5, again.FilesSkipped)
	assert.Zero(t, again.FilesIndexed)
	assert.NotEqual(t, stats.RunID, again.RunID)

	_, err = store.GetFileByPath(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIndexFiles_Canceled verifies cancellation aborts the run
func TestIndexFiles_Canceled(t *testing.T) {
	idx, _, _ := setupIndexer(t)
	dir := t.TempDir()
	path := createTestFile(t, dir, "a.cpp", nestedSource)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.IndexFiles(ctx, []string{path})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestIndexDirectory verifies discovery, exclusion and removal of deleted files
func TestIndexDirectory(t *testing.T) {
	idx, store, _ := setupIndexer(t, WithDiscoverOptions(DiscoverOptions{
		Extensions: DefaultExtensions,
		Exclude:    DefaultExcludes,
	}))
	ctx := context.Background()
	dir := t.TempDir()

	keep := createTestFile(t, dir, "src/keep.cpp", "void keep() {}\n")
	gone := createTestFile(t, dir, "src/gone.hpp", "void gone();\n")
	createTestFile(t, dir, "build/gen.cpp", "void generated() {}\n")
	createTestFile(t, dir, "README.md", "# readme\n")

	stats, err := idx.IndexDirectory(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)

	require.NoError(t, os.Remove(gone))
	stats, err = idx.IndexDirectory(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, 1, stats.FilesRemoved)

	_, err = store.GetFileByPath(ctx, gone)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetFileByPath(ctx, keep)
	assert.NoError(t, err)
	_, err = store.LookupEntityByQualifiedName(ctx, "gone")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIndexDirectory_Overlapping verifies a second directory run is refused
func TestIndexDirectory_Overlapping(t *testing.T) {
	idx, _, _ := setupIndexer(t)
	dir := t.TempDir()
	createTestFile(t, dir, "a.cpp", nestedSource)

	require.True(t, idx.runLock.TryAcquire())
	_, err := idx.IndexDirectory(context.Background(), []string{dir})
	assert.ErrorIs(t, err, ErrIndexingInProgress)
	idx.runLock.Release()

	_, err = idx.IndexDirectory(context.Background(), []string{dir})
	assert.NoError(t, err)
	assert.False(t, idx.runLock.Held())
}

// TestIndexFiles_OverlappingRuns verifies concurrent runs over the same files stay consistent
func TestIndexFiles_OverlappingRuns(t *testing.T) {
	idx, store, _ := setupIndexer(t, WithWorkers(4), WithBatchSize(1))
	dir := t.TempDir()
	ctx := context.Background()

	var paths []string
	for i := 0; i < 8; i++ {
		paths = append(paths, createTestFile(t, dir, fmt.Sprintf("f%d.cpp", i),
			fmt.Sprintf("struct S%d {\n  void m() {}\n};\n", i)))
	}

	var wg sync.WaitGroup
	results := make([]*Statistics, 3)
	for r := range results {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			stats, err := idx.IndexFiles(ctx, paths)
			assert.NoError(t, err)
			results[r] = stats
		}(r)
	}
	wg.Wait()

	indexed := 0
	for _, s := range results {
		require.NotNil(t, s)
		assert.Zero(t, s.FilesFailed)
		indexed += s.FilesIndexed
	}
	assert.Equal(t, len(paths), indexed, "each file is indexed exactly once across runs")

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, st.Entities)
	assert.Zero(t, idx.paths.size())
}

// TestRemoveFile verifies removal cascades and unknown paths are ignored
func TestRemoveFile(t *testing.T) {
	idx, store, _ := setupIndexer(t)
	ctx := context.Background()

	ingest(t, idx, "/src/w.cpp", callSource)
	require.NoError(t, idx.RemoveFile(ctx, "/src/w.cpp"))
	require.NoError(t, idx.RemoveFile(ctx, "/src/unknown.cpp"))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Files)
	assert.Zero(t, stats.Entities)
	assert.Zero(t, stats.Relationships)
	assert.Zero(t, stats.Chunks)
}

// TestComputeHash verifies hex SHA-256 hashing
func TestComputeHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(nil))
	assert.Len(t, ComputeHash([]byte("x")), 64)
	assert.NotEqual(t, ComputeHash([]byte("a")), ComputeHash([]byte("b")))
}

// TestCountLines verifies line counting with and without a trailing newline
func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(nil))
	assert.Equal(t, 1, countLines([]byte("a")))
	assert.Equal(t, 1, countLines([]byte("a\n")))
	assert.Equal(t, 2, countLines([]byte("a\nb")))
}

// TestSummarizeErrors verifies parse errors are capped in the stored message
func TestSummarizeErrors(t *testing.T) {
	var errs []types.ParseError
	for i := 1; i <= 7; i++ {
		errs = append(errs, types.ParseError{Line: i, Column: 2, Message: "syntax error"})
	}
	got := summarizeErrors(errs)
	assert.Contains(t, got, "1:2: syntax error")
	assert.Contains(t, got, "and 2 more")
	assert.NotContains(t, got, "6:2")

	assert.Equal(t, "boom", summarizeErrors([]types.ParseError{{Message: "boom"}}))
}

// TestNonEmptyChunks verifies blank chunks are never embedded
func TestNonEmptyChunks(t *testing.T) {
	chunks := []types.Chunk{{Content: "a"}, {Content: "  \n"}, {Content: "b"}}
	got := nonEmptyChunks(chunks)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].Content)
}

// errLookup fails every lookup
type errLookup struct{}

func (errLookup) LookupEntityByQualifiedName(context.Context, string) (int64, error) {
	return 0, errors.New("store down")
}

func (errLookup) LookupEntityBySimpleName(context.Context, string) (int64, error) {
	return 0, errors.New("store down")
}

// TestResolver_StoreErrors verifies store failures are returned, not dropped
func TestResolver_StoreErrors(t *testing.T) {
	r := NewResolver()
	_, ok, err := r.ResolveTo(context.Background(), errLookup{}, NewFileMap(), "f", "g")
	assert.False(t, ok)
	assert.Error(t, err)
}
