package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

const testDim = 4

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:", WithDimension(testDim))
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func createFile(t *testing.T, s Storage, path string) *File {
	t.Helper()
	file := &File{Path: path, ContentHash: "hash-" + path, FileType: filepath.Ext(path), LOC: 10}
	require.NoError(t, s.UpsertFile(context.Background(), file))
	return file
}

func createEntity(t *testing.T, s Storage, fileID int64, kind types.EntityKind, qname string, start, end int) *Entity {
	t.Helper()
	e := &Entity{
		FileID:        fileID,
		Kind:          kind,
		QualifiedName: qname,
		SimpleName:    qname,
		StartLine:     start,
		EndLine:       end,
		Complexity:    1,
		IsPublic:      true,
	}
	if parent := types.ParentQualifiedName(qname); parent != "" {
		e.SimpleName = qname[len(parent)+len(types.ScopeSeparator):]
	}
	require.NoError(t, s.InsertEntity(context.Background(), e))
	return e
}

func createChunk(t *testing.T, s Storage, fileID int64, entityID *int64, start int, vec []float32) *Chunk {
	t.Helper()
	c := &Chunk{
		FileID:    fileID,
		EntityID:  entityID,
		Kind:      types.ChunkImplementation,
		Content:   "void f() {}",
		StartLine: start,
		EndLine:   start + 1,
		Embedding: vec,
	}
	require.NoError(t, s.InsertChunk(context.Background(), c))
	return c
}

// TestNewSQLiteStorage verifies a fresh store is migrated and reports its dimension
func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)

	assert.NotNil(t, storage.db)
	assert.Equal(t, testDim, storage.Dimension())

	version, err := SchemaVersion(context.Background(), storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Migrations are idempotent
	require.NoError(t, ApplyMigrations(context.Background(), storage.db))
}

// TestNewSQLiteStorage_DimensionMismatch verifies reopening with another width fails
func TestNewSQLiteStorage_DimensionMismatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")

	first, err := NewSQLiteStorage(dbPath, WithDimension(8), WithEmbeddingModel("local", "hash-v1"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	_, err = NewSQLiteStorage(dbPath, WithDimension(16))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	reopened, err := NewSQLiteStorage(dbPath, WithDimension(8))
	require.NoError(t, err)
	defer reopened.Close()

	stats, err := reopened.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Dimension)
	assert.Equal(t, "local", stats.Provider)
	assert.Equal(t, "hash-v1", stats.Model)
}

// TestUpsertFile verifies files are keyed by path
func TestUpsertFile(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	file := createFile(t, storage, "src/engine.cpp")
	assert.Greater(t, file.ID, int64(0))

	again := &File{Path: "src/engine.cpp", ContentHash: "changed", LOC: 42}
	require.NoError(t, storage.UpsertFile(ctx, again))
	assert.Equal(t, file.ID, again.ID)

	got, err := storage.GetFileByPath(ctx, "src/engine.cpp")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.ContentHash)
	assert.Equal(t, 42, got.LOC)
	assert.Equal(t, types.FileIndexing, got.Status)
	assert.Nil(t, got.LastIndexed)

	_, err = storage.GetFileByPath(ctx, "missing.cpp")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetFileByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestSetFileStatus verifies status transitions and the indexed timestamp
func TestSetFileStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	file := createFile(t, storage, "a.cpp")

	require.NoError(t, storage.SetFileStatus(ctx, file.ID, types.FileIndexed, nil))
	got, err := storage.GetFileByID(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, types.FileIndexed, got.Status)
	assert.NotNil(t, got.LastIndexed)

	msg := "syntax error"
	require.NoError(t, storage.SetFileStatus(ctx, file.ID, types.FilePending, &msg))
	got, err = storage.GetFileByID(ctx, file.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParseError)
	assert.Equal(t, msg, *got.ParseError)
	assert.NotNil(t, got.LastIndexed)

	assert.ErrorIs(t, storage.SetFileStatus(ctx, file.ID, types.FileStatus("done"), nil), ErrInvalidKind)
	assert.ErrorIs(t, storage.SetFileStatus(ctx, 9999, types.FileIndexed, nil), ErrNotFound)
}

// TestListFiles verifies files come back ordered by path
func TestListFiles(t *testing.T) {
	storage := setupTestDB(t)
	createFile(t, storage, "b.cpp")
	createFile(t, storage, "a.hpp")

	files, err := storage.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.hpp", files[0].Path)
	assert.Equal(t, "b.cpp", files[1].Path)
}

// TestDeleteFile_Cascades verifies deleting a file removes everything derived from it
func TestDeleteFile_Cascades(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	a := createFile(t, storage, "a.cpp")
	b := createFile(t, storage, "b.cpp")
	caller := createEntity(t, storage, a.ID, types.KindFunction, "run", 1, 5)
	callee := createEntity(t, storage, b.ID, types.KindFunction, "helper", 1, 3)
	createChunk(t, storage, a.ID, &caller.ID, 1, []float32{1, 0, 0, 0})
	createChunk(t, storage, b.ID, &callee.ID, 1, []float32{0, 1, 0, 0})

	ok, err := storage.InsertRelationship(ctx, &Relationship{
		FromEntityID: caller.ID, ToEntityID: callee.ID, Kind: types.RelCalls, Line: 2,
	})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, storage.DeleteFile(ctx, b.ID))

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, 0, stats.Relationships)
	assert.Equal(t, 1, stats.Chunks)
}

// TestDeleteFileData verifies the file row survives while its data is removed
func TestDeleteFileData(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	file := createFile(t, storage, "a.cpp")
	ns := createEntity(t, storage, file.ID, types.KindNamespace, "app", 1, 10)
	fn := createEntity(t, storage, file.ID, types.KindFunction, "app::run", 2, 4)
	require.NoError(t, storage.SetEntityParent(ctx, fn.ID, ns.ID))
	createChunk(t, storage, file.ID, &fn.ID, 2, []float32{1, 0, 0, 0})
	createChunk(t, storage, file.ID, nil, 1, []float32{0, 0, 1, 0})

	got, err := storage.GetEntity(ctx, fn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, ns.ID, *got.ParentID)
	assert.Equal(t, "a.cpp", got.FilePath)

	require.NoError(t, storage.DeleteFileData(ctx, file.ID))

	_, err = storage.GetFileByID(ctx, file.ID)
	require.NoError(t, err)
	entities, err := storage.ListEntitiesByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, entities)
	chunks, err := storage.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// TestInsertEntity_Validation verifies closed kinds are enforced
func TestInsertEntity_Validation(t *testing.T) {
	storage := setupTestDB(t)
	file := createFile(t, storage, "a.cpp")

	err := storage.InsertEntity(context.Background(), &Entity{
		FileID: file.ID, Kind: types.EntityKind("macro"), QualifiedName: "M", SimpleName: "M",
	})
	assert.ErrorIs(t, err, ErrInvalidKind)

	e := &Entity{FileID: file.ID, Kind: types.KindEnum, QualifiedName: "Color", SimpleName: "Color",
		StartLine: 1, EndLine: 3, Metadata: map[string]any{types.MetaHasTemplates: false}}
	require.NoError(t, storage.InsertEntity(context.Background(), e))
	assert.Equal(t, 1, e.Complexity)

	got, err := storage.GetEntity(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, false, got.Metadata[types.MetaHasTemplates])
}

// TestInsertRelationship_Guarded verifies edges need both endpoints and are deduplicated
func TestInsertRelationship_Guarded(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	file := createFile(t, storage, "a.cpp")
	from := createEntity(t, storage, file.ID, types.KindFunction, "run", 1, 5)
	to := createEntity(t, storage, file.ID, types.KindFunction, "helper", 6, 8)

	ok, err := storage.InsertRelationship(ctx, &Relationship{FromEntityID: from.ID, ToEntityID: 9999, Kind: types.RelCalls, Line: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	rel := &Relationship{FromEntityID: from.ID, ToEntityID: to.ID, Kind: types.RelCalls, Context: "helper()", Line: 2}
	ok, err = storage.InsertRelationship(ctx, rel)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, rel.ID, int64(0))

	ok, err = storage.InsertRelationship(ctx, &Relationship{FromEntityID: from.ID, ToEntityID: to.ID, Kind: types.RelCalls, Line: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = storage.InsertRelationship(ctx, &Relationship{FromEntityID: from.ID, ToEntityID: to.ID, Kind: types.RelationKind("friend")})
	assert.ErrorIs(t, err, ErrInvalidKind)

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Relationships)
}

// TestListRelationships verifies direction, kind filters and per-entity distinct edges
func TestListRelationships(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	a := createFile(t, storage, "a.cpp")
	b := createFile(t, storage, "b.cpp")
	run := createEntity(t, storage, a.ID, types.KindFunction, "run", 1, 10)
	helper := createEntity(t, storage, b.ID, types.KindFunction, "helper", 1, 3)
	base := createEntity(t, storage, b.ID, types.KindClass, "Base", 5, 9)

	for _, rel := range []*Relationship{
		{FromEntityID: run.ID, ToEntityID: helper.ID, Kind: types.RelCalls, Context: "helper()", Line: 3},
		{FromEntityID: run.ID, ToEntityID: helper.ID, Kind: types.RelCalls, Context: "helper()", Line: 7},
		{FromEntityID: run.ID, ToEntityID: base.ID, Kind: types.RelUses, Line: 2},
	} {
		ok, err := storage.InsertRelationship(ctx, rel)
		require.NoError(t, err)
		require.True(t, ok)
	}

	out, err := storage.ListRelationships(ctx, run.ID, Outgoing, nil, 50)
	require.NoError(t, err)
	assert.Len(t, out, 3)

	calls, err := storage.ListRelationships(ctx, run.ID, Outgoing, []types.RelationKind{types.RelCalls}, 50)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, 3, calls[0].Line)
	assert.Equal(t, 7, calls[1].Line)
	assert.Equal(t, "helper", calls[0].Other.QualifiedName)
	assert.Equal(t, "b.cpp", calls[0].Other.FilePath)
	assert.Equal(t, Outgoing, calls[0].Direction)

	in, err := storage.ListRelationships(ctx, helper.ID, Incoming, nil, 50)
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, "run", in[0].Other.QualifiedName)
	assert.Equal(t, "helper()", in[0].Context)

	distinct, err := storage.ListRelatedEntities(ctx, run.ID, Outgoing, []types.RelationKind{types.RelCalls}, 50)
	require.NoError(t, err)
	require.Len(t, distinct, 1)
	assert.Equal(t, helper.ID, distinct[0].Other.ID)
	assert.Equal(t, 3, distinct[0].Line)

	_, err = storage.ListRelationships(ctx, run.ID, Direction("sideways"), nil, 50)
	assert.Error(t, err)
}

// TestFindEntities_Ranking verifies containment ranks ahead of simple-name equality
func TestFindEntities_Ranking(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	file := createFile(t, storage, "a.cpp")

	createEntity(t, storage, file.ID, types.KindClass, "gfx::RendererImpl", 1, 5)
	createEntity(t, storage, file.ID, types.KindClass, "app::Renderer", 6, 10)
	createEntity(t, storage, file.ID, types.KindClass, "Renderer", 11, 15)
	createEntity(t, storage, file.ID, types.KindFunction, "draw", 16, 18)

	found, err := storage.FindEntities(ctx, "Renderer", 10)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "Renderer", found[0].QualifiedName)
	assert.Equal(t, "app::Renderer", found[1].QualifiedName)
	assert.Equal(t, "gfx::RendererImpl", found[2].QualifiedName)

	limited, err := storage.FindEntities(ctx, "Renderer", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := storage.FindEntities(ctx, "renderer", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestFindEntities_DefinitionFirst verifies an entity owning a chunk ranks
// ahead of a same-named declaration inserted before it
func TestFindEntities_DefinitionFirst(t *testing.T) {
	storage := setupTestDB(t)
	file := createFile(t, storage, "w.cpp")

	decl := createEntity(t, storage, file.ID, types.KindFunction, "N::Widget::draw", 4, 4)
	def := createEntity(t, storage, file.ID, types.KindFunction, "N::Widget::draw", 7, 7)
	createChunk(t, storage, file.ID, &def.ID, 7, []float32{1, 0, 0, 0})

	found, err := storage.FindEntities(context.Background(), "N::Widget::draw", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, def.ID, found[0].ID)
	assert.Equal(t, decl.ID, found[1].ID)
}

// TestSearchEntities verifies case-insensitive containment ordered by kind and name
func TestSearchEntities(t *testing.T) {
	storage := setupTestDB(t)
	file := createFile(t, storage, "a.cpp")

	createEntity(t, storage, file.ID, types.KindFunction, "net::Socket::open", 1, 3)
	createEntity(t, storage, file.ID, types.KindClass, "net::Socket", 4, 20)
	createEntity(t, storage, file.ID, types.KindNamespace, "net", 1, 30)

	found, err := storage.SearchEntities(context.Background(), "SOCKET", 20)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, types.KindClass, found[0].Kind)
	assert.Equal(t, types.KindFunction, found[1].Kind)
}

// TestLookupEntity verifies exact lookups by qualified and simple name
func TestLookupEntity(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	file := createFile(t, storage, "a.cpp")
	e := createEntity(t, storage, file.ID, types.KindFunction, "app::run", 1, 3)

	id, err := storage.LookupEntityByQualifiedName(ctx, "app::run")
	require.NoError(t, err)
	assert.Equal(t, e.ID, id)

	id, err = storage.LookupEntityBySimpleName(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, e.ID, id)

	_, err = storage.LookupEntityByQualifiedName(ctx, "run")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestEntityAtLocation verifies the smallest enclosing entity wins
func TestEntityAtLocation(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	file := createFile(t, storage, "src/engine/render.cpp")

	createEntity(t, storage, file.ID, types.KindNamespace, "gfx", 1, 40)
	createEntity(t, storage, file.ID, types.KindClass, "gfx::Renderer", 3, 30)
	createEntity(t, storage, file.ID, types.KindFunction, "gfx::Renderer::draw", 10, 14)

	e, err := storage.EntityAtLocation(ctx, "render.cpp", 12)
	require.NoError(t, err)
	assert.Equal(t, "gfx::Renderer::draw", e.QualifiedName)

	e, err = storage.EntityAtLocation(ctx, "render.cpp", 20)
	require.NoError(t, err)
	assert.Equal(t, "gfx::Renderer", e.QualifiedName)

	_, err = storage.EntityAtLocation(ctx, "render.cpp", 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.EntityAtLocation(ctx, "other.cpp", 12)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestInsertChunk_DimensionMismatch verifies chunks need a correct-width embedding
func TestInsertChunk_DimensionMismatch(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	file := createFile(t, storage, "a.cpp")

	err := storage.InsertChunk(ctx, &Chunk{FileID: file.ID, Kind: types.ChunkMixed, Content: "x", StartLine: 1, EndLine: 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = storage.InsertChunk(ctx, &Chunk{FileID: file.ID, Kind: types.ChunkMixed, Content: "x", StartLine: 1, EndLine: 1,
		Embedding: []float32{1, 2}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Chunks)
}

// TestFirstChunkForEntity verifies the earliest chunk by start line is returned
func TestFirstChunkForEntity(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	file := createFile(t, storage, "a.cpp")
	e := createEntity(t, storage, file.ID, types.KindFunction, "run", 5, 20)

	createChunk(t, storage, file.ID, &e.ID, 5, []float32{1, 0, 0, 0})
	comment := &Chunk{FileID: file.ID, EntityID: &e.ID, Kind: types.ChunkCommentBlock, Content: "// run\n// it\n// now",
		StartLine: 1, EndLine: 5, Embedding: []float32{0, 1, 0, 0},
		Metadata: map[string]any{types.MetaCommentFor: "run"}}
	require.NoError(t, storage.InsertChunk(ctx, comment))

	first, err := storage.FirstChunkForEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, comment.ID, first.ID)
	assert.Equal(t, "run", first.Metadata[types.MetaCommentFor])
	assert.Equal(t, []float32{0, 1, 0, 0}, first.Embedding)

	_, err = storage.FirstChunkForEntity(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestBeginTx_CommitRollback verifies transactional replacement is all-or-nothing
func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	file := createFile(t, storage, "a.cpp")
	createEntity(t, storage, file.ID, types.KindFunction, "old", 1, 3)

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteFileData(ctx, file.ID))
	createEntity(t, tx, file.ID, types.KindFunction, "new", 1, 3)
	inTx, err := tx.ListEntitiesByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, inTx, 1)
	require.NoError(t, tx.Rollback())

	entities, err := storage.ListEntitiesByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "old", entities[0].QualifiedName)

	tx, err = storage.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteFileData(ctx, file.ID))
	createEntity(t, tx, file.ID, types.KindFunction, "new", 1, 3)
	require.NoError(t, tx.SetFileStatus(ctx, file.ID, types.FileIndexed, nil))
	require.NoError(t, tx.Commit())

	entities, err = storage.ListEntitiesByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "new", entities[0].QualifiedName)

	_, err = tx.BeginTx(ctx)
	assert.Error(t, err)
}

// TestStats verifies counts by status and totals
func TestStats(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	empty, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Files)
	assert.Nil(t, empty.LastIndexedAt)

	a := createFile(t, storage, "a.cpp")
	createFile(t, storage, "b.cpp")
	require.NoError(t, storage.SetFileStatus(ctx, a.ID, types.FileIndexed, nil))
	createEntity(t, storage, a.ID, types.KindStruct, "Point", 1, 4)

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 1, stats.FilesByStatus[types.FileIndexed])
	assert.Equal(t, 1, stats.FilesByStatus[types.FileIndexing])
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, testDim, stats.Dimension)
	assert.NotNil(t, stats.LastIndexedAt)
}
