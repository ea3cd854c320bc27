package storage

import (
	"context"
	"time"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// Storage defines the interface for persisting and querying the code graph
type Storage interface {
	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFileByPath(ctx context.Context, path string) (*File, error)
	GetFileByID(ctx context.Context, fileID int64) (*File, error)
	ListFiles(ctx context.Context) ([]*File, error)
	SetFileStatus(ctx context.Context, fileID int64, status types.FileStatus, parseError *string) error
	DeleteFile(ctx context.Context, fileID int64) error
	DeleteFileData(ctx context.Context, fileID int64) error

	// Entity operations
	InsertEntity(ctx context.Context, entity *Entity) error
	SetEntityParent(ctx context.Context, entityID, parentID int64) error
	GetEntity(ctx context.Context, entityID int64) (*Entity, error)
	ListEntitiesByFile(ctx context.Context, fileID int64) ([]*Entity, error)
	FindEntities(ctx context.Context, name string, limit int) ([]*Entity, error)
	SearchEntities(ctx context.Context, token string, limit int) ([]*Entity, error)
	LookupEntityByQualifiedName(ctx context.Context, qualifiedName string) (int64, error)
	LookupEntityBySimpleName(ctx context.Context, simpleName string) (int64, error)
	EntityAtLocation(ctx context.Context, pathFragment string, line int) (*Entity, error)

	// Relationship operations
	InsertRelationship(ctx context.Context, rel *Relationship) (bool, error)
	ListRelationships(ctx context.Context, entityID int64, dir Direction, kinds []types.RelationKind, limit int) ([]*Edge, error)
	ListRelatedEntities(ctx context.Context, entityID int64, dir Direction, kinds []types.RelationKind, limit int) ([]*Edge, error)

	// Chunk operations
	InsertChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error)
	FirstChunkForEntity(ctx context.Context, entityID int64) (*Chunk, error)

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int, filter *SearchFilter) ([]VectorResult, error)

	// Status operations
	Stats(ctx context.Context) (*Stats, error)
	Dimension() int

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Direction selects which side of an edge the queried entity is on
type Direction string

const (
	// Incoming edges point at the entity
	Incoming Direction = "incoming"
	// Outgoing edges start at the entity
	Outgoing Direction = "outgoing"
)

// File represents a tracked C++ source file
type File struct {
	ID           int64
	Path         string
	ContentHash  string // hex SHA-256
	FileType     string // extension, e.g. ".hpp"
	LOC          int
	LastModified time.Time
	LastIndexed  *time.Time // Nullable
	Status       types.FileStatus
	ParseError   *string // Nullable
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Entity represents a stored code entity
type Entity struct {
	ID            int64
	FileID        int64
	ParentID      *int64 // Nullable
	Kind          types.EntityKind
	QualifiedName string
	SimpleName    string
	Signature     string
	StartLine     int
	EndLine       int
	Complexity    int
	IsPublic      bool
	Metadata      map[string]any

	// FilePath is filled by read queries
	FilePath string
}

// Ref converts the entity into its query result form
func (e *Entity) Ref() types.EntityRef {
	return types.EntityRef{
		ID:            e.ID,
		Kind:          e.Kind,
		QualifiedName: e.QualifiedName,
		SimpleName:    e.SimpleName,
		Signature:     e.Signature,
		FilePath:      e.FilePath,
		StartLine:     e.StartLine,
		EndLine:       e.EndLine,
		Complexity:    e.Complexity,
		IsPublic:      e.IsPublic,
	}
}

// Relationship represents a resolved edge between two stored entities
type Relationship struct {
	ID           int64
	FromEntityID int64
	ToEntityID   int64
	Kind         types.RelationKind
	Context      string
	Line         int
}

// Edge is a relationship seen from one of its endpoints. Other is the
// entity at the far end.
type Edge struct {
	Relationship
	Direction Direction
	Other     Entity
}

// Chunk represents an embedded span of source text
type Chunk struct {
	ID        int64
	FileID    int64
	EntityID  *int64 // Nullable
	Kind      types.ChunkKind
	Content   string
	StartLine int
	EndLine   int
	Embedding []float32
	Metadata  map[string]any
	CreatedAt time.Time

	// FilePath is filled by read queries
	FilePath string
}

// SearchFilter narrows vector search
type SearchFilter struct {
	EntityKinds   []types.EntityKind // Only chunks owned by entities of these kinds
	FileLevelOnly bool               // Only chunks with no owning entity
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID    int64
	Similarity float64 // 1 - cosine distance
}

// Stats contains counts over the whole store
type Stats struct {
	Files         int
	FilesByStatus map[types.FileStatus]int
	Entities      int
	Relationships int
	Chunks        int
	Dimension     int
	Provider      string
	Model         string
	IndexSizeMB   float64
	LastIndexedAt *time.Time
}
