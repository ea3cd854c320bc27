package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested row doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when an embedding width differs from the store's dimension
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvalidKind is returned when a kind or status is outside its closed set
	ErrInvalidKind = types.ErrInvalidKind
)

// DefaultDimension is the embedding width used when none is configured
const DefaultDimension = 384

const (
	metaDimension = "embedding_dimension"
	metaProvider  = "embedding_provider"
	metaModel     = "embedding_model"
)

// Option configures a SQLiteStorage
type Option func(*options)

type options struct {
	dimension int
	provider  string
	model     string
}

// WithDimension sets the embedding width the store accepts
func WithDimension(d int) Option {
	return func(o *options) {
		if d > 0 {
			o.dimension = d
		}
	}
}

// WithEmbeddingModel records which provider and model produced the stored vectors
func WithEmbeddingModel(provider, model string) Option {
	return func(o *options) {
		o.provider = provider
		o.model = model
	}
}

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db        *sql.DB
	dimension int
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single connection: one writer, and ":memory:" databases stay on one handle.
	// Never issue a query on s.db while a transaction or an open rows cursor
	// holds the connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (or creates) the store at dbPath, applies
// migrations and checks the embedding dimension against the one the store
// was created with.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	o := options{dimension: DefaultDimension}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx := context.Background()
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	if err := checkStoreMeta(ctx, db, o); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStorage{db: db, dimension: o.dimension}, nil
}

// checkStoreMeta records the embedding settings on first open and rejects a
// different dimension afterwards
func checkStoreMeta(ctx context.Context, db *sql.DB, o options) error {
	var stored string
	err := db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", metaDimension).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, "INSERT INTO store_meta (key, value) VALUES (?, ?)",
			metaDimension, strconv.Itoa(o.dimension)); err != nil {
			return fmt.Errorf("failed to record embedding dimension: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read embedding dimension: %w", err)
	default:
		d, convErr := strconv.Atoi(stored)
		if convErr != nil {
			return fmt.Errorf("invalid stored embedding dimension %q: %w", stored, convErr)
		}
		if d != o.dimension {
			return fmt.Errorf("%w: store has %d, configured %d", ErrDimensionMismatch, d, o.dimension)
		}
	}

	for key, value := range map[string]string{metaProvider: o.provider, metaModel: o.model} {
		if value == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO store_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("failed to record %s: %w", key, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Dimension returns the embedding width this store accepts
func (s *SQLiteStorage) Dimension() int {
	return s.dimension
}

// DB exposes the underlying handle for maintenance commands
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// File operations

const fileColumns = `id, path, content_hash, file_type, loc, last_modified, last_indexed,
	status, parse_error, created_at, updated_at`

func scanFile(sc rowScanner) (*File, error) {
	var file File
	var fileType, parseError sql.NullString
	var lastModified, lastIndexed sql.NullTime
	var status string

	err := sc.Scan(
		&file.ID, &file.Path, &file.ContentHash, &fileType, &file.LOC,
		&lastModified, &lastIndexed, &status, &parseError,
		&file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	file.FileType = fileType.String
	if lastModified.Valid {
		file.LastModified = lastModified.Time
	}
	if lastIndexed.Valid {
		t := lastIndexed.Time
		file.LastIndexed = &t
	}
	if parseError.Valid {
		file.ParseError = &parseError.String
	}
	file.Status, err = types.ParseFileStatus(status)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// upsertFileWithQuerier inserts or updates a file by path and marks it indexing
func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	if file.Status == "" {
		file.Status = types.FileIndexing
	}
	if !file.Status.Valid() {
		return fmt.Errorf("%w: file status %q", ErrInvalidKind, file.Status)
	}

	query := `
		INSERT INTO files (path, content_hash, file_type, loc, last_modified, status, parse_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			file_type = excluded.file_type,
			loc = excluded.loc,
			last_modified = excluded.last_modified,
			status = excluded.status,
			parse_error = excluded.parse_error,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		file.Path, file.ContentHash, file.FileType, file.LOC, file.LastModified,
		string(file.Status), file.ParseError, now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	file.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

func (s *SQLiteStorage) getFileByPathWithQuerier(ctx context.Context, q querier, path string) (*File, error) {
	row := q.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE path = ?", path)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return file, err
}

func (s *SQLiteStorage) GetFileByPath(ctx context.Context, path string) (*File, error) {
	return s.getFileByPathWithQuerier(ctx, s.querier(), path)
}

func (s *SQLiteStorage) getFileByIDWithQuerier(ctx context.Context, q querier, fileID int64) (*File, error) {
	row := q.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE id = ?", fileID)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return file, err
}

func (s *SQLiteStorage) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return s.getFileByIDWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier) ([]*File, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+fileColumns+" FROM files ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier())
}

// setFileStatusWithQuerier updates the status; indexed also stamps last_indexed
func (s *SQLiteStorage) setFileStatusWithQuerier(ctx context.Context, q querier, fileID int64, status types.FileStatus, parseError *string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: file status %q", ErrInvalidKind, status)
	}

	now := time.Now()
	var lastIndexed interface{}
	if status == types.FileIndexed {
		lastIndexed = now
	}

	res, err := q.ExecContext(ctx, `
		UPDATE files
		SET status = ?, parse_error = ?, last_indexed = COALESCE(?, last_indexed), updated_at = ?
		WHERE id = ?
	`, string(status), parseError, lastIndexed, now, fileID)
	if err != nil {
		return fmt.Errorf("failed to set file status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) SetFileStatus(ctx context.Context, fileID int64, status types.FileStatus, parseError *string) error {
	return s.setFileStatusWithQuerier(ctx, s.querier(), fileID, status, parseError)
}

// deleteFileWithQuerier removes a file; entities, relationships and chunks cascade
func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	return err
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), fileID)
}

// deleteFileDataWithQuerier removes everything derived from a file but keeps the file row
func (s *SQLiteStorage) deleteFileDataWithQuerier(ctx context.Context, q querier, fileID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	// Relationships touching these entities cascade
	if _, err := q.ExecContext(ctx, `DELETE FROM entities WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete entities: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteFileData(ctx context.Context, fileID int64) error {
	return s.deleteFileDataWithQuerier(ctx, s.querier(), fileID)
}

// Entity operations

const entityColumns = `e.id, e.file_id, e.parent_id, e.kind, e.qualified_name, e.simple_name,
	e.signature, e.start_line, e.end_line, e.complexity_score, e.is_public, e.metadata, f.path`

const entityFrom = ` FROM entities e JOIN files f ON f.id = e.file_id `

func scanEntity(sc rowScanner, extra ...interface{}) (*Entity, error) {
	var e Entity
	var parentID sql.NullInt64
	var signature sql.NullString
	var kind, metadata string

	dest := []interface{}{
		&e.ID, &e.FileID, &parentID, &kind, &e.QualifiedName, &e.SimpleName,
		&signature, &e.StartLine, &e.EndLine, &e.Complexity, &e.IsPublic, &metadata, &e.FilePath,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if parentID.Valid {
		p := parentID.Int64
		e.ParentID = &p
	}
	e.Signature = signature.String

	var err error
	if e.Kind, err = types.ParseEntityKind(kind); err != nil {
		return nil, err
	}
	if e.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEntities(rows *sql.Rows) ([]*Entity, error) {
	defer func() { _ = rows.Close() }()

	entities := make([]*Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *SQLiteStorage) insertEntityWithQuerier(ctx context.Context, q querier, entity *Entity) error {
	if !entity.Kind.Valid() {
		return fmt.Errorf("%w: entity kind %q", ErrInvalidKind, entity.Kind)
	}
	if entity.Complexity < 1 {
		entity.Complexity = 1
	}

	metadata, err := encodeMetadata(entity.Metadata)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO entities (file_id, parent_id, kind, qualified_name, simple_name, signature,
			start_line, end_line, complexity_score, is_public, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entity.FileID, entity.ParentID, string(entity.Kind), entity.QualifiedName, entity.SimpleName,
		entity.Signature, entity.StartLine, entity.EndLine, entity.Complexity, entity.IsPublic, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entity.ID = id
	return nil
}

func (s *SQLiteStorage) InsertEntity(ctx context.Context, entity *Entity) error {
	return s.insertEntityWithQuerier(ctx, s.querier(), entity)
}

func (s *SQLiteStorage) setEntityParentWithQuerier(ctx context.Context, q querier, entityID, parentID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE entities SET parent_id = ? WHERE id = ?`, parentID, entityID)
	if err != nil {
		return fmt.Errorf("failed to set entity parent: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SetEntityParent(ctx context.Context, entityID, parentID int64) error {
	return s.setEntityParentWithQuerier(ctx, s.querier(), entityID, parentID)
}

func (s *SQLiteStorage) getEntityWithQuerier(ctx context.Context, q querier, entityID int64) (*Entity, error) {
	row := q.QueryRowContext(ctx, "SELECT "+entityColumns+entityFrom+"WHERE e.id = ?", entityID)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *SQLiteStorage) GetEntity(ctx context.Context, entityID int64) (*Entity, error) {
	return s.getEntityWithQuerier(ctx, s.querier(), entityID)
}

func (s *SQLiteStorage) listEntitiesByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*Entity, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+entityColumns+entityFrom+"WHERE e.file_id = ? ORDER BY e.start_line, e.id", fileID)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}

func (s *SQLiteStorage) ListEntitiesByFile(ctx context.Context, fileID int64) ([]*Entity, error) {
	return s.listEntitiesByFileWithQuerier(ctx, s.querier(), fileID)
}

// findEntitiesWithQuerier ranks qualified-name containment ahead of
// simple-name equality; ties go to exact qualified matches, then shorter
// names, then entities that own a chunk (definitions before declarations)
func (s *SQLiteStorage) findEntitiesWithQuerier(ctx context.Context, q querier, name string, limit int) ([]*Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := q.QueryContext(ctx, "SELECT "+entityColumns+entityFrom+`
		WHERE instr(e.qualified_name, ?) > 0 OR e.simple_name = ?
		ORDER BY
			instr(e.qualified_name, ?) > 0 DESC,
			e.qualified_name = ? DESC,
			e.simple_name = ? DESC,
			length(e.qualified_name),
			EXISTS (SELECT 1 FROM chunks c WHERE c.entity_id = e.id) DESC,
			e.id
		LIMIT ?
	`, name, name, name, name, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find entities: %w", err)
	}
	return collectEntities(rows)
}

func (s *SQLiteStorage) FindEntities(ctx context.Context, name string, limit int) ([]*Entity, error) {
	return s.findEntitiesWithQuerier(ctx, s.querier(), name, limit)
}

// searchEntitiesWithQuerier matches a case-insensitive token anywhere in the qualified name
func (s *SQLiteStorage) searchEntitiesWithQuerier(ctx context.Context, q querier, token string, limit int) ([]*Entity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.QueryContext(ctx, "SELECT "+entityColumns+entityFrom+`
		WHERE instr(lower(e.qualified_name), lower(?)) > 0
		ORDER BY e.kind, e.qualified_name, e.id
		LIMIT ?
	`, token, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}
	return collectEntities(rows)
}

func (s *SQLiteStorage) SearchEntities(ctx context.Context, token string, limit int) ([]*Entity, error) {
	return s.searchEntitiesWithQuerier(ctx, s.querier(), token, limit)
}

func (s *SQLiteStorage) lookupEntityIDWithQuerier(ctx context.Context, q querier, column, value string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM entities WHERE "+column+" = ? ORDER BY id LIMIT 1", value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up entity: %w", err)
	}
	return id, nil
}

func (s *SQLiteStorage) LookupEntityByQualifiedName(ctx context.Context, qualifiedName string) (int64, error) {
	return s.lookupEntityIDWithQuerier(ctx, s.querier(), "qualified_name", qualifiedName)
}

func (s *SQLiteStorage) LookupEntityBySimpleName(ctx context.Context, simpleName string) (int64, error) {
	return s.lookupEntityIDWithQuerier(ctx, s.querier(), "simple_name", simpleName)
}

// entityAtLocationWithQuerier returns the smallest entity enclosing line in
// a file whose path contains pathFragment
func (s *SQLiteStorage) entityAtLocationWithQuerier(ctx context.Context, q querier, pathFragment string, line int) (*Entity, error) {
	row := q.QueryRowContext(ctx, "SELECT "+entityColumns+entityFrom+`
		WHERE instr(f.path, ?) > 0 AND e.start_line <= ? AND e.end_line >= ?
		ORDER BY (e.end_line - e.start_line), e.id
		LIMIT 1
	`, pathFragment, line, line)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *SQLiteStorage) EntityAtLocation(ctx context.Context, pathFragment string, line int) (*Entity, error) {
	return s.entityAtLocationWithQuerier(ctx, s.querier(), pathFragment, line)
}

// Relationship operations

// insertRelationshipWithQuerier writes an edge only when both endpoints
// exist; duplicates are ignored. It reports whether a row was written.
func (s *SQLiteStorage) insertRelationshipWithQuerier(ctx context.Context, q querier, rel *Relationship) (bool, error) {
	if !rel.Kind.Valid() {
		return false, fmt.Errorf("%w: relationship kind %q", ErrInvalidKind, rel.Kind)
	}

	result, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO relationships (from_entity_id, to_entity_id, kind, context, line_number)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM entities WHERE id = ?)
		  AND EXISTS (SELECT 1 FROM entities WHERE id = ?)
	`, rel.FromEntityID, rel.ToEntityID, string(rel.Kind), rel.Context, rel.Line,
		rel.FromEntityID, rel.ToEntityID)
	if err != nil {
		return false, fmt.Errorf("failed to insert relationship: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if id, err := result.LastInsertId(); err == nil {
		rel.ID = id
	}
	return true, nil
}

func (s *SQLiteStorage) InsertRelationship(ctx context.Context, rel *Relationship) (bool, error) {
	return s.insertRelationshipWithQuerier(ctx, s.querier(), rel)
}

// edgeQuery builds the select for edges around one entity. The far-side
// entity is joined as e so entityColumns apply.
func edgeQuery(dir Direction, kinds []types.RelationKind, distinct bool) (string, []interface{}, error) {
	near, far := "r.from_entity_id", "r.to_entity_id"
	if dir == Incoming {
		near, far = far, near
	} else if dir != Outgoing {
		return "", nil, fmt.Errorf("invalid direction %q", dir)
	}

	line, ctxCol := "r.line_number", "r.context"
	if distinct {
		// SQLite takes bare columns from the row holding MIN(line_number)
		line = "MIN(r.line_number)"
	}

	query := "SELECT r.id, r.from_entity_id, r.to_entity_id, r.kind, " + ctxCol + ", " + line + ", " + entityColumns + `
		FROM relationships r
		JOIN entities e ON e.id = ` + far + `
		JOIN files f ON f.id = e.file_id
		WHERE ` + near + ` = ?`

	var args []interface{}
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			if !k.Valid() {
				return "", nil, fmt.Errorf("%w: relationship kind %q", ErrInvalidKind, k)
			}
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		query += " AND r.kind IN (" + strings.Join(placeholders, ",") + ")"
	}

	if distinct {
		query += " GROUP BY r.kind, e.id"
	}
	query += " ORDER BY f.path, " + line + ", r.id LIMIT ?"
	return query, args, nil
}

func (s *SQLiteStorage) listEdgesWithQuerier(ctx context.Context, q querier, entityID int64, dir Direction, kinds []types.RelationKind, limit int, distinct bool) ([]*Edge, error) {
	if limit <= 0 {
		limit = 50
	}
	query, kindArgs, err := edgeQuery(dir, kinds, distinct)
	if err != nil {
		return nil, err
	}

	args := append([]interface{}{entityID}, kindArgs...)
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer func() { _ = rows.Close() }()

	edges := make([]*Edge, 0)
	for rows.Next() {
		var edge Edge
		var kind string
		var edgeContext sql.NullString
		other, err := scanEntityAfter(rows,
			&edge.ID, &edge.FromEntityID, &edge.ToEntityID, &kind, &edgeContext, &edge.Line)
		if err != nil {
			return nil, err
		}
		if edge.Kind, err = types.ParseRelationKind(kind); err != nil {
			return nil, err
		}
		edge.Context = edgeContext.String
		edge.Direction = dir
		edge.Other = *other
		edges = append(edges, &edge)
	}
	return edges, rows.Err()
}

// scanEntityAfter scans leading columns into prefix, then an entity
func scanEntityAfter(sc rowScanner, prefix ...interface{}) (*Entity, error) {
	return scanEntity(prefixScanner{sc: sc, prefix: prefix})
}

type prefixScanner struct {
	sc     rowScanner
	prefix []interface{}
}

func (p prefixScanner) Scan(dest ...interface{}) error {
	return p.sc.Scan(append(append([]interface{}{}, p.prefix...), dest...)...)
}

func (s *SQLiteStorage) ListRelationships(ctx context.Context, entityID int64, dir Direction, kinds []types.RelationKind, limit int) ([]*Edge, error) {
	return s.listEdgesWithQuerier(ctx, s.querier(), entityID, dir, kinds, limit, false)
}

func (s *SQLiteStorage) ListRelatedEntities(ctx context.Context, entityID int64, dir Direction, kinds []types.RelationKind, limit int) ([]*Edge, error) {
	return s.listEdgesWithQuerier(ctx, s.querier(), entityID, dir, kinds, limit, true)
}

// Chunk operations

const chunkColumns = `c.id, c.file_id, c.entity_id, c.kind, c.content, c.start_line, c.end_line,
	c.embedding, c.metadata, c.created_at, f.path`

const chunkFrom = ` FROM chunks c JOIN files f ON f.id = c.file_id `

func scanChunk(sc rowScanner) (*Chunk, error) {
	var c Chunk
	var entityID sql.NullInt64
	var kind, metadata string
	var blob []byte

	err := sc.Scan(&c.ID, &c.FileID, &entityID, &kind, &c.Content, &c.StartLine, &c.EndLine,
		&blob, &metadata, &c.CreatedAt, &c.FilePath)
	if err != nil {
		return nil, err
	}

	if entityID.Valid {
		id := entityID.Int64
		c.EntityID = &id
	}
	if c.Kind, err = types.ParseChunkKind(kind); err != nil {
		return nil, err
	}
	if c.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	c.Embedding = deserializeVector(blob)
	return &c, nil
}

// insertChunkWithQuerier refuses chunks whose embedding is missing or of the wrong width
func (s *SQLiteStorage) insertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	if !chunk.Kind.Valid() {
		return fmt.Errorf("%w: chunk kind %q", ErrInvalidKind, chunk.Kind)
	}
	if len(chunk.Embedding) != s.dimension {
		return fmt.Errorf("%w: chunk embedding has %d values, store expects %d",
			ErrDimensionMismatch, len(chunk.Embedding), s.dimension)
	}

	metadata, err := encodeMetadata(chunk.Metadata)
	if err != nil {
		return err
	}
	blob, err := encodeVector(chunk.Embedding)
	if err != nil {
		return err
	}

	now := time.Now()
	result, err := q.ExecContext(ctx, `
		INSERT INTO chunks (file_id, entity_id, kind, content, start_line, end_line, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chunk.FileID, chunk.EntityID, string(chunk.Kind), chunk.Content, chunk.StartLine, chunk.EndLine,
		blob, metadata, now)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	chunk.ID = id
	chunk.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return s.insertChunkWithQuerier(ctx, s.querier(), chunk)
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID int64) (*Chunk, error) {
	row := q.QueryRowContext(ctx, "SELECT "+chunkColumns+chunkFrom+"WHERE c.id = ?", chunkID)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

func (s *SQLiteStorage) listChunksByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*Chunk, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+chunkColumns+chunkFrom+"WHERE c.file_id = ? ORDER BY c.start_line, c.id", fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error) {
	return s.listChunksByFileWithQuerier(ctx, s.querier(), fileID)
}

// firstChunkForEntityWithQuerier returns the entity's earliest chunk by start line
func (s *SQLiteStorage) firstChunkForEntityWithQuerier(ctx context.Context, q querier, entityID int64) (*Chunk, error) {
	row := q.QueryRowContext(ctx, "SELECT "+chunkColumns+chunkFrom+`
		WHERE c.entity_id = ?
		ORDER BY c.start_line, c.kind = 'comment_block', c.id
		LIMIT 1
	`, entityID)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStorage) FirstChunkForEntity(ctx context.Context, entityID int64) (*Chunk, error) {
	return s.firstChunkForEntityWithQuerier(ctx, s.querier(), entityID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, vector []float32, limit int, filter *SearchFilter) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), vector, limit, filter)
}

// Status operations

func (s *SQLiteStorage) statsWithQuerier(ctx context.Context, q querier) (*Stats, error) {
	stats := &Stats{
		FilesByStatus: make(map[types.FileStatus]int),
		Dimension:     s.dimension,
	}

	rows, err := q.QueryContext(ctx, "SELECT status, COUNT(*) FROM files GROUP BY status")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.FilesByStatus[types.FileStatus(status)] = n
		stats.Files += n
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := []struct {
		table string
		dest  *int
	}{
		{"entities", &stats.Entities},
		{"relationships", &stats.Relationships},
		{"chunks", &stats.Chunks},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	var provider, model sql.NullString
	_ = q.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", metaProvider).Scan(&provider)
	_ = q.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", metaModel).Scan(&model)
	stats.Provider = provider.String
	stats.Model = model.String

	var lastIndexed sql.NullString
	if err := q.QueryRowContext(ctx, "SELECT MAX(last_indexed) FROM files").Scan(&lastIndexed); err == nil && lastIndexed.Valid {
		if t, ok := parseTimestamp(lastIndexed.String); ok {
			stats.LastIndexedAt = &t
		}
	}

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return stats, nil
}

func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	return s.statsWithQuerier(ctx, s.querier())
}

// timestampLayouts covers how the two drivers render a stored time.Time
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	// drop a monotonic clock suffix ("m=+0.000123")
	if idx := strings.Index(s, " m="); idx > 0 {
		s = s[:idx]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]any, error) {
	m := map[string]any{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}

// Transaction implementations

// sqliteTx wraps a SQL transaction. Every method runs on the transaction,
// including reads: the pool has a single connection.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFileByPath(ctx context.Context, path string) (*File, error) {
	return t.storage.getFileByPathWithQuerier(ctx, t.querier(), path)
}

func (t *sqliteTx) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return t.storage.getFileByIDWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) ListFiles(ctx context.Context) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) SetFileStatus(ctx context.Context, fileID int64, status types.FileStatus, parseError *string) error {
	return t.storage.setFileStatusWithQuerier(ctx, t.querier(), fileID, status, parseError)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) DeleteFileData(ctx context.Context, fileID int64) error {
	return t.storage.deleteFileDataWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) InsertEntity(ctx context.Context, entity *Entity) error {
	return t.storage.insertEntityWithQuerier(ctx, t.querier(), entity)
}

func (t *sqliteTx) SetEntityParent(ctx context.Context, entityID, parentID int64) error {
	return t.storage.setEntityParentWithQuerier(ctx, t.querier(), entityID, parentID)
}

func (t *sqliteTx) GetEntity(ctx context.Context, entityID int64) (*Entity, error) {
	return t.storage.getEntityWithQuerier(ctx, t.querier(), entityID)
}

func (t *sqliteTx) ListEntitiesByFile(ctx context.Context, fileID int64) ([]*Entity, error) {
	return t.storage.listEntitiesByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) FindEntities(ctx context.Context, name string, limit int) ([]*Entity, error) {
	return t.storage.findEntitiesWithQuerier(ctx, t.querier(), name, limit)
}

func (t *sqliteTx) SearchEntities(ctx context.Context, token string, limit int) ([]*Entity, error) {
	return t.storage.searchEntitiesWithQuerier(ctx, t.querier(), token, limit)
}

func (t *sqliteTx) LookupEntityByQualifiedName(ctx context.Context, qualifiedName string) (int64, error) {
	return t.storage.lookupEntityIDWithQuerier(ctx, t.querier(), "qualified_name", qualifiedName)
}

func (t *sqliteTx) LookupEntityBySimpleName(ctx context.Context, simpleName string) (int64, error) {
	return t.storage.lookupEntityIDWithQuerier(ctx, t.querier(), "simple_name", simpleName)
}

func (t *sqliteTx) EntityAtLocation(ctx context.Context, pathFragment string, line int) (*Entity, error) {
	return t.storage.entityAtLocationWithQuerier(ctx, t.querier(), pathFragment, line)
}

func (t *sqliteTx) InsertRelationship(ctx context.Context, rel *Relationship) (bool, error) {
	return t.storage.insertRelationshipWithQuerier(ctx, t.querier(), rel)
}

func (t *sqliteTx) ListRelationships(ctx context.Context, entityID int64, dir Direction, kinds []types.RelationKind, limit int) ([]*Edge, error) {
	return t.storage.listEdgesWithQuerier(ctx, t.querier(), entityID, dir, kinds, limit, false)
}

func (t *sqliteTx) ListRelatedEntities(ctx context.Context, entityID int64, dir Direction, kinds []types.RelationKind, limit int) ([]*Edge, error) {
	return t.storage.listEdgesWithQuerier(ctx, t.querier(), entityID, dir, kinds, limit, true)
}

func (t *sqliteTx) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return t.storage.insertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error) {
	return t.storage.listChunksByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) FirstChunkForEntity(ctx context.Context, entityID int64) (*Chunk, error) {
	return t.storage.firstChunkForEntityWithQuerier(ctx, t.querier(), entityID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, vector []float32, limit int, filter *SearchFilter) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), vector, limit, filter)
}

func (t *sqliteTx) Stats(ctx context.Context) (*Stats, error) {
	return t.storage.statsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Dimension() int {
	return t.storage.dimension
}

func (t *sqliteTx) Close() error {
	// Transactions are closed via Commit/Rollback
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
