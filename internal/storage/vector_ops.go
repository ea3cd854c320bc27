package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// searchVector ranks chunks by cosine similarity to queryVector
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int, filter *SearchFilter) ([]VectorResult, error) {
	if limit <= 0 || len(queryVector) == 0 {
		return []VectorResult{}, nil
	}
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, queryVector, limit, filter)
	}
	return searchVectorFallback(ctx, q, queryVector, limit, filter)
}

// searchVectorOptimized computes distances in SQL with sqlite-vec
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, limit int, filter *SearchFilter) ([]VectorResult, error) {
	queryBlob, err := encodeVector(queryVector)
	if err != nil {
		return nil, err
	}

	// vec_distance_cosine returns a distance; similarity = 1 - distance
	query := `
		SELECT
			c.id as chunk_id,
			1.0 - vec_distance_cosine(c.embedding, ?) as similarity
		FROM chunks c
		WHERE length(c.embedding) = ?
	`
	args := []interface{}{queryBlob, len(queryVector) * 4}
	query, args = applyVectorFilters(query, args, filter)

	query += " ORDER BY similarity DESC, c.id LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.ChunkID, &result.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// searchVectorFallback loads candidate embeddings and ranks them in Go
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, limit int, filter *SearchFilter) ([]VectorResult, error) {
	query := `
		SELECT c.id as chunk_id, c.embedding
		FROM chunks c
		WHERE 1 = 1
	`
	var args []interface{}
	query, args = applyVectorFilters(query, args, filter)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// applyVectorFilters narrows the candidate chunks to an entity-kind scope
func applyVectorFilters(query string, args []interface{}, filter *SearchFilter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}

	if filter.FileLevelOnly {
		query += " AND c.entity_id IS NULL"
		return query, args
	}

	if len(filter.EntityKinds) > 0 {
		placeholders := make([]string, 0, len(filter.EntityKinds))
		for _, k := range filter.EntityKinds {
			placeholders = append(placeholders, "?")
			args = append(args, string(k))
		}
		query += " AND c.entity_id IN (SELECT id FROM entities WHERE kind IN (" +
			strings.Join(placeholders, ",") + "))"
	}
	return query, args
}

// ScopeFilter maps a search scope name to a filter; unknown scopes search everything
func ScopeFilter(scope string) *SearchFilter {
	switch scope {
	case "functions":
		return &SearchFilter{EntityKinds: []types.EntityKind{types.KindFunction}}
	case "classes":
		return &SearchFilter{EntityKinds: []types.EntityKind{types.KindClass, types.KindStruct}}
	case "files":
		return &SearchFilter{FileLevelOnly: true}
	default:
		return nil
	}
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var chunkID int64
		var vectorBlob []byte
		if err := rows.Scan(&chunkID, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue
		}

		candidates = append(candidates, candidate{
			chunkID: chunkID,
			score:   cosineSimilarity(queryVector, vector),
		})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates the top-limit VectorResult slice from sorted candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:    candidates[i].chunkID,
			Similarity: candidates[i].score,
		}
	}
	return results
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a chunk with its similarity score
type candidate struct {
	chunkID int64
	score   float64
}

// sortCandidates orders by score descending; equal scores keep chunk id order
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
