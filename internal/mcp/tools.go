package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/cppgraph-mcp/internal/indexer"
	"github.com/dshills/cppgraph-mcp/internal/query"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNoPaths            = -32003 // No paths given and none configured
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	paths := getStringSlice(args, "paths")
	if len(paths) == 0 {
		paths = s.roots
	}
	if len(paths) == 0 {
		return nil, newMCPError(ErrorCodeNoPaths, "no paths given and no monitored paths configured", map[string]interface{}{
			"param": "paths",
		})
	}
	for _, p := range paths {
		if err := validatePath(p); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "paths",
				"value":  p,
				"reason": err.Error(),
			})
		}
	}

	stats, err := s.indexer.IndexDirectory(ctx, paths)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.engine.InvalidateCache()

	response := map[string]interface{}{
		"indexed":               true,
		"run_id":                stats.RunID,
		"files_indexed":         stats.FilesIndexed,
		"files_skipped":         stats.FilesSkipped,
		"files_fallback":        stats.FilesFallback,
		"files_failed":          stats.FilesFailed,
		"files_removed":         stats.FilesRemoved,
		"entities_extracted":    stats.EntitiesExtracted,
		"relationships_stored":  stats.RelationshipsStored,
		"relationships_dropped": stats.RelationshipsDropped,
		"chunks_created":        stats.ChunksCreated,
		"duration_ms":           stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	q := getStringDefault(args, "query", "")
	if q == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", query.DefaultSearchLimit)
	if limit < 1 || limit > query.MaxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	resp, err := s.engine.SemanticSearch(ctx, q, getStringDefault(args, "scope", query.ScopeAll), limit)
	if err != nil {
		return nil, s.queryError("search_code", err)
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleFindSymbol handles the find_symbol tool invocation
func (s *Server) handleFindSymbol(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}

	result, err := s.engine.FindSymbol(ctx, name,
		getBoolDefault(args, "include_usages", true),
		getIntDefault(args, "max_usages", query.DefaultMaxUsages))
	if err != nil {
		return nil, s.queryError("find_symbol", err)
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleTraceDependencies handles the trace_dependencies tool invocation
func (s *Server) handleTraceDependencies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	target, err := requireString(args, "target")
	if err != nil {
		return nil, err
	}

	result, err := s.engine.TraceDependencies(ctx, target,
		getStringDefault(args, "direction", query.DirectionBoth),
		getStringSlice(args, "relationship_types"),
		getIntDefault(args, "depth", query.DefaultTraceDepth))
	if err != nil {
		return nil, s.queryError("trace_dependencies", err)
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetContext handles the get_context tool invocation
func (s *Server) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	component, err := requireString(args, "component")
	if err != nil {
		return nil, err
	}

	result, err := s.engine.GetContext(ctx, component,
		getStringDefault(args, "detail_level", query.DetailDetailed),
		getBoolDefault(args, "include_related", true))
	if err != nil {
		return nil, s.queryError("get_context", err)
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleExplainCode handles the explain_code tool invocation
func (s *Server) handleExplainCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}

	result, err := s.engine.ExplainEntity(ctx, name,
		getBoolDefault(args, "include_callers", true),
		getBoolDefault(args, "include_callees", true))
	if err != nil {
		return nil, s.queryError("explain_code", err)
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleFindCodeLocation handles the find_code_location tool invocation
func (s *Server) handleFindCodeLocation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	line := getIntDefault(args, "line", 0)
	if line < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "line must be a positive integer", map[string]interface{}{
			"param": "line",
			"value": line,
		})
	}

	result, err := s.engine.FindCodeAtLocation(ctx, path, line)
	if err != nil {
		return nil, s.queryError("find_code_location", err)
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.engine.Status(ctx)
	if err != nil {
		return nil, s.queryError("get_status", err)
	}

	response := map[string]interface{}{
		"monitored_paths": s.roots,
		"statistics":      status,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// queryError maps a query engine error onto an MCP error
func (s *Server) queryError(tool string, err error) error {
	if errors.Is(err, query.ErrInvalidArgument) {
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	}
	s.logger.Warn("tool failed", zap.String("tool", tool), zap.Error(err))
	return newMCPError(ErrorCodeInternalError, tool+" failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// arguments returns the tool call arguments as a map; anything else is empty
func arguments(request mcp.CallToolRequest) map[string]interface{} {
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		return args
	}
	return map[string]interface{}{}
}

// requireString extracts a non-empty string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter; non-string items are ignored
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
