package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/cppgraph-mcp/internal/query"
	"github.com/dshills/cppgraph-mcp/pkg/types"
)

func relationKindNames() []string {
	names := make([]string, len(types.RelationKinds))
	for i, k := range types.RelationKinds {
		names[i] = string(k)
	}
	return names
}

// indexCodebaseTool returns the tool definition for index_codebase
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Index C++ source trees into the code knowledge graph. Unchanged files are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"description": "Absolute directories to index; defaults to the configured monitored paths",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Semantic search over indexed C++ code with a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language description of the code to find",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to chunks of functions, classes or whole files",
					"enum":        []string{query.ScopeAll, query.ScopeFunctions, query.ScopeClasses, query.ScopeFiles},
					"default":     query.ScopeAll,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     query.DefaultSearchLimit,
					"minimum":     1,
					"maximum":     query.MaxSearchLimit,
				},
			},
			Required: []string{"query"},
		},
	}
}

// findSymbolTool returns the tool definition for find_symbol
func findSymbolTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_symbol",
		Description: "Find a class, function, namespace or enum by name and list where it is used",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Simple or qualified symbol name (e.g. 'Renderer' or 'gfx::Renderer::draw')",
				},
				"include_usages": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include incoming relationships",
					"default":     true,
				},
				"max_usages": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of usages to return",
					"default":     query.DefaultMaxUsages,
					"minimum":     1,
				},
			},
			Required: []string{"name"},
		},
	}
}

// traceDependenciesTool returns the tool definition for trace_dependencies
func traceDependenciesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "trace_dependencies",
		Description: "Trace what an entity depends on and what depends on it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"target": map[string]interface{}{
					"type":        "string",
					"description": "Entity name to trace",
				},
				"direction": map[string]interface{}{
					"type":        "string",
					"description": "incoming (dependents), outgoing (dependencies) or both",
					"enum":        []string{query.DirectionIncoming, query.DirectionOutgoing, query.DirectionBoth},
					"default":     query.DirectionBoth,
				},
				"relationship_types": map[string]interface{}{
					"type":        "array",
					"description": "Relationship kinds to follow; all when omitted",
					"items": map[string]interface{}{
						"type": "string",
						"enum": relationKindNames(),
					},
				},
				"depth": map[string]interface{}{
					"type":        "integer",
					"description": "Number of hops to follow",
					"default":     query.DefaultTraceDepth,
					"minimum":     1,
					"maximum":     query.MaxTraceDepth,
				},
			},
			Required: []string{"target"},
		},
	}
}

// getContextTool returns the tool definition for get_context
func getContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_context",
		Description: "Gather the entities, code and related snippets that make up a component",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"component": map[string]interface{}{
					"type":        "string",
					"description": "Component name or qualified name fragment",
				},
				"detail_level": map[string]interface{}{
					"type":        "string",
					"description": "brief omits code; detailed and comprehensive include it",
					"enum":        []string{query.DetailBrief, query.DetailDetailed, query.DetailComprehensive},
					"default":     query.DetailDetailed,
				},
				"include_related": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, attach the most similar code snippets",
					"default":     true,
				},
			},
			Required: []string{"component"},
		},
	}
}

// explainCodeTool returns the tool definition for explain_code
func explainCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "explain_code",
		Description: "Show an entity's code together with its callers and callees",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Entity name",
				},
				"include_callers": map[string]interface{}{
					"type":    "boolean",
					"default": true,
				},
				"include_callees": map[string]interface{}{
					"type":    "boolean",
					"default": true,
				},
			},
			Required: []string{"name"},
		},
	}
}

// findCodeLocationTool returns the tool definition for find_code_location
func findCodeLocationTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_code_location",
		Description: "Find the innermost entity enclosing a file and line, e.g. from a stack frame",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File path or file name as it appears in the frame",
				},
				"line": map[string]interface{}{
					"type":        "integer",
					"description": "1-based line number",
					"minimum":     1,
				},
			},
			Required: []string{"path", "line"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics and the embedding configuration",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
