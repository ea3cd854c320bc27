// Package mcp implements the Model Context Protocol (MCP) server for cppgraph.
//
// The server exposes the code knowledge graph to AI coding assistants as tools:
//   - index_codebase: index C++ source trees (defaults to the monitored paths)
//   - search_code: semantic search over code chunks
//   - find_symbol: look up an entity by name with its usages
//   - trace_dependencies: walk incoming and outgoing relationships
//   - get_context: gather the entities and snippets of a component
//   - explain_code: an entity's code with callers and callees
//   - find_code_location: the innermost entity at a file and line
//   - get_status: index statistics and embedding configuration
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started by the serve command and reads requests from stdin.
// Logs go to stderr because stdout carries the protocol:
//
//	cppgraph serve --config ~/.cppgraph/config.yaml
//
// # Tool: find_symbol
//
//	Request:
//	{
//	  "name": "find_symbol",
//	  "arguments": {"name": "Renderer::draw", "max_usages": 10}
//	}
//
//	Response:
//	{
//	  "query": "Renderer::draw",
//	  "found": true,
//	  "symbol": {"qualified_name": "gfx::Renderer::draw", "kind": "function", ...},
//	  "code": "void draw() { ... }",
//	  "usages": [{"kind": "calls", "from": {...}, "to": {...}, "line": 42}],
//	  "total_usages": 1
//	}
//
// A symbol that does not exist is a normal result with "found": false.
//
// # Tool: trace_dependencies
//
//	Request:
//	{
//	  "name": "trace_dependencies",
//	  "arguments": {
//	    "target": "gfx::Renderer",
//	    "direction": "both",
//	    "relationship_types": ["calls", "inherits"],
//	    "depth": 2
//	  }
//	}
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "cppgraph": {
//	      "command": "/usr/local/bin/cppgraph",
//	      "args": ["serve"],
//	      "env": {
//	        "JINA_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Handlers return *MCPError values:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "invalid path",
//	    "data": {"param": "paths", "reason": "path does not exist"}
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, embedding provider, etc.)
//   - -32002: Indexing in progress
//   - -32003: No paths given and none configured
//   - -32004: Empty search query
package mcp
