// Package query answers read-only questions about the code graph: symbol
// lookup, dependency traces, semantic search, context aggregation, entity
// explanations and location lookups.
//
// Every operation returns a normal result with Found set to false when
// nothing matches. Errors are reserved for invalid arguments and for store
// or embedding failures.
//
// Semantic search responses are cached in an LRU keyed by query, scope and
// k, with a TTL. Identical queries arriving together share one embedding
// call.
package query
