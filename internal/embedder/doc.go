// Package embedder turns chunk text into fixed-width vectors.
//
// Three providers implement the Embedder interface:
//
//   - local: offline, deterministic. Identifier tokens are hashed into 384
//     signed buckets and the result is normalized to unit length.
//   - jina: Jina AI embeddings API (1024 values by default)
//   - openai: OpenAI embeddings API (1536 values by default)
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{"void Renderer::draw() { ... }"},
//	})
//
// # Provider Selection
//
// With no explicit provider:
//
//  1. If CPPGRAPH_EMBEDDING_PROVIDER is set, use it
//  2. Else if JINA_API_KEY is set, use Jina AI
//  3. Else if OPENAI_API_KEY is set, use OpenAI
//  4. Else use the local provider
//
// # Dimension Checks
//
// Every vector a provider returns must have Dimension() values. Remote
// responses are checked as they arrive and callers re-check with
// CheckDimension or CheckBatch before persisting anything. A mismatch is
// reported as ErrDimensionMismatch and is never retried.
//
// # Caching and Retry
//
// Providers share an LRU cache keyed by the SHA-256 of the text. Remote
// batches only send cache misses, split into requests of at most
// MaxBatchSize texts. Network errors, 429 and 5xx responses are retried
// with exponential backoff; other 4xx responses fail at once.
package embedder
