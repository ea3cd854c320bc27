// Package storage persists the C++ code graph in SQLite.
//
// The store holds four kinds of rows:
//   - files: tracked paths with content hash and indexing status
//   - entities: namespaces, classes, structs, functions and enums
//   - relationships: resolved edges between two stored entities
//   - chunks: spans of source text with their embedding vector
//
// Deleting a file cascades to its entities, their relationships and the
// file's chunks. Relationship and chunk kinds are closed sets enforced both
// in Go and by CHECK constraints.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("graph.db", storage.WithDimension(384))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	file := &storage.File{Path: "src/engine.cpp", ContentHash: hash}
//	if err := store.UpsertFile(ctx, file); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Re-indexing a file replaces everything derived from it inside one
// transaction, so readers never observe a half-replaced file:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	if err := tx.DeleteFileData(ctx, file.ID); err != nil {
//	    return err
//	}
//	// insert entities, relationships and chunks through tx
//	return tx.Commit()
//
// The pool has a single connection. While a transaction is open, every read
// must go through the transaction as well.
//
// # Embedding Dimension
//
// The dimension a store was created with is recorded in store_meta.
// Reopening with a different dimension, or inserting a chunk whose
// embedding has another width, fails with ErrDimensionMismatch.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 with the sqlite-vec extension
//
//   - Vector ranking runs in SQL via vec_distance_cosine
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite
//
//   - Cosine similarity is computed in Go over the candidate chunks
//
//     CGO_ENABLED=0 go build
package storage
