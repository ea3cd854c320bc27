// Package indexer keeps the code graph in step with C++ sources on disk.
//
// Each file is handled as one unit: it is parsed (or chunked into fixed
// windows when it cannot be parsed), its chunks are embedded, and then a
// single transaction deletes everything previously derived from the file
// and writes the new entities, relationships and chunks. A failure at any
// step rolls the file back and leaves the previous data in place.
//
// # Basic Usage
//
//	idx, err := indexer.New(store, emb, indexer.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	stats, err := idx.IndexDirectory(ctx, []string{"/src/engine"})
//
// Files whose stored SHA-256 matches the current content are skipped.
//
// # Relationship Resolution
//
// The parser reports edges by name. A Resolver maps them to entity ids,
// looking in the current file first, then in files committed earlier in
// the same run, then in the store. Targets are tried as written, qualified
// by each enclosing scope of the source entity, and finally by their bare
// trailing identifier. Edges that do not resolve are dropped, and include
// edges are always dropped because they have no source entity.
//
// # Concurrency
//
// IndexFiles processes fixed-size batches with a bounded number of workers.
// A per-path lock keeps overlapping runs off the same file, and only one
// IndexDirectory call may run at a time; a second caller receives
// ErrIndexingInProgress.
//
// Monitor repeats IndexDirectory on an interval. Watcher reacts to fsnotify
// events with a per-path debounce.
package indexer
