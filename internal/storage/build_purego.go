//go:build purego || !sqlite_vec

package storage

// Compiled without the sqlite_vec tag (or with purego). Uses a pure Go
// SQLite; vector ranking happens in Go.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

// encodeVector produces the little-endian float32 blob layout
func encodeVector(vector []float32) ([]byte, error) {
	return serializeVector(vector), nil
}
