//go:build sqlite_vec && !purego

package storage

// Compiled with CGO and the sqlite_vec tag. Registers the sqlite-vec
// extension so vector ranking runs inside SQLite.
//
// Build command:
//   CGO_ENABLED=1 go build -tags sqlite_vec ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

func init() {
	sqlite_vec.Auto()
}

// encodeVector produces the float32 blob layout sqlite-vec reads
func encodeVector(vector []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(vector)
}
