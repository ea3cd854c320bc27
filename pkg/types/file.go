package types

import (
	"fmt"
	"strings"
)

// FileStatus is the indexing state of a tracked source file
type FileStatus string

const (
	FilePending  FileStatus = "pending"
	FileIndexing FileStatus = "indexing"
	FileIndexed  FileStatus = "indexed"
)

// Valid reports whether s is one of the known file states
func (s FileStatus) Valid() bool {
	switch s {
	case FilePending, FileIndexing, FileIndexed:
		return true
	}
	return false
}

// ParseFileStatus converts a string into a FileStatus
func ParseFileStatus(s string) (FileStatus, error) {
	st := FileStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: file status %q", ErrInvalidKind, s)
	}
	return st, nil
}
