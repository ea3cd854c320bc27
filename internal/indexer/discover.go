package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the file extensions treated as C++ sources
var DefaultExtensions = []string{".cpp", ".cc", ".cxx", ".hpp", ".h", ".hxx", ".c", ".inl"}

// DefaultExcludes are skipped directory and file patterns
var DefaultExcludes = []string{"build", "cmake-build-*", "third_party", "node_modules", "*.pb.h", "*.pb.cc"}

// DiscoverOptions controls which files a directory run picks up
type DiscoverOptions struct {
	Extensions  []string // matched case-insensitively, with or without the dot
	Exclude     []string // glob patterns matched against names and root-relative paths
	MaxFileSize int64    // larger files are skipped; 0 disables the check
}

// Discover walks roots and returns matching source files as absolute,
// cleaned paths in lexical order. Hidden directories are skipped.
func Discover(roots []string, opts DiscoverOptions) ([]string, error) {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}

	seen := make(map[string]struct{})
	var files []string

	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %q: %w", root, err)
		}
		if _, err := os.Stat(absRoot); err != nil {
			return nil, fmt.Errorf("failed to stat root %q: %w", root, err)
		}

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, _ := filepath.Rel(absRoot, path)
			if d.IsDir() {
				if path != absRoot && (strings.HasPrefix(d.Name(), ".") || excluded(d.Name(), rel, opts.Exclude)) {
					return filepath.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() || !MatchExtension(path, opts.Extensions) || excluded(d.Name(), rel, opts.Exclude) {
				return nil
			}

			if opts.MaxFileSize > 0 {
				info, err := d.Info()
				if err != nil {
					return err
				}
				if info.Size() > opts.MaxFileSize {
					return nil
				}
			}

			if _, dup := seen[path]; !dup {
				seen[path] = struct{}{}
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %q: %w", root, err)
		}
	}

	return files, nil
}

// MatchExtension reports whether path has one of the extensions
func MatchExtension(path string, extensions []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return false
	}
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func excluded(name, rel string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// underRoots reports whether path lies inside one of the absolute roots
func underRoots(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
