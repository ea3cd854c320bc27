package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDiscover verifies extension filtering, exclusions, hidden dirs and size limits
func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "src/a.cpp", "void a() {}\n")
	b := createTestFile(t, dir, "src/B.HPP", "void b();\n")
	createTestFile(t, dir, "src/msg.pb.h", "// generated\n")
	createTestFile(t, dir, "cmake-build-debug/x.cpp", "void x() {}\n")
	createTestFile(t, dir, ".cache/y.cpp", "void y() {}\n")
	createTestFile(t, dir, "docs/readme.md", "text\n")
	big := createTestFile(t, dir, "src/big.cc", string(make([]byte, 2048)))

	files, err := Discover([]string{dir, dir}, DiscoverOptions{Exclude: DefaultExcludes})
	require.NoError(t, err)
	assert.Equal(t, []string{b, a, big}, files)

	files, err = Discover([]string{dir}, DiscoverOptions{Exclude: DefaultExcludes, MaxFileSize: 1024})
	require.NoError(t, err)
	assert.Equal(t, []string{b, a}, files)

	_, err = Discover([]string{filepath.Join(dir, "nope")}, DiscoverOptions{})
	assert.Error(t, err)
}

// TestMatchExtension verifies case-insensitive extension matching
func TestMatchExtension(t *testing.T) {
	assert.True(t, MatchExtension("a.CPP", DefaultExtensions))
	assert.True(t, MatchExtension("a.inl", []string{"inl"}))
	assert.False(t, MatchExtension("Makefile", DefaultExtensions))
	assert.False(t, MatchExtension("a.go", DefaultExtensions))
}

// TestUnderRoots verifies root containment
func TestUnderRoots(t *testing.T) {
	root := string(os.PathSeparator) + filepath.Join("src", "engine")
	assert.True(t, underRoots(filepath.Join(root, "a.cpp"), []string{root}))
	assert.True(t, underRoots(root, []string{root}))
	assert.False(t, underRoots(filepath.Join(root+"2", "a.cpp"), []string{root}))
	assert.False(t, underRoots(string(os.PathSeparator)+"other", []string{root}))
}
