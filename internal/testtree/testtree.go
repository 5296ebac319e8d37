// Package testtree provides a declarative directory-tree builder for
// scan-pipeline tests.
//
// Trees are described as chunked file specs (including hardlinks and
// symlinks) and materialized under a single root, so tests can state
// their fixtures instead of hand-writing os.MkdirAll/os.WriteFile
// sequences.
package testtree

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dustin/go-humanize"
)

// File describes one file to create under a tree's root.
//
// Path holds one or more slash-separated relative paths; Path[0] is
// created with the given content and every subsequent path is hardlinked
// to it.
type File struct {
	Path   []string
	Chunks []Chunk
}

// Chunk fills a region of a file's content with a repeated pattern byte.
type Chunk struct {
	Pattern byte
	Size    string // IEC units, e.g. "1KiB" - parsed via humanize.ParseBytes
}

// Symlink describes a symbolic link to create under a tree's root.
type Symlink struct {
	Path   string
	Target string
}

// Tree is a declarative filesystem fixture.
type Tree struct {
	Files    []File
	Symlinks []Symlink
	Dirs     []string // empty directories to create explicitly
}

// Build materializes spec under root, failing the test on any error.
func Build(t *testing.T, root string, spec Tree) {
	t.Helper()

	for _, dir := range spec.Dirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	for _, f := range spec.Files {
		if err := sowFile(root, f); err != nil {
			t.Fatalf("create file %v: %v", f.Path, err)
		}
	}
	for _, s := range spec.Symlinks {
		linkPath := filepath.Join(root, s.Path)
		if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
			t.Fatalf("mkdir for symlink %s: %v", s.Path, err)
		}
		if err := os.Symlink(s.Target, linkPath); err != nil {
			t.Fatalf("symlink %s -> %s: %v", s.Path, s.Target, err)
		}
	}
}

func sowFile(root string, f File) error {
	if len(f.Path) == 0 {
		return nil
	}

	firstPath := filepath.Join(root, f.Path[0])
	if err := writeChunkedFile(firstPath, f.Chunks); err != nil {
		return err
	}

	for _, p := range f.Path[1:] {
		linkPath := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
			return err
		}
		if err := os.Link(firstPath, linkPath); err != nil {
			return err
		}
	}
	return nil
}

// writeChunkedFile writes spec's chunks to path, creating parent dirs.
func writeChunkedFile(path string, chunks []Chunk) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, c := range chunks {
		if err := writeChunk(f, c); err != nil {
			return err
		}
	}
	return nil
}

func writeChunk(f *os.File, c Chunk) error {
	const maxBufSize = 1 << 20

	size, err := humanize.ParseBytes(c.Size)
	if err != nil {
		return err
	}

	bufSize := int(size)
	if bufSize > maxBufSize {
		bufSize = maxBufSize
	}
	buf := bytes.Repeat([]byte{c.Pattern}, bufSize)

	remaining := int64(size)
	for remaining > 0 {
		toWrite := int64(len(buf))
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			return err
		}
		remaining -= toWrite
	}
	return nil
}

// File1 is a convenience constructor for a single-path file with one
// pattern-filled chunk, the common case in tests.
func File1(path string, pattern byte, size string) File {
	return File{Path: []string{path}, Chunks: []Chunk{{Pattern: pattern, Size: size}}}
}
