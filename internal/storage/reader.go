// Package storage reads raw line-protocol input and persists profiling
// outputs: compressed recipe documents, span recipes, QA reports and the
// completion marker.
package storage

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// scanBufferSize allows single lines up to 1MB.
const scanBufferSize = 1 << 20

// Reader streams raw protocol lines from a hierarchical input path. Plain
// .wf files are read as-is; .wf.gz and .wf.zst are decompressed on the fly.
// Files with other extensions are skipped.
type Reader struct {
	root string
}

// NewReader creates a reader over the given input root.
func NewReader(root string) *Reader {
	return &Reader{root: root}
}

// Walk streams every line of every input file through fn in file-walk order.
// An unreadable root or file is an error; the caller decides whether that is
// fatal for the run.
func (r *Reader) Walk(ctx context.Context, fn func(line string) error) error {
	info, err := os.Stat(r.root)
	if err != nil {
		return fmt.Errorf("reading input path %s: %w", r.root, err)
	}
	if !info.IsDir() {
		return r.readFile(ctx, r.root, fn)
	}

	return filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking %s: %w", path, err)
		}
		if d.IsDir() || !inputFile(path) {
			return nil
		}
		return r.readFile(ctx, path, fn)
	})
}

func inputFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".wf") ||
		strings.HasSuffix(name, ".wf.gz") ||
		strings.HasSuffix(name, ".wf.zst")
}

func (r *Reader) readFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var src io.Reader = f
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		src = gz
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening zstd stream %s: %w", path, err)
		}
		defer zr.Close()
		src = zr
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
