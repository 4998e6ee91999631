package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ExportInfo describes a written export file.
type ExportInfo struct {
	Path        string
	Bytes       int64 // uncompressed
	Compression string
}

func (i ExportInfo) String() string {
	if i.Compression == "" {
		return fmt.Sprintf("%d bytes", i.Bytes)
	}
	return fmt.Sprintf("%d bytes, %s", i.Bytes, i.Compression)
}

// ResolveExportPath places relative paths under dir and expands a leading ~/.
func ResolveExportPath(dir, path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// Export writes text to path, creating parent directories. A .gz suffix
// writes gzip and .zst writes zstd.
func Export(path, text string) (ExportInfo, error) {
	info := ExportInfo{Path: path, Bytes: int64(len(text))}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return info, fmt.Errorf("create export dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return info, fmt.Errorf("create export: %w", err)
	}

	var w io.WriteCloser = nopCloser{f}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		info.Compression = "gzip"
		w = gzip.NewWriter(f)
	case ".zst":
		info.Compression = "zstd"
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return info, fmt.Errorf("zstd writer: %w", err)
		}
		w = enc
	}

	if _, err := io.WriteString(w, text); err != nil {
		w.Close()
		f.Close()
		return info, fmt.Errorf("write export: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return info, fmt.Errorf("flush export: %w", err)
	}
	if err := f.Close(); err != nil {
		return info, fmt.Errorf("close export: %w", err)
	}
	return info, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
