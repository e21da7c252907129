// Package archive extracts downloaded zip archives into a model
// directory, reporting per-entry progress so observers can display
// extraction state for large archives.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Entry describes extraction progress for a single archive entry.
type Entry struct {
	// Name is the entry path inside the archive.
	Name string

	// Index is the zero-based position of this entry.
	Index int

	// Total is the number of entries in the archive.
	Total int
}

// IsZip reports whether the file name looks like a zip archive.
func IsZip(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// ExtractZip extracts zipPath into destDir one entry at a time, calling
// onEntry after each entry is written. Entries escaping destDir are
// rejected. Extraction stops early if ctx is cancelled.
func ExtractZip(ctx context.Context, zipPath, destDir string, onEntry func(Entry)) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}
	defer r.Close()

	total := len(r.File)
	for i, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := extractEntry(f, destDir); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
		if onEntry != nil {
			onEntry(Entry{Name: f.Name, Index: i, Total: total})
		}
	}

	return nil
}

func extractEntry(f *zip.File, destDir string) error {
	outPath, err := sanitizePath(destDir, f.Name)
	if err != nil {
		return err
	}

	if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
		return os.MkdirAll(outPath, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o200)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("write output file: %w", err)
	}

	return out.Close()
}

// sanitizePath joins name under destDir and rejects traversal outside it.
func sanitizePath(destDir, name string) (string, error) {
	outPath := filepath.Join(destDir, filepath.FromSlash(name))
	base := filepath.Clean(destDir)
	if outPath != base && !strings.HasPrefix(outPath, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal entry path %q", name)
	}
	return outPath, nil
}
