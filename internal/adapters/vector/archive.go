package vector

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobrunner/geolayers/internal/domain"
)

// maxEntryBytes caps a single decompressed archive entry.
const maxEntryBytes = 512 << 20

// openZip opens data as a zip archive. A non-zip payload is a DecodeError.
func openZip(format string, data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &domain.DecodeError{Format: format, Err: err}
	}
	return zr, nil
}

// readEntry returns the decompressed content of f.
func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	if len(data) > maxEntryBytes {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, maxEntryBytes)
	}
	return data, nil
}

// extractEntry writes f to dir under name.
func extractEntry(f *zip.File, dir, name string) error {
	data, err := readEntry(f)
	if err != nil {
		return err
	}
	dest := filepath.Join(dir, name)
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}

// entryExt returns the lower-cased extension of a zip entry, ignoring
// directories and macOS resource forks.
func entryExt(f *zip.File) string {
	if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
		return ""
	}
	return strings.ToLower(filepath.Ext(f.Name))
}
