package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// writeFile streams r into dest through a temporary file in the same
// directory. Importers never observe a partially written layer file.
func writeFile(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// trimKey strips the source prefix from an object name.
func trimKey(name, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(name, prefix), "/")
}

// joinKey prepends the source prefix to a key.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
