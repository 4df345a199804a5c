// Package geopackage reads OGC GeoPackage feature tables and reprojects
// coordinates through SpatiaLite.
package geopackage

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

// spatialiteDriver is an sqlite3 driver that loads mod_spatialite on connect.
const spatialiteDriver = "sqlite3_with_spatialite"

func init() {
	sql.Register(spatialiteDriver, &sqlite3.SQLiteDriver{
		Extensions: []string{spatiaLiteLibraryPath()},
	})
}

// spatiaLiteLibraryPath returns the SpatiaLite module to load. The
// SPATIALITE_LIBRARY_PATH environment variable wins, then the first known
// platform path that exists, then the bare module name resolved by the
// dynamic loader.
func spatiaLiteLibraryPath() string {
	if envPath := os.Getenv("SPATIALITE_LIBRARY_PATH"); envPath != "" {
		return envPath
	}

	candidates := []string{
		// Alpine Linux
		"/usr/lib/mod_spatialite.so",
		"/usr/lib/mod_spatialite.so.8",
		// Debian/Ubuntu
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so",
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so",
		// macOS Homebrew
		"/usr/local/lib/mod_spatialite.dylib",
		"/opt/homebrew/lib/mod_spatialite.dylib",
	}
	for _, p := range candidates {
		if _, err := os.Stat(filepath.Clean(p)); err == nil {
			return p
		}
	}
	return "mod_spatialite"
}
