// Package storage provides object storage adapters for layer file sources.
package storage

import (
	"path"
	"path/filepath"
	"strings"
)

// Filter selects object keys by file extension.
type Filter struct {
	exts map[string]bool
}

// NewFilter creates a filter accepting the given extensions. Extensions are
// matched case-insensitively and may be given with or without a dot. An
// empty filter accepts every key.
func NewFilter(exts ...string) Filter {
	f := Filter{exts: make(map[string]bool, len(exts))}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.exts[ext] = true
	}
	return f
}

// Match reports whether key is a valid key with an accepted extension.
func (f Filter) Match(key string) bool {
	if !ValidKey(key) {
		return false
	}
	if len(f.exts) == 0 {
		return true
	}
	return f.exts[strings.ToLower(path.Ext(key))]
}

// ValidKey reports whether key is a relative slash-separated path that stays
// below the directory it is joined to.
func ValidKey(key string) bool {
	return key != "" && !strings.Contains(key, `\`) && filepath.IsLocal(filepath.FromSlash(key))
}
