package deps

import (
	"os"
	"path/filepath"
	"strings"
)

// markerStore persists one sentinel file per verified dependency key so a
// fresh process can skip slow cache probes on restart. Markers are a
// best-effort optimization; write failures are swallowed because the
// underlying artifact cache remains authoritative.
type markerStore struct {
	dir string
}

func (s *markerStore) path(key string) string {
	return filepath.Join(s.dir, safeKey(key)+".ok")
}

func (s *markerStore) exists(key string) bool {
	if s == nil || s.dir == "" {
		return false
	}
	_, err := os.Stat(s.path(key))
	return err == nil
}

func (s *markerStore) mark(key string) {
	if s == nil || s.dir == "" {
		return
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(s.path(key), []byte("ok\n"), 0o644)
}

func safeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
