package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileSchemaVersion tags every persisted chain-sessions.json document so
// future loaders can tolerate missing-field defaults from older schemas,
// per spec §6's "All persisted JSON is schema-versioned" contract.
const fileSchemaVersion = 1

type persistedFile struct {
	Version  int                 `json:"version"`
	Sessions map[string]*Session `json:"sessions"`
}

// writeAtomic serializes sessions to path using write-to-temp, fsync,
// rename — spec §4.2's atomic-write requirement, a hardening of the
// teacher's plain os.WriteFile session/snapshot persistence.
func writeAtomic(path string, sessions map[string]*Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	data, err := json.MarshalIndent(persistedFile{Version: fileSchemaVersion, Sessions: sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".chain-sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// loadFile reads path best-effort: a missing or corrupt file yields empty
// state plus a warning, never an error, per spec §4.2.
func loadFile(path string) (map[string]*Session, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Session{}, ""
		}
		return map[string]*Session{}, fmt.Sprintf("read %s: %v", path, err)
	}
	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return map[string]*Session{}, fmt.Sprintf("parse %s: %v", path, err)
	}
	if pf.Sessions == nil {
		pf.Sessions = map[string]*Session{}
	}
	return pf.Sessions, ""
}
