package connection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dvbox/pkg/logging"
)

// settingsDocument is the JSON shape shared with the desktop shell's
// settings persistence. Only the connections array belongs to us; the
// shell keeps its own keys in separate documents.
type settingsDocument struct {
	Connections []*Connection `json:"connections"`
}

// SettingsFile reads and writes the connection array as a JSON document
// on disk. Writes are atomic (temp file + rename) and the file is
// created owner-only because records carry secrets in clear text.
type SettingsFile struct {
	mu   sync.Mutex
	path string
}

// NewSettingsFile creates an adapter for the document at path.
func NewSettingsFile(path string) *SettingsFile {
	return &SettingsFile{path: path}
}

// Path returns the document location, for watchers and diagnostics.
func (f *SettingsFile) Path() string {
	return f.path
}

// LoadConnections reads the document. A missing file is an empty set,
// not an error: first launch has no settings yet.
func (f *SettingsFile) LoadConnections() ([]*Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read settings %s: %w", f.path, err)
	}

	var doc settingsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", f.path, err)
	}
	return doc.Connections, nil
}

// SaveConnections writes the document atomically with owner-only
// permissions. Implements the store's Persister interface.
func (f *SettingsFile) SaveConnections(conns []*Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if conns == nil {
		conns = []*Connection{}
	}
	data, err := json.MarshalIndent(settingsDocument{Connections: conns}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create settings directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".connections-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("restrict temp settings file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace settings %s: %w", f.path, err)
	}

	logging.Debug("Connections", "Saved %d connections to %s", len(conns), f.path)
	return nil
}
