package permission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/fieldrec/pkg/recording"
)

// grantsFile is the on-disk form of the grants
type grantsFile struct {
	Grants    map[recording.Capability]bool `json:"grants"`
	UpdatedAt time.Time                     `json:"updated_at"`
}

// loadGrants reads the grants file. A missing file yields no grants.
func loadGrants(path string) (map[recording.Capability]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[recording.Capability]bool), nil
		}
		return nil, fmt.Errorf("failed to read grants file: %w", err)
	}

	var f grantsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse grants file: %w", err)
	}
	if f.Grants == nil {
		f.Grants = make(map[recording.Capability]bool)
	}
	return f.Grants, nil
}

// saveGrants writes the grants file atomically
func saveGrants(path string, grants map[recording.Capability]bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create grants directory: %w", err)
	}

	data, err := json.MarshalIndent(grantsFile{Grants: grants, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal grants: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write grants file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace grants file: %w", err)
	}
	return nil
}
