// internal/checkpoint/storage.go
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"replaylab/internal/replay"
)

// Storage persists checkpoints as JSON documents. The field set on disk is
// exactly the data model: a saved checkpoint must round-trip losslessly,
// nested tool records included.
type Storage struct {
	baseDir string
}

// NewStorage creates a checkpoint storage rooted at baseDir
func NewStorage(baseDir string) *Storage {
	return &Storage{baseDir: baseDir}
}

// Path returns the on-disk location for a checkpoint
func (s *Storage) Path(conversationID string, step int) string {
	return filepath.Join(s.baseDir, conversationID, fmt.Sprintf("step-%d.json", step))
}

// Save writes a checkpoint, creating intermediate directories as needed
func (s *Storage) Save(cp *replay.Checkpoint, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint back. A missing file yields nil, not an error;
// a corrupt file is a hard failure.
func (s *Storage) Load(path string) (*replay.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp replay.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}
