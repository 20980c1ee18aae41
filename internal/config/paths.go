// internal/config/paths.go
package config

import (
	"os"
	"path/filepath"
)

// Paths holds the resolved application directories
type Paths struct {
	HomeDir        string
	ReplayDir      string
	ArchiveDir     string
	CheckpointsDir string
	DatabasePath   string
	ResultsDir     string
}

// LoadPaths resolves the default directory layout and ensures the
// application directories exist. The archive directory is external input
// and is deliberately not created here.
func LoadPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	replayDir := filepath.Join(home, ".replaylab")
	checkpointsDir := filepath.Join(replayDir, "checkpoints")
	resultsDir := filepath.Join(replayDir, "results")

	for _, dir := range []string{replayDir, checkpointsDir, resultsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	return &Paths{
		HomeDir:        home,
		ReplayDir:      replayDir,
		ArchiveDir:     filepath.Join(home, ".config", "superpowers", "conversation-archive"),
		CheckpointsDir: checkpointsDir,
		DatabasePath:   filepath.Join(replayDir, "runs.db"),
		ResultsDir:     resultsDir,
	}, nil
}
