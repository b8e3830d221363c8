package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/evonet/internal/constants"
)

// GlobalPath returns the per-user .evonet directory.
// On Unix: ~/.evonet
// On Windows: %USERPROFILE%\.evonet
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName), nil
}

// LocalPath returns the .evonet directory for the given project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DirName)
}

// CheckpointPath returns the checkpoint directory for the given project root.
func CheckpointPath(projectRoot string) string {
	return filepath.Join(LocalPath(projectRoot), constants.CheckpointDir)
}

// ArchivePath returns the default export directory for the given project root.
func ArchivePath(projectRoot string) string {
	return filepath.Join(LocalPath(projectRoot), constants.ArchiveDir)
}

// EnsureLocalDir creates the project's .evonet directory if it doesn't exist.
func EnsureLocalDir(projectRoot string) error {
	if err := os.MkdirAll(LocalPath(projectRoot), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", constants.DirName, err)
	}
	return nil
}
