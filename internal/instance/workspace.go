package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/lodge/internal/config"
)

// ErrNoWorkspace is returned when no lodge.yml exists in the directory or
// any of its parents.
var ErrNoWorkspace = errors.New("no lodge.yml found in this directory or any parent")

// FindConfig walks up from dir to the filesystem root and returns the
// absolute path of the first lodge.yml it finds. Symlinks in dir are resolved.
func FindConfig(dir string) (string, error) {
	realPath, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}
	current, err := filepath.Abs(realPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		candidate := filepath.Join(current, config.DefaultFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", ErrNoWorkspace
		}
		current = parent
	}
}

// LoadConfig loads the configuration at path, or discovers lodge.yml from the
// working directory when path is empty. The instance name is validated.
func LoadConfig(path string) (*config.LodgeConfig, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		if path, err = FindConfig(wd); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateName(cfg.Instance); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
