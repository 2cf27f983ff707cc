package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/lodge/internal/config"
)

// CheckExisting returns an error if dir already holds a lodge.yml.
func CheckExisting(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, config.DefaultFileName)); err == nil {
		return fmt.Errorf("workspace already initialized\n\nFound existing: %s\n\nUse 'lodge init --force' to reinitialize (this will overwrite existing configuration)",
			config.DefaultFileName)
	}
	return nil
}
