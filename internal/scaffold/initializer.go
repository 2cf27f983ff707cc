// Package scaffold creates a new Lodge workspace: a lodge.yml and a starter
// datasheet template.
package scaffold

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dyluth/lodge/internal/config"
	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/pkg/datasheet"
)

//go:embed templates/*
var templatesFS embed.FS

// TemplatesDir is where starter datasheet templates are written.
const TemplatesDir = "templates"

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Options controls Initialize.
type Options struct {
	Dir       string   // Workspace directory; empty means the current directory
	Instance  string   // Instance name written to lodge.yml
	RedisURL  string   // Optional; defaults to the local Redis
	Operators []string // Actors allowed to unlock ratings
	Force     bool     // Overwrite an existing workspace
}

// Initialize writes lodge.yml and the starter templates into opts.Dir and
// returns the paths it created, relative to the workspace.
func Initialize(opts Options) ([]string, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	if opts.Force {
		if err := removeExisting(dir); err != nil {
			return nil, err
		}
	} else if err := CheckExisting(dir); err != nil {
		return nil, err
	}

	files, err := workspaceFiles(opts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, TemplatesDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", TemplatesDir, err)
	}

	created := make([]string, 0, len(files))
	for _, file := range files {
		if err := os.WriteFile(filepath.Join(dir, file.Path), file.Content, file.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		created = append(created, file.Path)
	}

	if err := validateCreatedFiles(dir, files); err != nil {
		return nil, err
	}
	return created, nil
}

func removeExisting(dir string) error {
	path := filepath.Join(dir, config.DefaultFileName)
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", config.DefaultFileName, err)
		}
	}
	return nil
}

// workspaceFiles renders lodge.yml and collects the embedded templates.
func workspaceFiles(opts Options) ([]FileInfo, error) {
	cfg := config.Defaults()
	if opts.Instance != "" {
		cfg.Instance = opts.Instance
	}
	if opts.RedisURL != "" {
		cfg.Redis.URL = opts.RedisURL
	}
	cfg.Operators = opts.Operators
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workspace settings: %w", err)
	}
	lodgeYml, err := cfg.Marshal()
	if err != nil {
		return nil, err
	}
	files := []FileInfo{{Path: config.DefaultFileName, Content: lodgeYml, Permissions: 0644}}

	entries, err := templatesFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}
	for _, entry := range entries {
		content, err := templatesFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}
		files = append(files, FileInfo{
			Path:        filepath.Join(TemplatesDir, entry.Name()),
			Content:     content,
			Permissions: 0644,
		})
	}
	return files, nil
}

// validateCreatedFiles reloads lodge.yml and checks every template layout.
func validateCreatedFiles(dir string, files []FileInfo) error {
	if _, err := config.Load(filepath.Join(dir, config.DefaultFileName)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", config.DefaultFileName, err)
	}
	for _, file := range files {
		if filepath.Dir(file.Path) != TemplatesDir {
			continue
		}
		if _, err := LoadDocument(filepath.Join(dir, file.Path)); err != nil {
			return err
		}
	}
	return nil
}

// LoadDocument reads a document definition (header, layout, is_template) from
// a JSON file and validates its layout.
func LoadDocument(path string) (*lifecycle.NewDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc lifecycle.NewDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := datasheet.ValidateLayout(doc.Header, doc.Layout); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &doc, nil
}

// PrintSuccess prints the created files and next steps.
func PrintSuccess(w io.Writer, created []string) {
	fmt.Fprintln(w, "\n✅ Successfully initialized Lodge workspace!")
	fmt.Fprintln(w, "\nCreated:")
	for _, path := range created {
		fmt.Fprintf(w, "  ✓ %s\n", path)
	}
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Point redis.url in lodge.yml at your Redis server")
	fmt.Fprintln(w, "  2. Run 'lodged' to start the API and rebuild worker")
	fmt.Fprintf(w, "  3. Run 'lodge doc create --file %s' to register the starter template\n",
		filepath.Join(TemplatesDir, "centrifugal-pump.json"))
}
