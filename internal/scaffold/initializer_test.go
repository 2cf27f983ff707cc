package scaffold

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/lodge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_CreatesWorkspace(t *testing.T) {
	dir := t.TempDir()

	created, err := Initialize(Options{
		Dir:       dir,
		Instance:  "plant-a",
		RedisURL:  "redis://redis.internal:6379/2",
		Operators: []string{"olivia"},
	})
	require.NoError(t, err)
	assert.Contains(t, created, config.DefaultFileName)
	assert.Contains(t, created, filepath.Join(TemplatesDir, "centrifugal-pump.json"))

	cfg, err := config.Load(filepath.Join(dir, config.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, "plant-a", cfg.Instance)
	assert.Equal(t, "redis://redis.internal:6379/2", cfg.Redis.URL)
	assert.True(t, cfg.IsOperator("olivia"))
	assert.Equal(t, 100, cfg.Revisions.MaxPageSize)
}

func TestInitialize_RefusesExistingWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultFileName), []byte("instance: old\n"), 0644))

	_, err := Initialize(Options{Dir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
	assert.Contains(t, err.Error(), "lodge init --force")

	data, err := os.ReadFile(filepath.Join(dir, config.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, "instance: old\n", string(data))
}

func TestInitialize_Force(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultFileName), []byte("instance: old\n"), 0644))

	_, err := Initialize(Options{Dir: dir, Instance: "fresh", Force: true})
	require.NoError(t, err)

	cfg, err := config.Load(filepath.Join(dir, config.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, "fresh", cfg.Instance)
}

func TestInitialize_InvalidSettings(t *testing.T) {
	_, err := Initialize(Options{Dir: t.TempDir(), RedisURL: "http://not-redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid workspace settings")
}

func TestLoadDocument_StarterTemplate(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(Options{Dir: dir})
	require.NoError(t, err)

	doc, err := LoadDocument(filepath.Join(dir, TemplatesDir, "centrifugal-pump.json"))
	require.NoError(t, err)
	assert.True(t, doc.IsTemplate)
	assert.Equal(t, "Centrifugal pump", doc.Header.Name)
	require.NotEmpty(t, doc.Layout)
	assert.Equal(t, "general", doc.Layout[0].ID)
}

func TestLoadDocument_InvalidLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	body := `{"header":{"name":"x","tag":"t","project_id":"p","discipline":"d"},
		"layout":[{"id":"a","title":"A","fields":[
			{"definition_id":"f","label":"F","type":"number"},
			{"definition_id":"f","label":"F again","type":"number"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	_, err := LoadDocument(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")
}

func TestLoadDocument_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := LoadDocument(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestPrintSuccess(t *testing.T) {
	var buf bytes.Buffer
	PrintSuccess(&buf, []string{"lodge.yml", "templates/centrifugal-pump.json"})
	out := buf.String()
	assert.Contains(t, out, "✓ lodge.yml")
	assert.Contains(t, out, "lodge doc create --file templates/centrifugal-pump.json")
}

func TestCheckExisting(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckExisting(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultFileName), nil, 0644))
	assert.Error(t, CheckExisting(dir))
}
