package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	content := `
target: all
resolver:
  archive-url: https://archive.example.org
  concurrency: 8
streamproxy:
  allowed-domain: archive.example.org
`

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	cfg, err := LoadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, "all", cfg.Target)
	assert.Equal(t, "https://archive.example.org", cfg.Resolver.ArchiveURL)
	assert.Equal(t, 8, cfg.Resolver.Concurrency)
	assert.Equal(t, "archive.example.org", cfg.StreamProxy.AllowedDomain)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yml")
	require.Error(t, err)
}
