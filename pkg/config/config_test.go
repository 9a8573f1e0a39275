package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidechannel-merge/sidechannel/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "output-directory: /tmp/out\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", cfg.OutputDirectory)
	assert.False(t, cfg.DumpCallTree)
	assert.True(t, cfg.IncludeMemoryAccessesInDump)
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, "output-directory: /tmp/out\ndump-call-tree: true\ninclude-memory-accesses-in-dump: false\nmap-directory: /tmp/maps\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.DumpCallTree)
	assert.False(t, cfg.IncludeMemoryAccessesInDump)
	assert.Equal(t, "/tmp/maps", cfg.MapDirectory)
}

func TestLoadRejectsMissingOutputDirectory(t *testing.T) {
	path := writeConfig(t, "dump-call-tree: true\n")

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output-directory")
}
