package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCmd_RefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentwall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: strict\n"), 0o644))

	cfgFile = path
	t.Cleanup(func() { cfgFile = "agentwall.yaml" })

	cmd := newInitCmd()
	cmd.SetArgs(nil)
	err := cmd.RunE(cmd, nil)
	assert.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "mode: strict\n", string(data), "existing file must be left untouched")
}

func TestInitCmd_WritesDefaultConfigWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentwall.yaml")

	cfgFile = path
	t.Cleanup(func() { cfgFile = "agentwall.yaml" })

	cmd := newInitCmd()
	require.NoError(t, cmd.RunE(cmd, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mode:")
}
