package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_PreservesOtherEntries(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "Claude", "claude_desktop_config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"theme": "dark",
		"mcpServers": {"other": {"command": "/bin/other"}}
	}`), 0644))

	binary := filepath.Join(dir, BinaryName)
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))

	entry, err := Configure(configPath, Options{BinaryPath: binary, DataDir: "/data/gh", ArtifactDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "/data/gh", entry.Env["GH_RISK_DATA_DIR"])

	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	var saved map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.JSONEq(t, `"dark"`, string(saved["theme"]))

	cfg, err := LoadClaudeDesktopConfig(configPath)
	require.NoError(t, err)
	assert.Contains(t, cfg.MCPServers, "other")
	assert.Equal(t, binary, cfg.MCPServers[ServerName].Command)

	status, err := Inspect(configPath)
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.Empty(t, status.Issues)
}

func TestInspect_NotConfigured(t *testing.T) {
	status, err := Inspect(filepath.Join(t.TempDir(), "missing.json"))

	require.NoError(t, err)
	assert.False(t, status.Configured)
	assert.Len(t, status.Issues, 1)
}

func TestInspect_MissingBinary(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	_, err := Configure(configPath, Options{BinaryPath: "/nonexistent/" + BinaryName})
	require.NoError(t, err)

	status, err := Inspect(configPath)

	require.NoError(t, err)
	assert.True(t, status.Configured)
	require.Len(t, status.Issues, 1)
	assert.Contains(t, status.Issues[0], "not found")
}

func TestLoadClaudeDesktopConfig_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

	_, err := LoadClaudeDesktopConfig(configPath)

	assert.Error(t, err)
}
