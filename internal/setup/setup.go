// Package setup registers the GH risk MCP lite server with the Claude Desktop client.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerName is the key under mcpServers in the desktop client config.
const ServerName = "gh-risk-screening"

// BinaryName is the lite MCP server executable.
const BinaryName = "mcp-server-lite"

// ClaudeDesktopConfig represents the Claude Desktop configuration file structure.
// Keys other than mcpServers are preserved on save.
type ClaudeDesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	extra      map[string]json.RawMessage
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for the setup process.
type Options struct {
	BinaryPath  string // Path to the server binary; searched when empty
	DataDir     string // GH_RISK_DATA_DIR for the server
	ArtifactDir string // GH_RISK_ARTIFACT_DIR for the server
}

// Status represents the current registration.
type Status struct {
	ConfigPath  string   `json:"config_path"`
	Configured  bool     `json:"configured"`
	ServerPath  string   `json:"server_path,omitempty"`
	DataDir     string   `json:"data_dir,omitempty"`
	ArtifactDir string   `json:"artifact_dir,omitempty"`
	Issues      []string `json:"issues"`
}

// GetClaudeDesktopConfigPath returns the path to Claude Desktop's config file.
func GetClaudeDesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClaudeDesktopConfig loads the configuration; a missing file yields an empty one.
func LoadClaudeDesktopConfig(configPath string) (*ClaudeDesktopConfig, error) {
	cfg := &ClaudeDesktopConfig{
		MCPServers: make(map[string]MCPServerConfig),
		extra:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]MCPServerConfig)
	}
	return cfg, nil
}

// SaveClaudeDesktopConfig writes the configuration, creating its directory.
func SaveClaudeDesktopConfig(configPath string, cfg *ClaudeDesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(cfg.extra)+1)
	for k, v := range cfg.extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Configure adds or replaces the GH risk server entry in the config at configPath.
func Configure(configPath string, opts Options) (*MCPServerConfig, error) {
	cfg, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		return nil, err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		if binaryPath, err = findBinary(); err != nil {
			return nil, fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := MCPServerConfig{Command: binaryPath, Env: map[string]string{}}
	if opts.DataDir != "" {
		entry.Env["GH_RISK_DATA_DIR"] = opts.DataDir
	}
	if opts.ArtifactDir != "" {
		entry.Env["GH_RISK_ARTIFACT_DIR"] = opts.ArtifactDir
	}
	cfg.MCPServers[ServerName] = entry

	if err := SaveClaudeDesktopConfig(configPath, cfg); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Inspect reports whether the server is registered and whether its paths exist.
func Inspect(configPath string) (*Status, error) {
	status := &Status{ConfigPath: configPath, Issues: []string{}}

	cfg, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		return nil, err
	}
	entry, ok := cfg.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, "GH risk server is not registered")
		return status, nil
	}

	status.Configured = true
	status.ServerPath = entry.Command
	status.DataDir = entry.Env["GH_RISK_DATA_DIR"]
	status.ArtifactDir = entry.Env["GH_RISK_ARTIFACT_DIR"]

	if info, err := os.Stat(entry.Command); err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found: %s", entry.Command))
	} else if info.Mode()&0111 == 0 {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary is not executable: %s", entry.Command))
	}
	if status.ArtifactDir != "" {
		if _, err := os.Stat(status.ArtifactDir); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("Artifact directory not found: %s", status.ArtifactDir))
		}
	}
	return status, nil
}

// findBinary attempts to find the server binary in common locations.
func findBinary() (string, error) {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./" + BinaryName,
		"./build/" + BinaryName,
		filepath.Join(home, ".local", "bin", BinaryName),
		"/usr/local/bin/" + BinaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}
	return "", fmt.Errorf("binary '%s' not found in common locations", BinaryName)
}
