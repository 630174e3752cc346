package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gh-risk-server/internal/setup"
)

var setupFlags struct {
	configPath  string
	binary      string
	dataDir     string
	artifactDir string
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Register the lite MCP server with Claude Desktop",
}

var setupDesktopCmd = &cobra.Command{
	Use:   "claude-desktop",
	Short: "Add or update the GH risk server entry in the desktop client config",
	RunE:  runSetupDesktop,
}

var setupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current registration",
	RunE:  runSetupStatus,
}

func init() {
	pf := setupCmd.PersistentFlags()
	pf.StringVar(&setupFlags.configPath, "client-config", "", "Desktop client config file (auto-detected when empty)")

	f := setupDesktopCmd.Flags()
	f.StringVarP(&setupFlags.binary, "binary", "b", "", "Path to mcp-server-lite (searched when empty)")
	f.StringVarP(&setupFlags.dataDir, "data-dir", "d", "", "Data directory passed as GH_RISK_DATA_DIR")
	f.StringVar(&setupFlags.artifactDir, "artifact-dir", "", "Artifact directory passed as GH_RISK_ARTIFACT_DIR")

	setupCmd.AddCommand(setupDesktopCmd, setupStatusCmd)
}

func clientConfigPath() (string, error) {
	if setupFlags.configPath != "" {
		return setupFlags.configPath, nil
	}
	return setup.GetClaudeDesktopConfigPath()
}

func runSetupDesktop(cmd *cobra.Command, _ []string) error {
	path, err := clientConfigPath()
	if err != nil {
		return err
	}
	entry, err := setup.Configure(path, setup.Options{
		BinaryPath:  setupFlags.binary,
		DataDir:     setupFlags.dataDir,
		ArtifactDir: setupFlags.artifactDir,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Registered %q in %s\n", setup.ServerName, path)
	fmt.Fprintf(out, "Command: %s\n", entry.Command)
	for k, v := range entry.Env {
		fmt.Fprintf(out, "  %s=%s\n", k, v)
	}
	fmt.Fprintln(out, "Restart the desktop client to load the server.")
	return nil
}

func runSetupStatus(cmd *cobra.Command, _ []string) error {
	path, err := clientConfigPath()
	if err != nil {
		return err
	}
	status, err := setup.Inspect(path)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		return err
	}
	if !status.Configured {
		os.Exit(2)
	}
	return nil
}
