package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/gh-risk-server/internal/app"
)

var artifactsFlags struct {
	dir string
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect the model artifact bundle",
}

var artifactsInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Load and validate the bundle, then print its summary as JSON",
	RunE:  runArtifactsInspect,
}

func init() {
	artifactsInspectCmd.Flags().StringVar(&artifactsFlags.dir, "dir", "", "Artifact directory (defaults to artifacts.dir)")
	artifactsCmd.AddCommand(artifactsInspectCmd)
}

func runArtifactsInspect(cmd *cobra.Command, _ []string) error {
	mgr, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := *mgr.GetConfig()
	if artifactsFlags.dir != "" {
		cfg.Artifacts.Dir = artifactsFlags.dir
	}

	registry, err := app.LoadRegistry(&cfg, logger)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(registry.Current().Summarize())
}
