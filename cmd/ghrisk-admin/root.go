// Command ghrisk-admin runs operator tasks against a GH risk deployment: schema
// migrations, artifact inspection, offline batch scoring, advice export and MCP client setup.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gh-risk-server/internal/app"
	"github.com/gh-risk-server/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configDirs []string
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:   "ghrisk-admin",
	Short: "Operator tool for the gestational hypertension risk server",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringSliceVar(&rootFlags.configDirs, "config-dir", []string{".", "./config", "/etc/gh-risk/"},
		"Directories searched for config.yaml")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log at debug level to stderr")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(adviceCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.Version = version
}

// loadConfig reads and validates the server configuration and builds a stderr logger.
func loadConfig() (*config.Manager, *logrus.Logger, error) {
	mgr, err := config.NewManagerWithPaths(rootFlags.configDirs...)
	if err != nil {
		return nil, nil, err
	}
	if err := mgr.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logCfg := mgr.GetConfig().Logging
	logCfg.Output = "stderr"
	if rootFlags.verbose {
		logCfg.Level = "debug"
	} else {
		logCfg.Level = "warn"
	}
	return mgr, app.NewLogger(logCfg), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
