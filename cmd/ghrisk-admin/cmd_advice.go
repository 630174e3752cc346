package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gh-risk-server/internal/app"
)

var adviceFlags struct {
	out string
}

var adviceCmd = &cobra.Command{
	Use:   "advice",
	Short: "Clinician advice maintenance",
}

var adviceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all clinician advice as JSON",
	RunE:  runAdviceExport,
}

func init() {
	adviceExportCmd.Flags().StringVarP(&adviceFlags.out, "out", "o", "", "Output file (default stdout)")
	adviceCmd.AddCommand(adviceExportCmd)
}

func runAdviceExport(cmd *cobra.Command, _ []string) error {
	mgr, logger, err := loadConfig()
	if err != nil {
		return err
	}
	components, err := app.New(cmd.Context(), mgr, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	var w io.Writer = cmd.OutOrStdout()
	if adviceFlags.out != "" {
		f, err := os.Create(adviceFlags.out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", adviceFlags.out, err)
		}
		defer f.Close()
		w = f
	}
	return components.Advice.Export(cmd.Context(), w)
}
