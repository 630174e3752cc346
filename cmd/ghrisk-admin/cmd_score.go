package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gh-risk-server/internal/app"
	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/service"
)

var scoreFlags struct {
	input   string
	format  string
	persist bool
	workers int
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a CSV or JSON batch of screening inputs offline",
	Long: `Score a batch of screening inputs against the configured artifact bundle.

Without --persist nothing is written. With --persist every input that carries a
patient_id is saved to the configured store, exactly as the API would.`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.StringVarP(&scoreFlags.input, "input", "i", "", "Batch file, or - for stdin")
	f.StringVar(&scoreFlags.format, "format", "auto", "Input format: auto, csv or json")
	f.BoolVar(&scoreFlags.persist, "persist", false, "Save assessments for inputs with a patient_id")
	f.IntVarP(&scoreFlags.workers, "workers", "w", 0, "Concurrent scorers (defaults to assessment.batch_workers)")
	_ = scoreCmd.MarkFlagRequired("input")
}

type scoreReport struct {
	Total   int                   `json:"total"`
	Failed  int                   `json:"failed"`
	Results []service.BatchResult `json:"results"`
}

func runScore(cmd *cobra.Command, _ []string) error {
	format, err := inputFormat(scoreFlags.format, scoreFlags.input)
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if scoreFlags.input != "-" {
		f, err := os.Open(scoreFlags.input)
		if err != nil {
			return fmt.Errorf("opening batch: %w", err)
		}
		defer f.Close()
		r = f
	}
	inputs, err := readInputs(r, format)
	if err != nil {
		return err
	}

	mgr, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.GetConfig()
	if scoreFlags.workers > 0 {
		cfg.Assessment.BatchWorkers = scoreFlags.workers
	}

	var svc *service.AssessmentService
	if scoreFlags.persist {
		components, err := app.New(cmd.Context(), mgr, logger)
		if err != nil {
			return err
		}
		defer components.Close()
		svc = components.Assessments
	} else {
		registry, err := app.LoadRegistry(cfg, logger)
		if err != nil {
			return err
		}
		if svc, err = service.NewAssessmentService(logger, registry, nil, nil, cfg.Assessment, cfg.Store); err != nil {
			return err
		}
	}

	results, err := svc.AssessBatch(cmd.Context(), inputs, domain.SourceBatch)
	if err != nil {
		return err
	}

	report := scoreReport{Total: len(results), Results: results}
	for _, res := range results {
		if res.Error != "" {
			report.Failed++
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
