package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"welfare-caseworker/internal/risk"
)

func generateDatasetCmd() *cobra.Command {
	var (
		samples int
		seed    int64
		out     string
	)

	cmd := &cobra.Command{
		Use:   "generate-dataset",
		Short: "Write a synthetic labelled welfare dataset as CSV",
		RunE: func(_ *cobra.Command, _ []string) error {
			if samples <= 0 {
				return fmt.Errorf("--samples must be positive, got %d", samples)
			}
			data := risk.GenerateDataset(samples, seed)
			if err := writeDataset(out, data); err != nil {
				return err
			}

			levels := map[string]int{}
			for _, s := range data {
				levels[string(s.RiskLevel)]++
			}
			log.Info("dataset written",
				zap.String("path", out),
				zap.Int("samples", len(data)),
				zap.Int64("seed", seed),
				zap.Any("levels", levels),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&samples, "samples", 1000, "number of cases to generate")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().StringVar(&out, "out", "data/welfare_cases.csv", "output CSV path")
	return cmd
}

func writeDataset(path string, data []risk.Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	defer func() { _ = f.Close() }()
	return risk.WriteCSV(f, data)
}

func readDataset(path string) ([]risk.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()
	return risk.ReadCSV(f)
}
