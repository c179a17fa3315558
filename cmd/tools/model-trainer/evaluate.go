package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"welfare-caseworker/internal/risk"
)

func evaluateCmd() *cobra.Command {
	var modelPath, dataPath string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a saved bundle against a labelled CSV",
		RunE: func(_ *cobra.Command, _ []string) error {
			bundle, err := risk.LoadBundle(modelPath)
			if err != nil {
				return err
			}
			data, err := readDataset(dataPath)
			if err != nil {
				return err
			}
			m, err := risk.Evaluate(bundle, data)
			if err != nil {
				return fmt.Errorf("evaluate: %w", err)
			}
			log.Info("evaluation complete",
				zap.String("model", modelPath),
				zap.String("data", dataPath),
				zap.Int("samples", m.TestSamples),
				zap.Float64("accuracy", m.Accuracy),
				zap.Float64("rmse", m.RMSE),
				zap.Strings("features", bundle.FeatureNames),
				zap.Float64s("importances", bundle.FeatureImportances),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "models/risk_bundle.json", "bundle path")
	cmd.Flags().StringVar(&dataPath, "data", "data/welfare_cases.csv", "labelled CSV path")
	return cmd
}
