package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"welfare-caseworker/internal/risk"
)

func trainCmd() *cobra.Command {
	opts := risk.DefaultTrainOptions()
	var (
		dataPath string
		out      string
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier and regressor forests and save the bundle",
		RunE: func(_ *cobra.Command, _ []string) error {
			data, err := readDataset(dataPath)
			if err != nil {
				return err
			}

			if !quiet {
				bar := newTreeBar(opts.Trees * 2)
				opts.OnTree = func() { _ = bar.Add(1) }
			}

			log.Info("training started",
				zap.String("data", dataPath),
				zap.Int("samples", len(data)),
				zap.Int("trees", opts.Trees),
				zap.Int("maxDepth", opts.MaxDepth),
				zap.Float64("testSplit", opts.TestSplit),
			)
			bundle, err := risk.Train(data, opts)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}
			if err := bundle.Save(out); err != nil {
				return fmt.Errorf("save bundle: %w", err)
			}

			log.Info("model bundle saved",
				zap.String("path", out),
				zap.Float64("accuracy", bundle.Metrics.Accuracy),
				zap.Float64("rmse", bundle.Metrics.RMSE),
				zap.Int("trainSamples", bundle.Metrics.TrainSamples),
				zap.Int("testSamples", bundle.Metrics.TestSamples),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "data/welfare_cases.csv", "training CSV path")
	cmd.Flags().StringVar(&out, "out", "models/risk_bundle.json", "output bundle path")
	cmd.Flags().IntVar(&opts.Trees, "trees", opts.Trees, "trees per forest")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", opts.MaxDepth, "maximum tree depth")
	cmd.Flags().Float64Var(&opts.TestSplit, "test-split", opts.TestSplit, "held-out fraction in [0,1)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "disable the progress bar")
	return cmd
}

func newTreeBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("growing trees"),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(os.Stderr)
		}),
	)
}
