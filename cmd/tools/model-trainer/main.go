// cmd/tools/model-trainer/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"welfare-caseworker/internal/common/logger"
)

var log *zap.Logger

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "model-trainer",
		Short: "Build and evaluate the welfare risk model bundle",
		Long: `Generate the synthetic welfare dataset, train the risk classifier and
score regressor forests, and evaluate a saved bundle against labelled data.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			l, err := logger.New(logger.Options{Level: level, Format: "console", Service: "model-trainer"})
			if err != nil {
				return err
			}
			log = l
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&level, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(generateDatasetCmd())
	cmd.AddCommand(trainCmd())
	cmd.AddCommand(evaluateCmd())
	return cmd
}
