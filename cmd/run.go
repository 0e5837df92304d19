package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runMaxItems int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one batch of pending records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Pipeline.RunBatch(ctx, runMaxItems)
		if err != nil {
			return eris.Wrap(err, "run batch")
		}

		zap.L().Info("batch complete",
			zap.Int("processed", summary.Processed),
			zap.Int("errors", summary.Errors),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxItems, "max", 0, "max records this batch (default from config)")
	rootCmd.AddCommand(runCmd)
}
