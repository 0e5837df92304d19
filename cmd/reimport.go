package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/placefeed/curator/internal/model"
)

var (
	reimportTarget string
	reimportLimit  int
	reimportDryRun bool
)

var reimportCmd = &cobra.Command{
	Use:   "reimport",
	Short: "Queue published entities back through the pipeline",
	Long:  "Reimport creates new-stage records from published content entities so stale copy gets re-enriched and rewritten. Entities already queued are skipped, and on publish the originating entity is updated in place.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("maintenance"); err != nil {
			return err
		}

		target := model.TargetType(reimportTarget)
		switch target {
		case model.TargetPlace, model.TargetLocality, model.TargetEvent:
		default:
			return eris.Errorf("unsupported target type: %s", reimportTarget)
		}

		svc, st, err := initMaintenance(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := svc.Reimport(ctx, target, reimportLimit, reimportDryRun)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	reimportCmd.Flags().StringVar(&reimportTarget, "target", string(model.TargetLocality), "entity type to reimport: place, locality or event")
	reimportCmd.Flags().IntVar(&reimportLimit, "limit", 100, "max entities to examine")
	reimportCmd.Flags().BoolVar(&reimportDryRun, "dry-run", false, "report what would be queued without creating records")
	rootCmd.AddCommand(reimportCmd)
}
