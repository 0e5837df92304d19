package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/placefeed/curator/internal/model"
)

var scrubAction string

var scrubCmd = &cobra.Command{
	Use:   "scrub",
	Short: "Retag or delete place records that are really localities",
	Long:  "Broad lookup queries sometimes return whole towns as places. Scrub finds place records whose type tags carry a locality marker and no establishment marker, then retags them as localities or deletes them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("maintenance"); err != nil {
			return err
		}

		svc, st, err := initMaintenance(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := svc.Scrub(ctx, model.ScrubAction(scrubAction))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	scrubCmd.Flags().StringVar(&scrubAction, "action", string(model.ScrubRetag), "what to do with matches: retag or delete")
	rootCmd.AddCommand(scrubCmd)
}
