package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	resetHard  bool
	resetID    string
	resetForce bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Soft-reset records to the start of the pipeline, or hard-delete them",
	Long:  "Soft reset moves records back to the new stage keeping their raw data. Hard reset deletes every ingest record; published content entities are never touched.",
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

		if resetHard {
			if resetID != "" {
				return eris.New("--hard resets the whole table, not a single record")
			}
			if !resetForce && !confirm("Hard reset deletes ALL ingest records. Continue? [y/N] ") {
				fmt.Println("aborted")
				return nil
			}
			n, err := svc.HardReset(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d records\n", n)
			return nil
		}

		if resetID != "" {
			if err := svc.SoftReset(ctx, resetID); err != nil {
				return eris.Wrapf(err, "reset %s", resetID)
			}
			fmt.Printf("reset %s\n", resetID)
			return nil
		}

		n, err := svc.SoftResetAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("reset %d records\n", n)
		return nil
	},
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	resetCmd.Flags().BoolVar(&resetHard, "hard", false, "delete all ingest records instead of resetting them")
	resetCmd.Flags().StringVar(&resetID, "id", "", "reset a single record by id")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "skip the hard reset confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}
