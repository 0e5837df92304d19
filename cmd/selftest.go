package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Verify the text generation provider is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		provider, err := initProvider()
		if err != nil {
			return err
		}

		if err := provider.TestConnection(cmd.Context()); err != nil {
			return eris.Wrapf(err, "provider %s unreachable", provider.Name())
		}

		fmt.Printf("provider %s ok\n", provider.Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}
