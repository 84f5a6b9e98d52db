package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/uwb.hal/internal/version"
)

var (
	cmdVersion = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
)

func init() {
	rootCmd.AddCommand(cmdVersion)
}
