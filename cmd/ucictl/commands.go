package main

import "github.com/spf13/cobra"

var (
	rootCmd = &cobra.Command{
		Use:           "ucictl",
		Short:         "UWB command interface tools.",
		Long:          ``,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}
