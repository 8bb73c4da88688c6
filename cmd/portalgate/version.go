package main

import (
	"fmt"

	"github.com/aretw0/portalgate"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of portalgate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "portalgate version %s\n", portalgate.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
