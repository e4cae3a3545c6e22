package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hiveworks/hivemind/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the hivemind version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hivemind %s\n", version.Get())
	},
}
