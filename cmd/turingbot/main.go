package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/minofeel/TuringBot/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "turingbot",
	Short:         "Chat message logger for TuringBot",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "turingbot", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("turingbot: %v", err)
	}
}
