package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hacvote",
	Short: "hacvote runs and drives a governance voting chain",
	Long: `hacvote is a CometBFT application for proposal lifecycles, voter
registration, weighted and anonymous ballots and tallying.`,
}

func main() {
	cobra.OnInitialize(func() { _ = godotenv.Load() })
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(proposalCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(zkCmd)
	rootCmd.AddCommand(versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
