package main

import (
	"os"

	"github.com/spf13/cobra"
)

const (
	DefaultURL = "http://127.0.0.1:26657"
	urlEnv     = "HACVOTE_NODE"
)

func urlFlag(cmd *cobra.Command, url *string) {
	def := DefaultURL
	if v := os.Getenv(urlEnv); v != "" {
		def = v
	}
	cmd.Flags().StringVarP(url, "url", "u", def, "hacvote node rpc url")
}

func homeFlag(cmd *cobra.Command, home *string) {
	cmd.Flags().StringVarP(home, "home", "d", os.ExpandEnv("$HOME/.hacvote"), "home directory")
}
