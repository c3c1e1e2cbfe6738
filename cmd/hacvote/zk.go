package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/calehh/hac-vote/zkp"
)

var zkCmd = &cobra.Command{
	Use:   "zk",
	Short: "Membership proof tooling",
}

type zkSetupArguments struct {
	Depth int
	Out   string
}

var zkSetupArgs zkSetupArguments

var zkSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Compile the membership circuit and run a local Groth16 setup",
	Long: `Compile the membership circuit for the chain's tree depth and write the
circuit, proving key and verifying key. The keys come from a single party;
use keys from a ceremony for production chains.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := zkp.Setup(zkSetupArgs.Depth)
		if err != nil {
			return err
		}
		if err = zkp.WriteKeys(zkSetupArgs.Out, keys); err != nil {
			return err
		}
		fmt.Printf("constraints:%d\nverifying key:%s\n", keys.CS.GetNbConstraints(), filepath.Join(zkSetupArgs.Out, zkp.VerifyingKeyFile))
		return nil
	},
}

func init() {
	zkSetupCmd.Flags().IntVar(&zkSetupArgs.Depth, "depth", 20, "tree depth, must match the genesis merkle_depth")
	zkSetupCmd.Flags().StringVarP(&zkSetupArgs.Out, "out", "o", "./zk", "output directory")
	zkCmd.AddCommand(zkSetupCmd)
}
