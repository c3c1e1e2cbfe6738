package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calehh/hac-vote/tx"
	"github.com/calehh/hac-vote/types"
)

var proposalCmd = &cobra.Command{
	Use:   "proposal",
	Short: "Create proposals and drive their lifecycle",
}

func idFlag(cmd *cobra.Command, id *uint64) {
	cmd.Flags().Uint64VarP(id, "id", "i", 0, "proposal id")
	_ = cmd.MarkFlagRequired("id")
}

func readJSON(path string, v any) error {
	dat, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(dat, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func proposalTxCmd(use, short string, tp tx.VoteTxType) *cobra.Command {
	var (
		a  txArguments
		id uint64
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendTx(&a, tp, &tx.ProposalTx{Proposal: id})
		},
	}
	txFlags(cmd, &a)
	idFlag(cmd, &id)
	return cmd
}

type createArguments struct {
	txArguments
	ConfigFile string
}

var createArgs createArguments

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a proposal from a JSON config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg types.Config
		if err := readJSON(createArgs.ConfigFile, &cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return sendTx(&createArgs.txArguments, tx.VoteTxTypeCreateProposal, &tx.CreateProposalTx{Config: cfg})
	},
}

type whitelistArguments struct {
	txArguments
	Id   uint64
	File string
}

var whitelistArgs whitelistArguments

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Add whitelist entries from a JSON array file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var entries []types.WhitelistEntry
		if err := readJSON(whitelistArgs.File, &entries); err != nil {
			return err
		}
		return sendTx(&whitelistArgs.txArguments, tx.VoteTxTypeAddWhitelist, &tx.AddWhitelistTx{
			Proposal: whitelistArgs.Id,
			Entries:  entries,
		})
	},
}

type weightGroupArguments struct {
	txArguments
	Id     uint64
	Index  uint32
	Weight uint64
}

var weightGroupArgs weightGroupArguments

var weightGroupCmd = &cobra.Command{
	Use:   "weight-group",
	Short: "Change the weight of one weight group before voting starts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendTx(&weightGroupArgs.txArguments, tx.VoteTxTypeSetWeightGroup, &tx.SetWeightGroupTx{
			Proposal: weightGroupArgs.Id,
			Index:    weightGroupArgs.Index,
			Weight:   weightGroupArgs.Weight,
		})
	},
}

func init() {
	txFlags(createCmd, &createArgs.txArguments)
	createCmd.Flags().StringVarP(&createArgs.ConfigFile, "config", "c", "proposal.json", "proposal config file")

	txFlags(whitelistCmd, &whitelistArgs.txArguments)
	idFlag(whitelistCmd, &whitelistArgs.Id)
	whitelistCmd.Flags().StringVarP(&whitelistArgs.File, "file", "f", "whitelist.json", "whitelist entries file")

	txFlags(weightGroupCmd, &weightGroupArgs.txArguments)
	idFlag(weightGroupCmd, &weightGroupArgs.Id)
	weightGroupCmd.Flags().Uint32Var(&weightGroupArgs.Index, "index", 0, "weight group index")
	weightGroupCmd.Flags().Uint64Var(&weightGroupArgs.Weight, "weight", 1, "new weight")

	proposalCmd.AddCommand(
		createCmd,
		proposalTxCmd("start-registration", "Open registration", tx.VoteTxTypeStartRegistration),
		proposalTxCmd("start-voting", "Open voting", tx.VoteTxTypeStartVoting),
		proposalTxCmd("start-tallying", "Close voting", tx.VoteTxTypeStartTallying),
		proposalTxCmd("reveal", "Compute and publish the result", tx.VoteTxTypeRevealResult),
		proposalTxCmd("cancel", "Cancel a proposal", tx.VoteTxTypeCancel),
		whitelistCmd,
		weightGroupCmd,
	)
}
