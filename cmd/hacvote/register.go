package main

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/tx"
)

type registerArguments struct {
	txArguments
	Id    uint64
	Group int64
}

var registerArgs registerArguments

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the key holder as a voter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rtx := &tx.RegisterTx{Proposal: registerArgs.Id}
		if registerArgs.Group >= 0 {
			g := uint32(registerArgs.Group)
			rtx.WeightGroup = &g
		}
		return sendTx(&registerArgs.txArguments, tx.VoteTxTypeRegister, rtx)
	},
}

func loadIdentity(path string) (membership.Identity, error) {
	dat, err := os.ReadFile(path)
	if err != nil {
		return membership.Identity{}, err
	}
	secret, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(dat)), "0x"))
	if err != nil {
		return membership.Identity{}, err
	}
	return membership.IdentityFromSecret(secret)
}

type anonymousRegisterArguments struct {
	txArguments
	Id       uint64
	Identity string
}

var anonymousRegisterArgs anonymousRegisterArguments

var anonymousRegisterCmd = &cobra.Command{
	Use:   "anonymous",
	Short: "Register an identity commitment for an anonymous proposal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := loadIdentity(anonymousRegisterArgs.Identity)
		if err != nil {
			return err
		}
		return sendTx(&anonymousRegisterArgs.txArguments, tx.VoteTxTypeRegisterAnonymous, &tx.RegisterAnonymousTx{
			Proposal:   anonymousRegisterArgs.Id,
			Commitment: id.Commitment(),
		})
	},
}

func voterTxCmd(use, short string, tp tx.VoteTxType) *cobra.Command {
	var (
		a     txArguments
		id    uint64
		voter string
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendTx(&a, tp, &tx.VoterTx{Proposal: id, Voter: common.HexToAddress(voter)})
		},
	}
	txFlags(cmd, &a)
	idFlag(cmd, &id)
	cmd.Flags().StringVar(&voter, "voter", "", "voter address")
	_ = cmd.MarkFlagRequired("voter")
	return cmd
}

type batchApproveArguments struct {
	txArguments
	Id     uint64
	Voters []string
}

var batchApproveArgs batchApproveArguments

var batchApproveCmd = &cobra.Command{
	Use:   "batch-approve",
	Short: "Approve several pending registrations at once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		voters := make([]common.Address, 0, len(batchApproveArgs.Voters))
		for _, v := range batchApproveArgs.Voters {
			voters = append(voters, common.HexToAddress(v))
		}
		return sendTx(&batchApproveArgs.txArguments, tx.VoteTxTypeBatchApprove, &tx.BatchApproveTx{
			Proposal: batchApproveArgs.Id,
			Voters:   voters,
		})
	},
}

func init() {
	txFlags(registerCmd, &registerArgs.txArguments)
	idFlag(registerCmd, &registerArgs.Id)
	registerCmd.Flags().Int64VarP(&registerArgs.Group, "group", "g", -1, "weight group index for weighted proposals")

	txFlags(anonymousRegisterCmd, &anonymousRegisterArgs.txArguments)
	idFlag(anonymousRegisterCmd, &anonymousRegisterArgs.Id)
	anonymousRegisterCmd.Flags().StringVar(&anonymousRegisterArgs.Identity, "identity", "./identity.secret", "identity secret file")

	txFlags(batchApproveCmd, &batchApproveArgs.txArguments)
	idFlag(batchApproveCmd, &batchApproveArgs.Id)
	batchApproveCmd.Flags().StringSliceVar(&batchApproveArgs.Voters, "voters", nil, "comma separated voter addresses")

	registerCmd.AddCommand(
		anonymousRegisterCmd,
		voterTxCmd("approve", "Approve a pending registration", tx.VoteTxTypeApprove),
		voterTxCmd("reject", "Reject a pending registration", tx.VoteTxTypeReject),
		batchApproveCmd,
	)
}
