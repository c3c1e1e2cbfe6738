package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cometbft/cometbft/rpc/client/http"
	"github.com/spf13/cobra"

	"github.com/calehh/hac-vote/app"
	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/tx"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/zkp"
)

type choiceArguments struct {
	Option  uint32
	Ranking []string
	Options []string
	Amounts []uint64
}

func choiceFlags(cmd *cobra.Command, a *choiceArguments) {
	cmd.Flags().Uint32Var(&a.Option, "option", 0, "option index for single choice ballots")
	cmd.Flags().StringSliceVar(&a.Ranking, "ranking", nil, "option indexes in preference order for ranked ballots")
	cmd.Flags().StringSliceVar(&a.Options, "options", nil, "option indexes for quadratic ballots")
	cmd.Flags().Uint64SliceVar(&a.Amounts, "amounts", nil, "credits spent per option for quadratic ballots")
}

func (a *choiceArguments) choice() (types.Choice, error) {
	switch {
	case len(a.Ranking) > 0:
		ranking, err := parseUint32s(a.Ranking)
		if err != nil {
			return types.Choice{}, err
		}
		return types.RankedChoice(ranking), nil
	case len(a.Options) > 0:
		options, err := parseUint32s(a.Options)
		if err != nil {
			return types.Choice{}, err
		}
		if len(options) != len(a.Amounts) {
			return types.Choice{}, errors.New("--options and --amounts differ in length")
		}
		return types.QuadraticChoice(options, a.Amounts), nil
	}
	return types.SingleChoice(a.Option), nil
}

type voteArguments struct {
	txArguments
	choiceArguments
	Id uint64
}

var voteArgs voteArguments

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Cast a ballot as the key holder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		choice, err := voteArgs.choice()
		if err != nil {
			return err
		}
		return sendTx(&voteArgs.txArguments, tx.VoteTxTypeCastVote, &tx.CastVoteTx{
			Proposal: voteArgs.Id,
			Choice:   choice,
		})
	},
}

type anonymousVoteArguments struct {
	choiceArguments
	Url      string
	Id       uint64
	Identity string
	ZkDir    string
	NoSend   bool
}

var anonymousVoteArgs anonymousVoteArguments

var anonymousVoteCmd = &cobra.Command{
	Use:   "anonymous",
	Short: "Prove group membership and cast an unsigned ballot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return anonymousVoteRun(&anonymousVoteArgs)
	},
}

func anonymousVoteRun(a *anonymousVoteArguments) error {
	choice, err := a.choice()
	if err != nil {
		return err
	}
	id, err := loadIdentity(a.Identity)
	if err != nil {
		return err
	}
	cli, err := http.New(a.Url, "/websocket")
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	ctx := context.Background()
	var g membership.Group
	if err = abciQuery(ctx, cli, "/group/", app.QueryRequest{Proposal: a.Id}, &g); err != nil {
		return err
	}
	commitment := id.Commitment()
	index := -1
	for i, leaf := range g.Leaves {
		if bytes.Equal(leaf, commitment) {
			index = i
			break
		}
	}
	if index < 0 {
		return membership.ErrMemberNotFound
	}
	w, err := zkp.BuildWitness(id, &g, uint64(index), a.Id, choice)
	if err != nil {
		return err
	}
	prover, err := zkp.ReadProver(a.ZkDir, g.Depth)
	if err != nil {
		return fmt.Errorf("load prover: %w", err)
	}
	proof, err := prover.Prove(w)
	if err != nil {
		return err
	}
	vtx := &tx.VoteTx{
		Version: tx.VoteTxVersion1,
		Type:    tx.VoteTxTypeAnonymousVote,
		Tx: &tx.AnonymousVoteTx{
			Proposal:  a.Id,
			Root:      w.Root,
			Nullifier: w.Nullifier,
			Choice:    choice,
			Proof:     proof,
		},
	}
	dat, err := tx.MarshalVoteTx(vtx)
	if err != nil {
		return err
	}
	if a.NoSend {
		fmt.Println(string(dat))
		return nil
	}
	return broadcast(ctx, cli, dat)
}

func init() {
	txFlags(voteCmd, &voteArgs.txArguments)
	idFlag(voteCmd, &voteArgs.Id)
	choiceFlags(voteCmd, &voteArgs.choiceArguments)

	urlFlag(anonymousVoteCmd, &anonymousVoteArgs.Url)
	idFlag(anonymousVoteCmd, &anonymousVoteArgs.Id)
	choiceFlags(anonymousVoteCmd, &anonymousVoteArgs.choiceArguments)
	anonymousVoteCmd.Flags().StringVar(&anonymousVoteArgs.Identity, "identity", "./identity.secret", "identity secret file")
	anonymousVoteCmd.Flags().StringVar(&anonymousVoteArgs.ZkDir, "zk-dir", "./zk", "directory holding the circuit and proving key")
	anonymousVoteCmd.Flags().BoolVar(&anonymousVoteArgs.NoSend, "nosend", false, "print the transaction instead of sending it")

	voteCmd.AddCommand(anonymousVoteCmd)
}
