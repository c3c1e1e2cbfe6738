package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cometbft/cometbft/rpc/client/http"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/calehh/hac-vote/app"
)

type queryArguments struct {
	Url       string
	Id        uint64
	Viewer    string
	Voter     string
	Address   string
	Nullifier string
}

var queryArgs queryArguments

var queryCmd = &cobra.Command{
	Use:   "query <path>",
	Short: "Query committed state, e.g. proposal, tally, result, registrations, ballots, nonce",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return queryRun(&queryArgs, args[0])
	},
}

func init() {
	urlFlag(queryCmd, &queryArgs.Url)
	queryCmd.Flags().Uint64VarP(&queryArgs.Id, "id", "i", 0, "proposal id")
	queryCmd.Flags().StringVar(&queryArgs.Viewer, "viewer", "", "address visibility rules are evaluated for, defaults to --voter")
	queryCmd.Flags().StringVar(&queryArgs.Voter, "voter", "", "voter address")
	queryCmd.Flags().StringVarP(&queryArgs.Address, "address", "a", "", "account address")
	queryCmd.Flags().StringVar(&queryArgs.Nullifier, "nullifier", "", "hex nullifier")
}

func queryRun(a *queryArguments, path string) error {
	if a.Viewer == "" {
		a.Viewer = a.Voter
	}
	req := app.QueryRequest{
		Proposal: a.Id,
		Viewer:   common.HexToAddress(a.Viewer),
		Voter:    common.HexToAddress(a.Voter),
		Address:  common.HexToAddress(a.Address),
	}
	if a.Nullifier != "" {
		n, err := hexutil.Decode(a.Nullifier)
		if err != nil {
			return fmt.Errorf("invalid nullifier: %w", err)
		}
		req.Nullifier = n
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	cli, err := http.New(a.Url, "/websocket")
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	var out json.RawMessage
	if err = abciQuery(context.Background(), cli, path, req, &out); err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err = json.Indent(&pretty, out, "", "  "); err != nil {
		return err
	}
	fmt.Println(pretty.String())
	return nil
}
