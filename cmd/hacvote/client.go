package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cometbft/cometbft/rpc/client/http"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/calehh/hac-vote/app"
	"github.com/calehh/hac-vote/crypto"
	"github.com/calehh/hac-vote/tx"
)

type txArguments struct {
	Url     string
	KeyFile string
	Nonce   int64
	NoSend  bool
}

func txFlags(cmd *cobra.Command, a *txArguments) {
	urlFlag(cmd, &a.Url)
	cmd.Flags().StringVarP(&a.KeyFile, "key", "k", "./voter.key", "private key file")
	cmd.Flags().Int64VarP(&a.Nonce, "nonce", "n", -1, "account nonce, queried from the node when negative")
	cmd.Flags().BoolVarP(&a.NoSend, "nosend", "", false, "print the signed transaction instead of sending it")
}

func chainID(ctx context.Context, cli *http.HTTP) (string, error) {
	gres, err := cli.Genesis(ctx)
	if err != nil {
		return "", fmt.Errorf("get chain genesis: %w", err)
	}
	return gres.Genesis.ChainID, nil
}

func abciQuery(ctx context.Context, cli *http.HTTP, path string, req app.QueryRequest, out any) error {
	dat, err := json.Marshal(req)
	if err != nil {
		return err
	}
	res, err := cli.ABCIQuery(ctx, path, dat)
	if err != nil {
		return err
	}
	if res.Response.Code != 0 {
		return fmt.Errorf("query %s: code %d: %s", path, res.Response.Code, res.Response.Log)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(res.Response.Value, out)
}

func broadcast(ctx context.Context, cli *http.HTTP, dat []byte) error {
	res, err := cli.BroadcastTxSync(ctx, dat)
	if err != nil {
		return fmt.Errorf("broadcast tx: %w", err)
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if res.Code != 0 {
		return errors.New("transaction rejected: " + res.Log)
	}
	return nil
}

// sendTx signs payload with the key file and broadcasts it.
func sendTx(a *txArguments, tp tx.VoteTxType, payload any) error {
	key, err := crypto.LoadKeyFile(a.KeyFile)
	if err != nil {
		return err
	}
	cli, err := http.New(a.Url, "/websocket")
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	ctx := context.Background()
	chain, err := chainID(ctx, cli)
	if err != nil {
		return err
	}
	nonce := uint64(a.Nonce)
	if a.Nonce < 0 {
		addr := eth_crypto.PubkeyToAddress(key.PublicKey)
		if err = abciQuery(ctx, cli, "/nonce/", app.QueryRequest{Address: addr}, &nonce); err != nil {
			return err
		}
	}
	vtx := &tx.VoteTx{
		Version: tx.VoteTxVersion1,
		Type:    tp,
		Nonce:   nonce,
		Tx:      payload,
	}
	if err = vtx.Sign(chain, key); err != nil {
		return err
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

func parseUint32s(s []string) ([]uint32, error) {
	out := make([]uint32, 0, len(s))
	for _, v := range s {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, uint32(n))
	}
	return out, nil
}
