package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/spf13/cobra"

	app_config "github.com/calehh/hac-vote/config"
	"github.com/calehh/hac-vote/membership"
	"github.com/calehh/hac-vote/types"
)

const flagMerkleDepth = "merkle-depth"

type printInfo struct {
	Moniker    string          `json:"moniker" yaml:"moniker"`
	ChainID    string          `json:"chain_id" yaml:"chain_id"`
	NodeID     string          `json:"node_id" yaml:"node_id"`
	AppMessage json.RawMessage `json:"app_message" yaml:"app_message"`
}

func displayInfo(info printInfo) error {
	out, err := json.MarshalIndent(info, "", " ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stderr, "%s\n", out)
	return err
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize private validator, p2p, genesis, and application configuration files",
	Long:  `Initialize validators's and node's configuration files.`,
	Args:  cobra.ExactArgs(0),
	RunE:  initRun,
}

func init() {
	initCmd.Flags().BoolP(types.FlagOverwrite, "o", false, "overwrite the genesis.json file")
	initCmd.Flags().String(types.FlagChainID, "", "genesis file chain-id, if left blank will be randomly created")
	initCmd.Flags().String(types.FlagHome, os.ExpandEnv("$HOME/.hacvote"), "home directory")
	initCmd.Flags().Int(flagMerkleDepth, 20, "depth of the anonymous voter group tree")
}

func initRun(cmd *cobra.Command, args []string) error {
	home, _ := cmd.Flags().GetString(types.FlagHome)
	chainID, _ := cmd.Flags().GetString(types.FlagChainID)
	overwrite, _ := cmd.Flags().GetBool(types.FlagOverwrite)
	depth, _ := cmd.Flags().GetInt(flagMerkleDepth)

	if depth < 0 || depth > membership.MaxDepth {
		return fmt.Errorf("merkle depth must be within 0..%d", membership.MaxDepth)
	}
	if chainID == "" {
		chainID = fmt.Sprintf("test-chain-%v", rand.Uint64())
	}
	cfg := app_config.DefaultConfig(home)

	genFile := cfg.GenesisFile()
	if _, err := os.Stat(genFile); err == nil && !overwrite {
		return fmt.Errorf("genesis file %s exists, use --%s to replace it", genFile, types.FlagOverwrite)
	}

	nodeID, pk, err := app_config.InitializeNodeValidatorFiles(cfg, nil)
	if err != nil {
		return err
	}
	appState, err := json.Marshal(types.GenesisState{MerkleDepth: depth})
	if err != nil {
		return err
	}
	appGenesis := &types.GenesisDoc{
		GenesisTime:     time.Now(),
		ChainID:         chainID,
		ConsensusParams: cmttypes.DefaultConsensusParams(),
		InitialHeight:   1,
		Validators: []types.GenesisValidator{
			{Address: pk.Address(), PubKey: pk, Power: types.DefaultPower},
		},
		AppState: appState,
	}
	if err = types.ExportGenesisFile(appGenesis, genFile); err != nil {
		return fmt.Errorf("failed to export genesis file: %w", err)
	}
	if err = app_config.WriteConfigFile(filepath.Join(cfg.RootDir, "config", "config.toml"), cfg); err != nil {
		return err
	}
	return displayInfo(printInfo{
		Moniker:    cfg.Moniker,
		ChainID:    chainID,
		NodeID:     nodeID,
		AppMessage: appGenesis.AppState,
	})
}
