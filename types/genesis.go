package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cometbft/cometbft/crypto"
	cmtjson "github.com/cometbft/cometbft/libs/json"
	cmttypes "github.com/cometbft/cometbft/types"
)

const (
	FlagOverwrite = "overwrite"
	FlagChainID   = "chain-id"
	FlagHome      = "home"
)

// GenesisState is the app_state section; it only carries the group depth
// every anonymous proposal on the chain is built with.
type GenesisState struct {
	MerkleDepth int `json:"merkle_depth"`
}

// ParseGenesisState decodes app_state. An empty section is the zero state.
func ParseGenesisState(raw json.RawMessage) (gs GenesisState, err error) {
	if len(raw) == 0 {
		return
	}
	if err = json.Unmarshal(raw, &gs); err != nil {
		return gs, fmt.Errorf("decoding app_state: %w", err)
	}
	if gs.MerkleDepth < 0 {
		return gs, fmt.Errorf("%w: merkle depth %d", ErrInvalidConfig, gs.MerkleDepth)
	}
	return
}

type GenesisValidator struct {
	Address crypto.Address `json:"address"`
	PubKey  crypto.PubKey  `json:"pub_key"`
	Power   int64          `json:"power"`
	Name    string         `json:"name"`
}

// GenesisDoc defines the initial conditions for a CometBFT blockchain, in particular its validator set.
type GenesisDoc struct {
	GenesisTime     time.Time                 `json:"genesis_time"`
	ChainID         string                    `json:"chain_id"`
	InitialHeight   int64                     `json:"initial_height"`
	ConsensusParams *cmttypes.ConsensusParams `json:"consensus_params,omitempty"`
	Validators      []GenesisValidator        `json:"validators"`
	AppHash         []byte                    `json:"app_hash"`
	AppState        json.RawMessage           `json:"app_state"`
}

// SaveAs is a utility method for saving GenensisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := cmtjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, genDocBytes, 0o600)
}

func (ag *GenesisDoc) ValidateAndComplete() error {
	if ag.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}

	if ag.InitialHeight < 0 {
		return fmt.Errorf("initial_height cannot be negative (got %v)", ag.InitialHeight)
	}

	if ag.InitialHeight == 0 {
		ag.InitialHeight = 1
	}

	if ag.GenesisTime.IsZero() {
		ag.GenesisTime = time.Now().Round(0).UTC()
	}

	_, err := ParseGenesisState(ag.AppState)
	return err
}

func ExportGenesisFile(genesis *GenesisDoc, genFile string) error {
	if err := genesis.ValidateAndComplete(); err != nil {
		return err
	}
	return genesis.SaveAs(genFile)
}

const DefaultPower = 1000
