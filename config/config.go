package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cometbft/cometbft/config"
	"github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "HACVOTE"

// AppConfig is the [vote] table. Empty endpoints disable the component that
// needs them.
type AppConfig struct {
	Home string `mapstructure:"-"`

	EthRPC   string `mapstructure:"eth_rpc"`
	EthBlock uint64 `mapstructure:"eth_block"`

	VerifyingKeyFile string `mapstructure:"verifying_key_file"`

	IndexerDB     string `mapstructure:"indexer_db"`
	ServiceListen string `mapstructure:"service_listen"`

	NatsURL     string `mapstructure:"nats_url"`
	NatsSubject string `mapstructure:"nats_subject"`

	ProposalCacheSize int    `mapstructure:"proposal_cache_size"`
	MetricsNamespace  string `mapstructure:"metrics_namespace"`
}

func DefaultAppConfig(home string) *AppConfig {
	return &AppConfig{
		Home:              home,
		IndexerDB:         "data/indexer.db",
		ServiceListen:     "127.0.0.1:8080",
		NatsSubject:       "hacvote.proposal",
		ProposalCacheSize: 1024,
		MetricsNamespace:  "hacvote",
	}
}

// Path resolves p against the home directory unless it is absolute or empty.
func (c *AppConfig) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Home, p)
}

func (c *AppConfig) ValidateBasic() error {
	if c.ProposalCacheSize < 0 {
		return fmt.Errorf("vote.proposal_cache_size can't be negative")
	}
	if c.NatsURL != "" && c.NatsSubject == "" {
		return fmt.Errorf("vote.nats_subject is required with vote.nats_url")
	}
	if c.ServiceListen != "" && c.IndexerDB == "" {
		return fmt.Errorf("vote.service_listen needs vote.indexer_db")
	}
	return nil
}

type Config struct {
	*config.Config `mapstructure:",squash"`

	Vote *AppConfig `mapstructure:"vote"`
}

func DefaultConfig(home string) *Config {
	if len(home) == 0 {
		home = os.ExpandEnv("$HOME/.hacvote")
	}
	cfg := &Config{
		DefaultVoteCometConfig(),
		DefaultAppConfig(home),
	}
	cfg.SetRoot(home)
	return cfg
}

func (c *Config) ValidateBasic() error {
	if err := c.Config.ValidateBasic(); err != nil {
		return err
	}
	return c.Vote.ValidateBasic()
}

// Load reads <home>/config/config.toml. Variables from a .env file in the
// working directory and HACVOTE_ prefixed environment variables override it,
// e.g. HACVOTE_VOTE_ETH_RPC.
func Load(home string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig(home)
	v := viper.New()
	v.SetConfigFile(filepath.Join(cfg.RootDir, "config", "config.toml"))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.SetRoot(cfg.RootDir)
	cfg.Vote.Home = cfg.RootDir
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration data: %w", err)
	}
	return cfg, nil
}

func InitializeNodeValidatorFiles(config *Config, privKey crypto.PrivKey) (nodeID string, pk crypto.PubKey, err error) {
	if err := os.MkdirAll(filepath.Dir(config.NodeKeyFile()), 0o777); err != nil {
		return "", nil, fmt.Errorf("could not create directory %q: %w", filepath.Dir(config.NodeKeyFile()), err)
	}
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return "", nil, err
	}
	nodeID = string(nodeKey.ID())

	pvKeyFile := config.PrivValidatorKeyFile()
	if err := os.MkdirAll(filepath.Dir(pvKeyFile), 0o777); err != nil {
		return "", nil, fmt.Errorf("could not create directory %q: %w", filepath.Dir(pvKeyFile), err)
	}

	pvStateFile := config.PrivValidatorStateFile()
	if err := os.MkdirAll(filepath.Dir(pvStateFile), 0o777); err != nil {
		return "", nil, fmt.Errorf("could not create directory %q: %w", filepath.Dir(pvStateFile), err)
	}

	var filePV *privval.FilePV
	if privKey == nil {
		filePV = privval.LoadOrGenFilePV(pvKeyFile, pvStateFile)
	} else {
		filePV = privval.NewFilePV(privKey, pvKeyFile, pvStateFile)
		filePV.Save()
	}
	pukey, err := filePV.GetPubKey()
	if err != nil {
		return "", nil, err
	}

	return nodeID, pukey, nil
}

func DefaultVoteCometConfig() *config.Config {
	cometConfig := config.DefaultConfig()
	cometConfig.Consensus.TimeoutPropose = time.Second * 3
	cometConfig.Consensus.TimeoutPrevote = time.Second * 1
	cometConfig.Consensus.TimeoutPrecommit = time.Second * 1
	cometConfig.Consensus.TimeoutCommit = time.Millisecond * 1200
	return cometConfig
}
