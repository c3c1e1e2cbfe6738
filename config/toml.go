package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/cometbft/cometbft/config"
)

var voteTemplate *template.Template

func init() {
	var err error
	if voteTemplate, err = template.New("voteConfigTemplate").Parse(defaultVoteTemplate); err != nil {
		panic(err)
	}
}

// WriteConfigFile renders CometBFT's sections with CometBFT's own template
// and appends the [vote] table. The parent directory is created if needed.
func WriteConfigFile(configFilePath string, cfg *Config) error {
	dir := filepath.Dir(configFilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	config.WriteConfigFile(configFilePath, cfg.Config)

	var buffer bytes.Buffer
	if err := voteTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}
	f, err := os.OpenFile(configFilePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err = f.Write(buffer.Bytes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in AppConfig in config/config.go.
//
//go:embed vote.toml.tpl
var defaultVoteTemplate string
