package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/calehh/hac-vote/crypto"
	"github.com/calehh/hac-vote/membership"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage signing keys and anonymous identities",
}

var keyFile string

var keysNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a signing key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, addr, err := crypto.GenerateKeyFile(keyFile)
		if err != nil {
			return err
		}
		fmt.Printf("address:%s\nfile:%s\n", addr.Hex(), keyFile)
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the address of a signing key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.LoadKeyFile(keyFile)
		if err != nil {
			return err
		}
		fmt.Printf("address:%s\n", eth_crypto.PubkeyToAddress(key.PublicKey).Hex())
		return nil
	},
}

var identityFile string

var keysIdentityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Generate an anonymous identity and print its commitment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(identityFile); err == nil {
			return fmt.Errorf("%w: %s", crypto.ErrKeyExists, identityFile)
		}
		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return err
		}
		id := membership.NewIdentity(seed)
		if err := os.WriteFile(identityFile, []byte(hex.EncodeToString(id.Secret())), 0o600); err != nil {
			return err
		}
		fmt.Printf("commitment:0x%x\nfile:%s\n", id.Commitment(), identityFile)
		return nil
	},
}

func init() {
	keysCmd.PersistentFlags().StringVarP(&keyFile, "key", "k", "./voter.key", "private key file")
	keysIdentityCmd.Flags().StringVar(&identityFile, "identity", "./identity.secret", "identity secret file")
	keysCmd.AddCommand(keysNewCmd, keysShowCmd, keysIdentityCmd)
}
