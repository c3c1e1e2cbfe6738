// Package gate answers token balance questions for asset gated registration.
package gate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/calehh/hac-vote/registration"
)

const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"}]`

const DefaultTimeout = 5 * time.Second

var (
	ErrNotContract   = errors.New("token address has no code")
	ErrBadBalanceOut = errors.New("unexpected balanceOf output")
)

var _ registration.BalanceChecker = &ERC20Checker{}

// ERC20Checker reads balanceOf through any contract caller. A nil block
// reads the latest state; validators sharing a pinned block agree on every
// answer.
type ERC20Checker struct {
	logger  cmtlog.Logger
	caller  ethereum.ContractCaller
	abi     abi.ABI
	block   *big.Int
	timeout time.Duration
	closer  func()
}

func NewERC20Checker(caller ethereum.ContractCaller, block *big.Int, logger cmtlog.Logger) (*ERC20Checker, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, err
	}
	return &ERC20Checker{
		logger:  logger.With("module", "gate"),
		caller:  caller,
		abi:     parsed,
		block:   block,
		timeout: DefaultTimeout,
	}, nil
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, url string, block *big.Int, logger cmtlog.Logger) (*ERC20Checker, error) {
	cli, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	c, err := NewERC20Checker(cli, block, logger)
	if err != nil {
		cli.Close()
		return nil, err
	}
	c.closer = cli.Close
	return c, nil
}

func (c *ERC20Checker) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := c.abi.Pack("balanceOf", holder)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, c.block)
	if err != nil {
		c.logger.Error("balanceOf call fail", "token", token, "holder", holder, "err", err)
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotContract, token)
	}
	res, err := c.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, err
	}
	if len(res) != 1 {
		return nil, ErrBadBalanceOut
	}
	bal, ok := res[0].(*big.Int)
	if !ok {
		return nil, ErrBadBalanceOut
	}
	return bal, nil
}

func (c *ERC20Checker) Close() {
	if c.closer != nil {
		c.closer()
	}
}
