package registration_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calehh/hac-vote/registration"
	"github.com/calehh/hac-vote/types"
)

var (
	creator = common.HexToAddress("0xc0")
	alice   = common.HexToAddress("0xa1")
	bob     = common.HexToAddress("0xb0")
	token   = common.HexToAddress("0x70")
)

type book struct {
	regs      map[common.Address]*types.Registration
	whitelist map[common.Address]*types.WhitelistEntry
}

func newBook() *book {
	return &book{
		regs:      map[common.Address]*types.Registration{},
		whitelist: map[common.Address]*types.WhitelistEntry{},
	}
}

func (b *book) Registration(id uint64, voter common.Address) (*types.Registration, error) {
	r, ok := b.regs[voter]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (b *book) PutRegistration(r *types.Registration) error {
	c := *r
	b.regs[r.Voter] = &c
	return nil
}

func (b *book) DeleteRegistration(id uint64, voter common.Address) error {
	delete(b.regs, voter)
	return nil
}

func (b *book) Whitelisted(id uint64, voter common.Address) (*types.WhitelistEntry, error) {
	return b.whitelist[voter], nil
}

type balances map[common.Address]*big.Int

func (m balances) BalanceOf(ctx context.Context, tok, holder common.Address) (*big.Int, error) {
	if tok != token {
		return nil, errors.New("unknown token")
	}
	if b, ok := m[holder]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func proposal(rule types.RegistrationRule) *types.Proposal {
	p := &types.Proposal{
		ID:      1,
		Creator: creator,
		State:   types.StateRegistration,
		Config: types.Config{
			Title:             "t",
			Options:           []string{"yes", "no"},
			Registration:      rule,
			RegistrationStart: 10,
			RegistrationEnd:   20,
			VotingStart:       20,
			VotingEnd:         30,
		},
	}
	if rule == types.RegistrationAssetGated {
		p.Config.AssetGate = &types.AssetGate{Token: token, MinBalance: big.NewInt(100)}
	}
	return p
}

func engine(b registration.BalanceChecker) *registration.Engine {
	return registration.NewEngine(b, cmtlog.NewNopLogger())
}

func TestOpenRegistration(t *testing.T) {
	e := engine(nil)
	bk := newBook()
	p := proposal(types.RegistrationOpen)

	reg, err := e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(10))
	require.NoError(t, err)
	assert.True(t, reg.Approved)
	assert.Equal(t, uint64(1), reg.Weight)

	_, err = e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(11))
	require.ErrorIs(t, err, types.ErrAlreadyRegistered)
}

func TestRegistrationWindow(t *testing.T) {
	e := engine(nil)
	bk := newBook()
	p := proposal(types.RegistrationOpen)

	_, err := e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(9))
	require.ErrorIs(t, err, types.ErrWindowNotOpen)
	_, err = e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(20))
	require.ErrorIs(t, err, types.ErrWindowClosed)

	p.State = types.StateCreated
	_, err = e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(15))
	require.ErrorIs(t, err, types.ErrInvalidStateTransition)
	assert.Empty(t, bk.regs)
}

func TestApprovalFlow(t *testing.T) {
	e := engine(nil)
	bk := newBook()
	p := proposal(types.RegistrationApproval)

	reg, err := e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(12))
	require.NoError(t, err)
	assert.False(t, reg.Approved)

	_, err = e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(12))
	require.ErrorIs(t, err, registration.ErrPending)

	_, err = e.Approve(bk, p, alice, alice)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	reg, err = e.Approve(bk, p, creator, alice)
	require.NoError(t, err)
	assert.True(t, reg.Approved)
	assert.True(t, bk.regs[alice].Approved)

	_, err = e.Approve(bk, p, creator, alice)
	require.ErrorIs(t, err, types.ErrAlreadyRegistered)
	_, err = e.Reject(bk, p, creator, bob)
	require.ErrorIs(t, err, types.ErrNotRegistered)

	_, err = e.Register(context.Background(), bk, p, bob, registration.Request{}, types.AtHeight(13))
	require.NoError(t, err)
	_, err = e.Reject(bk, p, creator, bob)
	require.NoError(t, err)
	assert.NotContains(t, bk.regs, bob)
}

func TestBatchApproveStopsAtFirstFailure(t *testing.T) {
	e := engine(nil)
	bk := newBook()
	p := proposal(types.RegistrationApproval)
	_, err := e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(12))
	require.NoError(t, err)

	_, err = e.BatchApprove(bk, p, creator, []common.Address{alice, bob})
	require.ErrorIs(t, err, types.ErrNotRegistered)

	_, err = e.BatchApprove(bk, p, creator, nil)
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestAssetGated(t *testing.T) {
	p := proposal(types.RegistrationAssetGated)
	bal := balances{alice: big.NewInt(100), bob: big.NewInt(99)}
	e := engine(bal)
	bk := newBook()

	_, err := e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(10))
	require.NoError(t, err)

	_, err = e.Register(context.Background(), bk, p, bob, registration.Request{}, types.AtHeight(10))
	require.ErrorIs(t, err, types.ErrUnauthorized)
	require.ErrorIs(t, err, registration.ErrInsufficientBalance)
	assert.NotContains(t, bk.regs, bob)

	_, err = engine(nil).Register(context.Background(), bk, p, bob, registration.Request{}, types.AtHeight(10))
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestWhitelistAndWeights(t *testing.T) {
	e := engine(nil)
	bk := newBook()
	p := proposal(types.RegistrationOpen)
	p.Config.Rule = types.RuleWeighted
	p.WeightTable = []types.WeightGroup{{Name: "small", Weight: 1}, {Name: "large", Weight: 10}}
	p.WhitelistEnabled = true
	large := uint32(1)
	bk.whitelist[alice] = &types.WhitelistEntry{Address: alice, WeightGroup: &large}
	bk.whitelist[bob] = &types.WhitelistEntry{Address: bob}

	small := uint32(0)
	reg, err := e.Register(context.Background(), bk, p, alice, registration.Request{WeightGroup: &small}, types.AtHeight(10))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), reg.WeightGroup)
	assert.Equal(t, uint64(10), reg.Weight)

	missing := uint32(5)
	_, err = e.Register(context.Background(), bk, p, bob, registration.Request{WeightGroup: &missing}, types.AtHeight(10))
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = e.Register(context.Background(), bk, p, creator, registration.Request{}, types.AtHeight(10))
	require.ErrorIs(t, err, registration.ErrNotWhitelisted)
}

func TestAnonymousRegistrationNeedsCommitment(t *testing.T) {
	e := engine(nil)
	bk := newBook()
	p := proposal(types.RegistrationOpen)
	p.Config.Privacy = types.PrivacyAnonymous

	_, err := e.Register(context.Background(), bk, p, alice, registration.Request{}, types.AtHeight(10))
	require.ErrorIs(t, err, registration.ErrMissingCommitment)

	reg, err := e.Register(context.Background(), bk, p, alice, registration.Request{Commitment: []byte{1}}, types.AtHeight(10))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, reg.Commitment)

	p.GroupFrozen = true
	p.State = types.StateVoting
	_, err = e.Register(context.Background(), bk, p, bob, registration.Request{Commitment: []byte{2}}, types.AtHeight(25))
	require.ErrorIs(t, err, types.ErrGroupFrozen)
}
