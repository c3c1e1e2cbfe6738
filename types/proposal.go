package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MinOptions = 2
	MaxOptions = 64
	MaxQuorum  = 100

	// MaxWeight bounds a weight group so fewer than 2^32 voters can never
	// overflow a weighted tally.
	MaxWeight = 1 << 32
)

type ProposalState uint8

const (
	StateCreated ProposalState = iota
	StateRegistration
	StateVoting
	StateTallying
	StateFinalized
	StateCancelled
)

var stateNames = []string{"created", "registration", "voting", "tallying", "finalized", "cancelled"}

func (s ProposalState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transition may leave s.
func (s ProposalState) Terminal() bool {
	return s == StateFinalized || s == StateCancelled
}

type VotingRule uint8

const (
	RuleSimpleMajority VotingRule = iota
	RuleWeighted
	RuleQuadratic
	RuleRankedChoice
)

var ruleNames = []string{"simple_majority", "weighted", "quadratic", "ranked_choice"}

func (r VotingRule) String() string {
	if int(r) < len(ruleNames) {
		return ruleNames[r]
	}
	return fmt.Sprintf("rule(%d)", uint8(r))
}

// Weighted reports whether ballots are counted with the voter's group weight.
func (r VotingRule) Weighted() bool {
	return r == RuleWeighted || r == RuleQuadratic
}

type PrivacyLevel uint8

const (
	PrivacyPublic PrivacyLevel = iota
	PrivacyAnonymous
	PrivacyEncrypted
	PrivacyFullPrivacy
)

var privacyNames = []string{"public", "anonymous", "encrypted", "full_privacy"}

func (p PrivacyLevel) String() string {
	if int(p) < len(privacyNames) {
		return privacyNames[p]
	}
	return fmt.Sprintf("privacy(%d)", uint8(p))
}

func (p PrivacyLevel) IsAnonymous() bool {
	return p == PrivacyAnonymous || p == PrivacyEncrypted || p == PrivacyFullPrivacy
}

type RegistrationRule uint8

const (
	RegistrationOpen RegistrationRule = iota
	RegistrationApproval
	RegistrationAssetGated
)

var registrationNames = []string{"open", "approval", "asset_gated"}

func (r RegistrationRule) String() string {
	if int(r) < len(registrationNames) {
		return registrationNames[r]
	}
	return fmt.Sprintf("registration(%d)", uint8(r))
}

type WindowUnit uint8

const (
	UnitBlockHeight WindowUnit = iota
	UnitTimestamp
)

// Now is the caller-supplied position of the ledger clock.
type Now struct {
	Height uint64 `json:"height"`
	Time   uint64 `json:"time"`
}

func AtHeight(h uint64) Now {
	return Now{Height: h}
}

func (n Now) In(unit WindowUnit) uint64 {
	if unit == UnitTimestamp {
		return n.Time
	}
	return n.Height
}

type WeightGroup struct {
	Name   string `json:"name"`
	Weight uint64 `json:"weight"`
}

type AssetGate struct {
	Token      common.Address `json:"token"`
	MinBalance *big.Int       `json:"min_balance"`
}

type WhitelistEntry struct {
	Address     common.Address `json:"address"`
	WeightGroup *uint32        `json:"weight_group,omitempty"`
}

type Config struct {
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Options           []string         `json:"options"`
	Rule              VotingRule       `json:"rule"`
	Privacy           PrivacyLevel     `json:"privacy"`
	Registration      RegistrationRule `json:"registration"`
	Unit              WindowUnit       `json:"unit"`
	RegistrationStart uint64           `json:"registration_start"`
	RegistrationEnd   uint64           `json:"registration_end"`
	VotingStart       uint64           `json:"voting_start"`
	VotingEnd         uint64           `json:"voting_end"`
	Quorum            uint64           `json:"quorum"`
	Visibility        uint16           `json:"visibility"`
	WeightGroups      []WeightGroup    `json:"weight_groups,omitempty"`
	AssetGate         *AssetGate       `json:"asset_gate,omitempty"`
	Whitelist         []WhitelistEntry `json:"whitelist,omitempty"`
	AutoAdvance       bool             `json:"auto_advance"`
}

func (c *Config) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("%w: title is empty", ErrInvalidConfig)
	}
	if len(c.Options) < MinOptions || len(c.Options) > MaxOptions {
		return fmt.Errorf("%w: need %d..%d options, got %d", ErrInvalidConfig, MinOptions, MaxOptions, len(c.Options))
	}
	for i, o := range c.Options {
		if o == "" {
			return fmt.Errorf("%w: option %d has no label", ErrInvalidConfig, i)
		}
	}
	if c.Rule > RuleRankedChoice {
		return fmt.Errorf("%w: unknown voting rule %d", ErrInvalidConfig, c.Rule)
	}
	if c.Privacy > PrivacyFullPrivacy {
		return fmt.Errorf("%w: unknown privacy level %d", ErrInvalidConfig, c.Privacy)
	}
	if c.Registration > RegistrationAssetGated {
		return fmt.Errorf("%w: unknown registration rule %d", ErrInvalidConfig, c.Registration)
	}
	if c.Unit > UnitTimestamp {
		return fmt.Errorf("%w: unknown window unit %d", ErrInvalidConfig, c.Unit)
	}
	if !(c.RegistrationStart < c.RegistrationEnd && c.RegistrationEnd <= c.VotingStart && c.VotingStart < c.VotingEnd) {
		return fmt.Errorf("%w: windows must satisfy registrationStart < registrationEnd <= votingStart < votingEnd", ErrInvalidConfig)
	}
	if c.Quorum > MaxQuorum {
		return fmt.Errorf("%w: quorum %d above %d", ErrInvalidConfig, c.Quorum, MaxQuorum)
	}
	if c.Visibility&^VisibilityMask != 0 {
		return fmt.Errorf("%w: visibility bitmap %#x has unknown bits", ErrInvalidConfig, c.Visibility)
	}
	for i, g := range c.WeightGroups {
		if g.Name == "" {
			return fmt.Errorf("%w: weight group %d needs a name", ErrInvalidConfig, i)
		}
		if err := CheckWeight(g.Weight); err != nil {
			return fmt.Errorf("weight group %d: %w", i, err)
		}
	}
	if c.Rule.Weighted() {
		if len(c.WeightGroups) == 0 {
			return fmt.Errorf("%w: %v rule needs weight groups", ErrInvalidConfig, c.Rule)
		}
		if c.Privacy.IsAnonymous() {
			return fmt.Errorf("%w: %v rule cannot be combined with %v ballots", ErrInvalidConfig, c.Rule, c.Privacy)
		}
	}
	if c.Registration == RegistrationAssetGated {
		if c.AssetGate == nil || c.AssetGate.Token == (common.Address{}) {
			return fmt.Errorf("%w: asset gated registration needs a token", ErrInvalidConfig)
		}
		if c.AssetGate.MinBalance == nil || c.AssetGate.MinBalance.Sign() <= 0 {
			return fmt.Errorf("%w: asset gated registration needs a positive minimum balance", ErrInvalidConfig)
		}
	}
	seen := make(map[common.Address]bool, len(c.Whitelist))
	for _, e := range c.Whitelist {
		if seen[e.Address] {
			return fmt.Errorf("%w: %v listed twice", ErrInvalidConfig, e.Address)
		}
		seen[e.Address] = true
		if err := CheckWeightGroup(c.WeightGroups, e.WeightGroup); err != nil {
			return err
		}
	}
	return nil
}

// CheckWeight rejects zero weights and weights above MaxWeight.
func CheckWeight(weight uint64) error {
	if weight == 0 || weight > MaxWeight {
		return fmt.Errorf("%w: weight %d outside 1..%d", ErrInvalidConfig, weight, uint64(MaxWeight))
	}
	return nil
}

// CheckWeightGroup validates an optional group index against a weight table.
// Index 0 is accepted on an empty table, where it means the default weight.
func CheckWeightGroup(groups []WeightGroup, group *uint32) error {
	if group == nil {
		return nil
	}
	if len(groups) == 0 && *group == 0 {
		return nil
	}
	if int(*group) >= len(groups) {
		return fmt.Errorf("%w: weight group %d out of range", ErrInvalidConfig, *group)
	}
	return nil
}

// Window returns the configured [start, end) bounds of a voter-facing phase.
func (c *Config) Window(st ProposalState) (start, end uint64) {
	switch st {
	case StateRegistration:
		return c.RegistrationStart, c.RegistrationEnd
	case StateVoting:
		return c.VotingStart, c.VotingEnd
	}
	return
}

type Proposal struct {
	ID               uint64         `json:"id"`
	Creator          common.Address `json:"creator"`
	Config           Config         `json:"config"`
	State            ProposalState  `json:"state"`
	TotalVoters      uint64         `json:"total_voters"`
	TotalVotes       uint64         `json:"total_votes"`
	ResultRevealed   bool           `json:"result_revealed"`
	WeightTable      []WeightGroup  `json:"weight_table,omitempty"`
	WhitelistEnabled bool           `json:"whitelist_enabled"`
	GroupFrozen      bool           `json:"group_frozen"`
	CreatedAt        Now            `json:"created_at"`
	UpdatedAt        Now            `json:"updated_at"`
	AuditSize        uint64         `json:"audit_size"`
	AuditRoot        []byte         `json:"audit_root"`
}

func (p *Proposal) Clone() *Proposal {
	n := *p
	n.Config.Options = append([]string(nil), p.Config.Options...)
	n.Config.WeightGroups = append([]WeightGroup(nil), p.Config.WeightGroups...)
	n.Config.Whitelist = append([]WhitelistEntry(nil), p.Config.Whitelist...)
	if p.Config.AssetGate != nil {
		gate := *p.Config.AssetGate
		if gate.MinBalance != nil {
			gate.MinBalance = new(big.Int).Set(gate.MinBalance)
		}
		n.Config.AssetGate = &gate
	}
	n.WeightTable = append([]WeightGroup(nil), p.WeightTable...)
	n.AuditRoot = append([]byte(nil), p.AuditRoot...)
	return &n
}

// GroupWeight resolves a weight group index against the live weight table.
// Unweighted proposals without groups count every voter as 1.
func (p *Proposal) GroupWeight(group uint32) (uint64, error) {
	if len(p.WeightTable) == 0 {
		if group != 0 {
			return 0, fmt.Errorf("%w: weight group %d out of range", ErrInvalidConfig, group)
		}
		return 1, nil
	}
	if int(group) >= len(p.WeightTable) {
		return 0, fmt.Errorf("%w: weight group %d out of range", ErrInvalidConfig, group)
	}
	if !p.Config.Rule.Weighted() {
		return 1, nil
	}
	return p.WeightTable[group].Weight, nil
}

func (p *Proposal) Anonymous() bool {
	return p.Config.Privacy.IsAnonymous()
}

// InPhase checks that p is in st and that now lies in st's [start, end) window.
func (p *Proposal) InPhase(st ProposalState, now Now) error {
	if p.State != st {
		return fmt.Errorf("%w: proposal %d is %v, not %v", ErrInvalidStateTransition, p.ID, p.State, st)
	}
	start, end := p.Config.Window(st)
	t := now.In(p.Config.Unit)
	if t < start {
		return fmt.Errorf("%w: %v opens at %d, now %d", ErrWindowNotOpen, st, start, t)
	}
	if t >= end {
		return fmt.Errorf("%w: %v closed at %d, now %d", ErrWindowClosed, st, end, t)
	}
	return nil
}

type Registration struct {
	ProposalID  uint64         `json:"proposal_id"`
	Voter       common.Address `json:"voter"`
	WeightGroup uint32         `json:"weight_group"`
	Weight      uint64         `json:"weight"`
	Approved    bool           `json:"approved"`
	Commitment  []byte         `json:"commitment,omitempty"`
	Requested   Now            `json:"requested"`
}

// Choice is the rule-dependent content of a ballot.
type Choice struct {
	Option  uint32   `json:"option"`
	Options []uint32 `json:"options,omitempty"`
	Amounts []uint64 `json:"amounts,omitempty"`
	Ranking []uint32 `json:"ranking,omitempty"`
}

func SingleChoice(option uint32) Choice {
	return Choice{Option: option}
}

func QuadraticChoice(options []uint32, amounts []uint64) Choice {
	return Choice{Options: options, Amounts: amounts}
}

func RankedChoice(ranking []uint32) Choice {
	return Choice{Ranking: ranking}
}

type Ballot struct {
	ProposalID uint64         `json:"proposal_id"`
	Voter      common.Address `json:"voter"`
	Choice     Choice         `json:"choice"`
	Weight     uint64         `json:"weight"`
	Cast       Now            `json:"cast"`
}

type AnonymousBallot struct {
	ProposalID uint64 `json:"proposal_id"`
	Nullifier  []byte `json:"nullifier"`
	Root       []byte `json:"root"`
	Choice     Choice `json:"choice"`
	Cast       Now    `json:"cast"`
}

type Round struct {
	Counts     []uint64 `json:"counts"`
	Eliminated int      `json:"eliminated"`
}

type Result struct {
	ProposalID    uint64   `json:"proposal_id"`
	Counts        []uint64 `json:"counts"`
	WinningOption uint32   `json:"winning_option"`
	Margin        uint64   `json:"margin"`
	TotalVotes    uint64   `json:"total_votes"`
	TotalVoters   uint64   `json:"total_voters"`
	QuorumMet     bool     `json:"quorum_met"`
	Passed        bool     `json:"passed"`
	Rounds        []Round  `json:"rounds,omitempty"`
}

// Participation reports ballots cast against registered voters.
type Participation struct {
	ProposalID  uint64  `json:"proposal_id"`
	TotalVoters uint64  `json:"total_voters"`
	TotalVotes  uint64  `json:"total_votes"`
	Rate        float64 `json:"rate"`
}
