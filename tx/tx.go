package tx

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/calehh/hac-vote/types"
)

// VoteTx is the envelope every transaction travels in. Anonymous votes leave
// Sender, Nonce and Sig empty.
type VoteTx struct {
	Version uint8          `json:"version"`
	Type    VoteTxType     `json:"type"`
	Nonce   uint64         `json:"nonce"`
	Sender  common.Address `json:"sender"`
	Tx      any            `json:"tx"`
	Sig     hexutil.Bytes  `json:"sig,omitempty"`
}

type CreateProposalTx struct {
	Config types.Config `json:"config"`
}

// ProposalTx carries the creator-only transitions and RevealResult.
type ProposalTx struct {
	Proposal uint64 `json:"proposal"`
}

type RegisterTx struct {
	Proposal    uint64  `json:"proposal"`
	WeightGroup *uint32 `json:"weightGroup,omitempty"`
}

type RegisterAnonymousTx struct {
	Proposal   uint64        `json:"proposal"`
	Commitment hexutil.Bytes `json:"commitment"`
}

// VoterTx carries Approve and Reject.
type VoterTx struct {
	Proposal uint64         `json:"proposal"`
	Voter    common.Address `json:"voter"`
}

type BatchApproveTx struct {
	Proposal uint64           `json:"proposal"`
	Voters   []common.Address `json:"voters"`
}

type AddWhitelistTx struct {
	Proposal uint64                 `json:"proposal"`
	Entries  []types.WhitelistEntry `json:"entries"`
}

type SetWeightGroupTx struct {
	Proposal uint64 `json:"proposal"`
	Index    uint32 `json:"index"`
	Weight   uint64 `json:"weight"`
}

type CastVoteTx struct {
	Proposal uint64       `json:"proposal"`
	Choice   types.Choice `json:"choice"`
}

type AnonymousVoteTx struct {
	Proposal  uint64        `json:"proposal"`
	Root      hexutil.Bytes `json:"root"`
	Nullifier hexutil.Bytes `json:"nullifier"`
	Choice    types.Choice  `json:"choice"`
	Proof     hexutil.Bytes `json:"proof"`
}

type voteTxTmpl[Tx any] struct {
	Version uint8          `json:"version"`
	Type    VoteTxType     `json:"type"`
	Nonce   uint64         `json:"nonce"`
	Sender  common.Address `json:"sender"`
	Tx      Tx             `json:"tx"`
	Sig     hexutil.Bytes  `json:"sig,omitempty"`
}

// SigHash is keccak256(chainID || envelope without signature).
func (tx *VoteTx) SigHash(chainID string) (h common.Hash, err error) {
	ntx := *tx
	ntx.Sig = nil
	dat, err := json.Marshal(ntx)
	if err != nil {
		return
	}
	h = crypto.Keccak256Hash([]byte(chainID), dat)
	return
}

// Sign sets Sender from key and signs the envelope.
func (tx *VoteTx) Sign(chainID string, key *ecdsa.PrivateKey) (err error) {
	if !tx.Type.Signed() {
		return ErrUnexpectedSignature
	}
	tx.Sender = crypto.PubkeyToAddress(key.PublicKey)
	h, err := tx.SigHash(chainID)
	if err != nil {
		return
	}
	tx.Sig, err = crypto.Sign(h[:], key)
	return
}

// Verify checks the signature against Sender. Unsigned tx types must carry
// neither sender nor signature.
func (tx *VoteTx) Verify(chainID string) error {
	if !tx.Type.Signed() {
		if len(tx.Sig) != 0 || tx.Sender != (common.Address{}) || tx.Nonce != 0 {
			return ErrUnexpectedSignature
		}
		return nil
	}
	if len(tx.Sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(tx.Sig))
	}
	h, err := tx.SigHash(chainID)
	if err != nil {
		return err
	}
	pub, err := crypto.SigToPub(h[:], tx.Sig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != tx.Sender {
		return ErrSenderMismatch
	}
	return nil
}

func parseVoteTxType(dat []byte) VoteTxType {
	var tx struct {
		Type VoteTxType `json:"type"`
	}
	err := json.Unmarshal(dat, &tx)
	if err != nil {
		return VoteTxTypeUnknown
	}
	return tx.Type
}

func unmarshalVoteTx[Tx any](dat []byte) (vtx *VoteTx, err error) {
	var txt voteTxTmpl[Tx]
	err = json.Unmarshal(dat, &txt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTx, err)
	}
	if txt.Version > VoteTxVersion1 {
		return nil, ErrUnsupportedTxVersion
	}
	vtx = new(VoteTx)
	vtx.Version = txt.Version
	vtx.Type = txt.Type
	vtx.Nonce = txt.Nonce
	vtx.Sender = txt.Sender
	vtx.Tx = &txt.Tx
	vtx.Sig = txt.Sig
	return
}

func UnmarshalVoteTx(dat []byte) (vtx *VoteTx, err error) {
	switch tp := parseVoteTxType(dat); tp {
	case VoteTxTypeCreateProposal:
		return unmarshalVoteTx[CreateProposalTx](dat)
	case VoteTxTypeStartRegistration, VoteTxTypeStartVoting, VoteTxTypeStartTallying,
		VoteTxTypeRevealResult, VoteTxTypeCancel:
		return unmarshalVoteTx[ProposalTx](dat)
	case VoteTxTypeRegister:
		return unmarshalVoteTx[RegisterTx](dat)
	case VoteTxTypeRegisterAnonymous:
		return unmarshalVoteTx[RegisterAnonymousTx](dat)
	case VoteTxTypeApprove, VoteTxTypeReject:
		return unmarshalVoteTx[VoterTx](dat)
	case VoteTxTypeBatchApprove:
		return unmarshalVoteTx[BatchApproveTx](dat)
	case VoteTxTypeAddWhitelist:
		return unmarshalVoteTx[AddWhitelistTx](dat)
	case VoteTxTypeSetWeightGroup:
		return unmarshalVoteTx[SetWeightGroupTx](dat)
	case VoteTxTypeCastVote:
		return unmarshalVoteTx[CastVoteTx](dat)
	case VoteTxTypeAnonymousVote:
		return unmarshalVoteTx[AnonymousVoteTx](dat)
	default:
		err = fmt.Errorf("%w: %v", ErrUnsupportedTxType, tp)
	}
	return
}

func MarshalVoteTx(vtx *VoteTx) (dat []byte, err error) {
	return json.Marshal(vtx)
}
