package tx

import (
	"errors"
	"fmt"
)

type VoteTxType uint8

const (
	VoteTxTypeUnknown           VoteTxType = 0
	VoteTxTypeCreateProposal    VoteTxType = 1
	VoteTxTypeStartRegistration VoteTxType = 2
	VoteTxTypeStartVoting       VoteTxType = 3
	VoteTxTypeStartTallying     VoteTxType = 4
	VoteTxTypeRevealResult      VoteTxType = 5
	VoteTxTypeCancel            VoteTxType = 6
	VoteTxTypeRegister          VoteTxType = 7
	VoteTxTypeRegisterAnonymous VoteTxType = 8
	VoteTxTypeApprove           VoteTxType = 9
	VoteTxTypeBatchApprove      VoteTxType = 10
	VoteTxTypeReject            VoteTxType = 11
	VoteTxTypeAddWhitelist      VoteTxType = 12
	VoteTxTypeSetWeightGroup    VoteTxType = 13
	VoteTxTypeCastVote          VoteTxType = 14
	VoteTxTypeAnonymousVote     VoteTxType = 15
)

var txTypeNames = map[VoteTxType]string{
	VoteTxTypeCreateProposal:    "create_proposal",
	VoteTxTypeStartRegistration: "start_registration",
	VoteTxTypeStartVoting:       "start_voting",
	VoteTxTypeStartTallying:     "start_tallying",
	VoteTxTypeRevealResult:      "reveal_result",
	VoteTxTypeCancel:            "cancel",
	VoteTxTypeRegister:          "register",
	VoteTxTypeRegisterAnonymous: "register_anonymous",
	VoteTxTypeApprove:           "approve",
	VoteTxTypeBatchApprove:      "batch_approve",
	VoteTxTypeReject:            "reject",
	VoteTxTypeAddWhitelist:      "add_whitelist",
	VoteTxTypeSetWeightGroup:    "set_weight_group",
	VoteTxTypeCastVote:          "cast_vote",
	VoteTxTypeAnonymousVote:     "anonymous_vote",
}

func (t VoteTxType) String() string {
	if s, ok := txTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("tx(%d)", uint8(t))
}

// ParseVoteTxType resolves a type by name, as used on the command line.
func ParseVoteTxType(name string) (VoteTxType, error) {
	for t, s := range txTypeNames {
		if s == name {
			return t, nil
		}
	}
	return VoteTxTypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedTxType, name)
}

// Signed reports whether txs of this type carry a sender and signature.
func (t VoteTxType) Signed() bool {
	return t != VoteTxTypeAnonymousVote
}

const (
	VoteTxVersion0 uint8 = 0
	VoteTxVersion1 uint8 = 1
)

var (
	ErrInvalidTx            = errors.New("invalid tx")
	ErrUnsupportedTxType    = errors.New("unsupported tx type")
	ErrUnsupportedTxVersion = errors.New("unsupported tx version")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrSenderMismatch       = errors.New("signature does not match sender")
	ErrUnexpectedSignature  = errors.New("anonymous tx must not be signed")
	ErrInvalidNonce         = errors.New("invalid nonce")
)
