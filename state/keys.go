package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Per-proposal keys carry the id as 16 hex digits so prefix scans stay
// within one proposal.
var (
	KeyState         = "s"
	KeyParams        = "params"
	KeyProposalIndex = "pi"
	KeyProposalBody  = "p%016x"
	KeyTally         = "t%016x"
	KeyResult        = "r%016x"
	KeyGroup         = "m%016x"
	KeyAudit         = "l%016x"
	KeyNonce         = "o%x"

	KeyRegistrationPrefix = "g%016x/"
	KeyWhitelistPrefix    = "w%016x/"
	KeyBallotPrefix       = "b%016x/"
	KeyNullifierPrefix    = "n%016x/"
	KeyMemberPrefix       = "c%016x/"
	KeyLeafPrefix         = "k%016x/"
	KeyRootPrefix         = "q%016x/"

	KeyRegistration = KeyRegistrationPrefix + "%x"
	KeyWhitelist    = KeyWhitelistPrefix + "%x"
	KeyBallot       = KeyBallotPrefix + "%x"
	KeyNullifier    = KeyNullifierPrefix + "%x"
	KeyMember       = KeyMemberPrefix + "%x"
	KeyLeaf         = KeyLeafPrefix + "%016x"
	KeyRoot         = KeyRootPrefix + "%x"
)

func proposalKey(id uint64) string { return fmt.Sprintf(KeyProposalBody, id) }

func registrationKey(id uint64, voter common.Address) string {
	return fmt.Sprintf(KeyRegistration, id, voter.Bytes())
}

func whitelistKey(id uint64, voter common.Address) string {
	return fmt.Sprintf(KeyWhitelist, id, voter.Bytes())
}

func ballotKey(id uint64, voter common.Address) string {
	return fmt.Sprintf(KeyBallot, id, voter.Bytes())
}

func nullifierKey(id uint64, nullifier []byte) string {
	return fmt.Sprintf(KeyNullifier, id, nullifier)
}

func memberKey(id uint64, commitment []byte) string {
	return fmt.Sprintf(KeyMember, id, commitment)
}

func leafKey(id, index uint64) string {
	return fmt.Sprintf(KeyLeaf, id, index)
}

func rootKey(id uint64, root []byte) string {
	return fmt.Sprintf(KeyRoot, id, root)
}

func nonceKey(addr common.Address) string {
	return fmt.Sprintf(KeyNonce, addr.Bytes())
}

func prefix(format string, id uint64) []byte {
	return []byte(fmt.Sprintf(format, id))
}

func PrefixEndBytes(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}

	end := make([]byte, len(prefix))
	copy(end, prefix)

	for {
		if end[len(end)-1] != byte(255) {
			end[len(end)-1]++
			break
		}

		end = end[:len(end)-1]

		if len(end) == 0 {
			end = nil
			break
		}
	}

	return end
}
