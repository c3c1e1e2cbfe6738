package types

import "errors"

var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrWindowNotOpen          = errors.New("window not open")
	ErrWindowClosed           = errors.New("window closed")
	ErrAlreadyRegistered      = errors.New("already registered")
	ErrNotRegistered          = errors.New("not registered")
	ErrAlreadyVoted           = errors.New("already voted")
	ErrInvalidProof           = errors.New("invalid proof")
	ErrNullifierReused        = errors.New("nullifier reused")
	ErrQuorumNotMet           = errors.New("quorum not met")
	ErrInvalidConfig          = errors.New("invalid config")
	ErrInvalidBallot          = errors.New("invalid ballot")
	ErrGroupFrozen            = errors.New("group frozen")
	ErrProposalNotFound       = errors.New("proposal not found")
)

// Codes reported in ExecTxResult.Code. 1 stays the generic failure code.
const (
	CodeOK uint32 = iota
	CodeInternal
	CodeInvalidStateTransition
	CodeUnauthorized
	CodeWindowNotOpen
	CodeWindowClosed
	CodeAlreadyRegistered
	CodeNotRegistered
	CodeAlreadyVoted
	CodeInvalidProof
	CodeNullifierReused
	CodeQuorumNotMet
	CodeInvalidConfig
	CodeInvalidBallot
	CodeGroupFrozen
	CodeProposalNotFound
)

var errorCodes = []struct {
	err  error
	code uint32
}{
	{ErrInvalidStateTransition, CodeInvalidStateTransition},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrWindowNotOpen, CodeWindowNotOpen},
	{ErrWindowClosed, CodeWindowClosed},
	{ErrAlreadyRegistered, CodeAlreadyRegistered},
	{ErrNotRegistered, CodeNotRegistered},
	{ErrAlreadyVoted, CodeAlreadyVoted},
	{ErrInvalidProof, CodeInvalidProof},
	{ErrNullifierReused, CodeNullifierReused},
	{ErrQuorumNotMet, CodeQuorumNotMet},
	{ErrInvalidConfig, CodeInvalidConfig},
	{ErrInvalidBallot, CodeInvalidBallot},
	{ErrGroupFrozen, CodeGroupFrozen},
	{ErrProposalNotFound, CodeProposalNotFound},
}

// ErrorCode maps an engine error to its stable result code.
func ErrorCode(err error) uint32 {
	if err == nil {
		return CodeOK
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}
