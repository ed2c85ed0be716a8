package models

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotOperational      = errors.New("contract is not operational")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateFlight     = errors.New("flight already registered")
	ErrAlreadySubmitted    = errors.New("already submitted")
	ErrAlreadyRegistered   = errors.New("airline already registered")
	ErrDuplicateVote       = errors.New("duplicate vote")
	ErrStakeCapExceeded    = errors.New("stake cap exceeded")
	ErrNothingToWithdraw   = errors.New("nothing to withdraw")
	ErrQuorumNotReached    = errors.New("quorum not reached")
	ErrNotAssigned         = errors.New("oracle not assigned to request")
	ErrRequestClosed       = errors.New("oracle request closed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrFlightResolved      = errors.New("flight already resolved")
	ErrInsufficientOracles = errors.New("not enough registered oracles")
)

// IsBenign reports whether err is a legitimate "not yet" or "already done"
// outcome rather than a failure.
func IsBenign(err error) bool {
	return errors.Is(err, ErrQuorumNotReached) || errors.Is(err, ErrRequestClosed)
}
