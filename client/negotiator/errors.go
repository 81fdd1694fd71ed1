package negotiator

import (
	"fmt"

	"github.com/juju/errors"
)

var (
	ErrNegotiationFailed  = errors.New("negotiation failed")
	ErrNegotiationStarved = errors.New("negotiation starved")
	ErrUnknownTransceiver = errors.New("unknown transceiver")
	ErrClosed             = errors.New("negotiator closed")
)

// FailedError is returned when a negotiation cycle fails. It matches
// ErrNegotiationFailed and unwraps to the cause of the failure. The work of
// the failed cycle is kept, so negotiating again retries it.
type FailedError struct {
	err error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNegotiationFailed, e.err)
}

func (e *FailedError) Is(target error) bool {
	return target == ErrNegotiationFailed
}

func (e *FailedError) Unwrap() error {
	return errors.Cause(e.err)
}
