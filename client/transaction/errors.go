package transaction

import (
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
)

var (
	ErrBadCommandName     = errors.New("bad command name")
	ErrBadEventName       = errors.New("bad event name")
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrSendFailure        = errors.New("send failure")
	ErrClosed             = errors.New("closed")
	ErrAlreadyAnswered    = errors.New("command already answered")
)

// SendError is returned when a frame could not be handed to the transport.
// It matches ErrSendFailure and unwraps to the cause of the transport error.
type SendError struct {
	err error
}

func newSendError(err error) *SendError {
	return &SendError{err: err}
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSendFailure, e.err)
}

func (e *SendError) Is(target error) bool {
	return target == ErrSendFailure
}

func (e *SendError) Unwrap() error {
	return errors.Cause(e.err)
}

// RemoteError is the rejection of a command by the remote side. Data is the
// payload of the error frame.
type RemoteError struct {
	Data json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", string(e.Data))
}
