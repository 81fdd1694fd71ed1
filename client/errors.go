package client

import "github.com/juju/errors"

var (
	ErrStopped      = errors.New("media server stopped")
	ErrClosed       = errors.New("peer connection closed")
	ErrViewRejected = errors.New("view rejected")
	ErrNotStarted   = errors.New("player not started")
)
