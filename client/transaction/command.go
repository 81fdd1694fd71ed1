package transaction

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/message"
)

// Command is a command received from the remote side. It must be answered
// exactly once with Accept or Reject.
type Command struct {
	ID        message.TransactionID
	Name      string
	Namespace string
	Data      json.RawMessage

	manager *Manager

	mu       sync.Mutex
	answered bool
}

func (c *Command) answer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.answered {
		return false
	}

	c.answered = true

	return true
}

// Accept sends a response frame with data.
func (c *Command) Accept(ctx context.Context, data interface{}) error {
	if !c.answer() {
		return errors.Trace(ErrAlreadyAnswered)
	}

	raw, err := message.EncodeData(data)
	if err != nil {
		return errors.Trace(err)
	}

	return errors.Trace(c.manager.send(ctx, message.NewResponse(c.ID, raw)))
}

// Reject sends an error frame with data.
func (c *Command) Reject(ctx context.Context, data interface{}) error {
	if !c.answer() {
		return errors.Trace(ErrAlreadyAnswered)
	}

	raw, err := message.EncodeData(data)
	if err != nil {
		return errors.Trace(err)
	}

	return errors.Trace(c.manager.send(ctx, message.NewError(c.ID, raw)))
}

// Event is an event received from the remote side.
type Event struct {
	Name      string
	Namespace string
	Data      json.RawMessage
}

type (
	CommandHandler func(cmd *Command)
	EventHandler   func(event Event)
)
