package transaction

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/message"
	"github.com/peer-calls/mediaclient/client/promise"
)

// Transaction is a command sent to the remote side that waits for its
// answer.
type Transaction struct {
	ID        message.TransactionID
	Name      string
	Namespace string
	Data      json.RawMessage

	promise *promise.Promise[json.RawMessage]
}

func newTransaction(id message.TransactionID, name, namespace string, data json.RawMessage) *Transaction {
	return &Transaction{
		ID:        id,
		Name:      name,
		Namespace: namespace,
		Data:      data,
		promise:   promise.New[json.RawMessage](),
	}
}

// Wait returns the response data, or a *RemoteError when the command was
// rejected. A done ctx abandons the wait without settling the transaction.
func (t *Transaction) Wait(ctx context.Context) (json.RawMessage, error) {
	data, err := t.promise.Wait(ctx)

	return data, errors.Trace(err)
}

// Done is closed once the transaction is settled.
func (t *Transaction) Done() <-chan struct{} {
	return t.promise.Done()
}

// Commander sends commands and can forget about transactions whose answer is
// no longer of interest.
type Commander interface {
	Cmd(ctx context.Context, name string, data interface{}) (*Transaction, error)
	Forget(t *Transaction)
}

// Call sends a command and decodes its response into T. When ctx is done
// before the answer arrives the transaction is forgotten.
func Call[T any](ctx context.Context, c Commander, name string, data interface{}) (T, error) {
	var ret T

	t, err := c.Cmd(ctx, name, data)
	if err != nil {
		return ret, errors.Trace(err)
	}

	raw, err := t.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.Forget(t)
		}

		return ret, errors.Trace(err)
	}

	if len(raw) == 0 {
		return ret, nil
	}

	if err := json.Unmarshal(raw, &ret); err != nil {
		return ret, errors.Annotatef(err, "decode %s response", name)
	}

	return ret, nil
}
