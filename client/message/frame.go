package message

import (
	"encoding/json"

	"github.com/juju/errors"
)

// ErrBadFrame is returned when a frame cannot be decoded or is missing a
// field required by its type.
var ErrBadFrame = errors.New("bad frame")

// Type is the kind of a Frame.
type Type string

const (
	TypeCommand  Type = "cmd"
	TypeResponse Type = "response"
	TypeError    Type = "error"
	TypeEvent    Type = "event"
)

// TransactionID correlates a command with its response or error.
type TransactionID uint64

// Frame is a single text message exchanged over the transport.
//
// Commands carry TransactionID, Name, Namespace and Data. Responses and
// errors carry TransactionID and Data. Events carry Name, Namespace and Data.
type Frame struct {
	Type          Type
	TransactionID TransactionID
	Name          string
	Namespace     string
	Data          json.RawMessage
}

type frameJSON struct {
	Type          Type            `json:"type"`
	TransactionID *TransactionID  `json:"transId,omitempty"`
	Name          string          `json:"name,omitempty"`
	Namespace     string          `json:"namespace,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

func NewCommand(id TransactionID, name, namespace string, data json.RawMessage) Frame {
	return Frame{
		Type:          TypeCommand,
		TransactionID: id,
		Name:          name,
		Namespace:     namespace,
		Data:          data,
	}
}

func NewResponse(id TransactionID, data json.RawMessage) Frame {
	return Frame{
		Type:          TypeResponse,
		TransactionID: id,
		Data:          data,
	}
}

func NewError(id TransactionID, data json.RawMessage) Frame {
	return Frame{
		Type:          TypeError,
		TransactionID: id,
		Data:          data,
	}
}

func NewEvent(name, namespace string, data json.RawMessage) Frame {
	return Frame{
		Type:      TypeEvent,
		Name:      name,
		Namespace: namespace,
		Data:      data,
	}
}

// EncodeData marshals v for use as Frame data. A nil v yields no data.
func EncodeData(v interface{}) (json.RawMessage, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return d, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Annotatef(err, "encode data")
	}

	return json.RawMessage(b), nil
}

func (f Frame) validate() error {
	switch f.Type {
	case TypeCommand, TypeEvent:
		if f.Name == "" {
			return errors.Annotatef(ErrBadFrame, "%s without name", f.Type)
		}
	case TypeResponse, TypeError:
	default:
		return errors.Annotatef(ErrBadFrame, "unknown type: %q", f.Type)
	}

	return nil
}

func (f Frame) MarshalJSON() ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, errors.Trace(err)
	}

	j := frameJSON{
		Type: f.Type,
		Data: f.Data,
	}

	if f.Type != TypeEvent {
		id := f.TransactionID
		j.TransactionID = &id
	}

	if f.Type == TypeCommand || f.Type == TypeEvent {
		j.Name = f.Name
		j.Namespace = f.Namespace
	}

	b, err := json.Marshal(j)

	return b, errors.Annotatef(err, "marshal %s frame", f.Type)
}

func (f *Frame) UnmarshalJSON(b []byte) error {
	var j frameJSON

	if err := json.Unmarshal(b, &j); err != nil {
		return errors.Annotatef(ErrBadFrame, "unmarshal: %s", err)
	}

	frame := Frame{
		Type:      j.Type,
		Name:      j.Name,
		Namespace: j.Namespace,
		Data:      j.Data,
	}

	if j.Type != TypeEvent {
		if j.TransactionID == nil {
			return errors.Annotatef(ErrBadFrame, "%s without transId", j.Type)
		}

		frame.TransactionID = *j.TransactionID
	}

	if err := frame.validate(); err != nil {
		return errors.Trace(err)
	}

	*f = frame

	return nil
}

// Parse decodes a single text frame.
func Parse(text string) (Frame, error) {
	var f Frame

	err := f.UnmarshalJSON([]byte(text))

	return f, errors.Trace(err)
}
