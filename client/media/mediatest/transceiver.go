package mediatest

import (
	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/media"
)

type Transceiver struct {
	engine *Engine

	mid       string
	kind      media.Kind
	direction media.Direction
	stopped   bool
	track     media.Track
	ssrc      uint32
	encodings []media.Encoding
}

var _ media.Transceiver = &Transceiver{}

func (t *Transceiver) Mid() string {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	return t.mid
}

func (t *Transceiver) Kind() media.Kind {
	return t.kind
}

func (t *Transceiver) Direction() media.Direction {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	return t.direction
}

func (t *Transceiver) SetDirection(direction media.Direction) error {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	t.direction = direction

	return nil
}

func (t *Transceiver) Stopped() bool {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	return t.stopped
}

// Stop marks the transceiver as stopped. Stopped transceivers are offered
// with port 0.
func (t *Transceiver) Stop() {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	t.stopped = true
	t.direction = media.DirectionInactive
}

// Track returns the local track attached to the sender.
func (t *Transceiver) Track() media.Track {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	return t.track
}

func (t *Transceiver) SenderEncodings() []media.Encoding {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	return append([]media.Encoding(nil), t.encodings...)
}

func (t *Transceiver) SetSenderEncodings(encodings []media.Encoding) error {
	if hook := t.engine.params.Hooks.SetSenderEncodings; hook != nil {
		if err := hook(encodings); err != nil {
			return errors.Trace(err)
		}
	}

	if !t.engine.params.SendEncodings {
		return errors.Annotatef(media.ErrNotSupported, "set sender encodings")
	}

	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	t.encodings = append([]media.Encoding(nil), encodings...)

	return nil
}

func (t *Transceiver) StopSending() error {
	if hook := t.engine.params.Hooks.StopSending; hook != nil {
		if err := hook(); err != nil {
			return errors.Trace(err)
		}
	}

	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	t.track = nil

	switch t.direction {
	case media.DirectionSendOnly:
		t.direction = media.DirectionInactive
	case media.DirectionSendRecv:
		t.direction = media.DirectionRecvOnly
	}

	return nil
}
