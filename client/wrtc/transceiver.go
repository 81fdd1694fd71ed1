package wrtc

import (
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/pion/webrtc/v3"
)

// transceiver tracks the wanted direction of a pion transceiver. The
// direction is applied by rewriting the local offer.
type transceiver struct {
	engine *Engine
	t      *webrtc.RTPTransceiver

	mu        sync.Mutex
	direction media.Direction
	stopped   bool
}

var _ media.Transceiver = &transceiver{}

func newTransceiver(engine *Engine, t *webrtc.RTPTransceiver) *transceiver {
	return &transceiver{
		engine:    engine,
		t:         t,
		direction: media.Direction(t.Direction().String()),
	}
}

func (t *transceiver) Mid() string {
	return t.t.Mid()
}

func (t *transceiver) Kind() media.Kind {
	if t.t.Kind() == webrtc.RTPCodecTypeAudio {
		return media.KindAudio
	}

	return media.KindVideo
}

func (t *transceiver) Direction() media.Direction {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.direction
}

func (t *transceiver) SetDirection(direction media.Direction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return errors.Annotatef(ErrStopped, "mid: %q", t.t.Mid())
	}

	t.direction = direction

	return nil
}

func (t *transceiver) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopped
}

// Stop stops the transceiver permanently.
func (t *transceiver) Stop() error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	return errors.Trace(t.t.Stop())
}

func (t *transceiver) SenderEncodings() []media.Encoding {
	sender := t.t.Sender()
	if sender == nil || sender.Track() == nil {
		return nil
	}

	params := sender.GetParameters()

	encodings := make([]media.Encoding, 0, len(params.Encodings))

	for _, e := range params.Encodings {
		encodings = append(encodings, media.Encoding{
			RID: e.RID,
		})
	}

	return encodings
}

func (t *transceiver) SetSenderEncodings([]media.Encoding) error {
	return errors.Trace(media.ErrNotSupported)
}

func (t *transceiver) StopSending() error {
	sender := t.t.Sender()
	if sender == nil {
		return nil
	}

	if err := t.engine.pc.RemoveTrack(sender); err != nil {
		return errors.Annotate(err, "remove track")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.direction {
	case media.DirectionSendOnly:
		t.direction = media.DirectionInactive
	case media.DirectionSendRecv:
		t.direction = media.DirectionRecvOnly
	}

	return nil
}
