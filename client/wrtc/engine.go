package wrtc

import (
	"context"
	"io"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/multierr"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

var ErrStopped = errors.New("transceiver stopped")

// Engine adapts a pion peer connection to media.Engine.
//
// pion only applies the offers it created itself, so the offer returned by
// CreateOffer is applied as pion created it while the text passed to
// SetLocalDescription is what LocalDescription reports.
type Engine struct {
	log logger.Logger
	pc  *webrtc.PeerConnection

	mu           sync.Mutex
	transceivers map[*webrtc.RTPTransceiver]*transceiver
	offer        string
	local        string
}

var _ media.Engine = &Engine{}

func newEngine(log logger.Logger, pc *webrtc.PeerConnection) *Engine {
	e := &Engine{
		log:          log.WithNamespaceAppended("engine"),
		pc:           pc,
		transceivers: map[*webrtc.RTPTransceiver]*transceiver{},
	}

	pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		e.log.Debug("Signaling state changed", logger.Ctx{
			"state": state.String(),
		})
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		e.log.Info("ICE connection state changed", logger.Ctx{
			"state": state.String(),
		})
	})

	return e
}

// PeerConnection returns the adapted peer connection.
func (e *Engine) PeerConnection() *webrtc.PeerConnection {
	return e.pc
}

func (e *Engine) wrap(t *webrtc.RTPTransceiver) *transceiver {
	wrapped, ok := e.transceivers[t]
	if !ok {
		wrapped = newTransceiver(e, t)
		e.transceivers[t] = wrapped
	}

	return wrapped
}

func (e *Engine) Transceivers() []media.Transceiver {
	e.mu.Lock()
	defer e.mu.Unlock()

	pts := e.pc.GetTransceivers()
	ret := make([]media.Transceiver, 0, len(pts))

	for _, t := range pts {
		ret = append(ret, e.wrap(t))
	}

	return ret
}

func (e *Engine) transceiverByReceiver(receiver *webrtc.RTPReceiver) (*transceiver, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.pc.GetTransceivers() {
		if t.Receiver() == receiver {
			return e.wrap(t), true
		}
	}

	return nil, false
}

func rtpCodecType(kind media.Kind) (webrtc.RTPCodecType, error) {
	switch kind {
	case media.KindAudio:
		return webrtc.RTPCodecTypeAudio, nil
	case media.KindVideo:
		return webrtc.RTPCodecTypeVideo, nil
	default:
		return 0, errors.Annotatef(media.ErrNotSupported, "kind: %q", kind)
	}
}

func transceiverDirection(direction media.Direction) webrtc.RTPTransceiverDirection {
	return webrtc.NewRTPTransceiverDirection(string(direction))
}

// AddTransceiverFromKind adds a transceiver without a track. pion cannot
// create inactive transceivers, so those are created receive only and
// disabled in the offer.
func (e *Engine) AddTransceiverFromKind(kind media.Kind, init media.TransceiverInit) (media.Transceiver, error) {
	codecType, err := rtpCodecType(kind)
	if err != nil {
		return nil, errors.Trace(err)
	}

	direction := init.Direction
	if direction == "" {
		direction = media.DirectionSendRecv
	}

	pionDirection := direction
	if pionDirection == media.DirectionInactive {
		pionDirection = media.DirectionRecvOnly
	}

	t, err := e.pc.AddTransceiverFromKind(codecType, webrtc.RTPTransceiverInit{
		Direction: transceiverDirection(pionDirection),
	})
	if err != nil {
		return nil, errors.Annotatef(err, "add %s transceiver", kind)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	wrapped := e.wrap(t)
	wrapped.direction = direction

	return wrapped, nil
}

// AddTransceiverFromTrack adds a transceiver sending track, which must be a
// webrtc.TrackLocal. Only a single send encoding is supported.
func (e *Engine) AddTransceiverFromTrack(track media.Track, init media.TransceiverInit) (media.Transceiver, error) {
	local, ok := track.(webrtc.TrackLocal)
	if !ok {
		return nil, errors.Annotatef(media.ErrUnsupportedTrack, "track: %s", track.ID())
	}

	if len(init.SendEncodings) > 1 {
		return nil, errors.Annotatef(media.ErrNotSupported, "%d send encodings", len(init.SendEncodings))
	}

	direction := init.Direction
	if direction == "" {
		direction = media.DirectionSendRecv
	}

	t, err := e.pc.AddTransceiverFromTrack(local, webrtc.RTPTransceiverInit{
		Direction: transceiverDirection(direction),
	})
	if err != nil {
		return nil, errors.Annotatef(err, "add transceiver for track: %s", track.ID())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.wrap(t), nil
}

// CreateOffer creates an offer with the directions of all transceivers set
// to the directions set through the adapter.
func (e *Engine) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Trace(err)
	}

	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return "", errors.Annotate(err, "create offer")
	}

	desc, err := sdpinfo.Parse(offer.SDP)
	if err != nil {
		return "", errors.Trace(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.pc.GetTransceivers() {
		wrapped := e.wrap(t)

		mid := t.Mid()
		if mid == "" || wrapped.Stopped() {
			continue
		}

		current, err := desc.Direction(mid)
		if err != nil {
			continue
		}

		if direction := string(wrapped.Direction()); current != direction {
			if err := desc.SetDirection(mid, direction); err != nil {
				return "", errors.Trace(err)
			}
		}
	}

	text, err := desc.Marshal()
	if err != nil {
		return "", errors.Trace(err)
	}

	e.offer = offer.SDP

	return text, nil
}

// SetLocalDescription applies the offer last created by CreateOffer and
// records sdp as the local description.
func (e *Engine) SetLocalDescription(ctx context.Context, sdp string) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}

	e.mu.Lock()
	offer := e.offer
	e.mu.Unlock()

	if offer == "" {
		offer = sdp
	}

	err := e.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer,
	})
	if err != nil {
		return errors.Annotate(err, "set local description")
	}

	e.mu.Lock()
	e.offer = ""
	e.local = sdp
	e.mu.Unlock()

	return nil
}

func (e *Engine) SetRemoteDescription(ctx context.Context, sdp string) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}

	err := e.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})

	return errors.Annotate(err, "set remote description")
}

func (e *Engine) HasLocalOffer() bool {
	return e.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer
}

func (e *Engine) LocalDescription() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.local != "" {
		return e.local
	}

	if desc := e.pc.LocalDescription(); desc != nil {
		return desc.SDP
	}

	return ""
}

// OnTrack registers a handler called for every remote track received.
func (e *Engine) OnTrack(fn func(track *webrtc.TrackRemote, t media.Transceiver)) {
	e.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		t, ok := e.transceiverByReceiver(receiver)
		if !ok {
			e.log.Warn("Track without transceiver", logger.Ctx{
				"track_id":  track.ID(),
				"stream_id": track.StreamID(),
			})

			return
		}

		e.log.Info("Track", logger.Ctx{
			"track_id":  track.ID(),
			"stream_id": track.StreamID(),
			"ssrc":      uint32(track.SSRC()),
			"mid":       t.Mid(),
		})

		fn(track, t)
	})
}

func (e *Engine) OnNegotiationNeeded(fn func()) {
	e.pc.OnNegotiationNeeded(fn)
}

// RequestKeyFrame sends a picture loss indication for a received stream.
func (e *Engine) RequestKeyFrame(ssrc uint32) error {
	err := e.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{
			MediaSSRC: ssrc,
		},
	})
	if err != nil {
		return errors.Annotate(err, "write rtcp")
	}

	prometheusRTCPPacketsSent.Inc()

	return nil
}

// ReadRTP reads packets of track until it ends or ctx is done. It returns
// nil when the track ends.
func ReadRTP(ctx context.Context, track *webrtc.TrackRemote, fn func(*rtp.Packet)) error {
	prometheusTracksActive.Inc()
	defer prometheusTracksActive.Dec()

	for {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if multierr.Is(err, io.EOF) {
				return nil
			}

			return errors.Annotate(err, "read rtp")
		}

		prometheusRTPPacketsReceived.Inc()
		prometheusRTPPacketsReceivedBytes.Add(float64(pkt.MarshalSize()))

		fn(pkt)
	}
}

func (e *Engine) Close() error {
	return errors.Annotate(e.pc.Close(), "close peer connection")
}
