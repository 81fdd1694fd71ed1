// Package negotiator keeps the local media engine in sync with the media
// server. The client always offers and answers on behalf of the server from
// the capabilities the server announced, so every change in the set of sent
// or received tracks is applied in an offer/answer cycle run locally.
package negotiator

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/sdpfix"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
	"github.com/peer-calls/mediaclient/client/session"
)

// DefaultMaxFollowUps bounds the number of cycles chained after the first one
// in a single call to Negotiate.
const DefaultMaxFollowUps = 16

type State int

const (
	StateIdle State = iota
	StateNegotiating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	default:
		return "unknown"
	}
}

// EventSender sends fire-and-forget events to the media server.
type EventSender interface {
	Event(ctx context.Context, name string, data interface{}) error
}

// TrackEvent describes a remote track received on a transceiver.
type TrackEvent struct {
	Transceiver media.Transceiver
	StreamID    string
	TrackID     string
	Track       sdpinfo.TrackInfo
}

type Params struct {
	Log    logger.Logger
	Engine media.Engine
	Events EventSender

	// Remote is the media server's answer to the create command.
	Remote sdpinfo.RemoteParams

	// SSRCGenerator is used for synthesized simulcast streams. A new one is
	// created when nil.
	SSRCGenerator *sdpfix.SSRCGenerator

	// StrictW3C disables every text rewrite of local descriptions.
	StrictW3C bool

	// ForceSDPMunging strips simulcast lines from descriptions and announces
	// simulcast through synthesized ssrc lines only.
	ForceSDPMunging bool

	// ForceRenegotiation makes AddTrack negotiate immediately.
	ForceRenegotiation bool

	// NewBackOff returns the pacing policy of follow-up cycles. It returns
	// backoff.Stop once no more follow-ups are allowed.
	NewBackOff func() backoff.BackOff

	// OnTrackEnded is called when a remote track stops being received.
	OnTrackEnded func(TrackEvent)
}

// NewBackOff returns an exponential policy allowing at most maxFollowUps
// follow-up cycles.
func NewBackOff(initial time.Duration, maxFollowUps int) backoff.BackOff {
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = initial
	ebo.MaxInterval = time.Second
	ebo.MaxElapsedTime = 0
	ebo.Reset()

	return backoff.WithMaxRetries(ebo, uint64(maxFollowUps))
}

type Negotiator struct {
	params *Params
	log    logger.Logger

	mu              sync.Mutex
	state           State
	session         *session.Session
	forceSDPMunging bool
	closed          bool

	// offer is the parsed local offer waiting for its answer.
	offer            *sdpinfo.Description
	offerSimulcast03 bool
}

// New disables all transceivers the engine already has and marks them
// pending. No cycle is started.
func New(params Params) (*Negotiator, error) {
	if params.SSRCGenerator == nil {
		params.SSRCGenerator = sdpfix.NewSSRCGenerator()
	}

	if params.NewBackOff == nil {
		params.NewBackOff = func() backoff.BackOff {
			return NewBackOff(5*time.Millisecond, DefaultMaxFollowUps)
		}
	}

	n := &Negotiator{
		params: &params,
		log: params.Log.WithNamespaceAppended("negotiator").WithCtx(logger.Ctx{
			"pc_id": params.Remote.ID,
		}),
		session:         session.New(),
		forceSDPMunging: params.ForceSDPMunging,
	}

	for _, t := range n.session.Sync(params.Engine.Transceivers()) {
		if err := t.Media.SetDirection(media.DirectionInactive); err != nil {
			return nil, errors.Annotate(err, "disable transceiver")
		}

		n.session.MarkPending(t)
	}

	return n, nil
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.state
}

// EnqueueAdd queues a remote track to be received in the next cycle.
func (n *Negotiator) EnqueueAdd(streamID string, track sdpinfo.TrackInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.session.EnqueueAdd(session.AddRequest{
		StreamID: streamID,
		Track:    track,
	})
}

// EnqueueRemove queues a remote track to stop being received in the next
// cycle.
func (n *Negotiator) EnqueueRemove(streamID, trackID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.session.EnqueueRemove(session.RemoveRequest{
		StreamID: streamID,
		TrackID:  trackID,
	})
}

// SendParams configures a sent track.
type SendParams struct {
	// Encodings requests simulcast with one layer per encoding.
	Encodings []media.Encoding

	// Codecs restricts the video codecs used by the sender, by name.
	Codecs []string
}

// AddTrack starts sending track in a stream with streamID, or in no stream
// when streamID is empty. The track is announced to the server in the next
// cycle, which runs before AddTrack returns when renegotiation is forced.
func (n *Negotiator) AddTrack(ctx context.Context, track media.Track, streamID string, params SendParams) (media.Transceiver, error) {
	mt, force, err := n.addTrack(track, streamID, params)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if force {
		if err := n.Negotiate(ctx); err != nil {
			return mt, errors.Trace(err)
		}
	}

	return mt, nil
}

func (n *Negotiator) addTrack(track media.Track, streamID string, params SendParams) (media.Transceiver, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, false, errors.Trace(ErrClosed)
	}

	force := n.params.ForceRenegotiation
	engine := n.params.Engine

	init := media.TransceiverInit{
		Direction: media.DirectionSendOnly,
	}

	if streamID != "" {
		init.StreamIDs = []string{streamID}
	}

	if !n.forceSDPMunging {
		init.SendEncodings = params.Encodings
	}

	mt, err := engine.AddTransceiverFromTrack(track, init)
	if err != nil {
		if n.params.StrictW3C || len(init.SendEncodings) == 0 {
			return nil, false, errors.Annotate(err, "add transceiver")
		}

		n.log.Warn("Adding transceiver without send encodings", logger.Ctx{
			"error": err.Error(),
		})

		init.SendEncodings = nil

		if mt, err = engine.AddTransceiverFromTrack(track, init); err != nil {
			return nil, false, errors.Annotate(err, "add transceiver")
		}
	}

	t := n.session.Transceiver(mt)

	t.SendStreamID = streamID
	if t.SendStreamID == "" {
		t.SendStreamID = "-"
	}

	if !n.params.StrictW3C {
		if len(params.Encodings) > 0 {
			if err := mt.SetSenderEncodings(params.Encodings); err != nil {
				n.log.Warn("Set sender encodings", logger.Ctx{
					"error": err.Error(),
				})
			} else {
				force = true
			}
		}

		if len(mt.SenderEncodings()) != len(params.Encodings) {
			if len(params.Encodings) > 1 {
				t.Simulcast = &sdpfix.Simulcast{
					Encodings: append([]media.Encoding(nil), params.Encodings...),
				}
			}
		} else {
			n.forceSDPMunging = false
		}
	}

	if params.Codecs != nil {
		t.Codecs = append([]string(nil), params.Codecs...)
	}

	n.session.MarkPending(t)

	n.log.Info("Track added", logger.Ctx{
		"track_id":  track.ID(),
		"stream_id": t.SendStreamID,
		"force":     force,
	})

	return mt, force, nil
}

// RemoveTrack stops sending on transceiver. The server is told in the next
// cycle, which is not started by RemoveTrack.
func (n *Negotiator) RemoveTrack(mt media.Transceiver) error {
	n.mu.Lock()
	t, ok := n.session.Lookup(mt)
	n.mu.Unlock()

	if !ok {
		return errors.Trace(ErrUnknownTransceiver)
	}

	// The transceiver must not be pending before it stops sending, otherwise a
	// running cycle could announce it as sent again.
	if err := mt.StopSending(); err != nil {
		return errors.Annotate(err, "stop sending")
	}

	n.mu.Lock()
	n.session.MarkPending(t)
	n.mu.Unlock()

	return nil
}

// Streams returns the remote streams with all their tracks.
func (n *Negotiator) Streams() []sdpinfo.StreamInfo {
	n.mu.Lock()
	defer n.mu.Unlock()

	streams := n.session.Streams()
	ret := make([]sdpinfo.StreamInfo, 0, len(streams))

	for _, stream := range streams {
		info := sdpinfo.StreamInfo{ID: stream.ID}

		for _, track := range stream.Tracks() {
			info.Tracks = append(info.Tracks, *track)
		}

		ret = append(ret, info)
	}

	return ret
}

// Transceivers returns a snapshot of the transceiver records.
func (n *Negotiator) Transceivers() []session.Transceiver {
	n.mu.Lock()
	defer n.mu.Unlock()

	records := n.session.Transceivers()
	ret := make([]session.Transceiver, 0, len(records))

	for _, t := range records {
		ret = append(ret, *t)
	}

	return ret
}

// RemoteTrack returns the remote track associated with a transceiver.
func (n *Negotiator) RemoteTrack(mt media.Transceiver) (TrackEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.session.Lookup(mt)
	if !ok || t.Track == nil {
		return TrackEvent{}, false
	}

	return TrackEvent{
		Transceiver: mt,
		StreamID:    t.StreamID,
		TrackID:     t.TrackID,
		Track:       *t.Track,
	}, true
}

// LocalDescription returns the local offer of the last successful cycle.
// The returned value must not be modified.
func (n *Negotiator) LocalDescription() *sdpinfo.Description {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.session.Local
}

// RemoteDescription returns the answer applied in the last successful cycle.
// The returned value must not be modified.
func (n *Negotiator) RemoteDescription() *sdpinfo.Description {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.session.Remote
}

// Close makes later calls to Negotiate and AddTrack fail. A running cycle
// is not interrupted.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
}

// Negotiate runs offer/answer cycles until no work is left. When a cycle is
// already running it returns nil immediately and the work is picked up by a
// follow-up cycle of the running call.
func (n *Negotiator) Negotiate(ctx context.Context) error {
	n.mu.Lock()

	if n.closed {
		n.mu.Unlock()

		return errors.Trace(ErrClosed)
	}

	if n.state == StateNegotiating {
		n.mu.Unlock()

		n.log.Debug("Negotiate: already negotiating, deferring", nil)

		return nil
	}

	n.state = StateNegotiating
	n.mu.Unlock()

	return errors.Trace(n.run(ctx))
}

func (n *Negotiator) setIdle() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.state = StateIdle
}

func (n *Negotiator) run(ctx context.Context) error {
	b := backoff.WithContext(n.params.NewBackOff(), ctx)

	for followUps := 0; ; followUps++ {
		if err := n.cycle(ctx); err != nil {
			n.setIdle()

			return err
		}

		n.mu.Lock()

		if !n.hasWork() || n.closed {
			n.state = StateIdle
			n.mu.Unlock()

			return nil
		}

		n.mu.Unlock()

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			n.setIdle()

			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}

			return errors.Annotatef(ErrNegotiationStarved, "follow-ups: %d", followUps)
		}

		n.log.Debug("Negotiate: follow-up cycle", logger.Ctx{
			"follow_up": followUps + 1,
			"wait":      wait,
		})

		timer := time.NewTimer(wait)

		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			n.setIdle()

			return errors.Trace(ctx.Err())
		}
	}
}

func (n *Negotiator) hasWork() bool {
	return n.session.PendingLen() > 0 || n.session.HasQueued()
}
