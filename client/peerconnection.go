package client

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/message"
	"github.com/peer-calls/mediaclient/client/negotiator"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
	"github.com/peer-calls/mediaclient/client/transaction"
)

// TrackEvent describes a remote track together with the ids the server
// announced for it.
type TrackEvent = negotiator.TrackEvent

type peerConnectionParams struct {
	log     logger.Logger
	ns      *transaction.Namespace
	engine  media.Engine
	remote  sdpinfo.RemoteParams
	options Options
}

// PeerConnection is a media engine whose negotiation is managed by the
// media server.
type PeerConnection struct {
	id         string
	log        logger.Logger
	ns         *transaction.Namespace
	engine     media.Engine
	negotiator *negotiator.Negotiator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	onTrack      func(TrackEvent)
	onTrackEnded func(TrackEvent)
	closed       bool
	done         chan struct{}
}

func newPeerConnection(params peerConnectionParams) (*PeerConnection, error) {
	log := params.log.WithNamespaceAppended("peer_connection").WithCtx(logger.Ctx{
		"pc_id": params.remote.ID,
	})

	ctx, cancel := context.WithCancel(context.Background())

	pc := &PeerConnection{
		id:     params.remote.ID,
		log:    log,
		ns:     params.ns,
		engine: params.engine,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	n, err := negotiator.New(negotiator.Params{
		Log:                params.log,
		Engine:             params.engine,
		Events:             params.ns,
		Remote:             params.remote,
		SSRCGenerator:      params.options.SSRCGenerator,
		StrictW3C:          params.options.StrictW3C,
		ForceSDPMunging:    params.options.ForceSDPMunging,
		ForceRenegotiation: !params.options.StrictW3C,
		NewBackOff:         params.options.NewBackOff,
		OnTrackEnded:       pc.handleTrackEnded,
	})
	if err != nil {
		cancel()

		return nil, errors.Annotate(err, "create negotiator")
	}

	pc.negotiator = n

	params.ns.OnEvent(pc.handleEvent)

	if notifier, ok := params.engine.(media.NegotiationNeededNotifier); ok {
		notifier.OnNegotiationNeeded(func() {
			pc.log.Debug("Negotiation needed", nil)
			pc.negotiateAsync()
		})
	}

	prometheusPeerConnectionsActive.Inc()
	prometheusPeerConnectionsTotal.Inc()

	log.Info("Created", nil)

	return pc, nil
}

// ID is the id the media server assigned to the peer connection.
func (pc *PeerConnection) ID() string {
	return pc.id
}

func (pc *PeerConnection) Engine() media.Engine {
	return pc.engine
}

func (pc *PeerConnection) Negotiator() *negotiator.Negotiator {
	return pc.negotiator
}

// OnTrack sets the handler called from HandleTrack.
func (pc *PeerConnection) OnTrack(fn func(TrackEvent)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.onTrack = fn
}

// OnTrackEnded sets the handler called when the server removes a track.
func (pc *PeerConnection) OnTrackEnded(fn func(TrackEvent)) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.onTrackEnded = fn
}

// HandleTrack reports that the engine started receiving media on
// transceiver. The OnTrack handler is called with the server ids of the
// track, when the transceiver is receiving a server track.
func (pc *PeerConnection) HandleTrack(transceiver media.Transceiver) (TrackEvent, bool) {
	event, ok := pc.negotiator.RemoteTrack(transceiver)
	if !ok {
		pc.log.Warn("Track on unknown transceiver", logger.Ctx{
			"mid": transceiver.Mid(),
		})

		return event, false
	}

	pc.log.Info("Track", logger.Ctx{
		"stream_id": event.StreamID,
		"track_id":  event.TrackID,
		"mid":       transceiver.Mid(),
	})

	pc.mu.Lock()
	onTrack := pc.onTrack
	pc.mu.Unlock()

	if onTrack != nil {
		onTrack(event)
	}

	return event, true
}

func (pc *PeerConnection) handleTrackEnded(event TrackEvent) {
	pc.mu.Lock()
	onTrackEnded := pc.onTrackEnded
	pc.mu.Unlock()

	if onTrackEnded != nil {
		onTrackEnded(event)
	}
}

func (pc *PeerConnection) handleEvent(event transaction.Event) {
	pe, err := message.DecodePeerEvent(event.Name, event.Data)
	if err != nil {
		pc.log.Error("Decode event", errors.Trace(err), logger.Ctx{
			"name": event.Name,
		})

		return
	}

	switch {
	case pe.AddedTrack != nil:
		pc.negotiator.EnqueueAdd(pe.AddedTrack.StreamID, pe.AddedTrack.Track)
		pc.negotiateAsync()
	case pe.RemovedTrack != nil:
		pc.negotiator.EnqueueRemove(pe.RemovedTrack.StreamID, pe.RemovedTrack.TrackID)
		pc.negotiateAsync()
	case pe.Stopped != nil:
		pc.log.Info("Stopped by server", nil)
		pc.Close()
	}
}

// negotiateAsync runs a negotiation in the background. Failures are only
// logged.
func (pc *PeerConnection) negotiateAsync() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.closed {
		return
	}

	pc.wg.Add(1)

	go func() {
		defer pc.wg.Done()

		if err := pc.negotiator.Negotiate(pc.ctx); err != nil {
			prometheusBackgroundNegotiationFailures.Inc()

			pc.log.Error("Negotiate", errors.Trace(err), nil)
		}
	}()
}

// Negotiate runs negotiation cycles until the engine is in sync with the
// server.
func (pc *PeerConnection) Negotiate(ctx context.Context) error {
	return errors.Trace(pc.negotiator.Negotiate(ctx))
}

// AddTrack starts sending track. Unless StrictW3C is set the server is told
// about it before AddTrack returns.
func (pc *PeerConnection) AddTrack(ctx context.Context, track media.Track, params negotiator.SendParams) (media.Transceiver, error) {
	t, err := pc.negotiator.AddTrack(ctx, track, track.StreamID(), params)

	return t, errors.Trace(err)
}

// RemoveTrack stops sending on transceiver and tells the server.
func (pc *PeerConnection) RemoveTrack(ctx context.Context, transceiver media.Transceiver) error {
	if err := pc.negotiator.RemoveTrack(transceiver); err != nil {
		return errors.Trace(err)
	}

	return errors.Trace(pc.negotiator.Negotiate(ctx))
}

// Streams returns the remote streams received.
func (pc *PeerConnection) Streams() []sdpinfo.StreamInfo {
	return pc.negotiator.Streams()
}

// Done is closed when the peer connection is closed.
func (pc *PeerConnection) Done() <-chan struct{} {
	return pc.done
}

// Close stops negotiation, closes the namespace of the peer connection and
// closes the engine. Close is idempotent.
func (pc *PeerConnection) Close() {
	pc.mu.Lock()

	if pc.closed {
		pc.mu.Unlock()

		return
	}

	pc.closed = true
	pc.mu.Unlock()

	pc.cancel()
	pc.negotiator.Close()
	pc.ns.Close()

	pc.wg.Wait()

	if err := pc.engine.Close(); err != nil {
		pc.log.Error("Close engine", errors.Trace(err), nil)
	}

	prometheusPeerConnectionsActive.Dec()

	close(pc.done)

	pc.log.Info("Closed", nil)
}
