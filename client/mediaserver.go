// Package client connects media engines to a media server speaking the
// transaction protocol over a single socket.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/message"
	"github.com/peer-calls/mediaclient/client/negotiator"
	"github.com/peer-calls/mediaclient/client/sdpfix"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
	"github.com/peer-calls/mediaclient/client/transaction"
)

// Namespace is the namespace of peer connection management frames. Frames
// of a single peer connection use Namespace + "::" + id.
const Namespace = "medooze::pc"

// Options configures a managed peer connection.
type Options struct {
	// StrictW3C disables all description rewrites and immediate negotiation
	// of added tracks.
	StrictW3C bool

	// ForceSDPMunging announces simulcast through synthesized ssrc lines
	// only.
	ForceSDPMunging bool

	// NewBackOff paces follow-up negotiation cycles. The negotiator default
	// is used when nil.
	NewBackOff func() backoff.BackOff

	// SSRCGenerator is shared by peer connections of one process. A media
	// server wide generator is used when nil.
	SSRCGenerator *sdpfix.SSRCGenerator
}

// NegotiationBackOff returns a backoff factory for a retry policy.
func NegotiationBackOff(initial time.Duration, maxFollowUps int) func() backoff.BackOff {
	return func() backoff.BackOff {
		return negotiator.NewBackOff(initial, maxFollowUps)
	}
}

type MediaServerParams struct {
	Log     logger.Logger
	Manager *transaction.Manager
}

// MediaServer creates peer connections managed by the media server.
type MediaServer struct {
	log     logger.Logger
	manager *transaction.Manager
	ns      *transaction.Namespace
	ssrcs   *sdpfix.SSRCGenerator

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

func NewMediaServer(params MediaServerParams) *MediaServer {
	s := &MediaServer{
		log:     params.Log.WithNamespaceAppended("media_server"),
		manager: params.Manager,
		ns:      params.Manager.Namespace(Namespace),
		ssrcs:   sdpfix.NewSSRCGenerator(),
		done:    make(chan struct{}),
	}

	s.ns.OnEvent(s.handleEvent)

	return s
}

func (s *MediaServer) handleEvent(event transaction.Event) {
	s.log.Info("Event", logger.Ctx{
		"name": event.Name,
	})

	if event.Name == message.EventStopped {
		s.Stop()
	}
}

// Stop closes the management namespace. Peer connections already created
// are not closed.
func (s *MediaServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.stopped = true
	s.ns.Close()
	close(s.done)

	s.log.Info("Stopped", nil)
}

// Done is closed when the media server has been stopped.
func (s *MediaServer) Done() <-chan struct{} {
	return s.done
}

func (s *MediaServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped
}

// CreatePeerConnection registers engine with the media server and runs the
// first negotiation. A send only video transceiver is added first so that
// the offer carries the full video capabilities of the engine. The engine
// is closed when creation fails.
func (s *MediaServer) CreatePeerConnection(ctx context.Context, engine media.Engine, options Options) (*PeerConnection, error) {
	if s.isStopped() {
		return nil, errors.Trace(ErrStopped)
	}

	pc, err := s.createPeerConnection(ctx, engine, options)
	if err != nil {
		if pc != nil {
			pc.Close()
		} else if closeErr := engine.Close(); closeErr != nil {
			s.log.Error("Close engine", errors.Trace(closeErr), nil)
		}

		return nil, errors.Trace(err)
	}

	return pc, nil
}

func (s *MediaServer) createPeerConnection(ctx context.Context, engine media.Engine, options Options) (*PeerConnection, error) {
	_, err := engine.AddTransceiverFromKind(media.KindVideo, media.TransceiverInit{
		Direction: media.DirectionSendOnly,
	})
	if err != nil {
		return nil, errors.Annotate(err, "add probe transceiver")
	}

	offer, err := engine.CreateOffer(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "create offer")
	}

	normalized, _ := sdpfix.NormalizeSimulcast03(offer)

	local, err := sdpinfo.Parse(normalized)
	if err != nil {
		return nil, errors.Annotate(err, "parse offer")
	}

	if err := engine.SetLocalDescription(ctx, offer); err != nil {
		return nil, errors.Annotate(err, "set local description")
	}

	remote, err := transaction.Call[sdpinfo.RemoteParams](ctx, s.ns, message.CommandCreate, local.Info())
	if err != nil {
		return nil, errors.Annotate(err, "create")
	}

	if remote.ID == "" {
		return nil, errors.Errorf("create: response without id")
	}

	if options.SSRCGenerator == nil {
		options.SSRCGenerator = s.ssrcs
	}

	pc, err := newPeerConnection(peerConnectionParams{
		log:     s.log,
		ns:      s.manager.Namespace(Namespace + "::" + remote.ID),
		engine:  engine,
		remote:  remote,
		options: options,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	if err := pc.Negotiate(ctx); err != nil {
		return pc, errors.Annotate(err, "initial negotiation")
	}

	return pc, nil
}
