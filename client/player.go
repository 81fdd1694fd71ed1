package client

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/message"
	"github.com/peer-calls/mediaclient/client/transaction"
)

type PlayerParams struct {
	Log     logger.Logger
	Manager *transaction.Manager

	// Engine is the media engine the camera is received on. It is owned by
	// the player once Start is called.
	Engine  media.Engine
	Options Options

	CameraID   string
	InstanceID string
}

// Player views a single camera of a media server instance.
type Player struct {
	params PlayerParams
	log    logger.Logger
	server *MediaServer

	mu       sync.Mutex
	pc       *PeerConnection
	viewerID string
	track    *TrackEvent
	onTrack  func(TrackEvent)
	stopped  bool
}

func NewPlayer(params PlayerParams) *Player {
	log := params.Log.WithNamespaceAppended("player").WithCtx(logger.Ctx{
		"camera_id": params.CameraID,
		"instance":  params.InstanceID,
	})

	return &Player{
		params: params,
		log:    log,
		server: NewMediaServer(MediaServerParams{
			Log:     params.Log,
			Manager: params.Manager,
		}),
	}
}

// OnCameraTrack sets the handler called when the camera track is received.
func (p *Player) OnCameraTrack(fn func(TrackEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onTrack = fn
}

// CameraTrack returns the camera track once it has been received.
func (p *Player) CameraTrack() (TrackEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.track == nil {
		return TrackEvent{}, false
	}

	return *p.track, true
}

func (p *Player) ViewerID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.viewerID
}

// PeerConnection returns the peer connection once Start has succeeded.
func (p *Player) PeerConnection() *PeerConnection {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.pc
}

func (p *Player) handleTrack(event TrackEvent) {
	if event.TrackID != p.params.CameraID {
		p.log.Debug("Ignoring track", logger.Ctx{
			"track_id": event.TrackID,
		})

		return
	}

	p.mu.Lock()
	p.track = &event
	onTrack := p.onTrack
	p.mu.Unlock()

	p.log.Info("Camera track", nil)

	if onTrack != nil {
		onTrack(event)
	}
}

// Start creates the peer connection and asks the server to send the camera
// to it.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()

		return errors.Trace(ErrStopped)
	}
	p.mu.Unlock()

	pc, err := p.server.CreatePeerConnection(ctx, p.params.Engine, p.params.Options)
	if err != nil {
		return errors.Annotate(err, "create peer connection")
	}

	pc.OnTrack(p.handleTrack)

	p.mu.Lock()
	p.pc = pc
	p.mu.Unlock()

	return errors.Trace(p.view(ctx, pc.ID()))
}

func (p *Player) view(ctx context.Context, pcID string) error {
	res, err := transaction.Call[message.ViewResponse](ctx, p.params.Manager, message.CommandView, message.View{
		ID:       p.params.CameraID,
		Instance: p.params.InstanceID,
		PCID:     pcID,
	})
	if err != nil {
		prometheusViewsTotal.WithLabelValues("error").Inc()

		return errors.Annotate(err, "view")
	}

	if res.Error != "" {
		prometheusViewsTotal.WithLabelValues("rejected").Inc()

		return errors.Annotatef(ErrViewRejected, "%s", res.Error)
	}

	prometheusViewsTotal.WithLabelValues("ok").Inc()

	p.mu.Lock()
	p.viewerID = res.ViewerID
	p.mu.Unlock()

	p.log.Info("Viewing", logger.Ctx{
		"viewer_id": res.ViewerID,
		"pc_id":     pcID,
	})

	return nil
}

func (p *Player) unview(ctx context.Context) error {
	_, err := transaction.Call[message.ViewResponse](ctx, p.params.Manager, message.CommandUnview, message.Unview{
		ID:       p.params.CameraID,
		Instance: p.params.InstanceID,
	})
	if err != nil {
		return errors.Annotate(err, "unview")
	}

	p.log.Info("Unviewed", nil)

	return nil
}

// Pause asks the server to stop sending the camera. The peer connection is
// kept.
func (p *Player) Pause(ctx context.Context) error {
	return errors.Trace(p.unview(ctx))
}

// Resume asks the server to send the camera again to the existing peer
// connection.
func (p *Player) Resume(ctx context.Context) error {
	pc := p.PeerConnection()
	if pc == nil {
		return errors.Trace(ErrNotStarted)
	}

	return errors.Trace(p.view(ctx, pc.ID()))
}

// Stop unviews the camera, stops the media server client and closes the
// peer connection. The unview result is returned, everything else is closed
// regardless.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()

		return nil
	}

	p.stopped = true
	pc := p.pc
	p.mu.Unlock()

	var err error

	if pc != nil {
		err = p.unview(ctx)
	}

	p.server.Stop()

	if pc != nil {
		pc.Close()
	}

	return errors.Trace(err)
}
