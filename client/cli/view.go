package cli

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client"
	"github.com/peer-calls/mediaclient/client/command"
	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/transaction"
	"github.com/peer-calls/mediaclient/client/wrtc"
	"github.com/peer-calls/mediaclient/client/ws"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/spf13/pflag"
)

type viewHandler struct {
	args struct {
		config   string
		url      string
		token    string
		insecure bool

		camera   string
		instance string
		duration time.Duration
		keyFrame time.Duration
	}

	props      Props
	log        logger.Logger
	config     client.Config
	goroutines goroutines
}

// Sample command:
//
//     mediaclient view \
//       --url ws://localhost:8000 \
//       --token secret \
//       --camera cam1 \
//       --instance default

func (h *viewHandler) RegisterFlags(c *command.Command, flags *pflag.FlagSet) {
	flags.StringVarP(&h.args.config, "config", "c", "", "configuration to use")

	flags.StringVarP(&h.args.url, "url", "u", "", "media server websocket URL")
	flags.StringVarP(&h.args.token, "token", "t", "", "media server access token")
	flags.BoolVarP(&h.args.insecure, "insecure", "k", false, "do not validate TLS certificates")

	flags.StringVar(&h.args.camera, "camera", "", "id of the camera to view")
	flags.StringVar(&h.args.instance, "instance", "", "media server instance of the camera")
	flags.DurationVarP(&h.args.duration, "duration", "d", 0, "stop viewing after duration, zero to view until interrupted")
	flags.DurationVar(&h.args.keyFrame, "key-frame-interval", 10*time.Second, "interval of key frame requests")
}

func (h *viewHandler) configure() (err error) {
	configFiles := []string{}
	if h.args.config != "" {
		configFiles = append(configFiles, h.args.config)
	}

	h.config, err = client.ReadConfig(EnvPrefix, configFiles)
	if err != nil {
		return errors.Annotate(err, "read config")
	}

	if h.args.url != "" {
		h.config.Server.URL = h.args.url
	}

	if h.args.token != "" {
		h.config.Server.Token = h.args.token
	}

	if h.args.insecure {
		h.config.Server.Insecure = true
	}

	if h.args.camera == "" {
		return errors.Errorf("--camera is required")
	}

	h.log = h.props.Log.WithNamespaceAppended("view").WithCtx(logger.Ctx{
		"client_id": uuid.New().String(),
		"camera_id": h.args.camera,
	})

	return nil
}

func (h *viewHandler) Handle(ctx context.Context, args []string) error {
	if err := h.configure(); err != nil {
		return errors.Trace(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if h.args.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.args.duration)
		defer cancel()
	}

	defer func() {
		cancel()
		h.goroutines.Close()
	}()

	if addr := h.config.Prometheus.BindAddr; addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Annotatef(err, "listen metrics: %q", addr)
		}

		h.log.Info("Listen metrics", logger.Ctx{
			"local_addr": l.Addr().String(),
		})

		h.goroutines.Go(func() {
			if err := serveMetrics(ctx, l, NewMetricsHandler(h.config.Prometheus)); err != nil {
				h.log.Error("Serve metrics", errors.Trace(err), nil)
			}
		})
	}

	conn, err := ws.Dial(ctx, h.log, h.config.DialParams())
	if err != nil {
		return errors.Trace(err)
	}

	defer conn.Close()

	manager := transaction.New(transaction.Params{
		Log:       h.log,
		Transport: conn,
	})

	defer manager.Close()

	api, err := wrtc.NewAPI(h.log, h.config.WebRTC)
	if err != nil {
		return errors.Trace(err)
	}

	engine, err := api.NewEngine()
	if err != nil {
		return errors.Trace(err)
	}

	player := client.NewPlayer(client.PlayerParams{
		Log:        h.log,
		Manager:    manager,
		Engine:     engine,
		Options:    h.config.Options(),
		CameraID:   h.args.camera,
		InstanceID: h.args.instance,
	})

	engine.OnTrack(func(track *webrtc.TrackRemote, t media.Transceiver) {
		h.handleTrack(ctx, player, engine, track, t)
	})

	if err := player.Start(ctx); err != nil {
		h.stop(player)

		return errors.Annotate(err, "start player")
	}

	select {
	case <-ctx.Done():
	case <-conn.Done():
		h.log.Warn("Connection closed", nil)
	case <-player.PeerConnection().Done():
		h.log.Warn("Peer connection closed", nil)
	}

	h.stop(player)

	return errors.Trace(conn.Err())
}

func (h *viewHandler) stop(player *client.Player) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := player.Stop(ctx); err != nil {
		h.log.Error("Stop player", errors.Trace(err), nil)
	}
}

func (h *viewHandler) handleTrack(
	ctx context.Context,
	player *client.Player,
	engine *wrtc.Engine,
	track *webrtc.TrackRemote,
	t media.Transceiver,
) {
	pc := player.PeerConnection()
	if pc == nil {
		h.log.Warn("Track before peer connection", nil)

		return
	}

	event, ok := pc.HandleTrack(t)
	if !ok {
		return
	}

	log := h.log.WithCtx(logger.Ctx{
		"stream_id": event.StreamID,
		"track_id":  event.TrackID,
		"ssrc":      uint32(track.SSRC()),
	})

	if camera, ok := player.CameraTrack(); !ok || camera.TrackID != event.TrackID {
		log.Info("Ignoring track", nil)

		return
	}

	ok = h.goroutines.Go(func() {
		h.requestKeyFrames(ctx, log, engine, uint32(track.SSRC()))
	})
	if !ok {
		log.Info("Ignoring track after stop", nil)

		return
	}

	h.goroutines.Go(func() {
		var packets, bytes int

		err := wrtc.ReadRTP(ctx, track, func(pkt *rtp.Packet) {
			packets++
			bytes += len(pkt.Payload)

			if packets%1000 == 1 {
				log.Info("Received", logger.Ctx{
					"packets":   packets,
					"bytes":     bytes,
					"timestamp": pkt.Timestamp,
				})
			}
		})
		if err != nil {
			log.Error("Read RTP", errors.Trace(err), nil)
		}

		log.Info("Track ended", logger.Ctx{
			"packets": packets,
			"bytes":   bytes,
		})
	})
}

func (h *viewHandler) requestKeyFrames(ctx context.Context, log logger.Logger, engine *wrtc.Engine, ssrc uint32) {
	if h.args.keyFrame <= 0 {
		return
	}

	ticker := time.NewTicker(h.args.keyFrame)
	defer ticker.Stop()

	for {
		if err := engine.RequestKeyFrame(ssrc); err != nil {
			log.Error("Request key frame", errors.Trace(err), nil)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func newViewCmd(props Props) *command.Command {
	h := &viewHandler{
		props: props,
	}

	return command.New(command.Params{
		Name:         "view",
		Desc:         "Views a camera of a media server",
		FlagRegistry: h,
		Handler:      h,
	})
}
