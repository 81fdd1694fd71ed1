// Package mediatest provides an in-memory media.Engine which generates real
// session descriptions without any network activity.
package mediatest

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
)

var ErrClosed = errors.New("engine closed")

// Track is a local track with fixed ids.
type Track struct {
	TrackID string
	Stream  string
}

var _ media.Track = Track{}

func NewTrack(id, streamID string) Track {
	return Track{TrackID: id, Stream: streamID}
}

func (t Track) ID() string       { return t.TrackID }
func (t Track) StreamID() string { return t.Stream }

// Hooks lets tests intercept engine calls. A nil hook does nothing.
type Hooks struct {
	// CreateOffer is called before an offer is generated. It may block.
	CreateOffer func(ctx context.Context) error

	SetLocalDescription  func(sdp string) error
	SetRemoteDescription func(sdp string) error
	SetSenderEncodings   func(encodings []media.Encoding) error

	// StopSending is called before a transceiver stops sending.
	StopSending func() error
}

type Params struct {
	// SendEncodings makes transceivers accept encodings at creation time and
	// through SetSenderEncodings, announcing them with rid lines.
	SendEncodings bool

	// LegacySimulcast announces simulcast with the "a=simulcast: send rid="
	// syntax.
	LegacySimulcast bool

	Hooks Hooks
}

// Engine is an in-memory media engine. Mids are assigned when an offer is
// created, starting at 0.
type Engine struct {
	params Params

	mu            sync.Mutex
	transceivers  []*Transceiver
	nextMid       int
	nextSSRC      uint32
	version       int
	hasLocalOffer bool
	local         string
	remote        string
	remoteCount   int
	closed        bool
}

var _ media.Engine = &Engine{}

func NewEngine() *Engine {
	return NewEngineWithParams(Params{})
}

func NewEngineWithParams(params Params) *Engine {
	return &Engine{
		params:   params,
		nextSSRC: 1000,
	}
}

func (e *Engine) CreateOffer(ctx context.Context) (string, error) {
	if hook := e.params.Hooks.CreateOffer; hook != nil {
		if err := hook(ctx); err != nil {
			return "", errors.Trace(err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", errors.Trace(ErrClosed)
	}

	for _, t := range e.transceivers {
		if t.mid == "" {
			t.mid = strconv.Itoa(e.nextMid)
			e.nextMid++
		}
	}

	e.version++

	return e.offer(), nil
}

func (e *Engine) SetLocalDescription(ctx context.Context, sdp string) error {
	if hook := e.params.Hooks.SetLocalDescription; hook != nil {
		if err := hook(sdp); err != nil {
			return errors.Trace(err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.Trace(ErrClosed)
	}

	if _, err := sdpinfo.Parse(sdp); err != nil {
		return errors.Annotate(err, "set local description")
	}

	e.local = sdp
	e.hasLocalOffer = true

	return nil
}

func (e *Engine) SetRemoteDescription(ctx context.Context, sdp string) error {
	if hook := e.params.Hooks.SetRemoteDescription; hook != nil {
		if err := hook(sdp); err != nil {
			return errors.Trace(err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.Trace(ErrClosed)
	}

	if !e.hasLocalOffer {
		return errors.Errorf("set remote description: no local offer")
	}

	if _, err := sdpinfo.Parse(sdp); err != nil {
		return errors.Annotate(err, "set remote description")
	}

	e.remote = sdp
	e.remoteCount++
	e.hasLocalOffer = false

	return nil
}

func (e *Engine) HasLocalOffer() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.hasLocalOffer
}

func (e *Engine) LocalDescription() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.local
}

// RemoteDescription returns the last applied answer.
func (e *Engine) RemoteDescription() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.remote
}

// RemoteDescriptionCount returns how many answers have been applied.
func (e *Engine) RemoteDescriptionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.remoteCount
}

func (e *Engine) Transceivers() []media.Transceiver {
	e.mu.Lock()
	defer e.mu.Unlock()

	ret := make([]media.Transceiver, 0, len(e.transceivers))

	for _, t := range e.transceivers {
		ret = append(ret, t)
	}

	return ret
}

func (e *Engine) AddTransceiverFromKind(kind media.Kind, init media.TransceiverInit) (media.Transceiver, error) {
	if kind != media.KindAudio && kind != media.KindVideo {
		return nil, errors.Annotatef(media.ErrUnsupportedTrack, "kind: %s", kind)
	}

	return e.addTransceiver(kind, nil, init)
}

func (e *Engine) AddTransceiverFromTrack(track media.Track, init media.TransceiverInit) (media.Transceiver, error) {
	kind := media.KindVideo
	if strings.HasPrefix(track.ID(), "audio") {
		kind = media.KindAudio
	}

	return e.addTransceiver(kind, track, init)
}

func (e *Engine) addTransceiver(kind media.Kind, track media.Track, init media.TransceiverInit) (media.Transceiver, error) {
	if len(init.SendEncodings) > 0 && !e.params.SendEncodings {
		return nil, errors.Annotatef(media.ErrNotSupported, "send encodings")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errors.Trace(ErrClosed)
	}

	direction := init.Direction
	if direction == "" {
		direction = media.DirectionSendRecv
	}

	t := &Transceiver{
		engine:    e,
		kind:      kind,
		direction: direction,
		track:     track,
		encodings: []media.Encoding{{}},
	}

	if len(init.SendEncodings) > 0 {
		t.encodings = append([]media.Encoding(nil), init.SendEncodings...)
	}

	if track != nil {
		t.ssrc = e.nextSSRC
		e.nextSSRC += 2
	}

	e.transceivers = append(e.transceivers, t)

	return t, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true

	return nil
}

const (
	iceUfrag    = "mtst"
	icePwd      = "mediatestpwd0123456789ab"
	fingerprint = "sha-256 4F:7A:00:1C:2B:9E:AA:10"
	crlf        = "\r\n"
)

func (e *Engine) offer() string {
	var b strings.Builder

	line := func(s ...string) {
		b.WriteString(strings.Join(s, ""))
		b.WriteString(crlf)
	}

	mids := make([]string, 0, len(e.transceivers))

	for _, t := range e.transceivers {
		if !t.stopped {
			mids = append(mids, t.mid)
		}
	}

	line("v=0")
	line("o=- 8334155162143893271 ", strconv.Itoa(e.version), " IN IP4 127.0.0.1")
	line("s=-")
	line("t=0 0")

	if len(mids) > 0 {
		line("a=group:BUNDLE ", strings.Join(mids, " "))
	}

	line("a=msid-semantic: WMS *")

	for _, t := range e.transceivers {
		port := "9"
		if t.stopped {
			port = "0"
		}

		if t.kind == media.KindAudio {
			line("m=audio ", port, " UDP/TLS/RTP/SAVPF 111")
		} else {
			line("m=video ", port, " UDP/TLS/RTP/SAVPF 96 97 98 99 102 103")
		}

		line("c=IN IP4 0.0.0.0")
		line("a=rtcp:9 IN IP4 0.0.0.0")
		line("a=ice-ufrag:", iceUfrag)
		line("a=ice-pwd:", icePwd)
		line("a=fingerprint:", fingerprint)
		line("a=setup:actpass")
		line("a=mid:", t.mid)
		line("a=extmap:4 urn:ietf:params:rtp-hdrext:sdes:mid")
		line("a=", string(t.direction))

		sending := t.track != nil && (t.direction == media.DirectionSendOnly || t.direction == media.DirectionSendRecv)

		streamID := ""

		if sending {
			streamID = t.track.StreamID()
			if streamID == "" {
				streamID = "-"
			}

			line("a=msid:", streamID, " ", t.track.ID())
		}

		line("a=rtcp-mux")

		if t.kind == media.KindAudio {
			line("a=rtpmap:111 opus/48000/2")
			line("a=rtcp-fb:111 transport-cc")
			line("a=fmtp:111 minptime=10;useinbandfec=1")
		} else {
			line("a=rtcp-rsize")
			videoCodec(line, "96", "VP8", "")
			line("a=rtpmap:97 rtx/90000")
			line("a=fmtp:97 apt=96")
			videoCodec(line, "98", "VP9", "profile-id=0")
			line("a=rtpmap:99 rtx/90000")
			line("a=fmtp:99 apt=98")
			videoCodec(line, "102", "H264", "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f")
			line("a=rtpmap:103 rtx/90000")
			line("a=fmtp:103 apt=102")
		}

		if !sending {
			continue
		}

		ssrc := strconv.FormatUint(uint64(t.ssrc), 10)
		rtx := strconv.FormatUint(uint64(t.ssrc+1), 10)

		if t.kind == media.KindVideo {
			line("a=ssrc-group:FID ", ssrc, " ", rtx)
		}

		for _, s := range []string{ssrc, rtx} {
			line("a=ssrc:", s, " cname:mediatest")
			line("a=ssrc:", s, " msid:", streamID, " ", t.track.ID())

			if t.kind == media.KindAudio {
				break
			}
		}

		if len(t.encodings) > 1 {
			rids := make([]string, 0, len(t.encodings))

			for _, enc := range t.encodings {
				line("a=rid:", enc.RID, " send")
				rids = append(rids, enc.RID)
			}

			if e.params.LegacySimulcast {
				line("a=simulcast: send rid=", strings.Join(rids, ";"))
			} else {
				line("a=simulcast:send ", strings.Join(rids, ";"))
			}
		}
	}

	return b.String()
}

func videoCodec(line func(...string), pt, name, fmtp string) {
	line("a=rtpmap:", pt, " ", name, "/90000")
	line("a=rtcp-fb:", pt, " goog-remb")
	line("a=rtcp-fb:", pt, " nack")
	line("a=rtcp-fb:", pt, " nack pli")

	if fmtp != "" {
		line("a=fmtp:", pt, " ", fmtp)
	}
}
