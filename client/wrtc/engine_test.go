package wrtc_test

import (
	"context"
	"strings"
	"testing"

	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/media/mediatest"
	"github.com/peer-calls/mediaclient/client/multierr"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
	"github.com/peer-calls/mediaclient/client/test"
	"github.com/peer-calls/mediaclient/client/wrtc"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *wrtc.Engine {
	t.Helper()

	api, err := wrtc.NewAPI(test.NewLogger(), wrtc.Config{})
	require.NoError(t, err)

	e, err := api.NewEngine()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = e.Close()
	})

	return e
}

func direction(t *testing.T, sdp string, mid string) string {
	t.Helper()

	desc, err := sdpinfo.Parse(sdp)
	require.NoError(t, err)

	dir, err := desc.Direction(mid)
	require.NoError(t, err)

	return dir
}

func TestEngine_OfferDirections(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	recv, err := e.AddTransceiverFromKind(media.KindVideo, media.TransceiverInit{
		Direction: media.DirectionRecvOnly,
	})
	require.NoError(t, err)

	inactive, err := e.AddTransceiverFromKind(media.KindAudio, media.TransceiverInit{
		Direction: media.DirectionInactive,
	})
	require.NoError(t, err)

	assert.Equal(t, media.KindVideo, recv.Kind())
	assert.Equal(t, media.KindAudio, inactive.Kind())
	assert.Equal(t, media.DirectionInactive, inactive.Direction())

	offer, err := e.CreateOffer(ctx)
	require.NoError(t, err)

	require.NotEmpty(t, recv.Mid())
	require.NotEmpty(t, inactive.Mid())

	assert.Equal(t, "recvonly", direction(t, offer, recv.Mid()))
	assert.Equal(t, "inactive", direction(t, offer, inactive.Mid()))

	assert.False(t, e.HasLocalOffer())
	require.NoError(t, e.SetLocalDescription(ctx, offer))
	assert.True(t, e.HasLocalOffer())
	assert.Equal(t, offer, e.LocalDescription())

	require.NoError(t, recv.SetDirection(media.DirectionInactive))
	assert.Equal(t, media.DirectionInactive, recv.Direction())

	assert.Len(t, e.Transceivers(), 2)
	assert.Same(t, recv, e.Transceivers()[0])
}

func TestEngine_SendTrack(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType: webrtc.MimeTypeVP8,
	}, "cam", "s1")
	require.NoError(t, err)

	send, err := e.AddTransceiverFromTrack(track, media.TransceiverInit{
		Direction: media.DirectionSendOnly,
		StreamIDs: []string{"s1"},
	})
	require.NoError(t, err)

	assert.Len(t, send.SenderEncodings(), 1)
	assert.True(t, multierr.Is(send.SetSenderEncodings([]media.Encoding{{RID: "a"}}), media.ErrNotSupported))

	offer, err := e.CreateOffer(ctx)
	require.NoError(t, err)

	assert.Equal(t, "sendonly", direction(t, offer, send.Mid()))
	assert.True(t, strings.Contains(offer, "msid:s1 cam"), offer)

	require.NoError(t, send.StopSending())
	assert.Equal(t, media.DirectionInactive, send.Direction())

	offer, err = e.CreateOffer(ctx)
	require.NoError(t, err)

	assert.Equal(t, "inactive", direction(t, offer, send.Mid()))
}

func TestEngine_UnsupportedTrack(t *testing.T) {
	e := newEngine(t)

	_, err := e.AddTransceiverFromTrack(mediatest.NewTrack("cam", "s1"), media.TransceiverInit{
		Direction: media.DirectionSendOnly,
	})
	assert.True(t, multierr.Is(err, media.ErrUnsupportedTrack))
}

func TestEngine_SimulcastNotSupported(t *testing.T) {
	e := newEngine(t)

	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType: webrtc.MimeTypeVP8,
	}, "cam", "s1")
	require.NoError(t, err)

	_, err = e.AddTransceiverFromTrack(track, media.TransceiverInit{
		Direction:     media.DirectionSendOnly,
		SendEncodings: []media.Encoding{{RID: "a"}, {RID: "b"}},
	})
	assert.True(t, multierr.Is(err, media.ErrNotSupported))
	assert.Empty(t, e.Transceivers())
}
