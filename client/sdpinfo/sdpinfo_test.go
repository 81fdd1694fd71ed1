package sdpinfo_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/peer-calls/mediaclient/client/multierr"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(l ...string) string {
	return strings.Join(l, "\r\n") + "\r\n"
}

var offer = lines(
	"v=0",
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1",
	"s=-",
	"t=0 0",
	"a=group:BUNDLE 0 1",
	"a=msid-semantic: WMS stream1",
	"m=audio 9 UDP/TLS/RTP/SAVPF 111",
	"c=IN IP4 0.0.0.0",
	"a=rtcp:9 IN IP4 0.0.0.0",
	"a=ice-ufrag:uf01",
	"a=ice-pwd:pwd0123456789abcdefghijk",
	"a=fingerprint:sha-256 AA:BB:CC",
	"a=setup:actpass",
	"a=mid:0",
	"a=recvonly",
	"a=rtcp-mux",
	"a=rtpmap:111 opus/48000/2",
	"a=fmtp:111 minptime=10;useinbandfec=1",
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97 102 103 125 107",
	"c=IN IP4 0.0.0.0",
	"a=rtcp:9 IN IP4 0.0.0.0",
	"a=ice-ufrag:uf01",
	"a=ice-pwd:pwd0123456789abcdefghijk",
	"a=fingerprint:sha-256 AA:BB:CC",
	"a=setup:actpass",
	"a=mid:1",
	"a=extmap:4 urn:ietf:params:rtp-hdrext:sdes:mid",
	"a=extmap:5 http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time",
	"a=sendonly",
	"a=msid:stream1 track1",
	"a=rtcp-mux",
	"a=rtcp-rsize",
	"a=rtpmap:96 VP8/90000",
	"a=rtcp-fb:96 goog-remb",
	"a=rtcp-fb:96 nack",
	"a=rtcp-fb:96 nack pli",
	"a=rtpmap:97 rtx/90000",
	"a=fmtp:97 apt=96",
	"a=rtpmap:102 H264/90000",
	"a=rtcp-fb:102 nack",
	"a=fmtp:102 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
	"a=rtpmap:103 rtx/90000",
	"a=fmtp:103 apt=102",
	"a=rtpmap:125 H264/90000",
	"a=fmtp:125 level-asymmetry-allowed=1;profile-level-id=42001f",
	"a=rtpmap:107 rtx/90000",
	"a=fmtp:107 apt=125",
	"a=ssrc-group:FID 1001 1002",
	"a=ssrc:1001 cname:c1",
	"a=ssrc:1001 msid:stream1 track1",
	"a=ssrc:1002 cname:c1",
	"a=ssrc:1002 msid:stream1 track1",
)

func remoteParams() sdpinfo.RemoteParams {
	return sdpinfo.RemoteParams{
		ID:   "pc1",
		ICE:  sdpinfo.ICEInfo{Ufrag: "srv", Pwd: "srvpwd", Lite: true},
		DTLS: sdpinfo.DTLSInfo{Setup: "passive", Hash: "sha-256", Fingerprint: "11:22:33"},
		Candidates: []sdpinfo.CandidateInfo{{
			Foundation:  "1",
			ComponentID: 1,
			Transport:   "UDP",
			Priority:    33554431,
			Address:     "192.0.2.1",
			Port:        10000,
			Type:        "host",
		}},
		Capabilities: map[string]sdpinfo.Capability{
			"video": {
				Codecs:        []string{"vp8", "h264;packetization-mode=1"},
				RTX:           true,
				RTCPFeedbacks: []sdpinfo.RTCPFeedback{{ID: "nack"}, {ID: "nack", Params: []string{"pli"}}},
				Extensions:    []string{"urn:ietf:params:rtp-hdrext:sdes:mid"},
			},
		},
	}
}

func parse(t *testing.T, text string) *sdpinfo.Description {
	t.Helper()

	d, err := sdpinfo.Parse(text)
	require.NoError(t, err)

	return d
}

func TestParse_Error(t *testing.T) {
	t.Parallel()

	_, err := sdpinfo.Parse("not an sdp")
	assert.True(t, multierr.Is(err, sdpinfo.ErrParse))
}

func TestDescription_Info(t *testing.T) {
	t.Parallel()

	info := parse(t, offer).Info()

	assert.Equal(t, &sdpinfo.ICEInfo{Ufrag: "uf01", Pwd: "pwd0123456789abcdefghijk"}, info.ICE)
	assert.Equal(t, &sdpinfo.DTLSInfo{Setup: "actpass", Hash: "sha-256", Fingerprint: "AA:BB:CC"}, info.DTLS)

	require.Len(t, info.Medias, 2)
	assert.Equal(t, "audio", info.Medias[0].Type)
	assert.Equal(t, "recvonly", info.Medias[0].Direction)

	video := info.Medias[1]
	assert.Equal(t, "1", video.ID)
	assert.Equal(t, "sendonly", video.Direction)
	require.Len(t, video.Codecs, 3)
	assert.Equal(t, "vp8", video.Codecs[0].Codec)
	assert.Equal(t, uint8(97), video.Codecs[0].RTX)
	assert.Equal(t, "1", video.Codecs[1].Params["packetization-mode"])
	assert.Equal(t, map[string]string{
		"4": "urn:ietf:params:rtp-hdrext:sdes:mid",
		"5": "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time",
	}, video.Extensions)

	require.Len(t, info.Streams, 1)
	assert.Equal(t, "stream1", info.Streams[0].ID)

	_, err := json.Marshal(info)
	assert.NoError(t, err)
}

func TestDescription_TrackByMediaID(t *testing.T) {
	t.Parallel()

	d := parse(t, offer)

	track, streamID, ok := d.TrackByMediaID("1")
	require.True(t, ok)
	assert.Equal(t, "stream1", streamID)
	assert.Equal(t, sdpinfo.TrackInfo{
		ID:      "track1",
		Media:   "video",
		MediaID: "1",
		SSRCs:   []uint32{1001, 1002},
		Groups:  []sdpinfo.SourceGroup{{Semantics: "FID", SSRCs: []uint32{1001, 1002}}},
	}, track)

	_, _, ok = d.TrackByMediaID("0")
	assert.False(t, ok)

	_, _, ok = d.TrackByMediaID("9")
	assert.False(t, ok)
}

func TestDescription_Answer(t *testing.T) {
	t.Parallel()

	answer, err := parse(t, offer).Answer(remoteParams())
	require.NoError(t, err)

	text, err := answer.Marshal()
	require.NoError(t, err)

	assert.Contains(t, text, "a=ice-lite\r\n")
	assert.Contains(t, text, "a=group:BUNDLE 1\r\n")
	assert.Contains(t, text, "m=audio 0 UDP/TLS/RTP/SAVPF 111\r\n")
	assert.Contains(t, text, "m=video 9 UDP/TLS/RTP/SAVPF 96 97 102 103\r\n")
	assert.Contains(t, text, "a=recvonly\r\n")
	assert.Contains(t, text, "a=setup:passive\r\n")
	assert.Contains(t, text, "a=fingerprint:sha-256 11:22:33\r\n")
	assert.Contains(t, text, "a=ice-ufrag:srv\r\n")
	assert.Contains(t, text, "a=candidate:1 1 UDP 33554431 192.0.2.1 10000 typ host\r\n")
	assert.Contains(t, text, "a=extmap:4 urn:ietf:params:rtp-hdrext:sdes:mid\r\n")
	assert.NotContains(t, text, "abs-send-time")
	assert.Contains(t, text, "a=rtcp-fb:96 nack pli\r\n")
	assert.NotContains(t, text, "goog-remb")
	assert.Contains(t, text, "a=fmtp:97 apt=96\r\n")
	assert.NotContains(t, text, "a=rtpmap:125")

	reparsed := parse(t, text)

	dir, err := reparsed.Direction("0")
	require.NoError(t, err)
	assert.Equal(t, "inactive", dir)
}

func TestDescription_AnswerMedia(t *testing.T) {
	t.Parallel()

	local := parse(t, offer)
	remote := remoteParams()

	answer, err := local.Answer(remote)
	require.NoError(t, err)

	capability := remote.Capabilities["video"]
	capability.Codecs = []string{"H264;packetization-mode=1"}

	md, err := local.AnswerMedia(remote, "1", capability)
	require.NoError(t, err)
	require.NoError(t, answer.ReplaceMedia(md))

	text, err := answer.Marshal()
	require.NoError(t, err)

	assert.Contains(t, text, "m=video 9 UDP/TLS/RTP/SAVPF 102 103\r\n")
	assert.NotContains(t, text, "VP8")

	capability.Codecs = []string{"av1"}

	_, err = local.AnswerMedia(remote, "1", capability)
	assert.True(t, multierr.Is(err, sdpinfo.ErrCapabilityMismatch))

	_, err = local.AnswerMedia(remote, "7", capability)
	assert.True(t, multierr.Is(err, sdpinfo.ErrMediaNotFound))
}

func TestDescription_AddStream(t *testing.T) {
	t.Parallel()

	answer, err := parse(t, offer).Answer(remoteParams())
	require.NoError(t, err)

	err = answer.AddStream(sdpinfo.StreamInfo{
		ID: "remote",
		Tracks: []sdpinfo.TrackInfo{
			{ID: "cam", Media: "video", MediaID: "1", SSRCs: []uint32{5, 6}, Groups: []sdpinfo.SourceGroup{
				{Semantics: "FID", SSRCs: []uint32{5, 6}},
			}},
			{ID: "later", Media: "video"},
		},
	})
	require.NoError(t, err)

	text, err := answer.Marshal()
	require.NoError(t, err)

	assert.Contains(t, text, "a=msid:remote cam\r\n")
	assert.Contains(t, text, "a=ssrc-group:FID 5 6\r\n")
	assert.Contains(t, text, "a=ssrc:5 cname:remote\r\n")
	assert.Contains(t, text, "a=ssrc:6 msid:remote cam\r\n")
	assert.NotContains(t, text, "later")

	err = answer.AddStream(sdpinfo.StreamInfo{
		ID:     "remote",
		Tracks: []sdpinfo.TrackInfo{{ID: "x", MediaID: "5"}},
	})
	assert.True(t, multierr.Is(err, sdpinfo.ErrMediaNotFound))
}

func TestDescription_AnswerSimulcast(t *testing.T) {
	t.Parallel()

	simulcastOffer := strings.Replace(offer, "a=ssrc-group:FID 1001 1002\r\n",
		"a=rid:hi send\r\na=rid:lo send\r\na=simulcast:send hi;lo\r\na=ssrc-group:FID 1001 1002\r\n", 1)

	local := parse(t, simulcastOffer)

	track, _, ok := local.TrackByMediaID("1")
	require.True(t, ok)
	assert.Equal(t, [][]sdpinfo.TrackEncoding{{{ID: "hi"}}, {{ID: "lo"}}}, track.Encodings)

	remote := remoteParams()

	answer, err := local.Answer(remote)
	require.NoError(t, err)

	text, err := answer.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, text, "a=simulcast")

	video := remote.Capabilities["video"]
	video.Simulcast = true
	remote.Capabilities["video"] = video

	answer, err = local.Answer(remote)
	require.NoError(t, err)

	text, err = answer.Marshal()
	require.NoError(t, err)
	assert.Contains(t, text, "a=rid:hi recv\r\n")
	assert.Contains(t, text, "a=rid:lo recv\r\n")
	assert.Contains(t, text, "a=simulcast:recv hi;lo\r\n")
}

func TestDescription_SetDirection(t *testing.T) {
	t.Parallel()

	d := parse(t, offer)

	require.NoError(t, d.SetDirection("1", sdpinfo.DirectionInactive))

	dir, err := d.Direction("1")
	require.NoError(t, err)
	assert.Equal(t, sdpinfo.DirectionInactive, dir)

	assert.True(t, multierr.Is(d.SetDirection("4", "sendrecv"), sdpinfo.ErrMediaNotFound))
}

func TestReverseDirection(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "recvonly", sdpinfo.ReverseDirection("sendonly"))
	assert.Equal(t, "sendonly", sdpinfo.ReverseDirection("recvonly"))
	assert.Equal(t, "inactive", sdpinfo.ReverseDirection("inactive"))
	assert.Equal(t, "sendrecv", sdpinfo.ReverseDirection(""))
}
