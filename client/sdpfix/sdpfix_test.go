package sdpfix_test

import (
	"strings"
	"testing"

	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/multierr"
	"github.com/peer-calls/mediaclient/client/sdpfix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(l ...string) string {
	return strings.Join(l, "\r\n") + "\r\n"
}

var session = lines(
	"v=0",
	"o=- 1 2 IN IP4 127.0.0.1",
	"s=-",
	"t=0 0",
	"a=group:BUNDLE 0 1",
)

var audioSection = lines(
	"m=audio 9 UDP/TLS/RTP/SAVPF 111",
	"c=IN IP4 0.0.0.0",
	"a=mid:0",
	"a=recvonly",
	"a=rtpmap:111 opus/48000/2",
)

var videoSection = lines(
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97 98 99 102 121",
	"c=IN IP4 0.0.0.0",
	"a=mid:1",
	"a=sendonly",
	"a=msid:s1 t1",
	"a=rtpmap:96 VP8/90000",
	"a=rtcp-fb:96 goog-remb",
	"a=rtcp-fb:96 nack",
	"a=rtpmap:97 rtx/90000",
	"a=fmtp:97 apt=96",
	"a=rtpmap:98 VP9/90000",
	"a=rtcp-fb:98 nack",
	"a=fmtp:98 profile-id=0",
	"a=rtpmap:99 rtx/90000",
	"a=fmtp:99 apt=98",
	"a=rtpmap:102 H264/90000",
	"a=fmtp:102 packetization-mode=1",
	"a=rtpmap:121 rtx/90000",
	"a=fmtp:121 apt=102",
	"a=ssrc-group:FID 100 200",
	"a=ssrc:100 cname:cn",
	"a=ssrc:100 msid:s1 t1",
	"a=ssrc:100 mslabel:s1",
	"a=ssrc:100 label:t1",
	"a=ssrc:200 cname:cn",
	"a=ssrc:200 msid:s1 t1",
)

func TestSSRCGenerator(t *testing.T) {
	t.Parallel()

	gen := sdpfix.NewSSRCGenerator()

	assert.Equal(t, uint32(1), gen.Next())
	assert.Equal(t, uint32(2), gen.Next())
}

func TestSplitSections(t *testing.T) {
	t.Parallel()

	s, sections := sdpfix.SplitSections(session + audioSection + videoSection)

	assert.Equal(t, session, s)
	assert.Equal(t, []string{audioSection, videoSection}, sections)

	s, sections = sdpfix.SplitSections(session)
	assert.Equal(t, session, s)
	assert.Nil(t, sections)
}

func TestAddSimulcast(t *testing.T) {
	t.Parallel()

	gen := sdpfix.NewSSRCGenerator()

	got, err := sdpfix.AddSimulcast(videoSection, []media.Encoding{
		{RID: "h", ScaleResolutionDownBy: 1},
		{RID: "l", ScaleResolutionDownBy: 2},
	}, gen)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(got, videoSection))

	assert.Equal(t, lines(
		"a=ssrc-group:FID 1 2",
		"a=ssrc:1 cname:cn",
		"a=ssrc:1 msid:s1 t1",
		"a=ssrc:1 mslabel:s1",
		"a=ssrc:1 label:t1",
		"a=ssrc:2 cname:cn",
		"a=ssrc:2 msid:s1 t1",
		"a=ssrc:2 mslabel:s1",
		"a=ssrc:2 label:t1",
		"a=ssrc-group:SIM 100 1",
		"a=simulcast:send l;h",
		"a=rid:l send ssrc=100",
		"a=rid:h send ssrc=1",
		"a=x-google-flag:conference",
	), strings.TrimPrefix(got, videoSection))

	assert.Equal(t, 1, strings.Count(got, "a=ssrc-group:SIM"))
	assert.Equal(t, 2, strings.Count(got, "a=ssrc-group:FID"))
}

func TestAddSimulcast_DefaultScale(t *testing.T) {
	t.Parallel()

	got, err := sdpfix.AddSimulcast(videoSection, []media.Encoding{
		{RID: "a"},
		{RID: "b", ScaleResolutionDownBy: 4},
		{RID: "c", ScaleResolutionDownBy: 2},
	}, sdpfix.NewSSRCGenerator())
	require.NoError(t, err)

	assert.Contains(t, got, "a=simulcast:send b;c;a\r\n")
	assert.Contains(t, got, "a=ssrc-group:SIM 100 1 3\r\n")
}

func TestAddSimulcast_MissingCname(t *testing.T) {
	t.Parallel()

	_, err := sdpfix.AddSimulcast(audioSection, []media.Encoding{{RID: "a"}, {RID: "b"}}, sdpfix.NewSSRCGenerator())
	assert.True(t, multierr.Is(err, sdpfix.ErrMissingAttribute))
}

func TestRemoveCodec(t *testing.T) {
	t.Parallel()

	got := sdpfix.RemoveCodec(videoSection, "vp8")

	assert.Contains(t, got, "m=video 9 UDP/TLS/RTP/SAVPF 98 99 102 121\r\n")

	for _, prefix := range []string{"a=rtpmap:96 ", "a=rtcp-fb:96 ", "a=fmtp:96 ", "a=rtpmap:97 ", "a=fmtp:97 "} {
		assert.NotContains(t, got, prefix)
	}

	assert.Contains(t, got, "a=rtcp-fb:98 nack\r\n")
	assert.Equal(t, got, sdpfix.RemoveCodec(got, "vp8"), "idempotent")
	assert.Equal(t, audioSection, sdpfix.RemoveCodec(audioSection, "h264"))
}

func TestRemoveCodec_MultiplePayloadTypes(t *testing.T) {
	t.Parallel()

	section := strings.Replace(videoSection, "a=rtpmap:121 rtx/90000\r\n",
		"a=rtpmap:121 rtx/90000\r\na=rtpmap:125 h264/90000\r\n", 1)
	section = strings.Replace(section, " 102 121\r\n", " 102 121 125\r\n", 1)

	got := sdpfix.RemoveCodec(section, "H264")

	assert.Contains(t, got, "m=video 9 UDP/TLS/RTP/SAVPF 96 97 98 99\r\n")
	assert.NotContains(t, got, "102")
	assert.NotContains(t, got, "121")
	assert.NotContains(t, got, "125")
}

func TestFilterCodecs(t *testing.T) {
	t.Parallel()

	got := sdpfix.FilterCodecs(videoSection, []string{"H264"})

	assert.Contains(t, got, "m=video 9 UDP/TLS/RTP/SAVPF 102 121\r\n")
	assert.NotContains(t, got, "VP8")
	assert.NotContains(t, got, "VP9")
}

func TestFixLocal(t *testing.T) {
	t.Parallel()

	sdp := session + audioSection + videoSection

	simulcast := &sdpfix.Simulcast{
		Encodings: []media.Encoding{{RID: "h"}, {RID: "l", ScaleResolutionDownBy: 2}},
	}

	fixes := []sdpfix.Section{
		{},
		{Simulcast: simulcast, Codecs: []string{"vp8"}},
	}

	gen := sdpfix.NewSSRCGenerator()

	got, synthesized, err := sdpfix.FixLocal(sdp, fixes, gen)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, session+audioSection))
	assert.Equal(t, []*sdpfix.Simulcast{simulcast}, synthesized)
	assert.False(t, simulcast.Applied, "applied is left to the caller")
	assert.Contains(t, got, "a=simulcast:send l;h\r\n")
	assert.NotContains(t, got, "H264")
	assert.NotContains(t, got, "VP9")

	retry, synthesized, err := sdpfix.FixLocal(sdp, fixes, gen)
	require.NoError(t, err)
	assert.Contains(t, retry, "a=simulcast:send l;h\r\n", "synthesized again until applied")
	assert.Len(t, synthesized, 1)

	simulcast.Applied = true

	again, synthesized, err := sdpfix.FixLocal(sdp, fixes, gen)
	require.NoError(t, err)
	assert.NotContains(t, again, "a=simulcast", "applied simulcast is not synthesized")
	assert.Empty(t, synthesized)
	assert.Equal(t, uint32(5), gen.Next())
}

func TestFixLocal_SkipsApplication(t *testing.T) {
	t.Parallel()

	app := lines("m=application 9 UDP/DTLS/SCTP webrtc-datachannel", "a=mid:2")
	sdp := session + app + videoSection

	got, _, err := sdpfix.FixLocal(sdp, []sdpfix.Section{{Codecs: []string{"vp9"}}}, sdpfix.NewSSRCGenerator())
	require.NoError(t, err)

	assert.Contains(t, got, app)
	assert.Contains(t, got, "m=video 9 UDP/TLS/RTP/SAVPF 98 99\r\n")
}

func TestFixLocal_Malformed(t *testing.T) {
	t.Parallel()

	_, _, err := sdpfix.FixLocal(session+"\r\n"+videoSection, []sdpfix.Section{{}}, sdpfix.NewSSRCGenerator())
	assert.True(t, multierr.Is(err, sdpfix.ErrMalformedSDP))
}

func TestStripSimulcast(t *testing.T) {
	t.Parallel()

	sdp := lines("a=mid:1", "a=rid:h send", "a=rid:l send", "a=simulcast:send h;l", "a=sendonly")

	assert.Equal(t, lines("a=mid:1", "a=sendonly"), sdpfix.StripSimulcast(sdp))
}

func TestSimulcast03(t *testing.T) {
	t.Parallel()

	normalized, ok := sdpfix.NormalizeSimulcast03("a=simulcast: send rid=h;l\r\n")
	assert.True(t, ok)
	assert.Equal(t, "a=simulcast:send h;l\r\n", normalized)

	_, ok = sdpfix.NormalizeSimulcast03("a=simulcast:send h;l\r\n")
	assert.False(t, ok)

	assert.Equal(t, "a=simulcast: recv rid=h;l\r\n", sdpfix.RestoreSimulcast03("a=simulcast:recv h;l\r\n"))
}
