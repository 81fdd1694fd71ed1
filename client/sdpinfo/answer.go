package sdpinfo

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/pion/randutil"
	"github.com/pion/sdp/v3"
)

// ErrCapabilityMismatch is reported when no capability exists for a media
// type or no offered codec is supported. The affected section is rejected
// in the answer.
var ErrCapabilityMismatch = errors.New("capability mismatch")

var sessionIDs = randutil.NewMathRandomGenerator()

// Answer builds the description the media server would answer to d, using
// the transport parameters and capabilities in remote. Media sections the
// server cannot handle are rejected with port 0.
func (d *Description) Answer(remote RemoteParams) (*Description, error) {
	answer := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionIDs.Uint64() & (1<<63 - 1),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: "-",
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{}},
		},
	}

	if remote.ICE.Lite {
		answer.Attributes = append(answer.Attributes, sdp.NewPropertyAttribute("ice-lite"))
	}

	var bundle []string

	for _, md := range d.sd.MediaDescriptions {
		mid, _ := md.Attribute("mid")

		capability, ok := remote.Capabilities[md.MediaName.Media]
		if !ok {
			answer.MediaDescriptions = append(answer.MediaDescriptions, rejectMedia(md))

			continue
		}

		media, err := d.answerMedia(md, remote, capability)
		if errors.Cause(err) == ErrCapabilityMismatch {
			answer.MediaDescriptions = append(answer.MediaDescriptions, rejectMedia(md))

			continue
		}

		if err != nil {
			return nil, errors.Trace(err)
		}

		bundle = append(bundle, mid)
		answer.MediaDescriptions = append(answer.MediaDescriptions, media)
	}

	if len(bundle) > 0 {
		answer.Attributes = append(answer.Attributes, sdp.NewAttribute("group", "BUNDLE "+strings.Join(bundle, " ")))
	}

	answer.Attributes = append(answer.Attributes, sdp.NewAttribute("msid-semantic", "WMS *"))

	return &Description{sd: answer}, nil
}

// AnswerMedia builds the answer for a single offered section using
// capability instead of the capability of its media type.
func (d *Description) AnswerMedia(remote RemoteParams, mid string, capability Capability) (*sdp.MediaDescription, error) {
	md, ok := d.Media(mid)
	if !ok {
		return nil, errors.Annotatef(ErrMediaNotFound, "mid: %q", mid)
	}

	media, err := d.answerMedia(md, remote, capability)

	return media, errors.Trace(err)
}

func (d *Description) answerMedia(offer *sdp.MediaDescription, remote RemoteParams, capability Capability) (*sdp.MediaDescription, error) {
	mid, _ := offer.Attribute("mid")

	var accepted []codec

	for _, c := range parseCodecs(offer) {
		for _, capCodec := range capability.Codecs {
			if c.matches(capCodec) {
				accepted = append(accepted, c)

				break
			}
		}
	}

	if len(accepted) == 0 {
		return nil, errors.Annotatef(ErrCapabilityMismatch, "mid: %q, media: %s", mid, offer.MediaName.Media)
	}

	formats := make([]string, 0, len(accepted)*2)

	for _, c := range accepted {
		formats = append(formats, itoa(c.payloadType))

		if capability.RTX && c.rtx != nil {
			formats = append(formats, itoa(c.rtx.payloadType))
		}
	}

	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   offer.MediaName.Media,
			Port:    sdp.RangedPort{Value: 9},
			Protos:  offer.MediaName.Protos,
			Formats: formats,
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
	}

	add := func(attrs ...sdp.Attribute) {
		md.Attributes = append(md.Attributes, attrs...)
	}

	add(
		sdp.NewAttribute("rtcp", "9 IN IP4 0.0.0.0"),
		sdp.NewAttribute("ice-ufrag", remote.ICE.Ufrag),
		sdp.NewAttribute("ice-pwd", remote.ICE.Pwd),
		sdp.NewAttribute("fingerprint", remote.DTLS.Hash+" "+remote.DTLS.Fingerprint),
		sdp.NewAttribute("setup", answerSetup(remote.DTLS.Setup)),
		sdp.NewAttribute("mid", mid),
	)

	for _, ext := range parseExtensions(offer) {
		for _, uri := range capability.Extensions {
			if uri == ext.uri {
				add(sdp.NewAttribute("extmap", ext.id+" "+ext.uri))

				break
			}
		}
	}

	add(sdp.NewPropertyAttribute(ReverseDirection(mediaDirection(offer))))
	add(sdp.NewPropertyAttribute("rtcp-mux"))

	if _, ok := offer.Attribute("rtcp-rsize"); ok {
		add(sdp.NewPropertyAttribute("rtcp-rsize"))
	}

	for _, c := range accepted {
		add(c.attributes(capability.RTCPFeedbacks, capability.RTX)...)
	}

	if layers := simulcastLayers(offer, "send"); capability.Simulcast && len(layers) > 0 {
		var rids []string

		for _, layer := range layers {
			rids = append(rids, strings.Join(layer, ","))

			for _, rid := range layer {
				add(sdp.NewAttribute("rid", strings.TrimPrefix(rid, "~")+" recv"))
			}
		}

		add(sdp.NewAttribute("simulcast", "recv "+strings.Join(rids, ";")))
	}

	for _, c := range remote.Candidates {
		add(sdp.NewAttribute("candidate", c.String()))
	}

	if len(remote.Candidates) > 0 {
		add(sdp.NewPropertyAttribute("end-of-candidates"))
	}

	return md, nil
}

func rejectMedia(offer *sdp.MediaDescription) *sdp.MediaDescription {
	mid, _ := offer.Attribute("mid")

	formats := offer.MediaName.Formats
	if len(formats) > 1 {
		formats = formats[:1]
	}

	return &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   offer.MediaName.Media,
			Port:    sdp.RangedPort{Value: 0},
			Protos:  offer.MediaName.Protos,
			Formats: formats,
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
		Attributes: []sdp.Attribute{
			sdp.NewAttribute("mid", mid),
			sdp.NewPropertyAttribute(DirectionInactive),
		},
	}
}

func answerSetup(remoteSetup string) string {
	switch remoteSetup {
	case "active", "passive":
		return remoteSetup
	default:
		return "passive"
	}
}

func itoa(pt uint8) string {
	return strconv.Itoa(int(pt))
}
