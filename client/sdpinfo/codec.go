package sdpinfo

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

type codec struct {
	payloadType uint8
	name        string
	encoding    string
	fmtp        string
	params      map[string]string
	feedbacks   []RTCPFeedback
	rtx         *codec
}

func (c codec) info() CodecInfo {
	info := CodecInfo{
		Codec:         strings.ToLower(c.name),
		Type:          c.payloadType,
		Params:        c.params,
		RTCPFeedbacks: c.feedbacks,
	}

	if c.rtx != nil {
		info.RTX = c.rtx.payloadType
	}

	return info
}

func parsePayloadType(s string) (uint8, bool) {
	pt, err := strconv.ParseUint(s, 10, 8)

	return uint8(pt), err == nil
}

// splitPayloadType splits "<pt> <rest>" attribute values.
func splitPayloadType(value string) (uint8, string, bool) {
	ptStr, rest, _ := strings.Cut(value, " ")

	pt, ok := parsePayloadType(ptStr)

	return pt, strings.TrimSpace(rest), ok
}

func parseParams(fmtp string) map[string]string {
	if fmtp == "" {
		return nil
	}

	params := map[string]string{}

	for _, kv := range strings.Split(fmtp, ";") {
		k, v, _ := strings.Cut(strings.TrimSpace(kv), "=")
		if k != "" {
			params[k] = v
		}
	}

	return params
}

// parseCodecs returns the codecs of md in payload type order of the m= line.
// Retransmission codecs are attached to the codec they protect.
func parseCodecs(md *sdp.MediaDescription) []codec {
	byPT := map[uint8]*codec{}

	for _, f := range md.MediaName.Formats {
		if pt, ok := parsePayloadType(f); ok {
			byPT[pt] = &codec{payloadType: pt}
		}
	}

	for _, a := range md.Attributes {
		pt, rest, ok := splitPayloadType(a.Value)
		if !ok {
			continue
		}

		c, ok := byPT[pt]
		if !ok {
			continue
		}

		switch a.Key {
		case "rtpmap":
			c.name, c.encoding, _ = strings.Cut(rest, "/")
		case "fmtp":
			c.fmtp = rest
			c.params = parseParams(rest)
		case "rtcp-fb":
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				c.feedbacks = append(c.feedbacks, RTCPFeedback{ID: fields[0], Params: fields[1:]})
			}
		}
	}

	var codecs []codec

	for _, f := range md.MediaName.Formats {
		pt, ok := parsePayloadType(f)
		if !ok {
			continue
		}

		c := byPT[pt]

		if strings.EqualFold(c.name, "rtx") {
			if apt, ok := parsePayloadType(c.params["apt"]); ok {
				if protected, ok := byPT[apt]; ok {
					protected.rtx = c
				}
			}

			continue
		}

		if c.name != "" {
			codecs = append(codecs, *c)
		}
	}

	// rtx codecs were attached after their primary codec may have been
	// copied, so resolve them again.
	for i := range codecs {
		codecs[i].rtx = byPT[codecs[i].payloadType].rtx
	}

	return codecs
}

// CodecName returns the codec token of a capability entry, the part before
// the first ';'.
func CodecName(capabilityCodec string) string {
	name, _, _ := strings.Cut(capabilityCodec, ";")

	return strings.TrimSpace(name)
}

// matches reports whether c satisfies a capability entry such as
// "h264;packetization-mode=1". Parameters missing from the offered fmtp are
// treated as "0".
func (c codec) matches(capabilityCodec string) bool {
	parts := strings.Split(capabilityCodec, ";")

	if !strings.EqualFold(strings.TrimSpace(parts[0]), c.name) {
		return false
	}

	for _, kv := range parts[1:] {
		k, v, _ := strings.Cut(strings.TrimSpace(kv), "=")
		if k == "" {
			continue
		}

		got, ok := c.params[k]
		if !ok {
			got = "0"
		}

		if got != v {
			return false
		}
	}

	return true
}

func (c codec) rtpmap() sdp.Attribute {
	return sdp.NewAttribute("rtpmap", itoa(c.payloadType)+" "+c.name+"/"+c.encoding)
}

func (c codec) attributes(allowedFeedbacks []RTCPFeedback, withRTX bool) []sdp.Attribute {
	pt := itoa(c.payloadType)

	attrs := []sdp.Attribute{c.rtpmap()}

	for _, fb := range c.feedbacks {
		if feedbackAllowed(fb, allowedFeedbacks) {
			attrs = append(attrs, sdp.NewAttribute("rtcp-fb", strings.TrimSpace(pt+" "+fb.ID+" "+strings.Join(fb.Params, " "))))
		}
	}

	if c.fmtp != "" {
		attrs = append(attrs, sdp.NewAttribute("fmtp", pt+" "+c.fmtp))
	}

	if withRTX && c.rtx != nil {
		attrs = append(attrs,
			c.rtx.rtpmap(),
			sdp.NewAttribute("fmtp", itoa(c.rtx.payloadType)+" apt="+pt),
		)
	}

	return attrs
}

func feedbackAllowed(fb RTCPFeedback, allowed []RTCPFeedback) bool {
	for _, a := range allowed {
		if a.ID == fb.ID && strings.Join(a.Params, " ") == strings.Join(fb.Params, " ") {
			return true
		}
	}

	return false
}

type extension struct {
	id  string
	uri string
	raw string
}

func parseExtensions(md *sdp.MediaDescription) []extension {
	var exts []extension

	for _, v := range attributeValues(md, "extmap") {
		fields := strings.Fields(v)
		if len(fields) < 2 {
			continue
		}

		id, _, _ := strings.Cut(fields[0], "/")

		exts = append(exts, extension{id: id, uri: fields[1], raw: v})
	}

	return exts
}
