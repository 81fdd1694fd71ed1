// Package sdpfix rewrites local session descriptions in their text form
// before they are applied, for media engines which cannot express simulcast
// or codec restrictions through their API.
package sdpfix

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/media"
)

var (
	ErrMissingAttribute = errors.New("missing attribute")
	ErrMalformedSDP     = errors.New("malformed sdp")
)

// FilteredCodecs are the video codecs removed from a section unless they are
// in the section's allow-list.
var FilteredCodecs = []string{"vp8", "vp9", "h264"}

const (
	crlf           = "\r\n"
	sectionStart   = "\r\nm="
	applicationSec = "m=application"
)

// SSRCGenerator hands out increasing SSRCs for synthesized simulcast
// streams, starting at 1.
type SSRCGenerator struct {
	mu   sync.Mutex
	last uint32
}

func NewSSRCGenerator() *SSRCGenerator {
	return &SSRCGenerator{}
}

func (g *SSRCGenerator) Next() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.last++

	return g.last
}

// Simulcast is the simulcast fix state of one sender. Lines are synthesized
// until Applied is set, which the caller does once a fixed description was
// accepted by the engine.
type Simulcast struct {
	Encodings []media.Encoding
	Applied   bool
}

// Section describes how to fix the media section of one transceiver.
type Section struct {
	Simulcast *Simulcast

	// Codecs is the allow-list of codec names. When nil no codec is removed.
	Codecs []string
}

// SplitSections returns the session part and the media sections of sdp.
// Every returned part ends with CRLF when sdp does.
func SplitSections(sdp string) (session string, sections []string) {
	ini := strings.Index(sdp, sectionStart)
	if ini < 0 {
		return sdp, nil
	}

	session = sdp[:ini+2]
	rest := sdp[ini+2:]

	for rest != "" {
		end := strings.Index(rest, sectionStart)
		if end < 0 {
			sections = append(sections, rest)

			break
		}

		sections = append(sections, rest[:end+2])
		rest = rest[end+2:]
	}

	return session, sections
}

// FixLocal applies fixes to the media sections of sdp in order, skipping
// application sections. Sections without a matching fix are kept as they
// are. The simulcast states whose lines were synthesized are returned and
// left unmodified.
func FixLocal(sdp string, fixes []Section, gen *SSRCGenerator) (string, []*Simulcast, error) {
	session, sections := SplitSections(sdp)

	var b strings.Builder

	b.WriteString(session)

	var synthesized []*Simulcast

	i := 0

	for _, section := range sections {
		if strings.HasPrefix(section, applicationSec) || i >= len(fixes) {
			b.WriteString(section)

			continue
		}

		fix := fixes[i]
		i++

		if fix.Simulcast != nil && !fix.Simulcast.Applied {
			fixed, err := AddSimulcast(section, fix.Simulcast.Encodings, gen)
			if err != nil {
				return "", nil, errors.Trace(err)
			}

			section = fixed
			synthesized = append(synthesized, fix.Simulcast)
		}

		if fix.Codecs != nil {
			section = FilterCodecs(section, fix.Codecs)
		}

		b.WriteString(section)
	}

	fixed := b.String()

	if strings.Contains(fixed, crlf+crlf) {
		return "", nil, errors.Annotatef(ErrMalformedSDP, "empty line in fixed sdp")
	}

	return fixed, synthesized, nil
}

// FilterCodecs removes the FilteredCodecs missing from allowed.
func FilterCodecs(section string, allowed []string) string {
	for _, codec := range FilteredCodecs {
		if !containsFold(allowed, codec) {
			section = RemoveCodec(section, codec)
		}
	}

	return section
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}

	return false
}

var (
	ssrcCname   = regexp.MustCompile(`(?s)m=video.*?a=ssrc:(\d+) cname:(.+?)\r\n`)
	ssrcMsid    = regexp.MustCompile(`(?s)m=video.*?a=ssrc:(\d+) msid:(.+?)\r\n`)
	ssrcMslabel = regexp.MustCompile(`(?s)m=video.*?a=ssrc:(\d+) mslabel:(.+?)\r\n`)
	ssrcLabel   = regexp.MustCompile(`(?s)m=video.*?a=ssrc:(\d+) label:(.+?)\r\n`)
)

// AddSimulcast appends the lines of a simulcast sender with one layer per
// encoding to a video section. The section's first SSRC is used for the
// layer with the largest downscale factor and every other layer gets a new
// SSRC and retransmission SSRC from gen.
func AddSimulcast(section string, encodings []media.Encoding, gen *SSRCGenerator) (string, error) {
	res := ssrcCname.FindStringSubmatch(section)
	if res == nil {
		return "", errors.Annotatef(ErrMissingAttribute, "ssrc cname in video section")
	}

	ssrc, cname := res[1], res[2]

	type mirrored struct {
		key   string
		value string
	}

	var lines []mirrored

	for _, m := range []struct {
		key string
		re  *regexp.Regexp
	}{
		{"msid", ssrcMsid},
		{"mslabel", ssrcMslabel},
		{"label", ssrcLabel},
	} {
		if res := m.re.FindStringSubmatch(section); res != nil {
			lines = append(lines, mirrored{m.key, res[2]})
		}
	}

	sorted := make([]media.Encoding, len(encodings))
	copy(sorted, encodings)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Scale() > sorted[j].Scale()
	})

	var b strings.Builder

	b.WriteString(section)

	writeSource := func(ssrc string) {
		b.WriteString("a=ssrc:" + ssrc + " cname:" + cname + crlf)

		for _, l := range lines {
			b.WriteString("a=ssrc:" + ssrc + " " + l.key + ":" + l.value + crlf)
		}
	}

	ssrcs := []string{ssrc}

	for i := 1; i < len(sorted); i++ {
		layer := strconv.FormatUint(uint64(gen.Next()), 10)
		rtx := strconv.FormatUint(uint64(gen.Next()), 10)

		ssrcs = append(ssrcs, layer)

		b.WriteString("a=ssrc-group:FID " + layer + " " + rtx + crlf)
		writeSource(layer)
		writeSource(rtx)
	}

	rids := make([]string, len(sorted))
	for i, e := range sorted {
		rids[i] = e.RID
	}

	b.WriteString("a=ssrc-group:SIM " + strings.Join(ssrcs, " ") + crlf)
	b.WriteString("a=simulcast:send " + strings.Join(rids, ";") + crlf)

	for i, rid := range rids {
		b.WriteString("a=rid:" + rid + " send ssrc=" + ssrcs[i] + crlf)
	}

	b.WriteString("a=x-google-flag:conference" + crlf)

	return b.String(), nil
}

var videoLine = regexp.MustCompile(`(?m)^m=video [^\r\n]*\r\n`)

func removeLines(text, prefix string) string {
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(prefix) + `[^\r\n]*\r\n`)

	return re.ReplaceAllString(text, "")
}

// RemoveCodec removes every payload type of codec from a media section,
// together with its feedback, format parameters and retransmission payload
// type. Removing an absent codec leaves the section unchanged.
func RemoveCodec(section, codec string) string {
	rtpmap := regexp.MustCompile(`(?i)a=rtpmap:(\d+) ` + regexp.QuoteMeta(codec) + `/90000\r\n`)

	for {
		m := rtpmap.FindStringSubmatchIndex(section)
		if m == nil {
			return section
		}

		pt := section[m[2]:m[3]]
		section = section[:m[0]] + section[m[1]:]
		section = removeLines(section, "a=rtcp-fb:"+pt+" ")
		section = removeLines(section, "a=fmtp:"+pt+" ")

		var rtx string

		apt := regexp.MustCompile(`a=fmtp:(\d+) apt=` + pt + `\r\n`)

		if am := apt.FindStringSubmatchIndex(section); am != nil {
			rtx = section[am[2]:am[3]]
			section = section[:am[0]] + section[am[1]:]
			section = removeLines(section, "a=rtpmap:"+rtx+" ")
			section = removeLines(section, "a=rtcp-fb:"+rtx+" ")
		}

		section = videoLine.ReplaceAllStringFunc(section, func(line string) string {
			fields := strings.Split(strings.TrimSuffix(line, crlf), " ")

			kept := fields[:0]

			for i, f := range fields {
				if i >= 3 && (f == pt || f == rtx) {
					continue
				}

				kept = append(kept, f)
			}

			return strings.Join(kept, " ") + crlf
		})
	}
}

var (
	simulcastLine = regexp.MustCompile(`(?m)^a=simulcast[^\r\n]*\r\n`)
	ridLine       = regexp.MustCompile(`(?m)^a=rid[^\r\n]*\r\n`)
)

// StripSimulcast removes all simulcast and rid attributes.
func StripSimulcast(sdp string) string {
	return ridLine.ReplaceAllString(simulcastLine.ReplaceAllString(sdp, ""), "")
}

const (
	simulcast03Send = ": send rid="
	simulcast03Recv = ": recv rid="
)

// NormalizeSimulcast03 rewrites the legacy "a=simulcast: send rid=" syntax
// into the current one. ok reports whether the legacy syntax was found.
func NormalizeSimulcast03(sdp string) (normalized string, ok bool) {
	if !strings.Contains(sdp, simulcast03Send) {
		return sdp, false
	}

	return strings.ReplaceAll(sdp, simulcast03Send, ":send "), true
}

// RestoreSimulcast03 rewrites simulcast receive attributes of an answer into
// the legacy syntax.
func RestoreSimulcast03(sdp string) string {
	return strings.ReplaceAll(sdp, ":recv ", simulcast03Recv)
}
