package sdpinfo

import (
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/pion/sdp/v3"
)

var (
	ErrParse         = errors.New("parse sdp")
	ErrMediaNotFound = errors.New("media not found")
)

const (
	DirectionSendRecv = "sendrecv"
	DirectionSendOnly = "sendonly"
	DirectionRecvOnly = "recvonly"
	DirectionInactive = "inactive"
)

// ReverseDirection returns the direction the answerer uses for an offered
// direction.
func ReverseDirection(direction string) string {
	switch direction {
	case DirectionSendOnly:
		return DirectionRecvOnly
	case DirectionRecvOnly:
		return DirectionSendOnly
	case DirectionInactive:
		return DirectionInactive
	default:
		return DirectionSendRecv
	}
}

func isDirection(key string) bool {
	switch key {
	case DirectionSendRecv, DirectionSendOnly, DirectionRecvOnly, DirectionInactive:
		return true
	}

	return false
}

// Description is a parsed session description.
type Description struct {
	sd *sdp.SessionDescription
}

// Parse parses a session description in its text form.
func Parse(text string) (*Description, error) {
	var sd sdp.SessionDescription

	if err := sd.Unmarshal([]byte(text)); err != nil {
		return nil, errors.Annotatef(ErrParse, "%s", err)
	}

	return &Description{sd: &sd}, nil
}

// Marshal returns the text form of the description.
func (d *Description) Marshal() (string, error) {
	b, err := d.sd.Marshal()
	if err != nil {
		return "", errors.Annotate(err, "marshal sdp")
	}

	return string(b), nil
}

// MediaIDs returns the mids of all media sections in order.
func (d *Description) MediaIDs() []string {
	mids := make([]string, 0, len(d.sd.MediaDescriptions))

	for _, md := range d.sd.MediaDescriptions {
		mid, _ := md.Attribute("mid")
		mids = append(mids, mid)
	}

	return mids
}

func (d *Description) mediaIndex(mid string) int {
	for i, md := range d.sd.MediaDescriptions {
		if v, ok := md.Attribute("mid"); ok && v == mid {
			return i
		}
	}

	return -1
}

// Media returns the media section identified by mid.
func (d *Description) Media(mid string) (*sdp.MediaDescription, bool) {
	i := d.mediaIndex(mid)
	if i < 0 {
		return nil, false
	}

	return d.sd.MediaDescriptions[i], true
}

// ReplaceMedia replaces the section with the same mid as md.
func (d *Description) ReplaceMedia(md *sdp.MediaDescription) error {
	mid, _ := md.Attribute("mid")

	i := d.mediaIndex(mid)
	if i < 0 {
		return errors.Annotatef(ErrMediaNotFound, "mid: %q", mid)
	}

	d.sd.MediaDescriptions[i] = md

	return nil
}

// Direction returns the direction of the section identified by mid.
func (d *Description) Direction(mid string) (string, error) {
	md, ok := d.Media(mid)
	if !ok {
		return "", errors.Annotatef(ErrMediaNotFound, "mid: %q", mid)
	}

	return mediaDirection(md), nil
}

// SetDirection overwrites the direction attribute of a media section.
func (d *Description) SetDirection(mid string, direction string) error {
	md, ok := d.Media(mid)
	if !ok {
		return errors.Annotatef(ErrMediaNotFound, "mid: %q", mid)
	}

	attrs := md.Attributes[:0]

	for _, a := range md.Attributes {
		if !isDirection(a.Key) {
			attrs = append(attrs, a)
		}
	}

	md.Attributes = append(attrs, sdp.NewPropertyAttribute(direction))

	return nil
}

func mediaDirection(md *sdp.MediaDescription) string {
	for _, a := range md.Attributes {
		if isDirection(a.Key) {
			return a.Key
		}
	}

	return DirectionSendRecv
}

// attribute looks up key at the media level first, then at the session
// level.
func (d *Description) attribute(md *sdp.MediaDescription, key string) (string, bool) {
	if md != nil {
		if v, ok := md.Attribute(key); ok {
			return v, true
		}
	}

	return d.sd.Attribute(key)
}

func attributeValues(md *sdp.MediaDescription, key string) []string {
	var values []string

	for _, a := range md.Attributes {
		if a.Key == key {
			values = append(values, a.Value)
		}
	}

	return values
}

// TrackByMediaID describes the track sent in the section identified by mid.
// ok is false when the section does not announce a track.
func (d *Description) TrackByMediaID(mid string) (track TrackInfo, streamID string, ok bool) {
	md, found := d.Media(mid)
	if !found {
		return track, "", false
	}

	streamID, trackID := mediaMSID(md)
	if trackID == "" {
		return track, "", false
	}

	track = TrackInfo{
		ID:      trackID,
		Media:   md.MediaName.Media,
		MediaID: mid,
		SSRCs:   mediaSSRCs(md),
		Groups:  mediaGroups(md),
	}

	for _, layer := range simulcastLayers(md, "send") {
		encodings := make([]TrackEncoding, 0, len(layer))

		for _, rid := range layer {
			encodings = append(encodings, TrackEncoding{
				ID:     strings.TrimPrefix(rid, "~"),
				Paused: strings.HasPrefix(rid, "~"),
			})
		}

		track.Encodings = append(track.Encodings, encodings)
	}

	return track, streamID, true
}

func mediaMSID(md *sdp.MediaDescription) (streamID, trackID string) {
	if v, ok := md.Attribute("msid"); ok {
		fields := strings.Fields(v)
		if len(fields) == 2 {
			return fields[0], fields[1]
		}
	}

	for _, v := range attributeValues(md, "ssrc") {
		fields := strings.Fields(v)
		if len(fields) == 3 && strings.HasPrefix(fields[1], "msid:") {
			return strings.TrimPrefix(fields[1], "msid:"), fields[2]
		}
	}

	return "", ""
}

func mediaSSRCs(md *sdp.MediaDescription) []uint32 {
	var (
		ssrcs []uint32
		seen  = map[uint32]struct{}{}
	)

	for _, v := range attributeValues(md, "ssrc") {
		fields := strings.Fields(v)
		if len(fields) == 0 {
			continue
		}

		ssrc, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}

		if _, ok := seen[uint32(ssrc)]; !ok {
			seen[uint32(ssrc)] = struct{}{}
			ssrcs = append(ssrcs, uint32(ssrc))
		}
	}

	return ssrcs
}

func mediaGroups(md *sdp.MediaDescription) []SourceGroup {
	var groups []SourceGroup

	for _, v := range attributeValues(md, "ssrc-group") {
		fields := strings.Fields(v)
		if len(fields) < 2 {
			continue
		}

		group := SourceGroup{Semantics: fields[0]}

		for _, f := range fields[1:] {
			if ssrc, err := strconv.ParseUint(f, 10, 32); err == nil {
				group.SSRCs = append(group.SSRCs, uint32(ssrc))
			}
		}

		groups = append(groups, group)
	}

	return groups
}

// simulcastLayers returns the rid layers of an "a=simulcast:<dir> ..."
// attribute. Layers are separated by ';' and alternatives by ','.
func simulcastLayers(md *sdp.MediaDescription, direction string) [][]string {
	v, ok := md.Attribute("simulcast")
	if !ok {
		return nil
	}

	fields := strings.Fields(v)

	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] != direction {
			continue
		}

		var layers [][]string

		for _, layer := range strings.Split(fields[i+1], ";") {
			if layer != "" {
				layers = append(layers, strings.Split(layer, ","))
			}
		}

		return layers
	}

	return nil
}

// Streams returns the tracks announced in the description grouped by
// stream id, ordered by stream id.
func (d *Description) Streams() []StreamInfo {
	index := map[string]int{}

	var streams []StreamInfo

	for _, mid := range d.MediaIDs() {
		track, streamID, ok := d.TrackByMediaID(mid)
		if !ok {
			continue
		}

		i, ok := index[streamID]
		if !ok {
			i = len(streams)
			index[streamID] = i
			streams = append(streams, StreamInfo{ID: streamID})
		}

		streams[i].Tracks = append(streams[i].Tracks, track)
	}

	sort.SliceStable(streams, func(i, j int) bool {
		return streams[i].ID < streams[j].ID
	})

	return streams
}

// AddStream announces the tracks of stream in the media sections matching
// their media ids. Tracks without a media id are skipped.
func (d *Description) AddStream(stream StreamInfo) error {
	for _, track := range stream.Tracks {
		if track.MediaID == "" {
			continue
		}

		md, ok := d.Media(track.MediaID)
		if !ok {
			return errors.Annotatef(ErrMediaNotFound, "track: %q, mid: %q", track.ID, track.MediaID)
		}

		md.Attributes = append(md.Attributes, sdp.NewAttribute("msid", stream.ID+" "+track.ID))

		for _, group := range track.Groups {
			md.Attributes = append(md.Attributes, sdp.NewAttribute("ssrc-group", formatGroup(group)))
		}

		for _, ssrc := range track.SSRCs {
			s := strconv.FormatUint(uint64(ssrc), 10)

			md.Attributes = append(md.Attributes,
				sdp.NewAttribute("ssrc", s+" cname:"+stream.ID),
				sdp.NewAttribute("ssrc", s+" msid:"+stream.ID+" "+track.ID),
			)
		}
	}

	return nil
}

func formatGroup(group SourceGroup) string {
	parts := make([]string, 0, len(group.SSRCs)+1)
	parts = append(parts, group.Semantics)

	for _, ssrc := range group.SSRCs {
		parts = append(parts, strconv.FormatUint(uint64(ssrc), 10))
	}

	return strings.Join(parts, " ")
}

// Info returns the plain form of the description.
func (d *Description) Info() Info {
	info := Info{
		Medias:     []MediaInfo{},
		Streams:    d.Streams(),
		Candidates: []CandidateInfo{},
	}

	if info.Streams == nil {
		info.Streams = []StreamInfo{}
	}

	var first *sdp.MediaDescription
	if len(d.sd.MediaDescriptions) > 0 {
		first = d.sd.MediaDescriptions[0]
	}

	if ufrag, ok := d.attribute(first, "ice-ufrag"); ok {
		pwd, _ := d.attribute(first, "ice-pwd")
		_, lite := d.sd.Attribute("ice-lite")

		info.ICE = &ICEInfo{Ufrag: ufrag, Pwd: pwd, Lite: lite}
	}

	if fingerprint, ok := d.attribute(first, "fingerprint"); ok {
		setup, _ := d.attribute(first, "setup")

		if fields := strings.Fields(fingerprint); len(fields) == 2 {
			info.DTLS = &DTLSInfo{Setup: setup, Hash: fields[0], Fingerprint: fields[1]}
		}
	}

	for _, md := range d.sd.MediaDescriptions {
		mid, _ := md.Attribute("mid")

		media := MediaInfo{
			ID:        mid,
			Type:      md.MediaName.Media,
			Direction: mediaDirection(md),
			Codecs:    []CodecInfo{},
		}

		for _, c := range parseCodecs(md) {
			media.Codecs = append(media.Codecs, c.info())
		}

		for _, ext := range parseExtensions(md) {
			if media.Extensions == nil {
				media.Extensions = map[string]string{}
			}

			media.Extensions[ext.id] = ext.uri
		}

		for _, v := range attributeValues(md, "rid") {
			if fields := strings.Fields(v); len(fields) > 0 {
				media.RIDs = append(media.RIDs, fields[0])
			}
		}

		for _, v := range attributeValues(md, "candidate") {
			if c, ok := parseCandidate(v); ok {
				info.Candidates = append(info.Candidates, c)
			}
		}

		info.Medias = append(info.Medias, media)
	}

	return info
}

func parseCandidate(value string) (CandidateInfo, bool) {
	fields := strings.Fields(value)
	if len(fields) < 8 || fields[6] != "typ" {
		return CandidateInfo{}, false
	}

	component, err1 := strconv.Atoi(fields[1])
	priority, err2 := strconv.ParseUint(fields[3], 10, 32)
	port, err3 := strconv.Atoi(fields[5])

	if err1 != nil || err2 != nil || err3 != nil {
		return CandidateInfo{}, false
	}

	return CandidateInfo{
		Foundation:  fields[0],
		ComponentID: component,
		Transport:   fields[2],
		Priority:    uint32(priority),
		Address:     fields[4],
		Port:        port,
		Type:        fields[7],
	}, true
}

func (c CandidateInfo) String() string {
	return strings.Join([]string{
		c.Foundation,
		strconv.Itoa(c.ComponentID),
		c.Transport,
		strconv.FormatUint(uint64(c.Priority), 10),
		c.Address,
		strconv.Itoa(c.Port),
		"typ",
		c.Type,
	}, " ")
}
