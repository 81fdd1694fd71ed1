package sdpinfo

// TrackInfo describes a media track as exchanged with the media server.
type TrackInfo struct {
	ID        string            `json:"id"`
	Media     string            `json:"media"`
	MediaID   string            `json:"mediaId,omitempty"`
	SSRCs     []uint32          `json:"ssrcs,omitempty"`
	Groups    []SourceGroup     `json:"groups,omitempty"`
	Encodings [][]TrackEncoding `json:"encodings,omitempty"`
}

// SourceGroup is an a=ssrc-group line, e.g. FID or SIM.
type SourceGroup struct {
	Semantics string   `json:"semantics"`
	SSRCs     []uint32 `json:"ssrcs"`
}

// TrackEncoding is a single simulcast layer identified by its rid.
type TrackEncoding struct {
	ID     string `json:"id"`
	Paused bool   `json:"paused,omitempty"`
}

// StreamInfo groups tracks announced under the same stream id.
type StreamInfo struct {
	ID     string      `json:"id"`
	Tracks []TrackInfo `json:"tracks"`
}

type ICEInfo struct {
	Ufrag string `json:"ufrag"`
	Pwd   string `json:"pwd"`
	Lite  bool   `json:"lite,omitempty"`
}

type DTLSInfo struct {
	Setup       string `json:"setup,omitempty"`
	Hash        string `json:"hash"`
	Fingerprint string `json:"fingerprint"`
}

type CandidateInfo struct {
	Foundation  string `json:"foundation"`
	ComponentID int    `json:"componentId"`
	Transport   string `json:"transport"`
	Priority    uint32 `json:"priority"`
	Address     string `json:"address"`
	Port        int    `json:"port"`
	Type        string `json:"type"`
}

type RTCPFeedback struct {
	ID     string   `json:"id"`
	Params []string `json:"params,omitempty"`
}

// Capability lists what the media server accepts for one media type.
// Codecs entries are codec names optionally followed by ";key=value"
// parameters, e.g. "h264;packetization-mode=1".
type Capability struct {
	Codecs        []string       `json:"codecs"`
	RTX           bool           `json:"rtx,omitempty"`
	RTCPFeedbacks []RTCPFeedback `json:"rtcpfbs,omitempty"`
	Extensions    []string       `json:"extensions,omitempty"`
	Simulcast     bool           `json:"simulcast,omitempty"`
}

// RemoteParams is the media server's reply to the create command.
type RemoteParams struct {
	ID           string                `json:"id"`
	ICE          ICEInfo               `json:"ice"`
	DTLS         DTLSInfo              `json:"dtls"`
	Candidates   []CandidateInfo       `json:"candidates"`
	Capabilities map[string]Capability `json:"capabilities"`
}

// CodecInfo is a negotiated or offered codec.
type CodecInfo struct {
	Codec         string            `json:"codec"`
	Type          uint8             `json:"type"`
	RTX           uint8             `json:"rtx,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	RTCPFeedbacks []RTCPFeedback    `json:"rtcpfbs,omitempty"`
}

// MediaInfo summarizes a single media section.
type MediaInfo struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Direction  string            `json:"direction"`
	Codecs     []CodecInfo       `json:"codecs"`
	Extensions map[string]string `json:"extensions,omitempty"`
	RIDs       []string          `json:"rids,omitempty"`
}

// Info is the plain form of a description sent to the media server.
type Info struct {
	ICE        *ICEInfo        `json:"ice,omitempty"`
	DTLS       *DTLSInfo       `json:"dtls,omitempty"`
	Medias     []MediaInfo     `json:"medias"`
	Streams    []StreamInfo    `json:"streams"`
	Candidates []CandidateInfo `json:"candidates"`
}
