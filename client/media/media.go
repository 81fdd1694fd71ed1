package media

import (
	"context"

	"github.com/juju/errors"
)

var (
	ErrUnsupportedTrack = errors.New("unsupported track")
	ErrNotSupported     = errors.New("not supported")
)

// Kind is the media type of a track or transceiver.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Direction is the negotiated direction of a transceiver.
type Direction string

const (
	DirectionSendRecv Direction = "sendrecv"
	DirectionSendOnly Direction = "sendonly"
	DirectionRecvOnly Direction = "recvonly"
	DirectionInactive Direction = "inactive"
)

// Encoding is a single simulcast encoding requested for a sender.
type Encoding struct {
	RID                   string  `yaml:"rid"`
	ScaleResolutionDownBy float64 `yaml:"scale_resolution_down_by"`
	MaxBitrate            uint64  `yaml:"max_bitrate"`
}

// Scale returns the downscale factor, 1 when unset.
func (e Encoding) Scale() float64 {
	if e.ScaleResolutionDownBy <= 0 {
		return 1
	}

	return e.ScaleResolutionDownBy
}

// Track is a local media source.
type Track interface {
	ID() string
	StreamID() string
}

type TransceiverInit struct {
	Direction     Direction
	StreamIDs     []string
	SendEncodings []Encoding
}

// Transceiver is a media engine transceiver. Mid is empty until the
// transceiver has been part of a local description.
type Transceiver interface {
	Mid() string
	Kind() Kind
	Direction() Direction
	SetDirection(Direction) error
	Stopped() bool

	// SenderEncodings returns the encodings the sender is currently
	// configured with.
	SenderEncodings() []Encoding
	SetSenderEncodings([]Encoding) error

	// StopSending detaches the local track from the sender.
	StopSending() error
}

// Engine is the subset of a peer connection used for negotiation.
type Engine interface {
	CreateOffer(ctx context.Context) (string, error)
	SetLocalDescription(ctx context.Context, sdp string) error
	SetRemoteDescription(ctx context.Context, sdp string) error

	// HasLocalOffer reports whether a local offer is waiting for an answer.
	HasLocalOffer() bool

	// LocalDescription returns the pending or current local description.
	LocalDescription() string

	Transceivers() []Transceiver
	AddTransceiverFromKind(kind Kind, init TransceiverInit) (Transceiver, error)
	AddTransceiverFromTrack(track Track, init TransceiverInit) (Transceiver, error)

	Close() error
}

// NegotiationNeededNotifier is implemented by engines which detect changes
// that require a new offer on their own.
type NegotiationNeededNotifier interface {
	OnNegotiationNeeded(fn func())
}
