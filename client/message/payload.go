package message

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
)

var ErrUnknownEventName = errors.New("unknown event name")

// Command names.
const (
	CommandCreate = "create"
	CommandView   = "view"
	CommandUnview = "unview"
)

// Event names.
const (
	EventAddedTrack   = "addedtrack"
	EventRemovedTrack = "removedtrack"
	EventStopped      = "stopped"
)

// AddedTrack announces a track. The server sends it for tracks the client
// should receive, the client sends it for tracks it starts sending.
type AddedTrack struct {
	StreamID string            `json:"streamId"`
	Track    sdpinfo.TrackInfo `json:"track"`
}

// RemovedTrack announces that a previously added track is gone.
type RemovedTrack struct {
	StreamID string `json:"streamId"`
	TrackID  string `json:"trackId"`
}

// Stopped announces that the remote side closed the session.
type Stopped struct{}

// View asks the server to start forwarding a camera to a peer connection.
type View struct {
	ID       string `json:"id"`
	Instance string `json:"instance"`
	PCID     string `json:"pcId"`
}

type ViewResponse struct {
	ViewerID string `json:"viewerId,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Unview struct {
	ID       string `json:"id"`
	Instance string `json:"instance"`
}

// PeerEvent is one of the events a peer connection namespace receives.
// Exactly one payload field is set, matching Name.
type PeerEvent struct {
	Name         string
	AddedTrack   *AddedTrack
	RemovedTrack *RemovedTrack
	Stopped      *Stopped
}

// DecodePeerEvent decodes the data of a peer connection event.
func DecodePeerEvent(name string, data json.RawMessage) (PeerEvent, error) {
	event := PeerEvent{Name: name}

	var (
		target interface{}
		err    error
	)

	switch name {
	case EventAddedTrack:
		event.AddedTrack = &AddedTrack{}
		target = event.AddedTrack
	case EventRemovedTrack:
		event.RemovedTrack = &RemovedTrack{}
		target = event.RemovedTrack
	case EventStopped:
		event.Stopped = &Stopped{}

		return event, nil
	default:
		return event, errors.Annotatef(ErrUnknownEventName, "event: %q", name)
	}

	if len(data) == 0 {
		return event, errors.Annotatef(ErrBadFrame, "event %s without data", name)
	}

	if err = json.Unmarshal(data, target); err != nil {
		return event, errors.Annotatef(err, "decode event %s", name)
	}

	return event, nil
}
