// Package session holds the negotiation state of one peer connection: the
// remote streams, the transceiver bookkeeping, and the queues of work for
// the next negotiation cycle. A Session is not safe for concurrent use.
package session

import (
	"github.com/gammazero/deque"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/sdpfix"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
)

// Transceiver is the negotiation bookkeeping attached to a media engine
// transceiver.
type Transceiver struct {
	Media media.Transceiver

	// Pending is set while the transceiver waits to be processed by a cycle.
	Pending bool

	// StreamID, TrackID and Track identify the remote track received on this
	// transceiver.
	StreamID string
	TrackID  string
	Track    *sdpinfo.TrackInfo

	// SendStreamID and SendTrack identify the local track sent on this
	// transceiver once it has been announced.
	SendStreamID string
	SendTrack    *sdpinfo.TrackInfo

	Simulcast *sdpfix.Simulcast

	// Codecs restricts the video codecs offered and accepted on this
	// transceiver. Nil means no restriction.
	Codecs []string
}

// ClearReceive drops the remote track association.
func (t *Transceiver) ClearReceive() {
	t.StreamID = ""
	t.TrackID = ""
	t.Track = nil
}

// AddRequest asks for a remote track to be received.
type AddRequest struct {
	StreamID string
	Track    sdpinfo.TrackInfo
}

// RemoveRequest asks for a remote track to stop being received.
type RemoveRequest struct {
	StreamID string
	TrackID  string
}

type Session struct {
	streams      map[string]*Stream
	streamOrder  []string
	transceivers []*Transceiver
	byMedia      map[media.Transceiver]*Transceiver
	pending      []*Transceiver

	adding   deque.Deque
	removing deque.Deque

	// Local is the parsed local description of the last cycle.
	Local *sdpinfo.Description

	// Remote is the answer applied in the last cycle.
	Remote *sdpinfo.Description
}

func New() *Session {
	return &Session{
		streams: map[string]*Stream{},
		byMedia: map[media.Transceiver]*Transceiver{},
	}
}

// Sync returns the records for the given engine transceivers in the same
// order, creating records for transceivers seen for the first time.
func (s *Session) Sync(transceivers []media.Transceiver) []*Transceiver {
	ret := make([]*Transceiver, 0, len(transceivers))

	for _, mt := range transceivers {
		ret = append(ret, s.Transceiver(mt))
	}

	return ret
}

// Transceiver returns the record for mt, creating it when needed.
func (s *Session) Transceiver(mt media.Transceiver) *Transceiver {
	if t, ok := s.byMedia[mt]; ok {
		return t
	}

	t := &Transceiver{Media: mt}

	s.byMedia[mt] = t
	s.transceivers = append(s.transceivers, t)

	return t
}

// Lookup returns the record for mt without creating one.
func (s *Session) Lookup(mt media.Transceiver) (*Transceiver, bool) {
	t, ok := s.byMedia[mt]

	return t, ok
}

// Transceivers returns all known records in creation order.
func (s *Session) Transceivers() []*Transceiver {
	return append([]*Transceiver(nil), s.transceivers...)
}

// MarkPending flags t and adds it to the pending set once.
func (s *Session) MarkPending(t *Transceiver) {
	t.Pending = true

	if !s.IsPending(t) {
		s.pending = append(s.pending, t)
	}
}

// IsPending reports whether t is in the pending set.
func (s *Session) IsPending(t *Transceiver) bool {
	for _, p := range s.pending {
		if p == t {
			return true
		}
	}

	return false
}

// TakePending empties the pending set and returns its previous contents in
// insertion order. The Pending flags are left untouched.
func (s *Session) TakePending() []*Transceiver {
	taken := s.pending
	s.pending = nil

	return taken
}

// PendingLen returns the size of the pending set.
func (s *Session) PendingLen() int {
	return len(s.pending)
}

func (s *Session) EnqueueAdd(req AddRequest) {
	s.adding.PushBack(req)
}

func (s *Session) EnqueueRemove(req RemoveRequest) {
	s.removing.PushBack(req)
}

// DrainAdding removes and returns all queued add requests in FIFO order.
func (s *Session) DrainAdding() []AddRequest {
	reqs := make([]AddRequest, 0, s.adding.Len())

	for s.adding.Len() > 0 {
		reqs = append(reqs, s.adding.PopFront().(AddRequest))
	}

	return reqs
}

// DrainRemoving removes and returns all queued remove requests in FIFO
// order.
func (s *Session) DrainRemoving() []RemoveRequest {
	reqs := make([]RemoveRequest, 0, s.removing.Len())

	for s.removing.Len() > 0 {
		reqs = append(reqs, s.removing.PopFront().(RemoveRequest))
	}

	return reqs
}

// HasQueued reports whether add or remove requests are waiting.
func (s *Session) HasQueued() bool {
	return s.adding.Len() > 0 || s.removing.Len() > 0
}

// Stream returns the stream with id.
func (s *Session) Stream(id string) (*Stream, bool) {
	stream, ok := s.streams[id]

	return stream, ok
}

// AddTrack adds track to the stream with streamID, creating the stream when
// it does not exist, and returns the stored track.
func (s *Session) AddTrack(streamID string, track sdpinfo.TrackInfo) *sdpinfo.TrackInfo {
	stream, ok := s.streams[streamID]
	if !ok {
		stream = &Stream{ID: streamID}
		s.streams[streamID] = stream
		s.streamOrder = append(s.streamOrder, streamID)
	}

	return stream.AddTrack(track)
}

// RemoveTrack removes a track and deletes its stream when it becomes empty.
func (s *Session) RemoveTrack(streamID, trackID string) bool {
	stream, ok := s.streams[streamID]
	if !ok {
		return false
	}

	removed := stream.RemoveTrack(trackID)

	if stream.Len() == 0 {
		delete(s.streams, streamID)

		for i, id := range s.streamOrder {
			if id == streamID {
				s.streamOrder = append(s.streamOrder[:i], s.streamOrder[i+1:]...)

				break
			}
		}
	}

	return removed
}

// Streams returns the streams in creation order.
func (s *Session) Streams() []*Stream {
	streams := make([]*Stream, 0, len(s.streamOrder))

	for _, id := range s.streamOrder {
		streams = append(streams, s.streams[id])
	}

	return streams
}
