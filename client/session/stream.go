package session

import "github.com/peer-calls/mediaclient/client/sdpinfo"

// Stream is a named group of remote tracks.
type Stream struct {
	ID     string
	tracks []*sdpinfo.TrackInfo
}

// AddTrack stores a copy of track, replacing a track with the same id.
func (s *Stream) AddTrack(track sdpinfo.TrackInfo) *sdpinfo.TrackInfo {
	stored := &track

	for i, t := range s.tracks {
		if t.ID == track.ID {
			s.tracks[i] = stored

			return stored
		}
	}

	s.tracks = append(s.tracks, stored)

	return stored
}

func (s *Stream) Track(id string) (*sdpinfo.TrackInfo, bool) {
	for _, t := range s.tracks {
		if t.ID == id {
			return t, true
		}
	}

	return nil, false
}

func (s *Stream) RemoveTrack(id string) bool {
	for i, t := range s.tracks {
		if t.ID == id {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)

			return true
		}
	}

	return false
}

func (s *Stream) Len() int {
	return len(s.tracks)
}

// Tracks returns the tracks in insertion order.
func (s *Stream) Tracks() []*sdpinfo.TrackInfo {
	return append([]*sdpinfo.TrackInfo(nil), s.tracks...)
}

// NegotiatedInfo returns the stream with only the tracks that have been
// assigned a media id.
func (s *Stream) NegotiatedInfo() sdpinfo.StreamInfo {
	info := sdpinfo.StreamInfo{ID: s.ID}

	for _, t := range s.tracks {
		if t.MediaID != "" {
			info.Tracks = append(info.Tracks, *t)
		}
	}

	return info
}
