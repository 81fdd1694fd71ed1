package client_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client"
	"github.com/peer-calls/mediaclient/client/media"
	"github.com/peer-calls/mediaclient/client/media/mediatest"
	"github.com/peer-calls/mediaclient/client/message"
	"github.com/peer-calls/mediaclient/client/multierr"
	"github.com/peer-calls/mediaclient/client/negotiator"
	"github.com/peer-calls/mediaclient/client/test"
	"github.com/peer-calls/mediaclient/client/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pcNamespace = "medooze::pc::pc1"

func options() client.Options {
	return client.Options{
		NewBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 4)
		},
	}
}

func newMediaServer(t *testing.T, m *transaction.Manager) *client.MediaServer {
	t.Helper()

	s := client.NewMediaServer(client.MediaServerParams{
		Log:     test.NewLogger(),
		Manager: m,
	})

	t.Cleanup(s.Stop)

	return s
}

func createPeerConnection(t *testing.T) (*fakeServer, *mediatest.Engine, *client.PeerConnection) {
	t.Helper()

	fake, m := newFakeServer(t)
	engine := mediatest.NewEngine()

	pc, err := newMediaServer(t, m).CreatePeerConnection(context.Background(), engine, options())
	require.NoError(t, err)

	t.Cleanup(pc.Close)

	return fake, engine, pc
}

// negotiated waits until count answers have been applied and the
// negotiator is idle.
func negotiated(t *testing.T, engine *mediatest.Engine, pc *client.PeerConnection, count int) {
	t.Helper()

	assert.Eventually(t, func() bool {
		return engine.RemoteDescriptionCount() == count &&
			pc.Negotiator().State() == negotiator.StateIdle
	}, 5*time.Second, 5*time.Millisecond)
}

func transceiverOf(t *testing.T, pc *client.PeerConnection, trackID string) media.Transceiver {
	t.Helper()

	for _, rec := range pc.Negotiator().Transceivers() {
		if rec.TrackID == trackID {
			return rec.Media
		}
	}

	t.Fatalf("no transceiver for track %s", trackID)

	return nil
}

func TestMediaServer_CreatePeerConnection(t *testing.T) {
	fake, engine, pc := createPeerConnection(t)

	assert.Equal(t, "pc1", pc.ID())
	assert.Equal(t, 1, engine.RemoteDescriptionCount())

	creates := fake.frames(message.CommandCreate)
	require.Len(t, creates, 1)
	assert.Equal(t, client.Namespace, creates[0].Namespace)

	var info struct {
		Medias []struct {
			Type      string `json:"type"`
			Direction string `json:"direction"`
		} `json:"medias"`
	}

	require.NoError(t, json.Unmarshal(creates[0].Data, &info))
	require.Len(t, info.Medias, 1)
	assert.Equal(t, "video", info.Medias[0].Type)

	transceivers := engine.Transceivers()
	require.Len(t, transceivers, 1)
	assert.Equal(t, media.DirectionInactive, transceivers[0].Direction())
}

func TestMediaServer_CreateRejected(t *testing.T) {
	fake, m := newFakeServer(t)

	fake.handle(message.CommandCreate, func(message.Frame) *reply {
		return &reply{data: "no capacity", error: true}
	})

	engine := mediatest.NewEngine()

	_, err := newMediaServer(t, m).CreatePeerConnection(context.Background(), engine, options())
	require.Error(t, err)

	remoteErr, ok := errors.Cause(err).(*transaction.RemoteError)
	require.True(t, ok, "expected remote error, got: %v", err)
	assert.JSONEq(t, `"no capacity"`, string(remoteErr.Data))

	_, err = engine.CreateOffer(context.Background())
	assert.True(t, multierr.Is(err, mediatest.ErrClosed), "engine should be closed")
}

func TestMediaServer_Stopped(t *testing.T) {
	fake, m := newFakeServer(t)
	s := newMediaServer(t, m)

	fake.emit(message.EventStopped, client.Namespace, nil)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("media server not stopped")
	}

	_, err := s.CreatePeerConnection(context.Background(), mediatest.NewEngine(), options())
	assert.True(t, multierr.Is(err, client.ErrStopped))
}

func TestPeerConnection_ServerTracks(t *testing.T) {
	fake, engine, pc := createPeerConnection(t)

	var (
		mu            sync.Mutex
		tracks, ended []client.TrackEvent
	)

	pc.OnTrack(func(e client.TrackEvent) {
		mu.Lock()
		defer mu.Unlock()

		tracks = append(tracks, e)
	})

	pc.OnTrackEnded(func(e client.TrackEvent) {
		mu.Lock()
		defer mu.Unlock()

		ended = append(ended, e)
	})

	fake.emit(message.EventAddedTrack, pcNamespace, message.AddedTrack{
		StreamID: "s1",
		Track:    videoTrack("cam1"),
	})

	negotiated(t, engine, pc, 2)

	streams := pc.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "s1", streams[0].ID)

	mt := transceiverOf(t, pc, "cam1")
	assert.Equal(t, media.DirectionRecvOnly, mt.Direction())

	event, ok := pc.HandleTrack(mt)
	require.True(t, ok)
	assert.Equal(t, "s1", event.StreamID)
	assert.Equal(t, "cam1", event.TrackID)

	fake.emit(message.EventRemovedTrack, pcNamespace, message.RemovedTrack{
		StreamID: "s1",
		TrackID:  "cam1",
	})

	negotiated(t, engine, pc, 3)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, tracks, 1)
	assert.Equal(t, "cam1", tracks[0].TrackID)
	require.Len(t, ended, 1)
	assert.Equal(t, "cam1", ended[0].TrackID)
	assert.Equal(t, media.DirectionInactive, mt.Direction())
	assert.Empty(t, pc.Streams())
}

func TestPeerConnection_BadEvent(t *testing.T) {
	fake, engine, pc := createPeerConnection(t)

	fake.emit(message.EventAddedTrack, pcNamespace, nil)
	fake.emit("unknown", pcNamespace, map[string]int{"a": 1})

	assert.Equal(t, 1, engine.RemoteDescriptionCount())
	assert.Empty(t, pc.Streams())
}

func TestPeerConnection_AddRemoveTrack(t *testing.T) {
	ctx := context.Background()
	fake, engine, pc := createPeerConnection(t)

	mt, err := pc.AddTrack(ctx, mediatest.NewTrack("video1", "local"), negotiator.SendParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, engine.RemoteDescriptionCount())

	added := fake.frames(message.EventAddedTrack)
	require.Len(t, added, 1)
	assert.Equal(t, pcNamespace, added[0].Namespace)

	var addedTrack message.AddedTrack
	require.NoError(t, json.Unmarshal(added[0].Data, &addedTrack))
	assert.Equal(t, "local", addedTrack.StreamID)
	assert.Equal(t, "video1", addedTrack.Track.ID)

	require.NoError(t, pc.RemoveTrack(ctx, mt))
	assert.Equal(t, 3, engine.RemoteDescriptionCount())

	removed := fake.frames(message.EventRemovedTrack)
	require.Len(t, removed, 1)

	var removedTrack message.RemovedTrack
	require.NoError(t, json.Unmarshal(removed[0].Data, &removedTrack))
	assert.Equal(t, message.RemovedTrack{StreamID: "local", TrackID: "video1"}, removedTrack)
}

func TestPeerConnection_Stopped(t *testing.T) {
	fake, engine, pc := createPeerConnection(t)

	fake.emit(message.EventStopped, pcNamespace, nil)

	select {
	case <-pc.Done():
	case <-time.After(time.Second):
		t.Fatal("peer connection not closed")
	}

	_, err := engine.CreateOffer(context.Background())
	assert.True(t, multierr.Is(err, mediatest.ErrClosed))

	err = pc.Negotiate(context.Background())
	assert.True(t, multierr.Is(err, negotiator.ErrClosed))

	// Events after close are not handled by the closed namespace.
	fake.emit(message.EventAddedTrack, pcNamespace, message.AddedTrack{
		StreamID: "s1",
		Track:    videoTrack("cam1"),
	})

	assert.Empty(t, pc.Streams())
}
