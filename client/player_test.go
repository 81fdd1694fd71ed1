package client_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/peer-calls/mediaclient/client"
	"github.com/peer-calls/mediaclient/client/media/mediatest"
	"github.com/peer-calls/mediaclient/client/message"
	"github.com/peer-calls/mediaclient/client/multierr"
	"github.com/peer-calls/mediaclient/client/test"
	"github.com/peer-calls/mediaclient/client/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlayer(t *testing.T, m *transaction.Manager, engine *mediatest.Engine) *client.Player {
	t.Helper()

	return client.NewPlayer(client.PlayerParams{
		Log:        test.NewLogger(),
		Manager:    m,
		Engine:     engine,
		Options:    options(),
		CameraID:   "cam1",
		InstanceID: "i1",
	})
}

func decodeFrame(t *testing.T, f message.Frame, v interface{}) {
	t.Helper()

	require.NoError(t, json.Unmarshal(f.Data, v))
}

func TestPlayer(t *testing.T) {
	ctx := context.Background()
	fake, m := newFakeServer(t)

	fake.handle(message.CommandView, func(f message.Frame) *reply {
		fake.emit(message.EventAddedTrack, pcNamespace, message.AddedTrack{
			StreamID: "s1",
			Track:    videoTrack("cam1"),
		})

		return &reply{data: message.ViewResponse{ViewerID: "v1"}}
	})

	fake.handle(message.CommandUnview, func(f message.Frame) *reply {
		return &reply{data: map[string]bool{"ok": true}}
	})

	engine := mediatest.NewEngine()
	p := newPlayer(t, m, engine)

	cameraTracks := make(chan client.TrackEvent, 1)

	p.OnCameraTrack(func(e client.TrackEvent) {
		cameraTracks <- e
	})

	require.NoError(t, p.Start(ctx))
	assert.Equal(t, "v1", p.ViewerID())

	views := fake.frames(message.CommandView)
	require.Len(t, views, 1)
	assert.Equal(t, "", views[0].Namespace)

	var view message.View
	decodeFrame(t, views[0], &view)
	assert.Equal(t, message.View{ID: "cam1", Instance: "i1", PCID: "pc1"}, view)

	pc := p.PeerConnection()
	require.NotNil(t, pc)

	negotiated(t, engine, pc, 2)

	_, ok := p.CameraTrack()
	assert.False(t, ok)

	_, ok = pc.HandleTrack(transceiverOf(t, pc, "cam1"))
	require.True(t, ok)

	track, ok := p.CameraTrack()
	require.True(t, ok)
	assert.Equal(t, "cam1", track.TrackID)
	assert.Equal(t, "cam1", (<-cameraTracks).TrackID)

	require.NoError(t, p.Pause(ctx))

	unviews := fake.frames(message.CommandUnview)
	require.Len(t, unviews, 1)

	var unview message.Unview
	decodeFrame(t, unviews[0], &unview)
	assert.Equal(t, message.Unview{ID: "cam1", Instance: "i1"}, unview)

	fake.handle(message.CommandView, func(f message.Frame) *reply {
		return &reply{data: message.ViewResponse{ViewerID: "v2"}}
	})

	require.NoError(t, p.Resume(ctx))
	assert.Equal(t, "v2", p.ViewerID())
	assert.Len(t, fake.frames(message.CommandView), 2)

	require.NoError(t, p.Stop(ctx))
	assert.Len(t, fake.frames(message.CommandUnview), 2)

	select {
	case <-pc.Done():
	default:
		t.Fatal("peer connection should be closed")
	}

	require.NoError(t, p.Stop(ctx))
	assert.True(t, multierr.Is(p.Start(ctx), client.ErrStopped))
}

func TestPlayer_ViewRejected(t *testing.T) {
	ctx := context.Background()
	fake, m := newFakeServer(t)

	fake.handle(message.CommandView, func(f message.Frame) *reply {
		return &reply{data: message.ViewResponse{Error: "no such camera"}}
	})

	p := newPlayer(t, m, mediatest.NewEngine())

	err := p.Start(ctx)
	assert.True(t, multierr.Is(err, client.ErrViewRejected))
	assert.Contains(t, err.Error(), "no such camera")
	assert.Equal(t, "", p.ViewerID())

	require.NoError(t, p.Stop(ctx))
}

func TestPlayer_ResumeNotStarted(t *testing.T) {
	_, m := newFakeServer(t)

	p := newPlayer(t, m, mediatest.NewEngine())

	err := p.Resume(context.Background())
	assert.True(t, multierr.Is(err, client.ErrNotStarted))
}
