package message_test

import (
	"encoding/json"
	"testing"

	"github.com/peer-calls/mediaclient/client/message"
	"github.com/peer-calls/mediaclient/client/multierr"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePeerEvent(t *testing.T) {
	t.Parallel()

	e, err := message.DecodePeerEvent(message.EventAddedTrack, json.RawMessage(
		`{"streamId":"s1","track":{"id":"cam","media":"video","ssrcs":[1,2]}}`,
	))
	require.NoError(t, err)
	require.NotNil(t, e.AddedTrack)
	assert.Equal(t, message.AddedTrack{
		StreamID: "s1",
		Track:    sdpinfo.TrackInfo{ID: "cam", Media: "video", SSRCs: []uint32{1, 2}},
	}, *e.AddedTrack)

	e, err = message.DecodePeerEvent(message.EventRemovedTrack, json.RawMessage(`{"streamId":"s1","trackId":"cam"}`))
	require.NoError(t, err)
	assert.Equal(t, &message.RemovedTrack{StreamID: "s1", TrackID: "cam"}, e.RemovedTrack)

	e, err = message.DecodePeerEvent(message.EventStopped, nil)
	require.NoError(t, err)
	assert.NotNil(t, e.Stopped)
}

func TestDecodePeerEvent_Errors(t *testing.T) {
	t.Parallel()

	_, err := message.DecodePeerEvent("bogus", nil)
	assert.True(t, multierr.Is(err, message.ErrUnknownEventName))

	_, err = message.DecodePeerEvent(message.EventAddedTrack, nil)
	assert.True(t, multierr.Is(err, message.ErrBadFrame))

	_, err = message.DecodePeerEvent(message.EventRemovedTrack, json.RawMessage(`[`))
	assert.Error(t, err)
}
