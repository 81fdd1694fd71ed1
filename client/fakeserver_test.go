package client_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/peer-calls/mediaclient/client/message"
	"github.com/peer-calls/mediaclient/client/sdpinfo"
	"github.com/peer-calls/mediaclient/client/test"
	"github.com/peer-calls/mediaclient/client/transaction"
	"github.com/stretchr/testify/require"
)

func remoteParams() sdpinfo.RemoteParams {
	return sdpinfo.RemoteParams{
		ID:   "pc1",
		ICE:  sdpinfo.ICEInfo{Ufrag: "srv", Pwd: "srvpwd", Lite: true},
		DTLS: sdpinfo.DTLSInfo{Setup: "passive", Hash: "sha-256", Fingerprint: "11:22:33"},
		Candidates: []sdpinfo.CandidateInfo{{
			Foundation:  "1",
			ComponentID: 1,
			Transport:   "UDP",
			Priority:    33554431,
			Address:     "192.0.2.1",
			Port:        10000,
			Type:        "host",
		}},
		Capabilities: map[string]sdpinfo.Capability{
			"audio": {
				Codecs: []string{"opus"},
			},
			"video": {
				Codecs:        []string{"vp8", "vp9", "h264;packetization-mode=1"},
				RTX:           true,
				RTCPFeedbacks: []sdpinfo.RTCPFeedback{{ID: "nack"}, {ID: "nack", Params: []string{"pli"}}},
				Extensions:    []string{"urn:ietf:params:rtp-hdrext:sdes:mid"},
			},
		},
	}
}

func videoTrack(id string) sdpinfo.TrackInfo {
	return sdpinfo.TrackInfo{
		ID:    id,
		Media: "video",
		SSRCs: []uint32{11, 12},
		Groups: []sdpinfo.SourceGroup{{
			Semantics: "FID",
			SSRCs:     []uint32{11, 12},
		}},
	}
}

// reply is the answer of the fake server to a command. A nil reply leaves
// the command unanswered.
type reply struct {
	data  interface{}
	error bool
}

// fakeServer answers commands sent through a transaction manager
// synchronously from Send.
type fakeServer struct {
	t *testing.T

	mu       sync.Mutex
	fn       func(string)
	received []message.Frame
	handlers map[string]func(message.Frame) *reply
}

func newFakeServer(t *testing.T) (*fakeServer, *transaction.Manager) {
	t.Helper()

	s := &fakeServer{
		t:        t,
		handlers: map[string]func(message.Frame) *reply{},
	}

	s.handle(message.CommandCreate, func(message.Frame) *reply {
		return &reply{data: remoteParams()}
	})

	m := transaction.New(transaction.Params{
		Log:       test.NewLogger(),
		Transport: s,
	})

	t.Cleanup(m.Close)

	return s, m
}

func (s *fakeServer) handle(name string, fn func(message.Frame) *reply) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[name] = fn
}

func (s *fakeServer) Send(ctx context.Context, text string) error {
	frame, err := message.Parse(text)
	require.NoError(s.t, err)

	s.mu.Lock()
	s.received = append(s.received, frame)
	handler := s.handlers[frame.Name]
	s.mu.Unlock()

	if frame.Type != message.TypeCommand || handler == nil {
		return nil
	}

	r := handler(frame)
	if r == nil {
		return nil
	}

	data, err := message.EncodeData(r.data)
	require.NoError(s.t, err)

	answer := message.NewResponse(frame.TransactionID, data)
	if r.error {
		answer = message.NewError(frame.TransactionID, data)
	}

	s.deliver(answer)

	return nil
}

func (s *fakeServer) Subscribe(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fn = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.fn = nil
	}
}

func (s *fakeServer) deliver(frame message.Frame) {
	b, err := json.Marshal(frame)
	require.NoError(s.t, err)

	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()

	if fn != nil {
		fn(string(b))
	}
}

func (s *fakeServer) emit(name, namespace string, data interface{}) {
	raw, err := message.EncodeData(data)
	require.NoError(s.t, err)

	s.deliver(message.NewEvent(name, namespace, raw))
}

// frames returns the received frames with name.
func (s *fakeServer) frames(name string) []message.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ret []message.Frame

	for _, f := range s.received {
		if f.Name == name {
			ret = append(ret, f)
		}
	}

	return ret
}
