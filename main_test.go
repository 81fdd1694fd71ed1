package main

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/peer-calls/mediaclient/client/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartMissingConfig(t *testing.T) {
	prefix := "MEDIACLIENT_"
	defer test.UnsetEnvPrefix(prefix)
	log := test.NewLogger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := start(ctx, log, []string{"view", "-c", "/missing/file.yml", "--camera", "cam1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestStartMissingCamera(t *testing.T) {
	prefix := "MEDIACLIENT_"
	defer test.UnsetEnvPrefix(prefix)
	log := test.NewLogger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := start(ctx, log, []string{"view"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--camera is required")
}

func TestStartDialError(t *testing.T) {
	prefix := "MEDIACLIENT_"
	defer test.UnsetEnvPrefix(prefix)

	l, err := net.ListenTCP("tcp", &net.TCPAddr{
		IP:   net.ParseIP("127.0.0.1"),
		Port: 0,
	})
	require.NoError(t, err, "listener")
	addr := l.Addr().String()
	l.Close()

	os.Setenv(prefix+"SERVER_URL", "ws://"+addr)
	log := test.NewLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = start(ctx, log, []string{"view", "--camera", "cam1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial ws://"+addr)
}

func TestStartVersion(t *testing.T) {
	log := test.NewLogger()

	err := start(context.Background(), log, []string{"version"})
	assert.NoError(t, err)
}
