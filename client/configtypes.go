package client

import (
	"time"

	"github.com/peer-calls/mediaclient/client/wrtc"
)

type ServerConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Insecure    bool   `yaml:"insecure"`
	Subprotocol string `yaml:"subprotocol"`
}

type NegotiationConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxFollowUps    int           `yaml:"max_follow_ups"`
}

type PeerConnectionConfig struct {
	StrictW3C       bool              `yaml:"strict_w3c"`
	ForceSDPMunging bool              `yaml:"force_sdp_munging"`
	Negotiation     NegotiationConfig `yaml:"negotiation"`
}

type PrometheusConfig struct {
	BindAddr    string `yaml:"bind_addr"`
	AccessToken string `yaml:"access_token"`
}

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	PeerConnection PeerConnectionConfig `yaml:"peer_connection"`
	WebRTC         wrtc.Config          `yaml:"webrtc"`
	Prometheus     PrometheusConfig     `yaml:"prometheus"`
}

// Options returns the peer connection options of the configuration.
func (c Config) Options() Options {
	pcc := c.PeerConnection

	return Options{
		StrictW3C:       pcc.StrictW3C,
		ForceSDPMunging: pcc.ForceSDPMunging,
		NewBackOff:      NegotiationBackOff(pcc.Negotiation.InitialInterval, pcc.Negotiation.MaxFollowUps),
	}
}
