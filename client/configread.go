package client

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/negotiator"
	"github.com/peer-calls/mediaclient/client/wrtc"
	"github.com/peer-calls/mediaclient/client/ws"
	"gopkg.in/yaml.v2"
)

func ReadConfigFile(filename string, c *Config) (err error) {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Annotatef(err, "read config file: %s", filename)
	}

	defer f.Close()

	err = ReadConfigYAML(f, c)

	return errors.Annotatef(err, "read yaml config: %s", filename)
}

func ReadConfigFiles(filenames []string, c *Config) (err error) {
	for _, filename := range filenames {
		err = ReadConfigFile(filename, c)
		if err != nil {
			return errors.Trace(err)
		}
	}

	return nil
}

func InitConfig(c *Config) {
	c.Server.URL = "ws://localhost:8000"
	c.Server.Subprotocol = ws.DefaultSubprotocol
	c.PeerConnection.Negotiation.InitialInterval = 5 * time.Millisecond
	c.PeerConnection.Negotiation.MaxFollowUps = negotiator.DefaultMaxFollowUps
	c.WebRTC.ICEServers = []wrtc.ICEServer{{
		URLs: []string{"stun:stun.l.google.com:19302"},
	}}
}

// ReadConfig reads the configuration from the files in order and applies
// environment overrides with prefix on top.
func ReadConfig(prefix string, filenames []string) (c Config, err error) {
	InitConfig(&c)
	err = ReadConfigFiles(filenames, &c)
	ReadConfigFromEnv(prefix, &c)

	return c, errors.Trace(err)
}

func ReadConfigYAML(reader io.Reader, c *Config) error {
	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(c); err != nil {
		return errors.Annotatef(err, "decode yaml")
	}

	return nil
}

func ReadConfigFromEnv(prefix string, c *Config) {
	setEnvString(&c.Server.URL, prefix+"SERVER_URL")
	setEnvString(&c.Server.Token, prefix+"SERVER_TOKEN")
	setEnvBool(&c.Server.Insecure, prefix+"SERVER_INSECURE")
	setEnvString(&c.Server.Subprotocol, prefix+"SERVER_SUBPROTOCOL")

	setEnvBool(&c.PeerConnection.StrictW3C, prefix+"PEER_CONNECTION_STRICT_W3C")
	setEnvBool(&c.PeerConnection.ForceSDPMunging, prefix+"PEER_CONNECTION_FORCE_SDP_MUNGING")
	setEnvDuration(&c.PeerConnection.Negotiation.InitialInterval, prefix+"PEER_CONNECTION_NEGOTIATION_INITIAL_INTERVAL")
	setEnvInt(&c.PeerConnection.Negotiation.MaxFollowUps, prefix+"PEER_CONNECTION_NEGOTIATION_MAX_FOLLOW_UPS")

	if value, ok := os.LookupEnv(prefix + "ICE_SERVER_URLS"); ok {
		// Do not use the default servers, even if value is empty.
		c.WebRTC.ICEServers = make([]wrtc.ICEServer, 0, 1)

		var ice wrtc.ICEServer

		setSlice(&ice.URLs, value)

		if len(ice.URLs) > 0 {
			setEnvString(&ice.Username, prefix+"ICE_SERVER_USERNAME")
			setEnvString(&ice.Credential, prefix+"ICE_SERVER_CREDENTIAL")
			c.WebRTC.ICEServers = append(c.WebRTC.ICEServers, ice)
		}
	}

	setEnvBool(&c.WebRTC.DisableInterceptors, prefix+"WEBRTC_DISABLE_INTERCEPTORS")

	setEnvString(&c.Prometheus.BindAddr, prefix+"PROMETHEUS_BIND_ADDR")
	setEnvString(&c.Prometheus.AccessToken, prefix+"PROMETHEUS_ACCESS_TOKEN")
}

func setSlice(dest *[]string, value string) {
	for _, v := range strings.Split(value, ",") {
		if v != "" {
			*dest = append(*dest, v)
		}
	}
}

func setEnvString(dest *string, name string) {
	value := os.Getenv(name)
	if value != "" {
		*dest = value
	}
}

func setEnvInt(dest *int, name string) {
	value, err := strconv.Atoi(os.Getenv(name))
	if err == nil {
		*dest = value
	}
}

func setEnvDuration(dest *time.Duration, name string) {
	value, err := time.ParseDuration(os.Getenv(name))
	if err == nil {
		*dest = value
	}
}

func setEnvBool(dest *bool, name string) {
	// Only set when explicitly true or false so that an unset variable does
	// not reset the value read from files.
	switch os.Getenv(name) {
	case "true":
		*dest = true
	case "false":
		*dest = false
	}
}

// DialParams returns the parameters for connecting to the server.
func (c Config) DialParams() ws.DialParams {
	params := ws.DialParams{
		URL:      c.Server.URL,
		Token:    c.Server.Token,
		Insecure: c.Server.Insecure,
	}

	if c.Server.Subprotocol != "" {
		params.Subprotocols = []string{c.Server.Subprotocol}
	}

	return params
}
