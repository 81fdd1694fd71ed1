// Package wrtc adapts pion peer connections to the media engine used by the
// negotiator.
package wrtc

import (
	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/peer-calls/mediaclient/client/pionlogger"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

type Config struct {
	ICEServers []ICEServer `yaml:"ice_servers"`

	// DisableInterceptors skips registering NACK, RTCP report and TWCC
	// interceptors.
	DisableInterceptors bool `yaml:"disable_interceptors"`
}

type API struct {
	log    logger.Logger
	config Config
	api    *webrtc.API
}

// NewAPI creates a pion API with the default codecs registered.
func NewAPI(log logger.Logger, config Config) (*API, error) {
	log = log.WithNamespaceAppended("wrtc")

	mediaEngine := &webrtc.MediaEngine{}

	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, errors.Annotate(err, "register default codecs")
	}

	interceptorRegistry := &interceptor.Registry{}

	if !config.DisableInterceptors {
		if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
			return nil, errors.Annotate(err, "register default interceptors")
		}
	}

	settingEngine := webrtc.SettingEngine{
		LoggerFactory: pionlogger.NewFactory(log),
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	return &API{
		log:    log,
		config: config,
		api:    api,
	}, nil
}

func (a *API) iceServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(a.config.ICEServers))

	for _, s := range a.config.ICEServers {
		var c webrtc.ICECredentialType
		if s.Username != "" && s.Credential != "" {
			c = webrtc.ICECredentialTypePassword
		}

		servers = append(servers, webrtc.ICEServer{
			URLs:           s.URLs,
			CredentialType: c,
			Username:       s.Username,
			Credential:     s.Credential,
		})
	}

	return servers
}

// NewEngine creates a new peer connection.
func (a *API) NewEngine() (*Engine, error) {
	pc, err := a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:    a.iceServers(),
		BundlePolicy:  webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy: webrtc.RTCPMuxPolicyRequire,
	})
	if err != nil {
		return nil, errors.Annotate(err, "new peer connection")
	}

	return newEngine(a.log, pc), nil
}
