package negotiation

import (
	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServers are used when no STUN servers are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config controls how peer connections are created.
type Config struct {
	STUNServers  []string
	TURNServers  []string
	TURNUsername string
	TURNPassword string

	// ForceRelay restricts ICE to TURN relay candidates.
	ForceRelay bool

	// IncludeLoopback gathers loopback candidates, for peers on one machine.
	IncludeLoopback bool
}

// Validate checks that the configuration can produce a working connection.
func (c Config) Validate() error {
	if c.ForceRelay && len(c.TURNServers) == 0 {
		return ErrRelayWithoutTURN
	}
	return nil
}

func (c Config) iceServers() []webrtc.ICEServer {
	stun := c.STUNServers
	if stun == nil {
		stun = DefaultSTUNServers
	}

	var servers []webrtc.ICEServer
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if len(c.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TURNServers,
			Username:   c.TURNUsername,
			Credential: c.TURNPassword,
		})
	}
	return servers
}

func (c Config) policy() webrtc.ICETransportPolicy {
	if c.ForceRelay && len(c.TURNServers) > 0 {
		return webrtc.ICETransportPolicyRelay
	}
	return webrtc.ICETransportPolicyAll
}

func (c Config) newPeerConnection() (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, NewError("register codecs", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if c.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         c.iceServers(),
		ICETransportPolicy: c.policy(),
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}
