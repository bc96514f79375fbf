package negotiation

import (
	"github.com/pion/webrtc/v4"

	"github.com/deepakpathik/deskbridge/internal/signaling"
)

// ToWireDescription converts a pion description for the relay.
func ToWireDescription(d *webrtc.SessionDescription) signaling.SessionDescription {
	return signaling.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

// FromWireDescription converts a relayed description for pion.
func FromWireDescription(d signaling.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

// ToWireCandidate converts a local candidate for the relay.
func ToWireCandidate(c webrtc.ICECandidateInit) signaling.ICECandidate {
	return signaling.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// FromWireCandidate converts a relayed candidate for pion.
func FromWireCandidate(c signaling.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
