package video

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// Signalling message types of the GStreamer webrtcsink protocol.
const (
	msgWelcome        = "welcome"
	msgList           = "list"
	msgStartSession   = "startSession"
	msgSessionStarted = "sessionStarted"
	msgPeer           = "peer"
	msgEndSession     = "endSession"
)

type baseMessage struct {
	Type      string `json:"type"`
	PeerID    string `json:"peerId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type listMessage struct {
	Type      string     `json:"type"`
	Producers []producer `json:"producers"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

type peerMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	SDP       *sdpPayload `json:"sdp,omitempty"`
	ICE       *icePayload `json:"ice,omitempty"`
}

func parseWelcome(msg []byte) (string, error) {
	var welcome baseMessage
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return "", fmt.Errorf("decode welcome: %w", err)
	}
	if welcome.Type != msgWelcome {
		return "", fmt.Errorf("expected welcome, got %q", welcome.Type)
	}
	if welcome.PeerID == "" {
		return "", fmt.Errorf("welcome without peer id")
	}
	return welcome.PeerID, nil
}

// pickProducer returns the producer whose meta name matches name, or the
// first producer when name is empty.
func pickProducer(msg []byte, name string) (string, error) {
	var list listMessage
	if err := json.Unmarshal(msg, &list); err != nil {
		return "", fmt.Errorf("decode producer list: %w", err)
	}
	for _, p := range list.Producers {
		if name == "" || p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("producer %q not found in %d producers", name, len(list.Producers))
}

// offer extracts an SDP offer from a peer message.
func (m *peerMessage) offer() (webrtc.SessionDescription, bool) {
	if m.SDP == nil || m.SDP.Type != "offer" {
		return webrtc.SessionDescription{}, false
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP.SDP}, true
}

// candidate extracts a remote ICE candidate from a peer message.
func (m *peerMessage) candidate() (webrtc.ICECandidateInit, bool) {
	if m.ICE == nil || m.ICE.Candidate == "" {
		return webrtc.ICECandidateInit{}, false
	}
	return webrtc.ICECandidateInit{
		Candidate:     m.ICE.Candidate,
		SDPMid:        m.ICE.SDPMid,
		SDPMLineIndex: m.ICE.SDPMLineIndex,
	}, true
}

func answerMessage(session string, sdp webrtc.SessionDescription) peerMessage {
	return peerMessage{
		Type:      msgPeer,
		SessionID: session,
		SDP:       &sdpPayload{Type: sdp.Type.String(), SDP: sdp.SDP},
	}
}

func candidateMessage(session string, init webrtc.ICECandidateInit) peerMessage {
	return peerMessage{
		Type:      msgPeer,
		SessionID: session,
		ICE: &icePayload{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		},
	}
}
