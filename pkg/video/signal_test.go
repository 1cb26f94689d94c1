package video

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWelcome(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		want    string
		wantErr bool
	}{
		{"ok", `{"type":"welcome","peerId":"abc"}`, "abc", false},
		{"wrong type", `{"type":"list","peerId":"abc"}`, "", true},
		{"missing id", `{"type":"welcome"}`, "", true},
		{"not json", `hello`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWelcome([]byte(tt.msg))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseWelcome() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseWelcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPickProducer(t *testing.T) {
	msg := []byte(`{"type":"list","producers":[
		{"id":"p1","meta":{"name":"doorbell"}},
		{"id":"p2","meta":{"name":"reachymini"}}]}`)

	id, err := pickProducer(msg, "reachymini")
	require.NoError(t, err)
	assert.Equal(t, "p2", id)

	id, err = pickProducer(msg, "")
	require.NoError(t, err)
	assert.Equal(t, "p1", id)

	_, err = pickProducer(msg, "garage")
	assert.Error(t, err)
}

func TestPeerMessage(t *testing.T) {
	var offerMsg peerMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"peer","sessionId":"s","sdp":{"type":"offer","sdp":"v=0"}}`), &offerMsg))
	offer, ok := offerMsg.offer()
	require.True(t, ok)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Equal(t, "v=0", offer.SDP)
	_, ok = offerMsg.candidate()
	assert.False(t, ok)

	var iceMsg peerMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"peer","ice":{"candidate":"candidate:1","sdpMid":"0","sdpMLineIndex":0}}`), &iceMsg))
	cand, ok := iceMsg.candidate()
	require.True(t, ok)
	assert.Equal(t, "candidate:1", cand.Candidate)
	require.NotNil(t, cand.SDPMid)
	assert.Equal(t, "0", *cand.SDPMid)
	require.NotNil(t, cand.SDPMLineIndex)
	assert.Equal(t, uint16(0), *cand.SDPMLineIndex)
}

func TestAnswerMessage(t *testing.T) {
	msg := answerMessage("s1", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"peer","sessionId":"s1","sdp":{"type":"answer","sdp":"v=0"}}`, string(data))
}
