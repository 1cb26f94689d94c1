// Package video receives a robot or camera WebRTC stream published through
// GStreamer's webrtcsink signalling and exposes it as grayscale frames.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/camera"
)

// ErrNoFrame is returned when no new frame arrived within FrameTimeout.
var ErrNoFrame = errors.New("video: no frame available")

// Config configures a WebRTC client.
type Config struct {
	SignallingURL string // ws://host:8443
	ProducerName  string // meta name of the producer, empty for the first

	// Decoded frame size
	Width  int
	Height int

	Equalize bool

	ConnectTimeout time.Duration
	FrameTimeout   time.Duration
	PLIInterval    time.Duration // keyframe request period, 0 disables
}

// DefaultConfig returns the configuration for a Reachy Mini style producer
// on host.
func DefaultConfig(host string) Config {
	return Config{
		SignallingURL:  fmt.Sprintf("ws://%s:8443", host),
		ProducerName:   "reachymini",
		Width:          640,
		Height:         480,
		Equalize:       true,
		ConnectTimeout: 15 * time.Second,
		FrameTimeout:   time.Second,
		PLIInterval:    3 * time.Second,
	}
}

// Client connects to a WebRTC video stream via GStreamer signalling.
type Client struct {
	cfg    Config
	logger *slog.Logger

	ws      *websocket.Conn
	pc      *webrtc.PeerConnection
	wsMutex sync.Mutex

	myPeerID   string
	producerID string

	sessionMu sync.Mutex
	sessionID string

	decoder    *Decoder
	trackReady chan struct{}

	packets atomic.Uint64
	units   atomic.Uint64
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// NewClient creates a new WebRTC video client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		logger:     log.Component("video"),
		trackReady: make(chan struct{}, 1),
	}
}

// Connect performs signalling, starts the decoder and waits for the video
// track.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	var err error
	c.ws, _, err = dialer.DialContext(ctx, c.cfg.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("signalling connect failed: %w", err)
	}

	msg, err := c.readMessage(10 * time.Second)
	if err != nil {
		return fmt.Errorf("welcome failed: %w", err)
	}
	if c.myPeerID, err = parseWelcome(msg); err != nil {
		return fmt.Errorf("welcome failed: %w", err)
	}
	c.logger.Debug("signalling welcome", "peer", c.myPeerID)

	if err := c.writeJSON(baseMessage{Type: msgList}); err != nil {
		return fmt.Errorf("list producers: %w", err)
	}
	if msg, err = c.readMessage(5 * time.Second); err != nil {
		return fmt.Errorf("list producers: %w", err)
	}
	if c.producerID, err = pickProducer(msg, c.cfg.ProducerName); err != nil {
		return fmt.Errorf("find producer failed: %w", err)
	}
	c.logger.Info("found producer", "id", c.producerID, "name", c.cfg.ProducerName)

	if c.decoder, err = NewDecoder(context.Background(), c.cfg.Width, c.cfg.Height); err != nil {
		return err
	}
	if err := c.createPeerConnection(); err != nil {
		return fmt.Errorf("peer connection failed: %w", err)
	}
	if err := c.writeJSON(baseMessage{Type: msgStartSession, PeerID: c.producerID}); err != nil {
		return fmt.Errorf("start session failed: %w", err)
	}

	c.wg.Add(1)
	go c.handleSignalling()

	select {
	case <-c.trackReady:
		c.logger.Info("video connected", "url", c.cfg.SignallingURL)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for video: %w", ctx.Err())
	}
}

func (c *Client) readMessage(timeout time.Duration) ([]byte, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	_, msg, err := c.ws.ReadMessage()
	_ = c.ws.SetReadDeadline(time.Time{})
	return msg, err
}

func (c *Client) writeJSON(v interface{}) error {
	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Client) session() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.sessionID
}

func (c *Client) createPeerConnection() error {
	var err error
	c.pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}

	// Receive-only video
	if _, err = c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info("got track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		if track.Codec().MimeType != webrtc.MimeTypeH264 {
			c.logger.Warn("unsupported video codec", "codec", track.Codec().MimeType)
			return
		}
		c.wg.Add(1)
		go c.handleVideoTrack(track)
	})

	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		session := c.session()
		if session == "" {
			return
		}
		if err := c.writeJSON(candidateMessage(session, candidate.ToJSON())); err != nil {
			c.logger.Warn("send ice candidate", "error", err)
		}
	})

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Info("connection state", "state", state.String())
	})
	return nil
}

func (c *Client) handleSignalling() {
	defer c.wg.Done()
	for !c.closed.Load() {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("signalling error", "error", err)
			}
			return
		}

		var peer peerMessage
		if err := json.Unmarshal(msg, &peer); err != nil {
			c.logger.Debug("bad signalling message", "error", err)
			continue
		}

		switch peer.Type {
		case msgSessionStarted:
			c.sessionMu.Lock()
			c.sessionID = peer.SessionID
			c.sessionMu.Unlock()
		case msgPeer:
			c.handlePeerMessage(&peer)
		case msgEndSession:
			c.logger.Info("session ended by producer")
			return
		}
	}
}

func (c *Client) handlePeerMessage(msg *peerMessage) {
	if offer, ok := msg.offer(); ok {
		if err := c.pc.SetRemoteDescription(offer); err != nil {
			c.logger.Error("set remote description", "error", err)
			return
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			c.logger.Error("create answer", "error", err)
			return
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			c.logger.Error("set local description", "error", err)
			return
		}
		if err := c.writeJSON(answerMessage(c.session(), answer)); err != nil {
			c.logger.Error("send answer", "error", err)
		}
	}

	if cand, ok := msg.candidate(); ok {
		if err := c.pc.AddICECandidate(cand); err != nil {
			c.logger.Debug("add ice candidate", "error", err)
		}
	}
}

func (c *Client) handleVideoTrack(track *webrtc.TrackRemote) {
	defer c.wg.Done()

	select {
	case c.trackReady <- struct{}{}:
	default:
	}

	var asm assembler
	lastPLI := time.Time{}
	for !c.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		c.packets.Add(1)

		if c.cfg.PLIInterval > 0 && time.Since(lastPLI) > c.cfg.PLIInterval {
			lastPLI = time.Now()
			_ = c.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
		}

		au := asm.Push(pkt)
		if len(au) == 0 {
			continue
		}
		c.units.Add(1)
		if err := c.decoder.Write(au); err != nil {
			if !c.closed.Load() {
				c.logger.Warn("decoder write failed", "error", err)
			}
			return
		}
	}
}

// Frame waits for the next decoded frame. It returns ErrNoFrame after
// FrameTimeout without a new frame.
func (c *Client) Frame(ctx context.Context) (*image.Gray, error) {
	if c.decoder == nil {
		return nil, ErrNoFrame
	}

	timer := time.NewTimer(c.cfg.FrameTimeout)
	defer timer.Stop()
	for {
		if img, ok := c.decoder.Latest(); ok {
			if c.cfg.Equalize {
				return camera.EqualizeGray(img)
			}
			return img, nil
		}
		select {
		case <-c.decoder.Ready():
		case <-c.decoder.Done():
			return nil, io.EOF
		case <-timer.C:
			return nil, ErrNoFrame
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Stats returns received RTP packets, assembled access units and decoded
// frames.
func (c *Client) Stats() (packets, units, frames uint64) {
	if c.decoder != nil {
		frames, _ = c.decoder.Decoded()
	}
	return c.packets.Load(), c.units.Load(), frames
}

// Close closes the WebRTC connection and the decoder.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if c.pc != nil {
		errs = append(errs, c.pc.Close())
	}
	if c.ws != nil {
		errs = append(errs, c.ws.Close())
	}
	c.wg.Wait()
	if c.decoder != nil {
		errs = append(errs, c.decoder.Close())
	}
	return errors.Join(errs...)
}
