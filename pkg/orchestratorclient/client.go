// Package orchestratorclient implements the bidirectional control stream
// to the orchestrator described in SPEC_FULL.md §4.6. Grounded directly on
// the teacher's pkg/providers/tts/lokutor.go, which already speaks JSON
// frames over github.com/coder/websocket + its wsjson helper; the same
// idiom is reused here for the control stream in place of the original
// Python implementation's gRPC, since the contract itself
// ("bidirectional message stream") is transport-agnostic. Write
// serialization, feature coalescing, and the reconnect supervisor are
// grounded on original_source/gateway/gateway_control_client.py's
// _write_loop/_feature_loop/_reconnect_supervisor.
package orchestratorclient

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/ttspipeline"
)

const (
	minBackoff = 200 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// Client owns one session's control stream to the orchestrator.
type Client struct {
	addr      string
	sessionID string
	logger    gatewaysession.Logger

	// OnArmBargeIn, OnMicToSTT, OnStartTTS and OnStopTTS are wired by the
	// Session Controller; all may be nil (commands are then dropped).
	OnArmBargeIn func(guardMS, minRMS int)
	OnMicToSTT   func(enabled bool)
	OnStartTTS   func(text string)
	OnStopTTS    func()

	mu               sync.Mutex
	conn             *websocket.Conn
	closed           bool
	roomURLLast      string
	writeErrorLogged bool

	writeCh chan outboundEvent

	featureMu       sync.Mutex
	featureLatest   *float64
	featureLastSent *float64

	wg sync.WaitGroup
}

// New constructs a disconnected Client. addr is a host:port (no scheme);
// the control path is "/control" per SPEC_FULL.md §6.
func New(addr, sessionID string, logger gatewaysession.Logger) *Client {
	if logger == nil {
		logger = gatewaysession.NoOpLogger{}
	}
	return &Client{
		addr:      addr,
		sessionID: sessionID,
		logger:    logger,
		writeCh:   make(chan outboundEvent, 64),
	}
}

// Connect dials the control stream and starts the writer, receiver,
// feature, and reconnect-supervisor goroutines. It returns once the
// initial dial succeeds; subsequent reconnects happen in the background.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("orchestratorclient: dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(3)
	go c.writeLoop(ctx)
	go c.recvLoop(ctx, conn)
	go c.featureLoop(ctx)
	go c.reconnectSupervisor(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/control"}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close stops all background goroutines and closes the underlying
// connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
	return nil
}

func (c *Client) enqueue(ev outboundEvent) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}
	ev.SessionID = c.sessionID
	select {
	case c.writeCh <- ev:
		return true
	default:
		return false
	}
}

// SendSessionOpen announces the room URL for this session, and replays on
// reconnect.
func (c *Client) SendSessionOpen(roomURL string) {
	c.mu.Lock()
	c.roomURLLast = roomURL
	c.mu.Unlock()
	c.enqueue(outboundEvent{SessionOpen: &sessionOpenMsg{SessionID: c.sessionID, RoomURL: roomURL}})
}

// SetRMS implements vadmanager.FeatureSink: it only stores the latest
// value, the feature loop coalesces sends to ~10 Hz.
func (c *Client) SetRMS(rms float64) {
	c.featureMu.Lock()
	defer c.featureMu.Unlock()
	v := rms
	c.featureLatest = &v
}

// SendTranscriptInterim enqueues an interim transcript event.
func (c *Client) SendTranscriptInterim(utteranceID, text string) {
	c.enqueue(outboundEvent{TranscriptInterim: &transcriptMsg{UtteranceID: utteranceID, Text: text}})
}

// SendTranscriptFinal enqueues a final transcript event.
func (c *Client) SendTranscriptFinal(utteranceID, text string) {
	c.enqueue(outboundEvent{TranscriptFinal: &transcriptMsg{UtteranceID: utteranceID, Text: text}})
}

// SendTTSStarted implements ttspipeline.OrchestratorTTSSink.
func (c *Client) SendTTSStarted() {
	c.enqueue(outboundEvent{TTS: &ttsMsg{Type: "started"}})
}

// SendTTSFirstAudio implements ttspipeline.OrchestratorTTSSink.
func (c *Client) SendTTSFirstAudio(firstAudioMS int64) {
	ms := firstAudioMS
	c.enqueue(outboundEvent{TTS: &ttsMsg{Type: "first_audio", FirstAudioMS: &ms}})
}

// SendTTSStopped implements ttspipeline.OrchestratorTTSSink.
func (c *Client) SendTTSStopped(reason ttspipeline.StopReason, _ map[string]interface{}) {
	c.enqueue(outboundEvent{TTS: &ttsMsg{Type: "stopped", Reason: string(reason)}})
}

func (c *Client) writeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.writeCh:
			if !ok {
				return
			}
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				c.mu.Lock()
				if !c.writeErrorLogged {
					c.writeErrorLogged = true
					c.logger.Error("orchestrator_write_error", "session_id", c.sessionID, "err", err)
				}
				c.conn = nil
				c.mu.Unlock()
			}
		}
	}
}

func (c *Client) recvLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var cmd inboundCommand
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			c.logger.Info("orchestrator_stream_closed", "session_id", c.sessionID, "err", err)
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}
		c.dispatch(cmd)
	}
}

func (c *Client) dispatch(cmd inboundCommand) {
	switch {
	case cmd.ArmBargeIn != nil:
		if c.OnArmBargeIn != nil {
			c.OnArmBargeIn(cmd.ArmBargeIn.GuardMS, cmd.ArmBargeIn.MinRMS)
		}
	case cmd.StartMicSTT != nil:
		if c.OnMicToSTT != nil {
			c.OnMicToSTT(true)
		}
	case cmd.StopMicSTT != nil:
		if c.OnMicToSTT != nil {
			c.OnMicToSTT(false)
		}
	case cmd.StartTTS != nil:
		if c.OnStartTTS != nil {
			c.OnStartTTS(cmd.StartTTS.Text)
		}
	case cmd.StopTTS != nil:
		if c.OnStopTTS != nil {
			c.OnStopTTS()
		}
	}
}

// featureLoop sends the coalesced RMS value at ~10Hz, only when it moved
// at least 1.0 since the last send.
func (c *Client) featureLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.featureMu.Lock()
			v := c.featureLatest
			last := c.featureLastSent
			if v != nil && (last == nil || math.Abs(*v-*last) >= 1.0) {
				c.featureLastSent = v
				c.featureMu.Unlock()
				c.enqueue(outboundEvent{Feature: &featureMsg{RMS: *v}})
				continue
			}
			c.featureMu.Unlock()
		}
	}
}

// reconnectSupervisor keeps the stream connected, replaying session_open
// after a successful reconnect. Backoff starts at 200ms, doubles to a 5s
// cap, and resets whenever the connection is healthy.
func (c *Client) reconnectSupervisor(ctx context.Context) {
	defer c.wg.Done()
	backoff := minBackoff
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			closed := c.closed
			alive := c.conn != nil
			c.mu.Unlock()
			if closed {
				return
			}
			if alive {
				backoff = minBackoff
				continue
			}
			conn, err := c.dial(ctx)
			if err != nil {
				c.logger.Warn("orchestrator_reconnect_failed", "session_id", c.sessionID, "err", err, "backoff_ms", backoff.Milliseconds())
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			c.mu.Lock()
			c.conn = conn
			c.writeErrorLogged = false
			roomURL := c.roomURLLast
			c.mu.Unlock()
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.recvLoop(ctx, conn)
			}()
			if roomURL != "" {
				c.enqueue(outboundEvent{SessionOpen: &sessionOpenMsg{SessionID: c.sessionID, RoomURL: roomURL}})
			}
			c.logger.Info("orchestrator_reconnected", "session_id", c.sessionID)
			backoff = minBackoff
		}
	}
}
