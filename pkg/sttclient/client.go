// Package sttclient implements the STT sidecar connection described in
// SPEC_FULL.md §4.7, supplemented from
// original_source/gateway/stt_sidecar_client.py since the distilled spec
// only names the wire contract, not the client's internal structure. The
// original speaks gRPC over a UNIX domain socket; this client keeps the
// UNIX-socket-by-default transport and the single-writer-mutex discipline
// but speaks newline-delimited JSON frames per SPEC_FULL.md §4.7/§6,
// grounded on the Orchestrator Control Client's single-writer-goroutine
// idiom for the serialization shape.
package sttclient

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
)

// InterimSink receives interim transcripts, implemented by the VAD Manager
// (dual-signal gating state). Final transcripts do not reach it; both
// interim and final transcripts are forwarded to the orchestrator by this
// client through its TranscriptForwarder.
type InterimSink interface {
	SetInterim(text string)
}

// TranscriptForwarder mirrors transcripts onward to the orchestrator.
type TranscriptForwarder interface {
	SendTranscriptInterim(utteranceID, text string)
	SendTranscriptFinal(utteranceID, text string)
}

type startFrame struct {
	Type            string `json:"type"`
	SessionID       string `json:"session_id"`
	UtteranceID     string `json:"utterance_id"`
	Language        string `json:"language"`
	SampleRate      int    `json:"sample_rate"`
	ProtocolVersion string `json:"protocol_version"`
}

type audioFrame struct {
	Type       string `json:"type"`
	PCM16k     []byte `json:"pcm16k"`
	DurationMS int    `json:"duration_ms"`
}

type drainFrame struct {
	Type string `json:"type"`
}

type responseFrame struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
	EnumCode    int    `json:"enum_code"`
	Message     string `json:"message"`
}

// Client owns one session's connection to the STT sidecar.
type Client struct {
	sessionID string
	addr      string
	logger    gatewaysession.Logger

	interim    InterimSink
	forwarder  TranscriptForwarder

	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder

	BytesSent  int
	FramesSent int
}

// New constructs a Client. addr is either a filesystem path (UNIX domain
// socket, the default) or a "host:port" string (TCP fallback), matching
// STT_ADDR's dual meaning in SPEC_FULL.md §6.
func New(addr, sessionID string, interim InterimSink, forwarder TranscriptForwarder, logger gatewaysession.Logger) *Client {
	if logger == nil {
		logger = gatewaysession.NoOpLogger{}
	}
	return &Client{
		addr:      addr,
		sessionID: sessionID,
		interim:   interim,
		forwarder: forwarder,
		logger:    logger,
	}
}

func isTCPAddr(addr string) bool {
	_, _, err := net.SplitHostPort(addr)
	return err == nil && strings.Contains(addr, ":")
}

// Connect dials the sidecar and starts the background receive loop.
func (c *Client) Connect() error {
	network := "unix"
	if isTCPAddr(c.addr) {
		network = "tcp"
	}
	conn, err := net.Dial(network, c.addr)
	if err != nil {
		return fmt.Errorf("sttclient: dial %s %s: %w", network, c.addr, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.mu.Unlock()

	go c.recvLoop(conn)
	c.logger.Info("stt_connected", "session_id", c.sessionID)
	return nil
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc == nil {
		return errors.New("sttclient: not connected")
	}
	return c.enc.Encode(v)
}

// BeginUtterance implements vadmanager.STTSink.
func (c *Client) BeginUtterance(utteranceID string) error {
	err := c.write(startFrame{
		Type:            "start",
		SessionID:       c.sessionID,
		UtteranceID:     utteranceID,
		Language:        "en-US",
		SampleRate:      16000,
		ProtocolVersion: "1",
	})
	if err == nil {
		c.logger.Info("stt_utterance_start", "session_id", c.sessionID, "utterance_id", utteranceID)
	}
	return err
}

// SendAudio implements vadmanager.STTSink.
func (c *Client) SendAudio(pcm16k []byte) error {
	if len(pcm16k) == 0 {
		return nil
	}
	durationMS := len(pcm16k) / 32 // 16kHz mono int16: 32 bytes/ms
	if err := c.write(audioFrame{Type: "audio", PCM16k: pcm16k, DurationMS: durationMS}); err != nil {
		return err
	}
	c.mu.Lock()
	c.BytesSent += len(pcm16k)
	c.FramesSent++
	frames := c.FramesSent
	c.mu.Unlock()
	if frames%10 == 0 {
		c.logger.Info("stt_audio_sent", "session_id", c.sessionID, "frames", frames)
	}
	return nil
}

// EndUtterance implements vadmanager.STTSink.
func (c *Client) EndUtterance() error {
	err := c.write(drainFrame{Type: "drain"})
	if err == nil {
		c.logger.Info("stt_utterance_end", "session_id", c.sessionID)
	}
	return err
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.enc = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) recvLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp responseFrame
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		switch resp.Type {
		case "interim":
			if c.interim != nil {
				c.interim.SetInterim(resp.Text)
			}
			if c.forwarder != nil {
				c.forwarder.SendTranscriptInterim(resp.UtteranceID, resp.Text)
			}
			c.logger.Info("stt_transcript_interim", "session_id", c.sessionID, "chars", len(resp.Text))
		case "final":
			if c.forwarder != nil {
				c.forwarder.SendTranscriptFinal(resp.UtteranceID, resp.Text)
			}
			c.logger.Info("stt_transcript_final", "session_id", c.sessionID, "chars", len(resp.Text))
		case "error":
			c.logger.Warn("stt_error", "session_id", c.sessionID, "enum_code", resp.EnumCode, "message", resp.Message)
		}
	}
	c.logger.Info("stt_stream_closed", "session_id", c.sessionID)
}
