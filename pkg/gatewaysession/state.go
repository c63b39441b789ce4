package gatewaysession

import (
	"sync"
	"time"
)

// Logger generalizes the teacher's pkg/orchestrator/types.go Logger
// interface unchanged in shape; a zap-backed implementation is wired in
// cmd/gateway/main.go in place of the teacher's NoOpLogger default.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
}

// NoOpLogger discards every call, matching the teacher's default.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, kv ...interface{}) {}
func (NoOpLogger) Info(msg string, kv ...interface{})  {}
func (NoOpLogger) Warn(msg string, kv ...interface{})  {}
func (NoOpLogger) Error(msg string, kv ...interface{}) {}

// ObserverEventType discriminates the legacy observer telemetry stream.
// Observer payloads stay untyped map[string]any JSON for dashboards,
// matching the teacher's loose Data interface{} field on OrchestratorEvent.
type ObserverEventType string

const (
	ObserverVADStart           ObserverEventType = "vad_start"
	ObserverVADStartSuppressed ObserverEventType = "vad_start_suppressed"
	ObserverVADEnd             ObserverEventType = "vad_end"
	ObserverTTSStarted         ObserverEventType = "tts_started"
	ObserverTTSFirstAudio      ObserverEventType = "tts_first_audio"
	ObserverTTSStopped         ObserverEventType = "tts_stopped"
	ObserverBufferUnderrun     ObserverEventType = "buffer_underrun"
	ObserverError              ObserverEventType = "error"
)

// ObserverEvent is one frame on the outbound observer WebSocket.
type ObserverEvent struct {
	Type        ObserverEventType      `json:"type"`
	TimestampMS int64                  `json:"ts_ms"`
	SessionID   string                 `json:"session_id"`
	UtteranceID string                 `json:"utterance_id,omitempty"`
	Seq         uint64                 `json:"seq"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// State is the gateway's single shared session record: an immutable Config
// plus a mutex-guarded mutable core, following ConversationSession in
// pkg/orchestrator/types.go. Fields read/written from the audio callback
// goroutine that have no ordering requirement (RMS readouts, counters) are
// left as best-effort plain fields rather than mutex-guarded, matching the
// teacher's own distinction between guarded ConversationSession fields and
// the unlocked lastRMS/lastPlayedAt fields in cmd/agent/main.go.
type State struct {
	Config Config

	mu          sync.RWMutex
	sessionID   string
	utteranceID string
	speaking    bool
	ttsActive   bool
	seq         uint64

	// LastRMS is updated from the audio callback on every frame without
	// locking; a stale read is acceptable for a meter/gating readout.
	LastRMS float64
}

// NewState constructs a State for one room session.
func NewState(sessionID string, cfg Config) *State {
	return &State{Config: cfg, sessionID: sessionID}
}

func (s *State) SessionID() string {
	return s.sessionID
}

func (s *State) SetUtteranceID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utteranceID = id
}

func (s *State) UtteranceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.utteranceID
}

func (s *State) SetSpeaking(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = v
}

func (s *State) IsSpeaking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaking
}

func (s *State) SetTTSActive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttsActive = v
}

func (s *State) IsTTSActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttsActive
}

// NextSeq returns a monotonically increasing sequence number for observer
// events, per the distilled specification's per-utterance total ordering
// requirement.
func (s *State) NextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// NewObserverEvent stamps a new ObserverEvent with the session's current
// sequence number, session ID, and utterance ID.
func (s *State) NewObserverEvent(t ObserverEventType, payload map[string]interface{}) ObserverEvent {
	return ObserverEvent{
		Type:        t,
		TimestampMS: time.Now().UnixMilli(),
		SessionID:   s.SessionID(),
		UtteranceID: s.UtteranceID(),
		Seq:         s.NextSeq(),
		Payload:     payload,
	}
}
