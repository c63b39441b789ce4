// Package vad implements the energy/voicing-based state machine described
// in the distilled specification's VAD Engine component. It is grounded on
// original_source/gateway/main.py's VADState class, generalized from a
// webrtcvad-backed aggressiveness classifier to the pluggable
// VoicingClassifier interface, and on the teacher's state-machine shape in
// pkg/orchestrator/vad.go (RMSVAD).
package vad

import "time"

// EventType names a transition the Engine can emit.
type EventType string

const (
	EventStart    EventType = "start"
	EventEnd      EventType = "end"
	EventPrestart EventType = "prestart"
)

// Event carries a VAD transition and the timestamp it occurred at.
type Event struct {
	Type      EventType
	Timestamp time.Time
}

// Config tunes the engine's frame-count thresholds. Defaults mirror
// WORKER_VAD_* configuration knobs in SPEC_FULL.md §6.
type Config struct {
	FrameMS         int
	MinStartFrames  int
	MinBurstFrames  int
	HangoverMS      int
	MaxUtteranceMS  int
}

// DefaultConfig returns the distilled spec's default tuning: 2 frames to
// start (raised to 10 by the VAD Manager while TTS is active), 400ms
// hangover, 120ms minimum burst, 30s safety valve.
func DefaultConfig() Config {
	return Config{
		FrameMS:        20,
		MinStartFrames: 2,
		MinBurstFrames: 6,
		HangoverMS:     400,
		MaxUtteranceMS: 30000,
	}
}

// Engine is the IDLE/SPEAKING state machine operating on fixed 20ms
// frames at 48kHz.
type Engine struct {
	cfg        Config
	classifier VoicingClassifier

	speaking     bool
	consecSpeech int
	nonSpeech    int
	startedAt    time.Time

	hangoverFrames int

	// SuppressedMinFrames counts frames reported as prestart (below
	// min_start_frames), mirroring the spec's suppressed_minframes counter.
	SuppressedMinFrames int
}

// NewEngine constructs an Engine with the given classifier and config.
func NewEngine(classifier VoicingClassifier, cfg Config) *Engine {
	if cfg.FrameMS <= 0 {
		cfg.FrameMS = 20
	}
	e := &Engine{cfg: cfg, classifier: classifier}
	e.hangoverFrames = cfg.HangoverMS / cfg.FrameMS
	if e.hangoverFrames < 1 {
		e.hangoverFrames = 1
	}
	return e
}

// SetMinStartFrames allows the VAD Manager to raise min_start_frames while
// TTS is active (default 10), per §4.2.
func (e *Engine) SetMinStartFrames(n int) {
	e.cfg.MinStartFrames = n
}

// IsSpeaking reports the current state.
func (e *Engine) IsSpeaking() bool {
	return e.speaking
}

// Process classifies one 20ms frame and advances the state machine,
// returning an Event when a transition occurred (nil otherwise). A
// classifier error is treated as unvoiced, per the classifier_error
// recovery rule, and is never propagated to the caller.
func (e *Engine) Process(pcm16 []byte, sampleRate int) *Event {
	voiced, err := e.classifier.IsVoiced(pcm16, sampleRate)
	if err != nil {
		voiced = false
	}
	now := time.Now()

	if !e.speaking {
		if voiced {
			e.consecSpeech++
			if e.consecSpeech >= e.cfg.MinStartFrames {
				e.speaking = true
				e.startedAt = now
				e.nonSpeech = 0
				return &Event{Type: EventStart, Timestamp: now}
			}
			e.SuppressedMinFrames++
			return &Event{Type: EventPrestart, Timestamp: now}
		}
		e.consecSpeech = 0
		return nil
	}

	// SPEAKING state.
	if e.cfg.MaxUtteranceMS > 0 && now.Sub(e.startedAt) >= time.Duration(e.cfg.MaxUtteranceMS)*time.Millisecond {
		e.speaking = false
		e.consecSpeech = 0
		e.nonSpeech = 0
		return &Event{Type: EventEnd, Timestamp: now}
	}

	if voiced {
		e.nonSpeech = 0
		return nil
	}

	e.nonSpeech++
	elapsedFrames := int(now.Sub(e.startedAt) / (time.Duration(e.cfg.FrameMS) * time.Millisecond))
	if e.nonSpeech >= e.hangoverFrames && elapsedFrames >= e.cfg.MinBurstFrames {
		e.speaking = false
		e.consecSpeech = 0
		e.nonSpeech = 0
		return &Event{Type: EventEnd, Timestamp: now}
	}
	return nil
}

// Reset returns the engine to IDLE, clearing its speech/non-speech frame
// counters; the cumulative SuppressedMinFrames count is kept.
func (e *Engine) Reset() {
	e.speaking = false
	e.consecSpeech = 0
	e.nonSpeech = 0
}
