// Package vadmanager gates the VAD Engine's start/end events against TTS
// playback state, static and dynamic RMS thresholds, a post-first-audio
// guard interval, and agreement with recent STT interim transcripts. It
// drives STT utterance boundaries and forwards RMS features to the
// orchestrator. Grounded on the teacher's pkg/orchestrator/managed_stream.go
// Write method (the mutex discipline between ordering-sensitive fields and
// best-effort numeric ones) and on original_source/gateway/main.py's
// candidate-VAD barge-in path. No echo/noise suppression runs here — the
// core requests raw audio from the transport and relies solely on the
// transport/SDK-level echo-cancellation negotiation instead.
package vadmanager

import (
	"sort"
	"sync"
	"time"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/audio"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/vad"
)

// SuppressReason names why a VAD start was suppressed as a barge-in
// candidate, in tie-break evaluation order.
type SuppressReason string

const (
	ReasonGuard   SuppressReason = "guard"
	ReasonEnergy  SuppressReason = "energy"
	ReasonInterim SuppressReason = "interim"
)

// Counters mirrors the distilled specification's VAD suppression counter
// set {starts_total, stops_allowed, suppressed_guard, suppressed_energy,
// suppressed_minframes}.
type Counters struct {
	StartsTotal        int
	StopsAllowed       int
	SuppressedGuard    int
	SuppressedEnergy   int
	SuppressedInterim  int
	SuppressedMinFrames int
}

// STTSink is the utterance boundary contract the VAD Manager drives; the
// STT Sidecar Client implements it.
type STTSink interface {
	BeginUtterance(utteranceID string) error
	SendAudio(pcm16k []byte) error
	EndUtterance() error
}

// FeatureSink receives coalesced RMS features; the Orchestrator Control
// Client implements it.
type FeatureSink interface {
	SetRMS(rms float64)
}

// Observer receives telemetry events for the legacy observer WebSocket.
type Observer interface {
	Emit(ev gatewaysession.ObserverEvent)
}

// Manager wires one VAD Engine instance to its gating policy for one
// session.
type Manager struct {
	cfg     gatewaysession.Config
	state   *gatewaysession.State
	engine  *vad.Engine
	ring    *audio.RingBuffer
	batcher *audio.FrameBatcher

	stt      STTSink
	features FeatureSink
	observer Observer

	// StopTTS is invoked each time a barge-in is confirmed, so it may be
	// called more than once in one utterance. Owned by the Session
	// Controller, handed in rather than a back-pointer, per the distilled
	// spec's cyclic-reference note.
	StopTTS func()

	mu             sync.Mutex
	armed          bool
	armedAt        time.Time
	lastInterimLen int
	lastInterimAt  time.Time
	rmsSamples     []float64
	lastSampleAt   time.Time
	inUtterance    bool
	cooldownUntil  time.Time
	counters       Counters
}

// New constructs a Manager. ring and batcher are owned exclusively by the
// audio-callback goroutine per the distilled spec's resource-scoping note.
func New(cfg gatewaysession.Config, state *gatewaysession.State, classifier vad.VoicingClassifier, stt STTSink, features FeatureSink, observer Observer) *Manager {
	vcfg := vad.Config{
		FrameMS:        20,
		MinStartFrames: 2,
		MinBurstFrames: 6,
		HangoverMS:     cfg.VADHangoverMS,
		MaxUtteranceMS: cfg.VADMaxUtteranceMS,
	}
	return &Manager{
		cfg:      cfg,
		state:    state,
		engine:   vad.NewEngine(classifier, vcfg),
		ring:     audio.NewRingBuffer(cfg.RingBufferMS, cfg.RingBufferHardCapMS, 20),
		batcher:  audio.NewFrameBatcher(cfg.STTBatchMS),
		stt:      stt,
		features: features,
		observer: observer,
	}
}

// Arm is called by the TTS pipeline on first successful frame publish.
func (m *Manager) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = true
	m.armedAt = time.Now()
}

// Disarm is called when an utterance's tts_stopped is emitted.
func (m *Manager) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
}

// SetLocalStopThresholds applies an orchestrator arm_barge_in command,
// updating the guard window and minimum RMS threshold in place when the
// given value is positive (a zero value means "leave unchanged").
func (m *Manager) SetLocalStopThresholds(guardMS, minRMS int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if guardMS > 0 {
		m.cfg.LocalStopGuardMS = guardMS
	}
	if minRMS > 0 {
		m.cfg.LocalStopMinRMS = float64(minRMS)
	}
}

// SetSTTSink binds the STT sidecar client after construction, breaking the
// constructor cycle between the VAD Manager (which needs an STTSink) and
// the STT Sidecar Client (which needs the Manager as its InterimSink).
func (m *Manager) SetSTTSink(stt STTSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stt = stt
}

// SetInterim records the most recent STT interim transcript length and
// timestamp, feeding the dual-signal gate.
func (m *Manager) SetInterim(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastInterimLen = len(text)
	m.lastInterimAt = time.Now()
}

// ProcessFrame runs one normalized 20ms 48kHz mono frame through RMS
// computation, feature forwarding, and the VAD Engine's gating policy.
// downsampled16k is the same frame resampled to 16kHz for STT batching.
func (m *Manager) ProcessFrame(frame []byte, downsampled16k []byte) {
	rms := vad.RMS(frame)
	if m.features != nil {
		m.features.SetRMS(rms)
	}

	m.mu.Lock()
	if m.state.IsSpeaking() && time.Since(m.lastSampleAt) >= time.Second {
		m.rmsSamples = append(m.rmsSamples, rms)
		if len(m.rmsSamples) > 64 {
			m.rmsSamples = m.rmsSamples[len(m.rmsSamples)-64:]
		}
		m.lastSampleAt = time.Now()
	}
	m.mu.Unlock()

	m.ring.Push(frame)

	minStart := 2
	if m.state.IsTTSActive() && m.cfg.VADMinStartFramesInTTS > 0 {
		minStart = m.cfg.VADMinStartFramesInTTS
	}
	m.engine.SetMinStartFrames(minStart)

	ev := m.engine.Process(frame, 48000)
	if ev == nil {
		if m.inUtteranceLocked() {
			m.batcher.Add(downsampled16k)
			if chunk, ok := m.batcher.EmitReady(); ok {
				_ = m.stt.SendAudio(chunk)
			}
		}
		return
	}

	switch ev.Type {
	case vad.EventPrestart:
		m.mu.Lock()
		m.counters.SuppressedMinFrames++
		m.mu.Unlock()
	case vad.EventStart:
		m.handleStart(rms)
	case vad.EventEnd:
		m.handleEnd()
	}
}

func (m *Manager) inUtteranceLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inUtterance
}

func (m *Manager) handleStart(rms float64) {
	m.mu.Lock()
	m.counters.StartsTotal++
	ttsActive := m.state.IsTTSActive()
	guardOK := m.armed && time.Since(m.armedAt) >= time.Duration(m.cfg.LocalStopGuardMS)*time.Millisecond
	dynThreshold := m.cfg.LocalStopMinRMS
	if ttsActive {
		p90 := percentile(m.rmsSamples, 0.90)
		candidate := p90*1.5 + 200
		if candidate > dynThreshold {
			dynThreshold = candidate
		}
	}
	interimOK := true
	if ttsActive && m.cfg.LocalStopRequireInterim {
		interimOK = time.Since(m.lastInterimAt) <= time.Duration(m.cfg.LocalStopInterimWindowMS)*time.Millisecond &&
			m.lastInterimLen >= m.cfg.LocalStopMinInterimLen
	}
	cooldownActive := time.Now().Before(m.cooldownUntil)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.Emit(m.state.NewObserverEvent(gatewaysession.ObserverVADStart, map[string]interface{}{"rms": rms}))
	}

	// STT utterance admission.
	if !m.cfg.STTContinuous && m.cfg.STTEnabled {
		bypassCooldown := rms >= 2*m.cfg.STTMinRMS
		if rms >= m.cfg.STTMinRMS && (!cooldownActive || bypassCooldown) {
			m.beginUtterance()
		} else {
			m.engine.Reset()
			m.ring.Reset()
			m.batcher.Reset()
			m.mu.Lock()
			m.cooldownUntil = time.Now().Add(time.Duration(m.cfg.STTSuppressionCooldownMS) * time.Millisecond)
			m.mu.Unlock()
		}
	} else if m.cfg.STTEnabled {
		m.beginUtterance()
	}

	// Barge-in gate, tie-broken guard -> energy -> interim.
	if !m.cfg.LocalStopEnabled {
		return
	}
	var reason SuppressReason
	switch {
	case !guardOK:
		reason = ReasonGuard
	case rms < dynThreshold:
		reason = ReasonEnergy
	case !interimOK:
		reason = ReasonInterim
	}
	if reason == "" {
		m.mu.Lock()
		m.counters.StopsAllowed++
		m.mu.Unlock()
		if m.StopTTS != nil {
			m.StopTTS()
		}
		return
	}

	m.mu.Lock()
	switch reason {
	case ReasonGuard:
		m.counters.SuppressedGuard++
	case ReasonEnergy:
		m.counters.SuppressedEnergy++
	case ReasonInterim:
		m.counters.SuppressedInterim++
	}
	m.mu.Unlock()
	if m.observer != nil {
		m.observer.Emit(m.state.NewObserverEvent(gatewaysession.ObserverVADStartSuppressed, map[string]interface{}{"reason": string(reason)}))
	}
}

func (m *Manager) beginUtterance() {
	m.mu.Lock()
	if m.inUtterance {
		m.mu.Unlock()
		return
	}
	m.inUtterance = true
	m.mu.Unlock()

	utteranceID := m.state.UtteranceID()
	_ = m.stt.BeginUtterance(utteranceID)
	if preroll := m.ring.FlushAll(); len(preroll) > 0 {
		m.batcher.Add(preroll)
		if chunk, ok := m.batcher.EmitReady(); ok {
			_ = m.stt.SendAudio(chunk)
		}
	}
}

func (m *Manager) handleEnd() {
	if m.observer != nil {
		m.observer.Emit(m.state.NewObserverEvent(gatewaysession.ObserverVADEnd, nil))
	}
	m.mu.Lock()
	wasInUtterance := m.inUtterance
	m.inUtterance = false
	m.mu.Unlock()

	if !wasInUtterance {
		return
	}
	if remainder := m.batcher.Flush(); len(remainder) > 0 {
		_ = m.stt.SendAudio(remainder)
	}
	_ = m.stt.EndUtterance()
}

// Snapshot returns a copy of the current suppression counters.
func (m *Manager) Snapshot() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}

func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
