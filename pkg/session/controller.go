// Package session owns the gateway's per-call lifecycle: joining the room,
// waiting for a participant, speaking a greeting, running the steady-state
// idle loop, and wiring every other collaborator together. Grounded on the
// teacher's pkg/orchestrator/managed_stream.go (ManagedStream's
// goroutine-per-concern shape, its closeOnce idempotent shutdown) and on
// original_source/gateway/main.py's run_bot coroutine (participant wait,
// greeting playback, the LLM-driven TTS debounce accumulator, and the
// idle-exit loop), which the distilled spec names in §4.8 but whose
// internal structure it does not reproduce.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/audio"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/orchestratorclient"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/sttclient"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/transport"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/ttspipeline"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/vadmanager"
)

// VADManager is the subset of *vadmanager.Manager the controller drives,
// narrowed to an interface for testability.
type VADManager interface {
	ProcessFrame(frame []byte, downsampled16k []byte)
	SetInterim(text string)
	SetLocalStopThresholds(guardMS, minRMS int)
}

// TTSSpeaker is the subset of *ttspipeline.Pipeline the controller drives.
type TTSSpeaker interface {
	Speak(ctx context.Context, voiceID, utteranceID, text string) ttspipeline.StopReason
	Stop()
}

// RemoteAudioSource is the subset of *transport.Adapter the controller
// drives.
type RemoteAudioSource interface {
	Connect(signaler transport.Signaler) error
	OnRemoteAudio(f transport.RemoteAudioFunc)
	WaitForParticipant(ctx context.Context) error
	SendFrame(pcm []byte) error
}

// Controller owns one call's full lifecycle and collaborator wiring.
type Controller struct {
	cfg    gatewaysession.Config
	state  *gatewaysession.State
	logger gatewaysession.Logger

	transport RemoteAudioSource
	vadMgr    VADManager
	pipeline  TTSSpeaker
	orch      *orchestratorclient.Client // nil when orchestrator is disabled
	stt       *sttclient.Client          // nil when STT is disabled

	debouncer *ttsDebouncer

	inboundMu    sync.Mutex
	inboundAlign []byte

	micToSTTEnabled atomic.Bool

	// speakMu serializes utterances so a debounced start_tts phrase waits
	// for the in-flight utterance to finish instead of overlapping it.
	speakMu sync.Mutex
}

const frameBytes = 1920 // 20ms of 48kHz mono int16

// New wires a Controller from already-constructed collaborators. orch and
// stt may be nil (degraded mode: no orchestrator / no transcription).
func New(cfg gatewaysession.Config, state *gatewaysession.State, logger gatewaysession.Logger, rtc RemoteAudioSource, vadMgr VADManager, pipeline TTSSpeaker, orch *orchestratorclient.Client, stt *sttclient.Client) *Controller {
	if logger == nil {
		logger = gatewaysession.NoOpLogger{}
	}
	c := &Controller{
		cfg:       cfg,
		state:     state,
		logger:    logger,
		transport: rtc,
		vadMgr:    vadMgr,
		pipeline:  pipeline,
		orch:      orch,
		stt:       stt,
	}
	c.micToSTTEnabled.Store(true)
	c.debouncer = newTTSDebouncer(time.Duration(cfg.TTSLLMAccumDebounceMS)*time.Millisecond, c.flushAccumulatedTTS)

	if orch != nil {
		orch.OnArmBargeIn = func(guardMS, minRMS int) {
			c.vadMgr.SetLocalStopThresholds(guardMS, minRMS)
			c.logger.Info("orchestrator_arm_barge_in", "guard_ms", guardMS, "min_rms", minRMS)
		}
		orch.OnMicToSTT = func(enabled bool) {
			c.micToSTTEnabled.Store(enabled)
			c.logger.Info("orchestrator_mic_to_stt", "enabled", enabled)
		}
		orch.OnStartTTS = func(text string) {
			c.debouncer.Add(text)
			c.state.SetSpeaking(true)
		}
		orch.OnStopTTS = func() {
			c.logger.Info("orchestrator_stop_tts", "session_id", c.state.SessionID())
			c.pipeline.Stop()
		}
	}

	return c
}

// Run executes the full lifecycle: join, wait for participant, connect
// collaborators, greet, then block in the idle loop until ctx is done or
// the session times out idle.
func (c *Controller) Run(ctx context.Context, signaler transport.Signaler) error {
	if err := c.transport.Connect(signaler); err != nil {
		return fmt.Errorf("session: %w: %v", gatewaysession.ErrRoomJoinFailed, err)
	}

	c.logger.Info("bot_waiting_for_participant", "session_id", c.state.SessionID(), "timeout_s", c.cfg.BotParticipantTimeoutSeconds)
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.BotParticipantTimeoutSeconds)*time.Second)
	err := c.transport.WaitForParticipant(waitCtx)
	cancel()
	if err != nil {
		c.logger.Error("bot_participant_timeout", "session_id", c.state.SessionID())
		return fmt.Errorf("session: %w", gatewaysession.ErrNoParticipant)
	}
	c.logger.Info("bot_participant_ready", "session_id", c.state.SessionID())

	c.transport.OnRemoteAudio(c.handleRemoteAudio)

	if c.orch != nil {
		if err := c.orch.Connect(ctx); err != nil {
			c.logger.Warn("orchestrator_connect_error", "err", err)
		} else {
			c.orch.SendSessionOpen(c.cfg.RoomURL)
		}
	}
	if c.stt != nil {
		if err := c.stt.Connect(); err != nil {
			c.logger.Warn("stt_error", "err", err)
			c.stt = nil
		}
	}

	c.speak(ctx, fmt.Sprintf("u-%d", time.Now().UnixMilli()), c.cfg.GreetingText)

	return c.idleLoop(ctx)
}

func (c *Controller) flushAccumulatedTTS(phrase string) {
	c.speak(context.Background(), fmt.Sprintf("u-%d", time.Now().UnixMilli()), phrase)
}

func (c *Controller) speak(ctx context.Context, utteranceID, text string) {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()
	c.state.SetUtteranceID(utteranceID)
	c.state.SetSpeaking(true)
	defer func() {
		c.state.SetSpeaking(false)
		c.state.SetUtteranceID("")
	}()
	reason := c.pipeline.Speak(ctx, c.cfg.TTSVoiceID, utteranceID, text)
	c.logger.Info("tts_playback_done", "session_id", c.state.SessionID(), "utterance_id", utteranceID, "reason", string(reason))
}

// idleLoop ticks once per second; it exits once the session has been idle
// (not speaking, no active utterance) for BotIdleExitSeconds, optionally
// gated by a BotStayConnectedSeconds hard floor.
func (c *Controller) idleLoop(ctx context.Context) error {
	idleExit := time.Duration(c.cfg.BotIdleExitSeconds) * time.Second
	stayFloor := time.Duration(c.cfg.BotStayConnectedSeconds) * time.Second
	start := time.Now()
	lastActivity := time.Now()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			speaking := c.state.IsSpeaking()
			if speaking || c.state.UtteranceID() != "" {
				lastActivity = time.Now()
				continue
			}
			idleFor := time.Since(lastActivity)
			if idleFor < idleExit {
				continue
			}
			if stayFloor > 0 && time.Since(start) < stayFloor {
				continue
			}
			c.logger.Info("bot_idle_exit", "session_id", c.state.SessionID(), "idle_for_s", int(idleFor.Seconds()))
			return nil
		}
	}
}

// handleRemoteAudio normalizes inbound room audio to 20ms 48kHz mono
// frames and hands each to the VAD Manager, per SPEC_FULL.md §4.5's note
// that format handling belongs to the Session Controller, not the
// transport.
func (c *Controller) handleRemoteAudio(frame []byte, srcSR, channels int) {
	samples := bytesToInt16(frame)
	samples = collapseToMono(samples, channels)
	samples = audio.Resample(samples, srcSR)
	if !c.state.IsTTSActive() {
		samples = applyGain(samples, c.cfg.AudioInputGain)
	}
	pcm := int16ToBytes(samples)

	c.inboundMu.Lock()
	c.inboundAlign = append(c.inboundAlign, pcm...)
	var frames [][]byte
	for len(c.inboundAlign) >= frameBytes {
		frames = append(frames, append([]byte(nil), c.inboundAlign[:frameBytes]...))
		c.inboundAlign = c.inboundAlign[frameBytes:]
	}
	c.inboundMu.Unlock()

	if !c.micToSTTEnabled.Load() {
		return
	}
	for _, f := range frames {
		downsampled16k := int16ToBytes(audio.DownsampleTo16k(bytesToInt16(f)))
		c.vadMgr.ProcessFrame(f, downsampled16k)
	}
}
