// Package gatewaysession holds the gateway's shared session state, its
// typed environment configuration, and the sentinel errors collaborators
// report through. It generalizes the teacher's pkg/orchestrator/types.go
// (Config/DefaultConfig, ConversationSession, Logger) from a single-turn
// voice-agent session to this module's room-scoped gateway session.
package gatewaysession

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the gateway's full set of tunable knobs, one field per
// WORKER_VAD_*/LOCAL_STOP_*/STT_*/TTS_*/RING_BUFFER_*/ORCH_*/BOT_* variable
// named in the distilled specification's external interfaces section.
type Config struct {
	SampleRate int
	Channels   int

	LocalStopEnabled          bool
	LocalStopGuardMS          int
	LocalStopMinRMS           float64
	LocalStopRequireInterim   bool
	LocalStopInterimWindowMS  int
	LocalStopMinInterimLen    int

	VADAggressiveness       int
	VADHangoverMS           int
	VADMaxUtteranceMS       int
	VADMinStartFramesInTTS  int

	STTEnabled              bool
	STTContinuous           bool
	STTMinRMS               float64
	STTSuppressionCooldownMS int
	STTBatchMS              int
	STTAddr                 string

	RingBufferMS        int
	RingBufferHardCapMS int

	TTSPrebufferFrames     int
	TTSPrebufferTimeoutSec int
	TTSReadTimeoutSec      int
	TTSTotalTimeoutSec     int
	TTSMaxBytes            int64

	AudioInputGain float64

	OrchAddr                string
	OrchFeatureIntervalSec  float64
	TTSLLMAccumDebounceMS   int

	BotParticipantTimeoutSeconds int
	BotIdleExitSeconds           int
	BotStayConnectedSeconds      int

	RoomURL      string
	RoomToken    string
	XIAPIKey     string
	TTSVoiceID   string
	TTSBaseURL   string
	GreetingText string
}

// DefaultConfig mirrors the teacher's DefaultConfig() shape while carrying
// every default value called out in the distilled specification's external
// interfaces section.
func DefaultConfig() Config {
	return Config{
		SampleRate: 48000,
		Channels:   1,

		LocalStopEnabled:         true,
		LocalStopGuardMS:         1200,
		LocalStopMinRMS:          1200,
		LocalStopRequireInterim:  true,
		LocalStopInterimWindowMS: 600,
		LocalStopMinInterimLen:   10,

		VADAggressiveness:      2,
		VADHangoverMS:          400,
		VADMaxUtteranceMS:      30000,
		VADMinStartFramesInTTS: 10,

		STTEnabled:               true,
		STTContinuous:            false,
		STTMinRMS:                50,
		STTSuppressionCooldownMS: 200,
		STTBatchMS:               100,
		STTAddr:                  "/tmp/stt.sock",

		RingBufferMS:        300,
		RingBufferHardCapMS: 500,

		TTSPrebufferFrames:     15,
		TTSPrebufferTimeoutSec: 30,
		TTSReadTimeoutSec:      5,
		TTSTotalTimeoutSec:     30,
		TTSMaxBytes:            10 * 1024 * 1024,

		AudioInputGain: 1.0,

		TTSBaseURL:             "https://api.elevenlabs.io",
		GreetingText:           "Hi, I'm your AI interviewer. Can you hear me clearly?",

		OrchAddr:               "localhost:9090",
		OrchFeatureIntervalSec: 0.1,
		TTSLLMAccumDebounceMS:  200,

		BotParticipantTimeoutSeconds: 120,
		BotIdleExitSeconds:           60,
		BotStayConnectedSeconds:      0,
	}
}

// LoadConfigFromEnv loads a .env file if present (matching the teacher's
// cmd/agent/main.go godotenv.Load() call, which treats a missing file as
// non-fatal) and overlays DefaultConfig with any WORKER_VAD_*/LOCAL_STOP_*/
// STT_*/TTS_*/RING_BUFFER_*/ORCH_*/BOT_* variables present in the
// environment.
func LoadConfigFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is not fatal; system environment variables still apply.
	}

	cfg := DefaultConfig()

	cfg.LocalStopEnabled = envBool("LOCAL_STOP_ENABLED", cfg.LocalStopEnabled)
	cfg.LocalStopGuardMS = envInt("LOCAL_STOP_GUARD_MS", cfg.LocalStopGuardMS)
	cfg.LocalStopMinRMS = envFloat("LOCAL_STOP_MIN_RMS", cfg.LocalStopMinRMS)
	cfg.LocalStopRequireInterim = envBool("LOCAL_STOP_REQUIRE_INTERIM", cfg.LocalStopRequireInterim)
	cfg.LocalStopInterimWindowMS = envInt("LOCAL_STOP_INTERIM_WINDOW_MS", cfg.LocalStopInterimWindowMS)
	cfg.LocalStopMinInterimLen = envInt("LOCAL_STOP_MIN_INTERIM_LEN", cfg.LocalStopMinInterimLen)

	cfg.VADAggressiveness = envInt("WORKER_VAD_AGGRESSIVENESS", cfg.VADAggressiveness)
	cfg.VADHangoverMS = envInt("WORKER_VAD_HANGOVER_MS", cfg.VADHangoverMS)
	cfg.VADMaxUtteranceMS = envInt("WORKER_VAD_MAX_UTTERANCE_MS", cfg.VADMaxUtteranceMS)
	cfg.VADMinStartFramesInTTS = envInt("WORKER_VAD_MIN_START_FRAMES_WHILE_TTS", cfg.VADMinStartFramesInTTS)

	cfg.STTEnabled = envBool("STT_ENABLED", cfg.STTEnabled)
	cfg.STTContinuous = envBool("STT_CONTINUOUS", cfg.STTContinuous)
	cfg.STTMinRMS = envFloat("STT_MIN_RMS", cfg.STTMinRMS)
	cfg.STTSuppressionCooldownMS = envInt("STT_SUPPRESSION_COOLDOWN_MS", cfg.STTSuppressionCooldownMS)
	cfg.STTBatchMS = envInt("STT_BATCH_MS", cfg.STTBatchMS)
	cfg.STTAddr = envString("STT_ADDR", cfg.STTAddr)

	cfg.RingBufferMS = envInt("RING_BUFFER_MS", cfg.RingBufferMS)
	cfg.RingBufferHardCapMS = envInt("RING_BUFFER_HARD_CAP_MS", cfg.RingBufferHardCapMS)

	cfg.TTSPrebufferFrames = envInt("TTS_PREBUFFER_FRAMES", cfg.TTSPrebufferFrames)
	cfg.TTSPrebufferTimeoutSec = envInt("TTS_PREBUFFER_TIMEOUT_SECS", cfg.TTSPrebufferTimeoutSec)
	cfg.TTSReadTimeoutSec = envInt("TTS_READ_TIMEOUT_SEC", cfg.TTSReadTimeoutSec)
	cfg.TTSTotalTimeoutSec = envInt("TTS_TOTAL_TIMEOUT_SEC", cfg.TTSTotalTimeoutSec)
	cfg.TTSMaxBytes = envInt64("TTS_MAX_BYTES", cfg.TTSMaxBytes)

	cfg.AudioInputGain = envFloat("AUDIO_INPUT_GAIN", cfg.AudioInputGain)

	cfg.OrchAddr = envString("ORCH_ADDR", cfg.OrchAddr)
	cfg.OrchFeatureIntervalSec = envFloat("ORCH_FEATURE_INTERVAL_SEC", cfg.OrchFeatureIntervalSec)
	cfg.TTSLLMAccumDebounceMS = envInt("TTS_LLM_ACCUM_DEBOUNCE_MS", cfg.TTSLLMAccumDebounceMS)

	cfg.BotParticipantTimeoutSeconds = envInt("BOT_PARTICIPANT_TIMEOUT_SECONDS", cfg.BotParticipantTimeoutSeconds)
	cfg.BotIdleExitSeconds = envInt("BOT_IDLE_EXIT_SECONDS", cfg.BotIdleExitSeconds)
	cfg.BotStayConnectedSeconds = envInt("BOT_STAY_CONNECTED_SECONDS", cfg.BotStayConnectedSeconds)

	cfg.RoomURL = envString("ROOM_URL", cfg.RoomURL)
	cfg.RoomToken = envString("ROOM_TOKEN", cfg.RoomToken)
	cfg.XIAPIKey = envString("XI_API_KEY", cfg.XIAPIKey)
	cfg.TTSVoiceID = envString("TTS_VOICE_ID", cfg.TTSVoiceID)
	cfg.TTSBaseURL = envString("TTS_BASE_URL", cfg.TTSBaseURL)
	cfg.GreetingText = envString("TTS_GREETING_TEXT", cfg.GreetingText)

	if cfg.RoomURL == "" {
		return cfg, fmt.Errorf("%w: ROOM_URL", ErrConfigMissing)
	}
	return cfg, nil
}

// FeatureInterval returns OrchFeatureIntervalSec as a time.Duration.
func (c Config) FeatureInterval() time.Duration {
	return time.Duration(c.OrchFeatureIntervalSec * float64(time.Second))
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
