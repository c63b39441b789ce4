package gatewaysession

import "errors"

// Sentinel errors collaborators report through, generalizing the teacher's
// flat errors.New style in pkg/orchestrator/errors.go. Per the distilled
// specification's error handling design, only ErrConfigMissing and
// ErrRoomJoinFailed are fatal at startup; the rest are signals a collaborator
// reports and the session controller degrades around rather than exceptions
// to propagate.
var (
	ErrConfigMissing    = errors.New("required configuration value is missing")
	ErrRoomJoinFailed    = errors.New("failed to join room")
	ErrOrchDisconnected  = errors.New("orchestrator control stream disconnected")
	ErrSTTUnavailable    = errors.New("stt sidecar unavailable")
	ErrTTSStalled        = errors.New("tts producer stalled")
	ErrBufferUnderrun    = errors.New("tts playback buffer underrun")
	ErrNoParticipant     = errors.New("no remote participant joined before timeout")
	ErrSessionClosed     = errors.New("session already closed")
)
