package orchestratorclient

// Outbound message envelope. Exactly one of the pointer fields is set,
// mirroring the protobuf oneof shape the original gRPC control stream used
// (gateway_control_pb2.GatewayEvent); here expressed as JSON written
// through wsjson, per SPEC_FULL.md §4.6.
type outboundEvent struct {
	SessionID          string              `json:"session_id"`
	SessionOpen        *sessionOpenMsg     `json:"session_open,omitempty"`
	Feature            *featureMsg         `json:"feature,omitempty"`
	TranscriptInterim  *transcriptMsg      `json:"transcript_interim,omitempty"`
	TranscriptFinal    *transcriptMsg      `json:"transcript_final,omitempty"`
	TTS                *ttsMsg             `json:"tts,omitempty"`
}

type sessionOpenMsg struct {
	SessionID string `json:"session_id"`
	RoomURL   string `json:"room_url"`
}

type featureMsg struct {
	RMS float64 `json:"rms"`
}

type transcriptMsg struct {
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
}

type ttsMsg struct {
	Type         string `json:"type"`
	Reason       string `json:"reason,omitempty"`
	FirstAudioMS *int64 `json:"first_audio_ms,omitempty"`
}

// Inbound command envelope. Exactly one field is set.
type inboundCommand struct {
	ArmBargeIn  *armBargeInCmd `json:"arm_barge_in,omitempty"`
	StartMicSTT *struct{}      `json:"start_mic_to_stt,omitempty"`
	StopMicSTT  *struct{}      `json:"stop_mic_to_stt,omitempty"`
	StartTTS    *startTTSCmd   `json:"start_tts,omitempty"`
	StopTTS     *struct{}      `json:"stop_tts,omitempty"`
}

type armBargeInCmd struct {
	GuardMS int `json:"guard_ms"`
	MinRMS  int `json:"min_rms"`
}

type startTTSCmd struct {
	Text string `json:"text"`
}
