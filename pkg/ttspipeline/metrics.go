package ttspipeline

import "time"

// StopReason names why a tts_stopped event fired, per the distilled
// specification's §4.4 contract.
type StopReason string

const (
	ReasonCompleted      StopReason = "completed"
	ReasonInterrupted    StopReason = "interrupted"
	ReasonBufferUnderrun StopReason = "buffer_underrun"
	ReasonUnknown        StopReason = "unknown"
)

// Metrics accumulates the per-utterance timestamps and counters named in
// SPEC_FULL.md's data model, mirroring the teacher's LatencyBreakdown in
// pkg/orchestrator/managed_stream.go generalized from single LLM/TTS spans
// to the full TTS producer/consumer timeline.
type Metrics struct {
	TTSStartedAt      time.Time
	RequestSentAt     time.Time
	HeadersReceivedAt time.Time
	FirstChunkAt      time.Time
	FirstFrameQueuedAt time.Time
	PrebufferDoneAt   time.Time
	FirstFrameSentAt  time.Time
	StreamEndAt       time.Time

	TotalChunks int
	TotalBytes  int
	SentFrames  int

	queuePeak   int
	queueSum    int
	queueSamples int

	Underruns int
}

// SampleQueueDepth records one queue-depth observation for peak/average
// reporting.
func (m *Metrics) SampleQueueDepth(depth int) {
	if depth > m.queuePeak {
		m.queuePeak = depth
	}
	m.queueSum += depth
	m.queueSamples++
}

// QueuePeak returns the highest observed queue depth.
func (m *Metrics) QueuePeak() int { return m.queuePeak }

// QueueAvg returns the mean observed queue depth, or 0 if never sampled.
func (m *Metrics) QueueAvg() float64 {
	if m.queueSamples == 0 {
		return 0
	}
	return float64(m.queueSum) / float64(m.queueSamples)
}

// FirstAudioMS returns the latency from tts_started to first frame sent, in
// milliseconds, or -1 if no frame was ever sent.
func (m *Metrics) FirstAudioMS() int64 {
	if m.FirstFrameSentAt.IsZero() {
		return -1
	}
	return m.FirstFrameSentAt.Sub(m.TTSStartedAt).Milliseconds()
}

// PacingDrift computes actual-minus-expected elapsed time for sentFrames
// played at the canonical 20ms cadence.
func PacingDrift(firstFrameSentAt time.Time, sentFrames int) time.Duration {
	if firstFrameSentAt.IsZero() {
		return 0
	}
	expected := time.Duration(sentFrames) * 20 * time.Millisecond
	actual := time.Since(firstFrameSentAt)
	return actual - expected
}
