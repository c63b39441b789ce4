package audio

// FrameBatcher coalesces 16 kHz mono PCM16 frames into fixed-size chunks
// for the STT sidecar. Grounded on original_source/gateway/audio_utils.py's
// FrameBatcher (bytes-per-ms fixed at 32 for 16 kHz mono 16-bit audio).
type FrameBatcher struct {
	batchMS     int
	bytesPerMS  int
	targetBytes int
	buf         []byte
}

// NewFrameBatcher creates a batcher that emits chunks of batchMS of 16 kHz
// mono PCM16 audio.
func NewFrameBatcher(batchMS int) *FrameBatcher {
	b := &FrameBatcher{bytesPerMS: 32}
	b.SetBatchMS(batchMS)
	return b
}

// SetBatchMS updates the target batch duration (clamped to a minimum of
// 20 ms, matching the original's set_batch_ms).
func (b *FrameBatcher) SetBatchMS(batchMS int) {
	if batchMS < 20 {
		batchMS = 20
	}
	b.batchMS = batchMS
	b.targetBytes = batchMS * b.bytesPerMS
}

// Add appends PCM16 16 kHz bytes to the batcher.
func (b *FrameBatcher) Add(pcm16k []byte) {
	if len(pcm16k) == 0 {
		return
	}
	b.buf = append(b.buf, pcm16k...)
}

// EmitReady returns exactly one batchMS-sized chunk when enough bytes have
// accumulated, else (nil, false).
func (b *FrameBatcher) EmitReady() ([]byte, bool) {
	if len(b.buf) < b.targetBytes {
		return nil, false
	}
	chunk := make([]byte, b.targetBytes)
	copy(chunk, b.buf[:b.targetBytes])
	b.buf = append(b.buf[:0], b.buf[b.targetBytes:]...)
	return chunk, true
}

// Reset discards any partial batch without returning it.
func (b *FrameBatcher) Reset() {
	b.buf = b.buf[:0]
}

// Flush returns and clears whatever remains, regardless of size.
func (b *FrameBatcher) Flush() []byte {
	if len(b.buf) == 0 {
		return nil
	}
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	b.buf = b.buf[:0]
	return out
}
