package audio

// RingBuffer holds recent fixed-duration audio frames so that pre-speech
// context can be flushed into STT once a VAD start fires. Grounded on
// original_source/gateway/audio_utils.py's RingBuffer (a deque capped at
// hard_cap_frames, evicting the oldest frame on overflow).
type RingBuffer struct {
	frameMS        int
	capacityFrames int
	hardCapFrames  int
	frames         [][]byte
	seq            int
}

// NewRingBuffer creates a ring buffer with the given soft capacity, hard
// cap (both in milliseconds), and frame duration (in milliseconds).
func NewRingBuffer(capacityMS, hardCapMS, frameMS int) *RingBuffer {
	if frameMS <= 0 {
		frameMS = 20
	}
	capFrames := capacityMS / frameMS
	if capFrames < 1 {
		capFrames = 1
	}
	hardFrames := hardCapMS / frameMS
	if hardFrames < capFrames {
		hardFrames = capFrames
	}
	return &RingBuffer{
		frameMS:        frameMS,
		capacityFrames: capFrames,
		hardCapFrames:  hardFrames,
	}
}

// Push appends a frame, evicting the oldest frame once the hard cap is
// exceeded.
func (r *RingBuffer) Push(frame []byte) {
	r.seq++
	cp := make([]byte, len(frame))
	copy(cp, frame)
	r.frames = append(r.frames, cp)
	for len(r.frames) > r.hardCapFrames {
		r.frames = r.frames[1:]
	}
}

// Len returns the number of frames currently held.
func (r *RingBuffer) Len() int {
	return len(r.frames)
}

// Reset discards all buffered frames without returning them, used when a
// candidate VAD start is rejected for STT admission.
func (r *RingBuffer) Reset() {
	r.frames = nil
}

// FlushAll returns the concatenation of all buffered frames and empties
// the buffer.
func (r *RingBuffer) FlushAll() []byte {
	if len(r.frames) == 0 {
		return nil
	}
	total := 0
	for _, f := range r.frames {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range r.frames {
		out = append(out, f...)
	}
	r.frames = nil
	return out
}
