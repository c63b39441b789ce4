package vad

import (
	"testing"
	"time"
)

type fixedClassifier struct {
	voiced bool
	err    error
}

func (f *fixedClassifier) IsVoiced(pcm16 []byte, sampleRate int) (bool, error) {
	return f.voiced, f.err
}

func TestEngineRequiresMinStartFrames(t *testing.T) {
	c := &fixedClassifier{voiced: true}
	e := NewEngine(c, DefaultConfig()) // MinStartFrames = 2

	ev := e.Process(nil, 48000)
	if ev == nil || ev.Type != EventPrestart {
		t.Fatalf("expected prestart on first voiced frame, got %+v", ev)
	}
	if e.IsSpeaking() {
		t.Fatalf("expected not speaking before min_start_frames reached")
	}

	ev = e.Process(nil, 48000)
	if ev == nil || ev.Type != EventStart {
		t.Fatalf("expected start event on reaching min_start_frames, got %+v", ev)
	}
	if !e.IsSpeaking() {
		t.Fatalf("expected speaking after start event")
	}
}

func TestEngineEndRequiresHangoverAndMinBurst(t *testing.T) {
	cfg := Config{FrameMS: 20, MinStartFrames: 1, MinBurstFrames: 3, HangoverMS: 40, MaxUtteranceMS: 30000}
	voiced := &fixedClassifier{voiced: true}
	e := NewEngine(voiced, cfg)

	ev := e.Process(nil, 48000)
	if ev == nil || ev.Type != EventStart {
		t.Fatalf("expected immediate start with MinStartFrames=1")
	}

	unvoiced := &fixedClassifier{voiced: false}
	e.classifier = unvoiced

	// hangoverFrames = 2. First unvoiced frame should not yet end (elapsed
	// frames also too small). Elapsed frames are measured from wall-clock
	// time since start, so wait 80ms (4 frames) before the second one.
	if ev := e.Process(nil, 48000); ev != nil {
		t.Fatalf("expected no event on first unvoiced frame, got %+v", ev)
	}
	time.Sleep(80 * time.Millisecond)
	ev = e.Process(nil, 48000)
	if ev == nil || ev.Type != EventEnd {
		t.Fatalf("expected end event once hangover and min burst satisfied, got %+v", ev)
	}
	if e.IsSpeaking() {
		t.Fatalf("expected idle after end event")
	}
}

func TestEngineClassifierErrorTreatedUnvoiced(t *testing.T) {
	c := &fixedClassifier{voiced: true, err: errBoom}
	e := NewEngine(c, DefaultConfig())

	ev := e.Process(nil, 48000)
	if ev != nil {
		t.Fatalf("expected classifier error to be treated as unvoiced (no event), got %+v", ev)
	}
}

var errBoom = &classifierErr{"boom"}

type classifierErr struct{ msg string }

func (e *classifierErr) Error() string { return e.msg }
