package ttspipeline

import (
	"context"
	"testing"
	"time"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
)

type fakeSender struct {
	frames [][]byte
	failAt int
}

func (f *fakeSender) SendFrame(pcm []byte) error {
	f.frames = append(f.frames, pcm)
	if f.failAt > 0 && len(f.frames) == f.failAt {
		return errBoom
	}
	return nil
}

var errBoom = &boomErr{}

type boomErr struct{}

func (e *boomErr) Error() string { return "boom" }

type fakeArmer struct {
	armed bool
}

func (a *fakeArmer) Arm()    { a.armed = true }
func (a *fakeArmer) Disarm() { a.armed = false }

type fakeObserver struct{ events []gatewaysession.ObserverEvent }

func (o *fakeObserver) Emit(ev gatewaysession.ObserverEvent) { o.events = append(o.events, ev) }

func TestPipelineCompletesOnEmptyQueueSentinel(t *testing.T) {
	cfg := gatewaysession.DefaultConfig()
	cfg.TTSPrebufferFrames = 1
	cfg.TTSPrebufferTimeoutSec = 1
	state := gatewaysession.NewState("sess-1", cfg)
	sender := &fakeSender{}
	armer := &fakeArmer{}
	obs := &fakeObserver{}
	p := NewPipeline(cfg, state, sender, armer, obs, nil, nil)

	queue := make(chan Frame, 25)
	metrics := &Metrics{TTSStartedAt: time.Now()}
	// No producer goroutine: feed one frame directly then a sentinel.
	queue <- Frame{Data: make([]byte, frameBytes)}
	queue <- Frame{Data: nil}

	reason := p.runConsumer(context.Background(), queue, metrics, 1, make(chan struct{}))
	if reason != ReasonCompleted {
		t.Fatalf("expected ReasonCompleted, got %v", reason)
	}
	if len(sender.frames) != 1 {
		t.Fatalf("expected exactly 1 frame sent, got %d", len(sender.frames))
	}
}

func TestPipelineReportsUnderrunOnStall(t *testing.T) {
	cfg := gatewaysession.DefaultConfig()
	cfg.TTSPrebufferFrames = 1
	cfg.TTSPrebufferTimeoutSec = 1
	state := gatewaysession.NewState("sess-2", cfg)
	sender := &fakeSender{}
	armer := &fakeArmer{}
	p := NewPipeline(cfg, state, sender, armer, nil, nil, nil)

	queue := make(chan Frame) // no frames ever delivered
	metrics := &Metrics{TTSStartedAt: time.Now()}

	reason := p.runConsumer(context.Background(), queue, metrics, 1, make(chan struct{}))
	if reason != ReasonBufferUnderrun {
		t.Fatalf("expected ReasonBufferUnderrun, got %v", reason)
	}
	if metrics.Underruns != 1 {
		t.Errorf("expected 1 underrun recorded, got %d", metrics.Underruns)
	}
}

func TestPipelineStopSignalInterrupts(t *testing.T) {
	cfg := gatewaysession.DefaultConfig()
	state := gatewaysession.NewState("sess-3", cfg)
	sender := &fakeSender{}
	armer := &fakeArmer{}
	p := NewPipeline(cfg, state, sender, armer, nil, nil, nil)

	queue := make(chan Frame, 25)
	stop := make(chan struct{})
	close(stop)
	metrics := &Metrics{TTSStartedAt: time.Now()}

	reason := p.runConsumer(context.Background(), queue, metrics, 0, stop)
	if reason != ReasonInterrupted {
		t.Fatalf("expected ReasonInterrupted, got %v", reason)
	}
}

func TestPipelineArmsOnFirstFrame(t *testing.T) {
	cfg := gatewaysession.DefaultConfig()
	cfg.TTSPrebufferFrames = 1
	state := gatewaysession.NewState("sess-4", cfg)
	sender := &fakeSender{}
	armer := &fakeArmer{}
	p := NewPipeline(cfg, state, sender, armer, nil, nil, nil)

	queue := make(chan Frame, 2)
	queue <- Frame{Data: make([]byte, frameBytes)}
	queue <- Frame{Data: nil}
	metrics := &Metrics{TTSStartedAt: time.Now()}

	p.runConsumer(context.Background(), queue, metrics, 1, make(chan struct{}))

	if !armer.armed {
		t.Fatalf("expected armer.Arm() called on first frame")
	}
}
