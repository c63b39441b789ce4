package ttspipeline

import (
	"context"
	"sync"
	"time"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
)

// FrameSender publishes one 1920-byte PCM frame to the transport.
type FrameSender interface {
	SendFrame(pcm []byte) error
}

// Armer is the subset of the VAD Manager the consumer drives: arming
// barge-in detection on first published frame and disarming it once the
// utterance ends, grounded on the teacher's NotifyAudioPlayed/Disarm pair.
type Armer interface {
	Arm()
	Disarm()
}

// Observer receives telemetry for the legacy observer WebSocket.
type Observer interface {
	Emit(ev gatewaysession.ObserverEvent)
}

// OrchestratorTTSSink receives TTS lifecycle events bound for the
// orchestrator control stream.
type OrchestratorTTSSink interface {
	SendTTSStarted()
	SendTTSFirstAudio(firstAudioMS int64)
	SendTTSStopped(reason StopReason, payload map[string]interface{})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Pipeline owns one utterance's producer/consumer pair at a time and the
// adaptive prebuffer depth carried across utterances. Grounded on
// pkg/orchestrator/managed_stream.go's goroutine-per-concern shape and its
// closeOnce sync.Once idiom, used here so the per-utterance stop signal is
// closed at most once. Each Speak call emits tts_stopped once, at its end.
type Pipeline struct {
	cfg      gatewaysession.Config
	state    *gatewaysession.State
	producer *Producer
	sender   FrameSender
	armer    Armer
	observer Observer
	orch     OrchestratorTTSSink
	logger   gatewaysession.Logger

	mu              sync.Mutex
	prebufferTarget int
	stopSignal      chan struct{}
	stopOnce        sync.Once
}

// NewPipeline constructs a Pipeline. sender/armer are required; observer
// and orch may be nil.
func NewPipeline(cfg gatewaysession.Config, state *gatewaysession.State, sender FrameSender, armer Armer, observer Observer, orch OrchestratorTTSSink, logger gatewaysession.Logger) *Pipeline {
	if logger == nil {
		logger = gatewaysession.NoOpLogger{}
	}
	return &Pipeline{
		cfg:             cfg,
		state:           state,
		producer:        NewProducer(cfg, logger),
		sender:          sender,
		armer:           armer,
		observer:        observer,
		orch:            orch,
		logger:          logger,
		prebufferTarget: clamp(cfg.TTSPrebufferFrames, 10, 25),
	}
}

// Stop signals an in-progress Speak call to halt, used for barge-in. It is
// a no-op if no utterance is in flight or Stop was already called for the
// current utterance.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	sig := p.stopSignal
	once := &p.stopOnce
	p.mu.Unlock()
	if sig == nil {
		return
	}
	once.Do(func() { close(sig) })
}

// Speak runs one utterance end to end: starts the producer, prebuffers,
// paces frames to the transport, and reports exactly one StopReason.
func (p *Pipeline) Speak(ctx context.Context, voiceID, utteranceID, text string) StopReason {
	metrics := &Metrics{TTSStartedAt: time.Now()}
	p.state.SetTTSActive(true)
	defer p.state.SetTTSActive(false)

	p.mu.Lock()
	p.stopSignal = make(chan struct{})
	p.stopOnce = sync.Once{}
	stopSignal := p.stopSignal
	target := p.prebufferTarget
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.Emit(p.state.NewObserverEvent(gatewaysession.ObserverTTSStarted, nil))
	}
	if p.orch != nil {
		p.orch.SendTTSStarted()
	}

	prodCtx, prodCancel := context.WithCancel(ctx)
	queue := make(chan Frame, 25)
	producerDone := make(chan struct{})
	go func() {
		p.producer.Run(prodCtx, voiceID, text, queue, metrics, stopSignal)
		close(producerDone)
	}()

	reason := p.runConsumer(ctx, queue, metrics, target, stopSignal)

	prodCancel()
	select {
	case <-producerDone:
	case <-time.After(time.Second):
	}
	p.drain(queue)

	p.armer.Disarm()

	if metrics.Underruns > 0 {
		p.mu.Lock()
		p.prebufferTarget = clamp(p.prebufferTarget+2, 10, 25)
		p.mu.Unlock()
	} else {
		p.mu.Lock()
		p.prebufferTarget = clamp(p.prebufferTarget-1, 10, 25)
		p.mu.Unlock()
	}

	payload := map[string]interface{}{
		"sent_frames": metrics.SentFrames,
		"underruns":   metrics.Underruns,
		"drift_ms":    PacingDrift(metrics.FirstFrameSentAt, metrics.SentFrames).Milliseconds(),
		"queue_peak":  metrics.QueuePeak(),
		"queue_avg":   metrics.QueueAvg(),
	}
	if p.observer != nil {
		p.observer.Emit(p.state.NewObserverEvent(gatewaysession.ObserverTTSStopped, payload))
	}
	if p.orch != nil {
		p.orch.SendTTSStopped(reason, payload)
	}
	return reason
}

func (p *Pipeline) runConsumer(ctx context.Context, queue chan Frame, metrics *Metrics, target int, stopSignal chan struct{}) StopReason {
	prebufferDeadline := time.Now().Add(time.Duration(p.cfg.TTSPrebufferTimeoutSec) * time.Second)
	for len(queue) < target && time.Now().Before(prebufferDeadline) {
		select {
		case <-stopSignal:
			goto prebufferDone
		case <-ctx.Done():
			return ReasonInterrupted
		case <-time.After(5 * time.Millisecond):
		}
	}
prebufferDone:
	metrics.PrebufferDoneAt = time.Now()

	nextFrameTime := time.Now()
	for {
		select {
		case <-stopSignal:
			return ReasonInterrupted
		default:
		}

		var item Frame
		select {
		case item = <-queue:
		case <-time.After(500 * time.Millisecond):
			metrics.Underruns++
			if p.observer != nil {
				p.observer.Emit(p.state.NewObserverEvent(gatewaysession.ObserverBufferUnderrun, nil))
			}
			return ReasonBufferUnderrun
		case <-stopSignal:
			return ReasonInterrupted
		}

		if item.Data == nil {
			return ReasonCompleted
		}

		now := time.Now()
		if wait := nextFrameTime.Sub(now); wait > 5*time.Millisecond {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-stopSignal:
				timer.Stop()
				return ReasonInterrupted
			}
		}

		if err := p.sender.SendFrame(item.Data); err != nil {
			p.logger.Error("tts_transport_send_error", "err", err)
			return ReasonInterrupted
		}
		metrics.SentFrames++

		if metrics.FirstFrameSentAt.IsZero() {
			metrics.FirstFrameSentAt = now
			p.armer.Arm()
			if p.observer != nil {
				p.observer.Emit(p.state.NewObserverEvent(gatewaysession.ObserverTTSFirstAudio, map[string]interface{}{"first_audio_ms": metrics.FirstAudioMS()}))
			}
			if p.orch != nil {
				p.orch.SendTTSFirstAudio(metrics.FirstAudioMS())
			}
		}
		metrics.SampleQueueDepth(len(queue))
		nextFrameTime = nextFrameTime.Add(20 * time.Millisecond)
	}
}

func (p *Pipeline) drain(queue chan Frame) {
	for {
		select {
		case <-queue:
		default:
			return
		}
	}
}
