// Package transport wraps a pion/webrtc/v4 peer connection standing in for
// the room SDK the distilled specification abstracts over. Grounded on
// iamprashant-voice-ai's internal/channel/webrtc/streamer.go, generalized
// from its Opus-codec/gRPC-signaled shape to a raw-sample room adapter:
// SendFrame/OnRemoteAudio/WaitForParticipant instead of a Streamer
// interface, L16/48000/1 instead of Opus, and a pluggable Signaler instead
// of an in-process gRPC bidi stream, since the room SFU's own signaling
// protocol is an external wire protocol out of this module's scope.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	sampleRate    = 48000
	channels      = 1
	frameDuration = 20 * time.Millisecond
	mimeTypeL16   = "audio/L16"
	l16PayloadType = 96
)

// RemoteAudioFunc receives one inbound audio packet's raw payload along
// with its source sample rate and channel count. Format normalization
// (float32/int16, stereo collapse, resample) happens in the caller, per
// the distilled spec's §4.5 note that this is a Session Controller
// concern, not a transport concern.
type RemoteAudioFunc func(frame []byte, srcSampleRate, channels int)

// Signaler performs the room-specific SDP offer/answer exchange. The room
// SFU's signaling wire protocol is out of scope for this module (it is an
// external wire protocol the distilled spec explicitly excludes); callers
// inject a concrete Signaler for whichever room SDK they target.
type Signaler interface {
	Exchange(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}

// Adapter wraps one room session's peer connection.
type Adapter struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	pc                *webrtc.PeerConnection
	localTrack        *webrtc.TrackLocalStaticSample
	onRemoteAudio     RemoteAudioFunc
	participantJoined chan struct{}
	joinedOnce        sync.Once
	audioWg           sync.WaitGroup
}

// NewAdapter constructs an unconnected Adapter.
func NewAdapter(ctx context.Context) *Adapter {
	ctx, cancel := context.WithCancel(ctx)
	return &Adapter{
		ctx:               ctx,
		cancel:            cancel,
		participantJoined: make(chan struct{}),
	}
}

// OnRemoteAudio registers the callback invoked for every inbound RTP
// payload on the remote participant's audio track.
func (a *Adapter) OnRemoteAudio(f RemoteAudioFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onRemoteAudio = f
}

// Connect builds the peer connection, registers the local virtual-mic
// track, wires the remote-track (virtual-speaker) handler, and runs the
// signaling exchange via signaler.
func (a *Adapter) Connect(signaler Signaler) error {
	mediaEngine, registry, minimal := newMediaEngine()
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(registry))

	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil && minimal {
		// Fall back to the default interceptor chain if a minimal registry
		// (our echo/noise/AGC-equivalent-disabling approximation) can't be
		// negotiated, per SPEC_FULL.md §4.5.
		mediaEngine, registry, _ = newMediaEngineWithDefaults()
		api = webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(registry))
		pc, err = api.NewPeerConnection(webrtc.Configuration{})
	}
	if err != nil {
		return fmt.Errorf("transport: create peer connection: %w", err)
	}

	a.mu.Lock()
	a.pc = pc
	a.mu.Unlock()

	localTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeTypeL16, ClockRate: sampleRate, Channels: channels},
		"audio", "gateway-mic",
	)
	if err != nil {
		return fmt.Errorf("transport: create local track: %w", err)
	}
	if _, err := pc.AddTrack(localTrack); err != nil {
		return fmt.Errorf("transport: add local track: %w", err)
	}
	a.mu.Lock()
	a.localTrack = localTrack
	a.mu.Unlock()

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		a.joinedOnce.Do(func() { close(a.participantJoined) })
		a.audioWg.Add(1)
		go a.readRemoteTrack(track)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("transport: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("transport: set local description: %w", err)
	}

	answer, err := signaler.Exchange(a.ctx, offer)
	if err != nil {
		return fmt.Errorf("transport: signaling exchange: %w", err)
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("transport: set remote description: %w", err)
	}
	return nil
}

func newMediaEngine() (*webrtc.MediaEngine, *interceptor.Registry, bool) {
	me := &webrtc.MediaEngine{}
	_ = me.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mimeTypeL16, ClockRate: sampleRate, Channels: channels},
		PayloadType:        l16PayloadType,
	}, webrtc.RTPCodecTypeAudio)
	// A bare registry (no RegisterDefaultInterceptors) approximates
	// requesting raw audio without echo-cancellation/noise-suppression/AGC
	// processing, mirroring the original transport's explicit
	// echoCancellation/noiseSuppression/autoGainControl: false negotiation.
	return me, &interceptor.Registry{}, true
}

func newMediaEngineWithDefaults() (*webrtc.MediaEngine, *interceptor.Registry, bool) {
	me := &webrtc.MediaEngine{}
	_ = me.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mimeTypeL16, ClockRate: sampleRate, Channels: channels},
		PayloadType:        l16PayloadType,
	}, webrtc.RTPCodecTypeAudio)
	registry := &interceptor.Registry{}
	_ = webrtc.RegisterDefaultInterceptors(me, registry)
	return me, registry, false
}

func (a *Adapter) readRemoteTrack(track *webrtc.TrackRemote) {
	defer a.audioWg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		a.mu.Lock()
		cb := a.onRemoteAudio
		a.mu.Unlock()
		if cb != nil && len(pkt.Payload) > 0 {
			cb(pkt.Payload, sampleRate, channels)
		}
	}
}

// SendFrame publishes exactly one 20ms PCM16 frame (1920 bytes at
// 48kHz/mono) to the local track.
func (a *Adapter) SendFrame(pcm []byte) error {
	a.mu.Lock()
	track := a.localTrack
	a.mu.Unlock()
	if track == nil {
		return fmt.Errorf("transport: local track not ready")
	}
	return track.WriteSample(media.Sample{Data: pcm, Duration: frameDuration})
}

// WaitForParticipant blocks until a remote audio track is received or ctx
// is done.
func (a *Adapter) WaitForParticipant(ctx context.Context) error {
	select {
	case <-a.participantJoined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the peer connection and waits for the RTP reader
// goroutine to exit.
func (a *Adapter) Close() error {
	a.cancel()
	a.mu.Lock()
	pc := a.pc
	a.mu.Unlock()
	a.audioWg.Wait()
	if pc != nil {
		return pc.Close()
	}
	return nil
}
