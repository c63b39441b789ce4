package session

import (
	"context"
	"testing"
	"time"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/transport"
	"github.com/lokutor-ai/lokutor-voicegateway/pkg/ttspipeline"
)

type fakeTransport struct {
	connectErr      error
	participantErr  error
	onRemoteAudio   transport.RemoteAudioFunc
	sentFrames      [][]byte
}

func (f *fakeTransport) Connect(transport.Signaler) error { return f.connectErr }
func (f *fakeTransport) OnRemoteAudio(cb transport.RemoteAudioFunc) { f.onRemoteAudio = cb }
func (f *fakeTransport) WaitForParticipant(ctx context.Context) error { return f.participantErr }
func (f *fakeTransport) SendFrame(pcm []byte) error {
	f.sentFrames = append(f.sentFrames, pcm)
	return nil
}

type fakeVADManager struct {
	frames   [][]byte
	interims []string
}

func (f *fakeVADManager) ProcessFrame(frame []byte, downsampled16k []byte) {
	f.frames = append(f.frames, frame)
}
func (f *fakeVADManager) SetInterim(text string)                      { f.interims = append(f.interims, text) }
func (f *fakeVADManager) SetLocalStopThresholds(guardMS, minRMS int) {}

type fakeSpeaker struct {
	spoken []string
	reason ttspipeline.StopReason
}

func (f *fakeSpeaker) Speak(ctx context.Context, voiceID, utteranceID, text string) ttspipeline.StopReason {
	f.spoken = append(f.spoken, text)
	if f.reason == "" {
		return ttspipeline.ReasonCompleted
	}
	return f.reason
}
func (f *fakeSpeaker) Stop() {}

func newTestController(t *testing.T) (*Controller, *fakeTransport, *fakeVADManager, *fakeSpeaker) {
	t.Helper()
	cfg := gatewaysession.DefaultConfig()
	cfg.BotParticipantTimeoutSeconds = 1
	cfg.BotIdleExitSeconds = 0
	cfg.GreetingText = "hello there"
	state := gatewaysession.NewState("sess-1", cfg)
	rtc := &fakeTransport{}
	vadMgr := &fakeVADManager{}
	speaker := &fakeSpeaker{}
	c := New(cfg, state, nil, rtc, vadMgr, speaker, nil, nil)
	return c, rtc, vadMgr, speaker
}

func TestRunSpeaksGreetingThenExitsWhenIdle(t *testing.T) {
	c, _, _, speaker := newTestController(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Run(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(speaker.spoken) != 1 || speaker.spoken[0] != "hello there" {
		t.Fatalf("expected greeting spoken once, got %v", speaker.spoken)
	}
}

func TestRunFailsWhenNoParticipantJoins(t *testing.T) {
	c, rtc, _, _ := newTestController(t)
	rtc.participantErr = context.DeadlineExceeded

	err := c.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error when no participant joins")
	}
}

func TestHandleRemoteAudioSlicesIntoAlignedFrames(t *testing.T) {
	c, rtc, vadMgr, _ := newTestController(t)
	_ = c.Run(context.Background(), nil)

	// 48kHz mono samples: 2 full 20ms frames plus a partial remainder.
	payload := make([]byte, frameBytes*2+100)
	rtc.onRemoteAudio(payload, 48000, 1)

	if len(vadMgr.frames) != 2 {
		t.Fatalf("expected 2 aligned frames, got %d", len(vadMgr.frames))
	}
	for _, f := range vadMgr.frames {
		if len(f) != frameBytes {
			t.Errorf("expected frame of %d bytes, got %d", frameBytes, len(f))
		}
	}
}
