package vadmanager

import (
	"math"
	"testing"
	"time"

	"github.com/lokutor-ai/lokutor-voicegateway/pkg/gatewaysession"
)

type fixedClassifier struct{ voiced bool }

func (f *fixedClassifier) IsVoiced(pcm16 []byte, sampleRate int) (bool, error) {
	return f.voiced, nil
}

type fakeSTT struct {
	begun   []string
	audio   int
	ended   int
}

func (f *fakeSTT) BeginUtterance(id string) error { f.begun = append(f.begun, id); return nil }
func (f *fakeSTT) SendAudio(pcm []byte) error      { f.audio++; return nil }
func (f *fakeSTT) EndUtterance() error             { f.ended++; return nil }

type fakeFeatures struct{ last float64 }

func (f *fakeFeatures) SetRMS(rms float64) { f.last = rms }

type fakeObserver struct{ events []gatewaysession.ObserverEvent }

func (f *fakeObserver) Emit(ev gatewaysession.ObserverEvent) { f.events = append(f.events, ev) }

func toneFrame(amp float64, n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amp * math.Sin(2*math.Pi*440*float64(i)/48000)
		s := int16(v * 32767)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func newTestManager(t *testing.T, cfg gatewaysession.Config) (*Manager, *fakeSTT, *fakeFeatures, *fakeObserver) {
	t.Helper()
	state := gatewaysession.NewState("sess-test", cfg)
	stt := &fakeSTT{}
	feat := &fakeFeatures{}
	obs := &fakeObserver{}
	m := New(cfg, state, &fixedClassifier{voiced: true}, stt, feat, obs)
	return m, stt, feat, obs
}

func TestManagerBeginsSTTUtteranceOnLoudStart(t *testing.T) {
	cfg := gatewaysession.DefaultConfig()
	m, stt, _, _ := newTestManager(t, cfg)

	loud := toneFrame(0.5, 960)
	m.ProcessFrame(loud, nil)
	m.ProcessFrame(loud, nil)

	if len(stt.begun) != 1 {
		t.Fatalf("expected exactly one BeginUtterance call, got %d", len(stt.begun))
	}
}

func TestManagerSuppressesBargeInWithoutArm(t *testing.T) {
	cfg := gatewaysession.DefaultConfig()
	m, _, _, obs := newTestManager(t, cfg)

	loud := toneFrame(0.5, 960)
	m.ProcessFrame(loud, nil)
	m.ProcessFrame(loud, nil)

	if m.Snapshot().SuppressedGuard == 0 {
		t.Fatalf("expected guard suppression when never armed")
	}
	found := false
	for _, ev := range obs.events {
		if ev.Type == gatewaysession.ObserverVADStartSuppressed && ev.Payload["reason"] == "guard" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected vad_start_suppressed observer event with reason=guard")
	}
}

func TestManagerAllowsBargeInWhenArmedAndLoud(t *testing.T) {
	cfg := gatewaysession.DefaultConfig()
	cfg.LocalStopGuardMS = 0
	m, _, _, _ := newTestManager(t, cfg)
	m.Arm()

	stopped := false
	m.StopTTS = func() { stopped = true }

	loud := toneFrame(0.8, 960)
	m.ProcessFrame(loud, nil)
	m.ProcessFrame(loud, nil)

	if !stopped {
		t.Fatalf("expected StopTTS to be invoked for loud armed barge-in")
	}
	if m.Snapshot().StopsAllowed != 1 {
		t.Fatalf("expected 1 allowed stop, got %d", m.Snapshot().StopsAllowed)
	}
}

func TestManagerSuppressesBargeInBelowEnergyThreshold(t *testing.T) {
	cfg := gatewaysession.DefaultConfig()
	cfg.LocalStopGuardMS = 0
	m, _, _, _ := newTestManager(t, cfg)
	m.Arm()

	stopped := false
	m.StopTTS = func() { stopped = true }

	quiet := toneFrame(0.01, 960)
	m.ProcessFrame(quiet, nil)
	m.ProcessFrame(quiet, nil)

	if stopped {
		t.Fatalf("expected quiet frame not to trigger barge-in")
	}
	if m.Snapshot().SuppressedEnergy == 0 {
		t.Fatalf("expected energy suppression counter to increment")
	}
}

func TestManagerEndsUtteranceOnVADEnd(t *testing.T) {
	cfg := gatewaysession.DefaultConfig()
	cfg.VADHangoverMS = 20
	state := gatewaysession.NewState("sess-end", cfg)
	stt := &fakeSTT{}
	classifier := &fixedClassifier{voiced: true}
	m := New(cfg, state, classifier, stt, &fakeFeatures{}, &fakeObserver{})

	loud := toneFrame(0.5, 960)
	m.ProcessFrame(loud, nil)
	m.ProcessFrame(loud, nil)
	if len(stt.begun) != 1 {
		t.Fatalf("expected utterance begun")
	}

	classifier.voiced = false
	silence := make([]byte, 1920)
	time.Sleep(130 * time.Millisecond) // exceed min_burst_frames=6 worth of elapsed time
	m.ProcessFrame(silence, nil)
	m.ProcessFrame(silence, nil)

	if stt.ended != 1 {
		t.Fatalf("expected EndUtterance called once, got %d", stt.ended)
	}
}

func TestPercentileEmptyIsZero(t *testing.T) {
	if got := percentile(nil, 0.9); got != 0 {
		t.Errorf("expected 0 for empty sample set, got %v", got)
	}
}
