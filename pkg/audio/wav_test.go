package audio

import (
	"bytes"
	"testing"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	sampleRate := 44100
	wav := NewWavBuffer(pcm, sampleRate)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}
}

func TestParseWavRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	wav := NewWavBuffer(pcm, 48000)

	gotPCM, sampleRate, err := ParseWav(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sampleRate != 48000 {
		t.Errorf("expected sample rate 48000, got %d", sampleRate)
	}
	if !bytes.Equal(gotPCM, pcm) {
		t.Errorf("expected pcm %v, got %v", pcm, gotPCM)
	}
}

func TestParseWavRejectsNonRiff(t *testing.T) {
	if _, _, err := ParseWav([]byte("not a wav file")); err != ErrNotWav {
		t.Errorf("expected ErrNotWav, got %v", err)
	}
}
