package audio

import "testing"

func TestResampleIdentityAt48k(t *testing.T) {
	pcm := []int16{100, -200, 300, -400}
	out := Resample(pcm, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("expected identity length %d, got %d", len(pcm), len(out))
	}
	for i := range pcm {
		if out[i] != pcm[i] {
			t.Errorf("index %d: expected %d, got %d", i, pcm[i], out[i])
		}
	}
}

func TestResampleLengthRatio(t *testing.T) {
	pcm := make([]int16, 1600) // 100ms @ 16kHz
	out := Resample(pcm, 16000)
	expected := len(pcm) * 48000 / 16000
	if diff := absDiff(len(out), expected); diff > 1 {
		t.Errorf("expected length near %d, got %d", expected, len(out))
	}
}

func TestDownsampleTo16kLengthRatio(t *testing.T) {
	pcm := make([]int16, 960) // 20ms @ 48kHz
	out := DownsampleTo16k(pcm)
	expected := len(pcm) / 3
	if diff := absDiff(len(out), expected); diff > 1 {
		t.Errorf("expected length near %d, got %d", expected, len(out))
	}
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
