package audio

// Polyphase-ish linear resampling for PCM16 mono audio. Grounded on
// original_source/gateway/audio_utils.py's use of scipy's resample_poly:
// that implementation reduces (up, down) by gcd and runs a polyphase FIR.
// Without a DSP dependency in the pack's stack, this package keeps the same
// up/down factor reduction and fills samples with linear interpolation
// between the nearest source samples, clipping to int16 range the way the
// original clips to [-32768, 32767] after resampling.

import "math"

// Resample converts PCM16 samples from srcSR to 48000 Hz. It is the
// identity function when srcSR is already 48000.
func Resample(pcm []int16, srcSR int) []int16 {
	return resample(pcm, srcSR, 48000)
}

// DownsampleTo16k converts 48 kHz PCM16 samples to 16 kHz via decimation
// factor 3, matching downsample_48k_to_16k in the original gateway.
func DownsampleTo16k(pcm []int16) []int16 {
	return resample(pcm, 48000, 16000)
}

func resample(pcm []int16, srcSR, dstSR int) []int16 {
	if srcSR == dstSR || len(pcm) == 0 {
		out := make([]int16, len(pcm))
		copy(out, pcm)
		return out
	}

	up, down := reduceByGCD(dstSR, srcSR)
	n := len(pcm)
	outLen := int(math.Ceil(float64(n) * float64(up) / float64(down)))
	out := make([]int16, outLen)

	ratio := float64(down) / float64(up) // source-samples per output sample
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		i0 := int(math.Floor(srcPos))
		frac := srcPos - float64(i0)
		var s0, s1 float64
		if i0 >= 0 && i0 < n {
			s0 = float64(pcm[i0])
		} else if i0 >= n {
			s0 = float64(pcm[n-1])
		}
		i1 := i0 + 1
		if i1 >= 0 && i1 < n {
			s1 = float64(pcm[i1])
		} else {
			s1 = s0
		}
		v := s0 + (s1-s0)*frac
		out[i] = clipInt16(v)
	}
	return out
}

func reduceByGCD(a, b int) (int, int) {
	g := gcd(a, b)
	if g == 0 {
		return a, b
	}
	return a / g, b / g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func clipInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
