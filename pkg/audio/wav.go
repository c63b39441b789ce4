package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)


func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           
	binary.Write(buf, binary.LittleEndian, uint16(1))            
	binary.Write(buf, binary.LittleEndian, uint16(1))            
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) 
	binary.Write(buf, binary.LittleEndian, uint16(2))            
	binary.Write(buf, binary.LittleEndian, uint16(16))           

	
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

var ErrNotWav = errors.New("audio: not a RIFF/WAVE stream")
var ErrUnsupportedWavFormat = errors.New("audio: unsupported WAV format, need PCM16")

// ParseWav locates the "data" chunk of a PCM16 RIFF/WAVE buffer and returns
// its raw sample payload, mono-collapsing stereo input by averaging channels
// and the declared sample rate. Grounded on original_source/gateway/main.py's
// WavStreamParser and pcm_stereo_to_mono.
func ParseWav(data []byte) (pcm []byte, sampleRate int, err error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, 0, ErrNotWav
	}

	channels := 1
	bitsPerSample := 16
	off := 12
	for {
		if len(data) < off+8 {
			return nil, 0, errors.New("audio: truncated WAV chunk header")
		}
		cid := string(data[off : off+4])
		csz := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8

		switch cid {
		case "fmt ":
			if len(data) < off+csz {
				return nil, 0, errors.New("audio: truncated fmt chunk")
			}
			fmtTag := binary.LittleEndian.Uint16(data[off : off+2])
			channels = int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[off+14 : off+16]))
			if fmtTag != 1 || bitsPerSample != 16 {
				return nil, 0, ErrUnsupportedWavFormat
			}
			off += csz
		case "data":
			if len(data) < off+csz {
				csz = len(data) - off
			}
			raw := data[off : off+csz]
			if channels == 2 {
				raw = stereoToMonoBytes(raw)
			}
			return raw, sampleRate, nil
		default:
			if len(data) < off+csz {
				return nil, 0, errors.New("audio: truncated WAV chunk")
			}
			off += csz
		}
	}
}

func stereoToMonoBytes(pcm []byte) []byte {
	n := len(pcm) / 4 // 2 channels * 2 bytes/sample
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4 : i*4+2]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2 : i*4+4]))
		avg := int16((int32(l) + int32(r)) / 2)
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(avg))
	}
	return out
}
