package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// DefaultSampleRate is what browsers are asked to record and what the
	// recognition endpoints expect for raw PCM.
	DefaultSampleRate = 16000

	wavHeaderSize = 44
)

var ErrNotWAV = errors.New("audio is not a RIFF/WAVE stream")

// Format describes the PCM layout inside a WAV container.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// EncodeWAV wraps raw PCM16LE mono samples in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	buf.WriteString("RIFF")
	writeLE(&buf, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	writeLE(&buf, uint32(16))
	writeLE(&buf, uint16(1)) // PCM
	writeLE(&buf, uint16(channels))
	writeLE(&buf, uint32(sampleRate))
	writeLE(&buf, uint32(sampleRate*blockAlign))
	writeLE(&buf, uint16(blockAlign))
	writeLE(&buf, uint16(bitsPerSample))
	buf.WriteString("data")
	writeLE(&buf, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV returns the PCM payload and its format. Chunks other than
// "fmt " and "data" are skipped.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if !IsWAV(data) {
		return nil, Format{}, ErrNotWAV
	}
	var (
		format   Format
		haveFmt  bool
		position = 12
	)
	for position+8 <= len(data) {
		id := string(data[position : position+4])
		size := int(binary.LittleEndian.Uint32(data[position+4 : position+8]))
		body := position + 8
		if size < 0 || body+size > len(data) {
			if id == "data" {
				// Streaming writers often leave the data size unset.
				size = len(data) - body
			} else {
				return nil, Format{}, fmt.Errorf("wav chunk %q overruns buffer", id)
			}
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("wav fmt chunk too short: %d", size)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, Format{}, errors.New("wav data chunk before fmt chunk")
			}
			return data[body : body+size], format, nil
		}
		position = body + size + size%2
	}
	return nil, Format{}, errors.New("wav stream has no data chunk")
}

// EnsureWAV returns data unchanged when it is already WAV, otherwise treats it
// as PCM16LE mono at sampleRate.
func EnsureWAV(data []byte, sampleRate int) []byte {
	if IsWAV(data) {
		return data
	}
	return EncodeWAV(data, sampleRate)
}

// PCM strips a WAV container when present and returns the raw samples along
// with their sample rate.
func PCM(data []byte) ([]byte, int) {
	if pcm, format, err := DecodeWAV(data); err == nil {
		return pcm, format.SampleRate
	}
	return data, DefaultSampleRate
}

func writeLE(buf *bytes.Buffer, v any) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}
