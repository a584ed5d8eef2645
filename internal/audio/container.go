package audio

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrUnsupportedContainer is returned for compressed uploads. Only WAV and
// raw PCM16LE mono at DefaultSampleRate are accepted.
var ErrUnsupportedContainer = errors.New("unsupported audio container (send WAV or raw 16 kHz PCM16LE)")

var containerMagic = []struct {
	name   string
	offset int
	magic  []byte
}{
	{name: "ogg", magic: []byte("OggS")},
	{name: "webm", magic: []byte{0x1A, 0x45, 0xDF, 0xA3}},
	{name: "flac", magic: []byte("fLaC")},
	{name: "mp3", magic: []byte("ID3")},
	{name: "mp4", offset: 4, magic: []byte("ftyp")},
}

// Container names the compressed container data starts with, or "" when it
// is WAV or looks like raw PCM.
func Container(data []byte) string {
	for _, c := range containerMagic {
		end := c.offset + len(c.magic)
		if len(data) >= end && bytes.Equal(data[c.offset:end], c.magic) {
			return c.name
		}
	}
	return ""
}

// CheckUpload rejects audio the recognizers would otherwise read as noise.
func CheckUpload(data []byte) error {
	if name := Container(data); name != "" {
		return fmt.Errorf("%w: got %s", ErrUnsupportedContainer, name)
	}
	return nil
}
