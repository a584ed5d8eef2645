package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := EncodeWAV(pcm, 24000)

	require.True(t, IsWAV(wav))
	assert.Len(t, wav, wavHeaderSize+len(pcm))

	got, format, err := DecodeWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, pcm, got)
	assert.Equal(t, Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}, format)
}

func TestDecodeWAVRejectsRawPCM(t *testing.T) {
	_, _, err := DecodeWAV([]byte("not a wav file at all"))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestPCMAndEnsureWAV(t *testing.T) {
	raw := []byte{9, 9, 9, 9}

	pcm, rate := PCM(raw)
	assert.Equal(t, raw, pcm)
	assert.Equal(t, DefaultSampleRate, rate)

	wrapped := EnsureWAV(raw, 0)
	assert.True(t, IsWAV(wrapped))
	assert.Equal(t, wrapped, EnsureWAV(wrapped, 8000))

	pcm, rate = PCM(wrapped)
	assert.Equal(t, raw, pcm)
	assert.Equal(t, DefaultSampleRate, rate)
}
