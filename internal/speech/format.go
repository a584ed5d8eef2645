package speech

import "strings"

// Output format identifiers reported in SynthesisResult.Format.
const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatPCM  = "pcm"
	FormatOGG  = "ogg"
	FormatMock = "mock"
)

// ContentType maps a synthesis format to the MIME type served over HTTP.
func ContentType(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); {
	case f == FormatWAV, strings.HasPrefix(f, "riff"):
		return "audio/wav"
	case f == FormatMP3, strings.HasPrefix(f, "mp3"), strings.Contains(f, "mp3"):
		return "audio/mpeg"
	case f == FormatOGG, strings.HasPrefix(f, "ogg"):
		return "audio/ogg"
	case f == FormatPCM, strings.HasPrefix(f, "pcm"), strings.HasPrefix(f, "raw"):
		return "audio/L16"
	case f == FormatMock:
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// formatFromOutput reduces a provider output format such as
// "riff-24khz-16bit-mono-pcm" or "mp3_44100_128" to a short identifier.
func formatFromOutput(output string) string {
	f := strings.ToLower(output)
	switch {
	case strings.HasPrefix(f, "riff"):
		return FormatWAV
	case strings.HasPrefix(f, "mp3") || strings.Contains(f, "-mp3"):
		return FormatMP3
	case strings.HasPrefix(f, "ogg") || strings.Contains(f, "opus"):
		return FormatOGG
	case strings.HasPrefix(f, "raw") || strings.HasPrefix(f, "pcm"):
		return FormatPCM
	default:
		return f
	}
}
