package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/voicechat/internal/logging"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestElevenLabsRealtimeRecognition(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech-to-text/realtime", r.URL.Path)
		assert.Equal(t, "fr", r.URL.Query().Get("language_code"))
		assert.Equal(t, "manual", r.URL.Query().Get("commit_strategy"))
		assert.Equal(t, "el-key", r.Header.Get("xi-api-key"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"message_type": "session_started"})

		var audio []byte
		for {
			var msg struct {
				MessageType string `json:"message_type"`
				Audio       string `json:"audio_base_64"`
				Commit      bool   `json:"commit"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			chunk, _ := base64.StdEncoding.DecodeString(msg.Audio)
			audio = append(audio, chunk...)
			_ = conn.WriteJSON(map[string]any{"message_type": "partial_transcript", "text": "bon"})
			if msg.Commit {
				assert.Equal(t, "pcm-bytes", string(audio))
				_ = conn.WriteJSON(map[string]any{"message_type": "committed_transcript", "text": "bonjour"})
			}
		}
	}))
	defer server.Close()

	p, err := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "el-key", WSBaseURL: wsURL(server.URL), Logger: logging.Discard()})
	require.NoError(t, err)

	session, events, err := p.StartRecognition(context.Background(), RecognitionConfig{Locale: "fr-FR", SampleRate: 16000})
	require.NoError(t, err)
	require.NoError(t, session.SendAudio(context.Background(), []byte("pcm-")))
	require.NoError(t, session.SendAudio(context.Background(), []byte("bytes")))
	require.NoError(t, session.EndOfAudio(context.Background()))

	ev := nextEvent(t, events)
	assert.Equal(t, EventRecognized, ev.Type)
	assert.Equal(t, "bonjour", ev.Text)

	require.NoError(t, session.Stop())
	require.NoError(t, session.Stop())
	assert.ErrorIs(t, session.SendAudio(context.Background(), []byte("late")), ErrSessionClosed)
}

func TestElevenLabsRealtimeErrorIsCanceled(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"message_type": "auth_error", "error": "invalid key"})
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	p, err := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "el-key", WSBaseURL: wsURL(server.URL)})
	require.NoError(t, err)
	session, events, err := p.StartRecognition(context.Background(), RecognitionConfig{Locale: "en-US"})
	require.NoError(t, err)
	defer session.Stop()

	ev := nextEvent(t, events)
	assert.Equal(t, EventCanceled, ev.Type)
	assert.Contains(t, ev.Detail, "invalid key")
}

func TestElevenLabsSynthesizeUsesLocaleVoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-fr", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "el-key", r.Header.Get("xi-api-key"))

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Bonjour", payload["text"])
		assert.Equal(t, "fr", payload["language_code"])

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3mp3"))
	}))
	defer server.Close()

	p, err := NewElevenLabsProvider(ElevenLabsConfig{
		APIKey:         "el-key",
		HTTPBaseURL:    server.URL,
		Voices:         map[string]string{"FR": "voice-fr"},
		DefaultVoiceID: "voice-default",
	})
	require.NoError(t, err)

	res, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "Bonjour", Locale: "fr-FR", Voice: "fr-FR-DeniseNeural"})
	require.NoError(t, err)
	assert.Equal(t, ReasonCompleted, res.Reason)
	assert.Equal(t, FormatMP3, res.Format)
	assert.Equal(t, "ID3mp3", string(res.Audio))

	assert.Equal(t, "voice-default", p.voiceFor("de-DE"))
}

func TestElevenLabsSynthesizeWithoutVoice(t *testing.T) {
	p, err := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "el-key"})
	require.NoError(t, err)
	_, err = p.Synthesize(context.Background(), SynthesisRequest{Text: "hi", Locale: "en-US"})
	assert.ErrorIs(t, err, ErrNoVoice)
}

func TestBaseLanguage(t *testing.T) {
	assert.Equal(t, "fr", baseLanguage("fr-FR"))
	assert.Equal(t, "zh", baseLanguage("zh_CN"))
	assert.Equal(t, "en", baseLanguage("EN"))
	assert.Equal(t, "", baseLanguage(""))
}
