package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSizeAndQuality(t *testing.T) {
	assert.Equal(t, "1024x1536", NormalizeSize("1024x1536"))
	assert.Equal(t, "1024x1024", NormalizeSize("4096x4096"))
	assert.Equal(t, "1024x1024", NormalizeSize(""))
	assert.Equal(t, "high", NormalizeQuality("high"))
	assert.Equal(t, "low", NormalizeQuality("ultra"))
	assert.Equal(t, "low", NormalizeQuality(""))
}

func TestSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		var req speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alloy", req.Voice)
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, TTSModel: "gpt-4o-mini-tts", TTSVoice: "alloy"})
	mp3, err := c.Speech(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), mp3)
}

func TestTranscribeFallsBackOnce(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		model := r.FormValue("model")
		models = append(models, model)
		if model == "gpt-4o-transcribe" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(transcriptionResponse{Text: "books about war"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, STTModel: "gpt-4o-transcribe", STTFallbackModel: "whisper-1"})
	text, err := c.Transcribe(context.Background(), "clip.webm", strings.NewReader("audio"))
	require.NoError(t, err)
	assert.Equal(t, "books about war", text)
	assert.Equal(t, []string{"gpt-4o-transcribe", "whisper-1"}, models)
}

func TestGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		var req imageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "1024x1024", req.Size, "unknown size is clamped")
		assert.Equal(t, "low", req.Quality, "unknown quality is clamped")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, ImageModel: "gpt-image-1"})
	out, err := c.GenerateImage(context.Background(), "a library", "huge", "ultra")
	require.NoError(t, err)
	assert.Equal(t, png, out)
}

func TestGenerateImageEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.GenerateImage(context.Background(), "p", "", "")
	assert.Error(t, err)
}
