// Package media wraps the OpenAI-compatible audio and image endpoints used by
// the web UI: speech synthesis, transcription and image generation.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	logx "github.com/smart-librarian/server/pkg/logger"
)

// Config holds media endpoint configuration.
type Config struct {
	APIKey  string `envconfig:"OPENAI_API_KEY"`
	BaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`

	TTSModel string `envconfig:"TTS_MODEL" default:"gpt-4o-mini-tts"`
	TTSVoice string `envconfig:"TTS_VOICE" default:"alloy"`

	STTModel         string `envconfig:"STT_MODEL" default:"gpt-4o-transcribe"`
	STTFallbackModel string `envconfig:"STT_FALLBACK_MODEL" default:"whisper-1"`

	ImageModel string `envconfig:"IMAGE_MODEL" default:"gpt-image-1"`

	Timeout int `envconfig:"MEDIA_TIMEOUT" default:"120"`
}

var (
	allowedSizes     = map[string]bool{"1024x1024": true, "1024x1536": true, "1536x1024": true, "auto": true}
	allowedQualities = map[string]bool{"low": true, "medium": true, "high": true, "auto": true}
)

// NormalizeSize clamps an image size to the whitelist.
func NormalizeSize(size string) string {
	size = strings.TrimSpace(size)
	if !allowedSizes[size] {
		return "1024x1024"
	}
	return size
}

// NormalizeQuality clamps an image quality to the whitelist.
func NormalizeQuality(quality string) string {
	quality = strings.TrimSpace(quality)
	if !allowedQualities[quality] {
		return "low"
	}
	return quality
}

// Client talks to the media endpoints.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a media client from config.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	timeout := 120 * time.Second
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + path
}

func (c *Client) authorize(req *http.Request) {
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

type speechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

// Speech synthesizes text into MP3 bytes with the single fixed voice.
func (c *Client) Speech(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(speechRequest{Model: c.config.TTSModel, Voice: c.config.TTSVoice, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/audio/speech"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("speech status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return io.ReadAll(resp.Body)
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe converts uploaded audio to text. The primary model is tried
// first, then the fallback model exactly once.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	// Buffered once so the fallback attempt can resend the same bytes.
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	text, err := c.transcribeWith(ctx, c.config.STTModel, filename, data)
	if err == nil {
		return text, nil
	}
	if c.config.STTFallbackModel == "" || c.config.STTFallbackModel == c.config.STTModel {
		return "", err
	}
	logx.Warn().Err(err).Str("model", c.config.STTModel).Msg("transcription failed, trying fallback model")
	return c.transcribeWith(ctx, c.config.STTFallbackModel, filename, data)
}

func (c *Client) transcribeWith(ctx context.Context, model, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("model", model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/audio/transcriptions"), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcription status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return decoded.Text, nil
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage renders a PNG for the prompt. Size and quality are clamped to
// their whitelists before the call.
func (c *Client) GenerateImage(ctx context.Context, prompt, size, quality string) ([]byte, error) {
	body, err := json.Marshal(imageRequest{
		Model:   c.config.ImageModel,
		Prompt:  prompt,
		Size:    NormalizeSize(size),
		Quality: NormalizeQuality(quality),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/images/generations"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("image generation returned no data")
	}
	return base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
}
