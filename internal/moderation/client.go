// Package moderation wraps the OpenAI-compatible /moderations endpoint used as
// the first half of the safety gate.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds moderation client configuration.
type Config struct {
	Model   string `envconfig:"MODERATION_MODEL" default:"omni-moderation-latest"`
	APIKey  string `envconfig:"OPENAI_API_KEY"`
	BaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Timeout int    `envconfig:"MODERATION_TIMEOUT" default:"15"`
}

// Result is the flagged-category verdict for one input.
type Result struct {
	Flagged    bool
	Categories map[string]bool
}

// Classifier is the narrow interface the safety gate depends on; the HTTP
// client below is the production implementation, tests use stubs.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Client calls the moderations endpoint over plain HTTP.
type Client struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a moderation client from config.
func NewClient(cfg Config) *Client {
	timeout := 15 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Client{
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type moderationRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// Classify submits text and returns the flagged categories. Network and
// decode failures surface as errors; the caller decides the fail-open policy.
func (c *Client) Classify(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(moderationRequest{Model: c.model, Input: text})
	if err != nil {
		return Result{}, fmt.Errorf("marshal moderation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/moderations", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("moderation request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("moderation status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode moderation response: %w", err)
	}
	if len(decoded.Results) == 0 {
		return Result{}, fmt.Errorf("moderation returned no results")
	}

	r := decoded.Results[0]
	categories := r.Categories
	if categories == nil {
		categories = map[string]bool{}
	}
	return Result{Flagged: r.Flagged, Categories: categories}, nil
}
