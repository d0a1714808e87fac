// Package chat talks to the generative-AI backend and keeps the per-identity
// conversation state.
package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/red-ai/redterm/internal/models"
)

// Upstream defaults matching the hosted Gemini API.
const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com"
	DefaultModel       = "gemini-2.5-flash"
	DefaultTemperature = 0.7

	// DefaultSystemInstruction steers the assistant persona.
	DefaultSystemInstruction = "You are a helpful, professional, and intelligent AI assistant. " +
		"You answer concisely and accurately. You support all languages, including Arabic, " +
		"with excellent proficiency."
)

// ClientConfig parameterizes the upstream streaming client.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float64
	SystemInstruction string
}

// Client streams model responses from a Gemini-style REST API over SSE.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient constructs a Client, filling unset config fields with the
// upstream defaults. The underlying HTTP client carries no timeout; streams
// are bounded by the request context instead.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	return &Client{cfg: cfg, httpClient: &http.Client{}}
}

type generatePart struct {
	Text string `json:"text"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Contents          []generateContent `json:"contents"`
	SystemInstruction *generateContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
}

// Stream sends the conversation history upstream and invokes onFragment for
// every text chunk of the streamed reply. It returns once the stream ends or
// the context is canceled.
func (c *Client) Stream(ctx context.Context, history []models.Message, onFragment func(string)) error {
	reqBody := generateRequest{
		Contents:          contentsFrom(history),
		SystemInstruction: &generateContent{Parts: []generatePart{{Text: c.cfg.SystemInstruction}}},
		GenerationConfig:  &generationConfig{Temperature: c.cfg.Temperature},
	}
	payload, errMarshal := json.Marshal(reqBody)
	if errMarshal != nil {
		return fmt.Errorf("chat: marshal request: %w", errMarshal)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if errReq != nil {
		return fmt.Errorf("chat: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return fmt.Errorf("chat: upstream request: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat: upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk generateResponse
		if errDecode := json.Unmarshal([]byte(data), &chunk); errDecode != nil {
			return fmt.Errorf("chat: decode chunk: %w", errDecode)
		}
		for _, candidate := range chunk.Candidates {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					onFragment(part.Text)
				}
			}
		}
	}
	if errScan := scanner.Err(); errScan != nil {
		return fmt.Errorf("chat: read stream: %w", errScan)
	}
	return nil
}

// contentsFrom converts a transcript into upstream request contents, skipping
// local-only entries such as the welcome line and synthetic notices.
func contentsFrom(history []models.Message) []generateContent {
	contents := make([]generateContent, 0, len(history))
	for _, msg := range history {
		if msg.Content == "" || !msg.Sendable() {
			continue
		}
		contents = append(contents, generateContent{
			Role:  msg.Role,
			Parts: []generatePart{{Text: msg.Content}},
		})
	}
	return contents
}
