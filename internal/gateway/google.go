package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GoogleProvider calls the Gemini generateContent API
type GoogleProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
}

// NewGoogleProvider creates a Gemini provider
func NewGoogleProvider(apiKey, model string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
	}
}

type googleRequest struct {
	Contents          []googleContent        `json:"contents"`
	SystemInstruction *googleContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Complete sends a request to Google Gemini
func (p *GoogleProvider) Complete(ctx context.Context, messages []Message, opts CallOptions) (*Response, error) {
	var system *googleContent
	contents := make([]googleContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = &googleContent{Parts: []googlePart{{Text: msg.Content}}}
		case "assistant":
			// Gemini uses "model", not "assistant"
			contents = append(contents, googleContent{Role: "model", Parts: []googlePart{{Text: msg.Content}}})
		default:
			contents = append(contents, googleContent{Role: msg.Role, Parts: []googlePart{{Text: msg.Content}}})
		}
	}

	model := opts.Model
	if model == "" {
		model = p.model
	}

	reqBody := googleRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig: googleGenerationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Network errors are retryable
		return nil, classifyStatus(http.StatusServiceUnavailable, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, string(body)))
	}

	var googleResp googleResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(googleResp.Candidates) == 0 {
		return nil, fmt.Errorf("no response candidates")
	}

	var content string
	for _, part := range googleResp.Candidates[0].Content.Parts {
		content += part.Text
	}

	return &Response{
		Content:      content,
		InputTokens:  googleResp.UsageMetadata.PromptTokenCount,
		OutputTokens: googleResp.UsageMetadata.CandidatesTokenCount,
		Model:        model,
	}, nil
}

// Name returns the provider name
func (p *GoogleProvider) Name() string { return "google" }
